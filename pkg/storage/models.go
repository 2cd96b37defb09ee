package storage

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxDestinationLength = 2048
	MaxUserAgentLength   = 1024
	MaxRefererLength     = 2048
)

// Mapping associates a short key with its destination URL.
type Mapping struct {
	ID          int64      `json:"id" db:"id"`
	OwnerID     uuid.UUID  `json:"owner_id" db:"owner_id"`
	Destination string     `json:"destination" db:"destination"`
	Key         string     `json:"key" db:"short_key"`
	IsCustomKey bool       `json:"is_custom_key" db:"is_custom_key"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ClickCount  int64      `json:"click_count" db:"click_count"`
	// Version starts at 1 and grows with every UpdateMapping.
	Version int64 `json:"version" db:"version"`
}

// IsExpired reports whether the mapping had expired at now.
func (m *Mapping) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// ClickEvent is one recorded resolution of a mapping. Rows are append-only
// and go away only with their mapping.
type ClickEvent struct {
	ID        int64     `json:"id" db:"id"`
	MappingID int64     `json:"mapping_id" db:"mapping_id"`
	ClickedAt time.Time `json:"clicked_at" db:"clicked_at"`
	SourceIP  *string   `json:"source_ip,omitempty" db:"source_ip"`
	UserAgent *string   `json:"user_agent,omitempty" db:"user_agent"`
	Referer   *string   `json:"referer,omitempty" db:"referer"`
}
