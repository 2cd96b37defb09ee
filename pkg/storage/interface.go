package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUniquenessViolation is returned when a write would give two live
	// mappings the same key. The constraint in the backing store is the
	// only authority on key uniqueness.
	ErrUniquenessViolation = errors.New("short key already in use")
	ErrNotFound            = errors.New("mapping not found")
	// ErrStaleMapping means a write was pinned to a key and version the
	// mapping no longer has, because it was edited or deleted.
	ErrStaleMapping = errors.New("mapping changed since it was read")
)

type MappingStore interface {
	// CreateMapping inserts m and fills in ID and CreatedAt.
	CreateMapping(ctx context.Context, m *Mapping) error
	FindByKey(ctx context.Context, key string) (*Mapping, error)
	FindByID(ctx context.Context, id int64) (*Mapping, error)
	// KeyExists is advisory; a false result does not reserve the key.
	KeyExists(ctx context.Context, key string, excludeID int64) (bool, error)
	// UpdateMapping writes destination, key, custom flag and expiry, bumps
	// the version and stores the new one in m.Version. It never touches the
	// click counter.
	UpdateMapping(ctx context.Context, m *Mapping) error
	// IncrementClickCount adds delta in a single relative update and
	// returns the new value.
	IncrementClickCount(ctx context.Context, id int64, delta int64) (int64, error)
	// AppendClickEvent records e only while mapping e.MappingID still has
	// key at version, and returns ErrStaleMapping otherwise.
	AppendClickEvent(ctx context.Context, e *ClickEvent, key string, version int64) error
	// DeleteMapping removes the mapping and all of its click events.
	DeleteMapping(ctx context.Context, id int64) error
	// ListClicks returns at most limit events, newest first.
	ListClicks(ctx context.Context, mappingID int64, limit int) ([]*ClickEvent, error)
	// ListByOwner returns the owner's mappings, newest first, optionally
	// filtered by a case-insensitive substring of destination or key.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, search string) ([]*Mapping, error)
	// ReconcileClickCounts raises counters that fell behind their click
	// event rows and returns how many were corrected. Mappings clicked at
	// or after settledBefore are skipped, since their increment may still
	// be in flight. Counters are never lowered.
	ReconcileClickCounts(ctx context.Context, settledBefore time.Time) (int64, error)
	Migrate(ctx context.Context) error
	Close() error
}
