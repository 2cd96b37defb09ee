package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shortener/pkg/cache"
	"shortener/pkg/logging"
	"shortener/pkg/metrics"
	"shortener/pkg/middleware"
	"shortener/pkg/storage"

	"github.com/google/uuid"
)

type Options struct {
	// BaseURL prefixes keys in rendered short URLs.
	BaseURL  string
	Keys     AllocatorConfig
	Resolver ResolverConfig
	Metrics  *metrics.Metrics
}

// LinkService is the owner-facing surface over the allocator, resolver and
// analytics reader. Every method except Resolve acts on behalf of the owner
// carried in ctx.
type LinkService struct {
	store     storage.MappingStore
	allocator *KeyAllocator
	resolver  *RedirectResolver
	analytics *AnalyticsReader
	logger    *logging.Logger
	baseURL   string
}

func NewLinkService(store storage.MappingStore, c cache.MappingCacheInterface, logger *logging.Logger, opts Options) *LinkService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LinkService{
		store:     store,
		allocator: NewKeyAllocator(store, opts.Keys, logger, opts.Metrics),
		resolver:  NewRedirectResolver(store, c, opts.Resolver, logger, opts.Metrics),
		analytics: NewAnalyticsReader(store),
		logger:    logger,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
	}
}

type CreateLinkRequest struct {
	Destination string     `json:"destination" validate:"required,max=2048"`
	CustomKey   *string    `json:"custom_key,omitempty" validate:"omitempty,shortkey"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// UpdateLinkRequest changes only the fields that are set. CustomKey set to
// "" drops a custom key in favour of a fresh auto key.
type UpdateLinkRequest struct {
	Destination *string    `json:"destination,omitempty" validate:"omitempty,max=2048"`
	CustomKey   *string    `json:"custom_key,omitempty" validate:"omitempty,shortkey"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClearExpiry bool       `json:"clear_expiry,omitempty"`
}

type LinkResponse struct {
	ID          int64      `json:"id"`
	Key         string     `json:"key"`
	ShortURL    string     `json:"short_url"`
	Destination string     `json:"destination"`
	IsCustomKey bool       `json:"is_custom_key"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClickCount  int64      `json:"click_count"`
}

// ShortURL renders the public URL for key.
func (s *LinkService) ShortURL(key string) string {
	return s.baseURL + "/" + key
}

func (s *LinkService) toResponse(m *storage.Mapping) *LinkResponse {
	return &LinkResponse{
		ID:          m.ID,
		Key:         m.Key,
		ShortURL:    s.ShortURL(m.Key),
		Destination: m.Destination,
		IsCustomKey: m.IsCustomKey,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
		ClickCount:  m.ClickCount,
	}
}

func (s *LinkService) CreateLink(ctx context.Context, req *CreateLinkRequest) (*LinkResponse, error) {
	ownerID := middleware.GetOwnerIDFromContext(ctx)
	if ownerID == uuid.Nil {
		return nil, ErrOwnerRequired
	}

	dest, err := NormalizeDestination(req.Destination)
	if err != nil {
		s.logger.LogURLValidation(ctx, false, "")
		return nil, err
	}
	s.logger.LogURLValidation(ctx, true, schemeOf(dest))

	custom := ""
	if req.CustomKey != nil {
		custom = *req.CustomKey
	}

	var created *storage.Mapping
	persist := func(ctx context.Context, key string, isCustom bool) error {
		m := &storage.Mapping{
			OwnerID:     ownerID,
			Destination: dest,
			Key:         key,
			IsCustomKey: isCustom,
			ExpiresAt:   req.ExpiresAt,
		}
		if err := s.store.CreateMapping(ctx, m); err != nil {
			return err
		}
		created = m
		return nil
	}

	key, _, err := s.allocator.Claim(ctx, custom, 0, persist)
	if err != nil {
		s.logger.LogLinkOperation(ctx, "create", custom, false)
		return nil, err
	}

	// The key may sit in the cache as a negative entry.
	s.resolver.Invalidate(ctx, key)
	s.logger.LogLinkOperation(ctx, "create", key, true)
	return s.toResponse(created), nil
}

func (s *LinkService) GetLink(ctx context.Context, id int64) (*LinkResponse, error) {
	m, err := s.ownedMapping(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(m), nil
}

// ListLinks returns the caller's links, newest first. A non-empty search
// matches destination or key case-insensitively.
func (s *LinkService) ListLinks(ctx context.Context, search string) ([]*LinkResponse, error) {
	ownerID := middleware.GetOwnerIDFromContext(ctx)
	if ownerID == uuid.Nil {
		return nil, ErrOwnerRequired
	}

	mappings, err := s.store.ListByOwner(ctx, ownerID, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	links := make([]*LinkResponse, 0, len(mappings))
	for _, m := range mappings {
		links = append(links, s.toResponse(m))
	}
	return links, nil
}

func (s *LinkService) UpdateLink(ctx context.Context, id int64, req *UpdateLinkRequest) (*LinkResponse, error) {
	m, err := s.ownedMapping(ctx, id)
	if err != nil {
		return nil, err
	}
	oldKey := m.Key

	if req.Destination != nil {
		dest, err := NormalizeDestination(*req.Destination)
		if err != nil {
			return nil, err
		}
		m.Destination = dest
	}
	if req.ClearExpiry {
		m.ExpiresAt = nil
	} else if req.ExpiresAt != nil {
		m.ExpiresAt = req.ExpiresAt
	}

	persist := func(ctx context.Context, key string, isCustom bool) error {
		m.Key = key
		m.IsCustomKey = isCustom
		return s.store.UpdateMapping(ctx, m)
	}

	switch {
	case req.CustomKey == nil:
		err = s.store.UpdateMapping(ctx, m)
	case *req.CustomKey == "":
		if m.IsCustomKey {
			_, err = s.allocator.Regenerate(ctx, m.ID, persist)
		} else {
			err = s.store.UpdateMapping(ctx, m)
		}
	case *req.CustomKey == m.Key:
		m.IsCustomKey = true
		err = s.store.UpdateMapping(ctx, m)
	default:
		_, _, err = s.allocator.Claim(ctx, *req.CustomKey, m.ID, persist)
	}
	if err != nil {
		s.logger.LogLinkOperation(ctx, "update", oldKey, false)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.resolver.Invalidate(ctx, oldKey, m.Key)
	s.logger.LogLinkOperation(ctx, "update", m.Key, true)
	return s.toResponse(m), nil
}

// DeleteLink removes the link and its click history.
func (s *LinkService) DeleteLink(ctx context.Context, id int64) error {
	m, err := s.ownedMapping(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMapping(ctx, m.ID); err != nil {
		s.logger.LogLinkOperation(ctx, "delete", m.Key, false)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.resolver.Invalidate(ctx, m.Key)
	s.logger.LogLinkOperation(ctx, "delete", m.Key, true)
	return nil
}

func (s *LinkService) Analytics(ctx context.Context, id int64, limit int) (*LinkAnalytics, error) {
	if _, err := s.ownedMapping(ctx, id); err != nil {
		return nil, err
	}
	return s.analytics.Summary(ctx, id, limit)
}

// Resolve is the public redirect path; it needs no owner.
func (s *LinkService) Resolve(ctx context.Context, key string, client ClientContext) (string, error) {
	return s.resolver.Resolve(ctx, key, client)
}

// ownedMapping loads id and checks that the caller owns it.
func (s *LinkService) ownedMapping(ctx context.Context, id int64) (*storage.Mapping, error) {
	ownerID := middleware.GetOwnerIDFromContext(ctx)
	if ownerID == uuid.Nil {
		return nil, ErrOwnerRequired
	}

	m, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if m.OwnerID != ownerID {
		s.logger.LogAuthEvent(ctx, "owner_mismatch", ownerID.String(), false)
		return nil, ErrAccessDenied
	}
	return m, nil
}

func schemeOf(dest string) string {
	scheme, _, _ := strings.Cut(dest, "://")
	return strings.ToLower(scheme)
}
