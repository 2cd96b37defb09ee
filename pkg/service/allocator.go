package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shortener/pkg/keycodec"
	"shortener/pkg/logging"
	"shortener/pkg/metrics"
	"shortener/pkg/storage"
)

const DefaultMaxAttempts = 20

// Keys the router serves itself. They are never handed out.
var reservedKeys = map[string]bool{
	"api":     true,
	"admin":   true,
	"r":       true,
	"v1":      true,
	"health":  true,
	"metrics": true,
}

func isReserved(key string) bool {
	return reservedKeys[strings.ToLower(key)]
}

// PersistFunc writes a mapping under key. It must return an error matching
// storage.ErrUniquenessViolation when the key is already in use.
type PersistFunc func(ctx context.Context, key string, isCustom bool) error

type AllocatorConfig struct {
	// KeyLength of auto keys. Default: keycodec.DefaultKeyLength
	KeyLength int

	// MaxAttempts caps auto-key candidates per allocation. Default: 20
	MaxAttempts int

	// Source of randomness; must be safe for concurrent use.
	// Default: keycodec.DefaultSource()
	Source keycodec.Source
}

// KeyAllocator picks unique keys. The store's uniqueness constraint is the
// authority; the allocator only chooses candidates and reacts to conflicts.
type KeyAllocator struct {
	store   storage.MappingStore
	cfg     AllocatorConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func NewKeyAllocator(store storage.MappingStore, cfg AllocatorConfig, logger *logging.Logger, m *metrics.Metrics) *KeyAllocator {
	if cfg.KeyLength <= 0 {
		cfg.KeyLength = keycodec.DefaultKeyLength
	}
	if cfg.KeyLength > keycodec.MaxKeyLength {
		cfg.KeyLength = keycodec.MaxKeyLength
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Source == nil {
		cfg.Source = keycodec.DefaultSource()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &KeyAllocator{store: store, cfg: cfg, logger: logger, metrics: m}
}

// Allocate selects a key without writing anything. custom == "" asks for an
// auto key. excludeID is the mapping being edited, or 0. The result is only
// a candidate until it is persisted; use Claim to persist it.
func (a *KeyAllocator) Allocate(ctx context.Context, custom string, excludeID int64) (string, bool, error) {
	if custom != "" {
		if err := a.checkCustom(ctx, custom, excludeID); err != nil {
			return "", false, err
		}
		return custom, true, nil
	}

	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		candidate := a.candidate()
		if isReserved(candidate) {
			a.metrics.KeyCollision(false)
			continue
		}
		taken, err := a.store.KeyExists(ctx, candidate, excludeID)
		if err != nil {
			return "", false, err
		}
		if !taken {
			return candidate, false, nil
		}
		a.metrics.KeyCollision(false)
	}
	return "", false, a.exhausted(ctx)
}

// Claim selects a key and persists it through persist. A uniqueness
// violation on an auto key sends the loop back for a new candidate; on a
// custom key it is reported as ErrKeyAlreadyTaken.
func (a *KeyAllocator) Claim(ctx context.Context, custom string, excludeID int64, persist PersistFunc) (string, bool, error) {
	if custom != "" {
		if err := a.checkCustom(ctx, custom, excludeID); err != nil {
			return "", false, err
		}
		if err := persist(ctx, custom, true); err != nil {
			if errors.Is(err, storage.ErrUniquenessViolation) {
				a.metrics.KeyCollision(true)
				return "", false, ErrKeyAlreadyTaken
			}
			return "", false, err
		}
		a.metrics.KeyAllocated(true)
		a.logger.LogAllocation(ctx, custom, true, 1)
		return custom, true, nil
	}

	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		candidate := a.candidate()
		if isReserved(candidate) {
			a.metrics.KeyCollision(false)
			continue
		}
		err := persist(ctx, candidate, false)
		if err == nil {
			a.metrics.KeyAllocated(false)
			a.logger.LogAllocation(ctx, candidate, false, attempt)
			return candidate, false, nil
		}
		if !errors.Is(err, storage.ErrUniquenessViolation) {
			return "", false, err
		}
		a.metrics.KeyCollision(false)
	}
	return "", false, a.exhausted(ctx)
}

// Regenerate gives an existing mapping a fresh auto key, used when its
// owner clears a custom key.
func (a *KeyAllocator) Regenerate(ctx context.Context, mappingID int64, persist PersistFunc) (string, error) {
	key, _, err := a.Claim(ctx, "", mappingID, persist)
	return key, err
}

func (a *KeyAllocator) checkCustom(ctx context.Context, custom string, excludeID int64) error {
	if !keycodec.ValidKey(custom) {
		return ErrInvalidKeyFormat
	}
	if isReserved(custom) {
		a.metrics.KeyCollision(true)
		return ErrKeyAlreadyTaken
	}
	taken, err := a.store.KeyExists(ctx, custom, excludeID)
	if err != nil {
		return err
	}
	if taken {
		a.metrics.KeyCollision(true)
		return ErrKeyAlreadyTaken
	}
	return nil
}

func (a *KeyAllocator) candidate() string {
	return keycodec.RandomKey(a.cfg.Source, a.cfg.KeyLength)
}

func (a *KeyAllocator) exhausted(ctx context.Context) error {
	a.metrics.KeySpaceExhausted()
	a.logger.LogKeySpaceExhausted(ctx, a.cfg.MaxAttempts, a.cfg.KeyLength)
	return fmt.Errorf("%w after %d attempts", ErrKeySpaceExhausted, a.cfg.MaxAttempts)
}
