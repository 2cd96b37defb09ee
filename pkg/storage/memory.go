package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryMappingStore implements MappingStore in process memory. Nothing is
// persisted; it backs local runs and tests.
//
// MemoryMappingStore is safe for concurrent use.
type MemoryMappingStore struct {
	mu       sync.RWMutex
	nextID   int64
	nextEvID int64
	byID     map[int64]*Mapping
	byKey    map[string]int64
	clicks   map[int64][]*ClickEvent
}

func NewMemoryMappingStore() *MemoryMappingStore {
	return &MemoryMappingStore{
		byID:   make(map[int64]*Mapping),
		byKey:  make(map[string]int64),
		clicks: make(map[int64][]*ClickEvent),
	}
}

func (s *MemoryMappingStore) Migrate(context.Context) error { return nil }

func (s *MemoryMappingStore) CreateMapping(_ context.Context, m *Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byKey[m.Key]; taken {
		return ErrUniquenessViolation
	}
	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = time.Now().UTC()
	m.ClickCount = 0
	m.Version = 1

	stored := *m
	s.byID[m.ID] = &stored
	s.byKey[m.Key] = m.ID
	return nil
}

func (s *MemoryMappingStore) FindByKey(_ context.Context, key string) (*Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	m := *s.byID[id]
	return &m, nil
}

func (s *MemoryMappingStore) FindByID(_ context.Context, id int64) (*Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryMappingStore) KeyExists(_ context.Context, key string, excludeID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	return ok && id != excludeID, nil
}

func (s *MemoryMappingStore) UpdateMapping(_ context.Context, m *Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[m.ID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := s.byKey[m.Key]; taken && owner != m.ID {
		return ErrUniquenessViolation
	}
	delete(s.byKey, cur.Key)
	s.byKey[m.Key] = m.ID

	cur.Destination = m.Destination
	cur.Key = m.Key
	cur.IsCustomKey = m.IsCustomKey
	cur.ExpiresAt = m.ExpiresAt
	cur.Version++
	m.Version = cur.Version
	return nil
}

func (s *MemoryMappingStore) IncrementClickCount(_ context.Context, id int64, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	m.ClickCount += delta
	return m.ClickCount, nil
}

func (s *MemoryMappingStore) AppendClickEvent(_ context.Context, e *ClickEvent, key string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[e.MappingID]
	if !ok || m.Key != key || m.Version != version {
		return ErrStaleMapping
	}
	s.nextEvID++
	e.ID = s.nextEvID
	stored := *e
	s.clicks[e.MappingID] = append(s.clicks[e.MappingID], &stored)
	return nil
}

func (s *MemoryMappingStore) DeleteMapping(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byKey, m.Key)
	delete(s.byID, id)
	delete(s.clicks, id)
	return nil
}

func (s *MemoryMappingStore) ListClicks(_ context.Context, mappingID int64, limit int) ([]*ClickEvent, error) {
	s.mu.RLock()
	events := make([]*ClickEvent, 0, len(s.clicks[mappingID]))
	for _, e := range s.clicks[mappingID] {
		cp := *e
		events = append(events, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool {
		if events[i].ClickedAt.Equal(events[j].ClickedAt) {
			return events[i].ID > events[j].ID
		}
		return events[i].ClickedAt.After(events[j].ClickedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *MemoryMappingStore) ListByOwner(_ context.Context, ownerID uuid.UUID, search string) ([]*Mapping, error) {
	needle := strings.ToLower(search)

	s.mu.RLock()
	var mappings []*Mapping
	for _, m := range s.byID {
		if m.OwnerID != ownerID {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(m.Destination), needle) &&
			!strings.Contains(strings.ToLower(m.Key), needle) {
			continue
		}
		cp := *m
		mappings = append(mappings, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(mappings, func(i, j int) bool {
		if mappings[i].CreatedAt.Equal(mappings[j].CreatedAt) {
			return mappings[i].ID > mappings[j].ID
		}
		return mappings[i].CreatedAt.After(mappings[j].CreatedAt)
	})
	return mappings, nil
}

func (s *MemoryMappingStore) ReconcileClickCounts(_ context.Context, settledBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fixed int64
	for id, m := range s.byID {
		events := s.clicks[id]
		n := int64(len(events))
		if n <= m.ClickCount {
			continue
		}
		settled := true
		for _, e := range events {
			if !e.ClickedAt.Before(settledBefore) {
				settled = false
				break
			}
		}
		if settled {
			m.ClickCount = n
			fixed++
		}
	}
	return fixed, nil
}

func (s *MemoryMappingStore) Close() error { return nil }
