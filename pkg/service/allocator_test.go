package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"shortener/pkg/keycodec"
	"shortener/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPersist(store storage.MappingStore) PersistFunc {
	return func(ctx context.Context, key string, isCustom bool) error {
		return store.CreateMapping(ctx, &storage.Mapping{
			Destination: "https://example.com",
			Key:         key,
			IsCustomKey: isCustom,
		})
	}
}

func TestAllocate_CustomKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	seedMapping(t, store, "abc", nil)
	a := NewKeyAllocator(store, AllocatorConfig{}, nil, nil)

	tests := []struct {
		name   string
		custom string
		err    error
	}{
		{"free", "promo-2025", nil},
		{"taken", "abc", ErrKeyAlreadyTaken},
		{"whitespace", "a b", ErrInvalidKeyFormat},
		{"symbol", "a$b", ErrInvalidKeyFormat},
		{"too long", strings.Repeat("x", 21), ErrInvalidKeyFormat},
		{"reserved", "api", ErrKeyAlreadyTaken},
		{"reserved case-insensitive", "Health", ErrKeyAlreadyTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, custom, err := a.Allocate(ctx, tt.custom, 0)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.custom, key)
			assert.True(t, custom)
		})
	}
}

func TestAllocate_CustomKeyExcludesSelf(t *testing.T) {
	store := storage.NewMemoryMappingStore()
	m := seedMapping(t, store, "mine", nil)
	a := NewKeyAllocator(store, AllocatorConfig{}, nil, nil)

	key, _, err := a.Allocate(context.Background(), "mine", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", key)
}

func TestAllocate_AutoKeySkipsReservedAndTaken(t *testing.T) {
	store := storage.NewMemoryMappingStore()
	seedMapping(t, store, "bbb", nil)

	// "api", then "bbb" (taken), then "ccc".
	seq := append([]int{10, 25, 18}, repeat(11, 3)...)
	seq = append(seq, repeat(12, 3)...)
	a := NewKeyAllocator(store, AllocatorConfig{KeyLength: 3, Source: &scriptedSource{seq: seq}}, nil, nil)

	key, custom, err := a.Allocate(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "ccc", key)
	assert.False(t, custom)
}

func TestClaim_CustomKeyConflictAtPersist(t *testing.T) {
	store := storage.NewMemoryMappingStore()
	a := NewKeyAllocator(store, AllocatorConfig{}, nil, nil)

	// The pre-check passes, then another writer wins the race.
	persist := func(ctx context.Context, key string, isCustom bool) error {
		return storage.ErrUniquenessViolation
	}
	_, _, err := a.Claim(context.Background(), "abc", 0, persist)
	assert.ErrorIs(t, err, ErrKeyAlreadyTaken)
}

func TestClaim_AutoKeyRetriesOnConflict(t *testing.T) {
	store := storage.NewMemoryMappingStore()
	seedMapping(t, store, "000000", nil)

	seq := append(repeat(0, 6), repeat(1, 6)...)
	a := NewKeyAllocator(store, AllocatorConfig{Source: &scriptedSource{seq: seq}}, nil, nil)

	key, custom, err := a.Claim(context.Background(), "", 0, createPersist(store))
	require.NoError(t, err)
	assert.Equal(t, "111111", key)
	assert.False(t, custom)
}

func TestClaim_KeySpaceExhausted(t *testing.T) {
	store := storage.NewMemoryMappingStore()
	a := NewKeyAllocator(store, AllocatorConfig{}, nil, nil)

	var calls atomic.Int32
	persist := func(ctx context.Context, key string, isCustom bool) error {
		calls.Add(1)
		return storage.ErrUniquenessViolation
	}
	_, _, err := a.Claim(context.Background(), "", 0, persist)
	assert.ErrorIs(t, err, ErrKeySpaceExhausted)
	assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())
	assert.False(t, IsUserCorrectable(err))
}

func TestClaim_KeySpaceExhaustedWithConstantSource(t *testing.T) {
	store := storage.NewMemoryMappingStore()
	seedMapping(t, store, "ZZZZ", nil)
	a := NewKeyAllocator(store, AllocatorConfig{KeyLength: 4, MaxAttempts: 5, Source: &scriptedSource{seq: []int{61}}}, nil, nil)

	_, _, err := a.Claim(context.Background(), "", 0, createPersist(store))
	assert.ErrorIs(t, err, ErrKeySpaceExhausted)

	_, _, err = a.Allocate(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrKeySpaceExhausted)
}

func TestClaim_StorageErrorIsNotRetried(t *testing.T) {
	a := NewKeyAllocator(storage.NewMemoryMappingStore(), AllocatorConfig{}, nil, nil)
	boom := errors.New("connection reset")

	var calls atomic.Int32
	persist := func(ctx context.Context, key string, isCustom bool) error {
		calls.Add(1)
		return boom
	}
	_, _, err := a.Claim(context.Background(), "", 0, persist)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClaim_ConcurrentAutoKeysAreDistinct(t *testing.T) {
	store := storage.NewMemoryMappingStore()
	a := NewKeyAllocator(store, AllocatorConfig{}, nil, nil)
	persist := createPersist(store)

	const n = 10000
	keys := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], _, errs[i] = a.Claim(context.Background(), "", 0, persist)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, keys[i], keycodec.DefaultKeyLength)
		assert.False(t, seen[keys[i]], "duplicate key %q", keys[i])
		seen[keys[i]] = true
	}
	assert.Len(t, seen, n)
}

func TestClaim_ConcurrentSameCustomKey(t *testing.T) {
	store := storage.NewMemoryMappingStore()
	a := NewKeyAllocator(store, AllocatorConfig{}, nil, nil)
	persist := createPersist(store)

	const n = 20
	var wg sync.WaitGroup
	var won, taken atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := a.Claim(context.Background(), "launch", 0, persist)
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, ErrKeyAlreadyTaken):
				taken.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(n-1), taken.Load())
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	m := seedMapping(t, store, "custom", nil)
	a := NewKeyAllocator(store, AllocatorConfig{}, nil, nil)

	key, err := a.Regenerate(ctx, m.ID, func(ctx context.Context, key string, isCustom bool) error {
		m.Key = key
		m.IsCustomKey = isCustom
		return store.UpdateMapping(ctx, m)
	})
	require.NoError(t, err)
	assert.NotEqual(t, "custom", key)

	got, err := store.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, key, got.Key)
	assert.False(t, got.IsCustomKey)
}
