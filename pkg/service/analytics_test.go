package service

import (
	"context"
	"testing"
	"time"

	"shortener/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsReader(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryMappingStore()
	clock := newFakeClock()
	m := seedMapping(t, store, "stats", nil)
	r := newResolver(store, nil, clock)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(ctx, "stats", ClientContext{IP: "192.0.2.1"})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	a := NewAnalyticsReader(store)

	t.Run("newest first", func(t *testing.T) {
		events, err := a.RecentClicks(ctx, m.ID, 0)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.True(t, events[0].ClickedAt.After(events[1].ClickedAt))
		assert.True(t, events[1].ClickedAt.After(events[2].ClickedAt))
	})

	t.Run("limit", func(t *testing.T) {
		events, err := a.RecentClicks(ctx, m.ID, 2)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("summary", func(t *testing.T) {
		s, err := a.Summary(ctx, m.ID, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(3), s.TotalClicks)
		assert.Len(t, s.RecentClicks, 3)
		assert.Equal(t, "stats", s.Mapping.Key)
	})

	t.Run("no clicks is empty not nil", func(t *testing.T) {
		other := seedMapping(t, store, "quiet", nil)
		events, err := a.RecentClicks(ctx, other.ID, 5)
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("unknown mapping", func(t *testing.T) {
		_, err := a.Summary(ctx, 9999, 10)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
