package service

import (
	"context"
	"errors"

	"shortener/pkg/storage"
)

const (
	DefaultRecentClicks = 50
	MaxRecentClicks     = 500
)

// AnalyticsReader is a read-only view over recorded clicks. Callers are
// expected to have checked ownership already.
type AnalyticsReader struct {
	store storage.MappingStore
}

func NewAnalyticsReader(store storage.MappingStore) *AnalyticsReader {
	return &AnalyticsReader{store: store}
}

// LinkAnalytics is a mapping with its most recent clicks.
type LinkAnalytics struct {
	Mapping      *storage.Mapping      `json:"mapping"`
	TotalClicks  int64                 `json:"total_clicks"`
	RecentClicks []*storage.ClickEvent `json:"recent_clicks"`
}

// RecentClicks returns up to limit click events for mappingID, newest
// first. limit <= 0 means DefaultRecentClicks.
func (a *AnalyticsReader) RecentClicks(ctx context.Context, mappingID int64, limit int) ([]*storage.ClickEvent, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentClicks
	case limit > MaxRecentClicks:
		limit = MaxRecentClicks
	}
	events, err := a.store.ListClicks(ctx, mappingID, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*storage.ClickEvent{}
	}
	return events, nil
}

func (a *AnalyticsReader) Summary(ctx context.Context, mappingID int64, limit int) (*LinkAnalytics, error) {
	m, err := a.store.FindByID(ctx, mappingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	events, err := a.RecentClicks(ctx, mappingID, limit)
	if err != nil {
		return nil, err
	}
	return &LinkAnalytics{Mapping: m, TotalClicks: m.ClickCount, RecentClicks: events}, nil
}
