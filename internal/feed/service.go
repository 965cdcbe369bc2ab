// Package feed keeps the most recently fetched calendar events in memory so
// that HTTP requests do not hit the calendar host every time.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"gcalfeed/internal/config"
	"gcalfeed/internal/ics"
	appLog "gcalfeed/internal/log"
	"gcalfeed/internal/metrics"
	"gcalfeed/internal/model"
)

// ErrNoSources is returned by NewServiceFromConfig when no feed has a URL.
var ErrNoSources = errors.New("feed: no sources configured")

// Fetcher is the part of *ics.Fetcher the service needs.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, error)
}

// Service holds the parsed events of all configured feeds.
type Service struct {
	fetcher Fetcher
	sources []ics.Source
	loc     *time.Location
	ttl     time.Duration

	// refreshMu serializes refreshes; mu guards the snapshot.
	refreshMu sync.Mutex
	mu        sync.RWMutex
	events    []model.Event
	updatedAt time.Time
}

// NewService creates a Service. A ttl <= 0 means Events never refreshes on
// its own and relies on explicit Refresh calls (e.g. from the scheduler).
func NewService(fetcher Fetcher, sources []ics.Source, loc *time.Location, ttl time.Duration) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		fetcher: fetcher,
		sources: sources,
		loc:     loc,
		ttl:     ttl,
	}
}

// SourcesFromConfig builds fetch sources from the configured feeds, skipping
// entries without URL. Feeds without ID fall back to their name, then URL.
func SourcesFromConfig(cfg *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		if f.URL == "" {
			continue
		}
		id := f.ID
		if id == "" {
			if f.Name != "" {
				id = f.Name
			} else {
				id = f.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, URL: f.URL})
	}
	return sources
}

// NewServiceFromConfig wires an *ics.Fetcher with the configured feeds and
// cache directory.
func NewServiceFromConfig(cfg *config.Config, loc *time.Location, ttl time.Duration) (*Service, error) {
	sources := SourcesFromConfig(cfg)
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return NewService(ics.NewFetcher(cfg.CacheDir), sources, loc, ttl), nil
}

// Refresh fetches and parses all feeds and replaces the snapshot. Sources
// that fail are skipped; if every source fails the previous snapshot is kept
// and the aggregated error is returned.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx)
}

// refreshIfStale refreshes unless another caller replaced the snapshot while
// this one waited for refreshMu.
func (s *Service) refreshIfStale(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if !s.stale() {
		return nil
	}
	return s.refreshLocked(ctx)
}

func (s *Service) stale() bool {
	s.mu.RLock()
	updated := s.updatedAt
	s.mu.RUnlock()
	return updated.IsZero() || (s.ttl > 0 && time.Since(updated) >= s.ttl)
}

func (s *Service) refreshLocked(ctx context.Context) error {
	results, fetchErr := s.fetcher.FetchAll(ctx, s.sources)
	if fetchErr != nil {
		appLog.Error("feed refresh: one or more fetches failed", fetchErr, "source_count", len(s.sources))
		if len(results) == 0 && len(s.sources) > 0 {
			return fetchErr
		}
	}

	events := make([]model.Event, 0)
	for _, res := range results {
		parsed, err := ics.ParseICS(res.Source, res.Body, s.loc)
		if err != nil {
			appLog.Error("feed refresh: parse failed for source", err, "id", res.Source.ID)
			continue
		}
		events = append(events, parsed...)
	}

	s.mu.Lock()
	s.events = events
	s.updatedAt = time.Now()
	s.mu.Unlock()

	metrics.FeedEvents.Set(float64(len(events)))
	appLog.Info("feed refresh completed", "source_count", len(s.sources), "event_count", len(events))
	return nil
}

// Events returns a copy of the current snapshot, refreshing first when the
// snapshot is missing or older than the TTL. A failed refresh still returns
// the stale snapshot if there is one.
func (s *Service) Events(ctx context.Context) ([]model.Event, error) {
	if s.stale() {
		if err := s.refreshIfStale(ctx); err != nil {
			s.mu.RLock()
			defer s.mu.RUnlock()
			if s.updatedAt.IsZero() {
				return nil, err
			}
			appLog.Warn("feed refresh failed; serving stale events", "err", err, "updated_at", s.updatedAt)
			return append([]model.Event(nil), s.events...), nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Event(nil), s.events...), nil
}

// UpdatedAt reports when the snapshot was last replaced.
func (s *Service) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
