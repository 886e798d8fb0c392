package watchlist

import (
	"context"
	"log/slog"

	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/store"
)

// Service forwards list mutations to the provider and keeps the local
// catalog cache honest about them. The provider rebuilds watchlist and
// continue-watching rails server side, so a successful mutation makes
// every cached rail stale.
type Service struct {
	source domain.WatchlistSource
	cache  domain.Cache
	logger *slog.Logger
}

// NewService creates a watchlist service
func NewService(source domain.WatchlistSource, cache domain.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source: source,
		cache:  cache,
		logger: logger,
	}
}

// Add puts an item on the account watchlist
func (s *Service) Add(ctx context.Context, itemID string) error {
	if err := s.source.SetWatchlist(ctx, itemID, true); err != nil {
		return err
	}
	s.logger.Info("added to watchlist", "item", itemID)
	s.invalidate()
	return nil
}

// Remove takes an item off the account watchlist
func (s *Service) Remove(ctx context.Context, itemID string) error {
	if err := s.source.SetWatchlist(ctx, itemID, false); err != nil {
		return err
	}
	s.logger.Info("removed from watchlist", "item", itemID)
	s.invalidate()
	return nil
}

// MarkWatched flips an item's watched flag
func (s *Service) MarkWatched(ctx context.Context, itemID string, watched bool) error {
	if err := s.source.SetWatched(ctx, itemID, watched); err != nil {
		return err
	}
	s.logger.Info("updated watched flag", "item", itemID, "watched", watched)
	s.invalidate()
	return nil
}

// invalidate evicts the home snapshot and every rail page
func (s *Service) invalidate() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(store.KeyHome); err != nil {
		s.logger.Warn("failed to evict home cache", "error", err)
	}
	if err := s.cache.InvalidatePrefix(store.PrefixRail); err != nil {
		s.logger.Warn("failed to evict rail caches", "error", err)
	}
}
