package source

import (
	"fmt"
	"log/slog"

	"github.com/marqueetv/marquee/internal/config"
	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/source/strand"
)

// Strategy names how the provider backend is reached
type Strategy string

const (
	// StrategyNativeDirect talks to the Strand storefront and playback
	// APIs directly, the same endpoints the web player uses
	StrategyNativeDirect Strategy = "native-direct"
)

// Source combines every provider-facing port a backend must implement.
// This is the unified interface for browsing, search, playback grants,
// profile lookups and list mutations.
type Source interface {
	domain.CatalogSource   // Root, Expand, Search
	domain.PlaybackSource  // Playable
	domain.ProfileSource   // Profile
	domain.WatchlistSource // SetWatchlist, SetWatched
}

// New creates a Source for the configured strategy.
func New(cfg *config.Config, transport domain.Transport, auth domain.Authorizer, logger *slog.Logger) (Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if cfg.Provider.PlaybackURL == "" {
		return nil, fmt.Errorf("provider playback URL is required")
	}

	strategy := Strategy(cfg.Provider.Strategy)
	if strategy == "" {
		strategy = StrategyNativeDirect
	}

	switch strategy {
	case StrategyNativeDirect:
		return strand.NewClient(transport, auth, strand.Config{
			BaseURL:     cfg.Provider.BaseURL,
			PlaybackURL: cfg.Provider.PlaybackURL,
			Territory:   cfg.Provider.Territory,
			DeviceID:    cfg.Provider.DeviceID,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown strategy: %s", strategy)
	}
}

// Describe renders a strategy for logs and diagnostics reports
func Describe(s Strategy) string {
	switch s {
	case StrategyNativeDirect, "":
		return "native-direct (strand)"
	default:
		return string(s)
	}
}
