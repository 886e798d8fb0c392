// Package marquee is a client for the Strand streaming catalog. It owns
// one session, one catalog tree and one cache per process and exposes
// the operations a navigation UI needs: session establishment, rail
// browsing, search, playback grants and account list mutations.
package marquee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marqueetv/marquee/internal/catalog"
	"github.com/marqueetv/marquee/internal/config"
	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/playback"
	"github.com/marqueetv/marquee/internal/session"
	"github.com/marqueetv/marquee/internal/source"
	"github.com/marqueetv/marquee/internal/source/strand"
	"github.com/marqueetv/marquee/internal/store"
	"github.com/marqueetv/marquee/internal/transport"
	"github.com/marqueetv/marquee/internal/watchlist"
)

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Init builds the process-wide client. Calling Init twice without a
// Shutdown in between is a bug: two clients would fight over one
// session and one cache.
func Init(cfg *config.Config, opts ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		return errors.New("marquee: already initialized")
	}

	c, err := newClient(cfg, opts...)
	if err != nil {
		return err
	}
	defaultClient = c
	return nil
}

// Default returns the client built by Init, or nil before Init
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient
}

// Shutdown persists the session, releases the cache and discards the
// process-wide client. Safe to call without a prior Init.
func Shutdown() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient == nil {
		return nil
	}
	err := defaultClient.close()
	defaultClient = nil
	return err
}

// Option overrides one collaborator during Init, mainly for tests
type Option func(*optionSet)

type optionSet struct {
	logger    *slog.Logger
	transport domain.Transport
	cache     domain.Cache
	solver    domain.ChallengeSolver
}

// WithLogger routes all client logging through l
func WithLogger(l *slog.Logger) Option {
	return func(o *optionSet) { o.logger = l }
}

// WithTransport substitutes the HTTP transport
func WithTransport(t domain.Transport) Option {
	return func(o *optionSet) { o.transport = t }
}

// WithCache substitutes the TTL cache
func WithCache(c domain.Cache) Option {
	return func(o *optionSet) { o.cache = c }
}

// WithChallengeSolver wires an answerer for interactive sign-in
// challenges, so a challenged login completes without surfacing
// AwaitingChallenge to the caller.
func WithChallengeSolver(s domain.ChallengeSolver) Option {
	return func(o *optionSet) { o.solver = s }
}

// Client composes the session manager, catalog engine, playback
// resolver and watchlist service behind one surface.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	transport domain.Transport
	cache     domain.Cache
	session   *session.Manager
	source    source.Source
	engine    *catalog.Engine
	playback  *playback.Resolver
	lists     *watchlist.Service
}

// profileFunc adapts a closure to domain.ProfileSource. The session
// manager probes profiles through the source, and the source authorizes
// calls through the manager; the indirection breaks that construction
// cycle.
type profileFunc func(ctx context.Context) (*domain.RegionInfo, error)

func (f profileFunc) Profile(ctx context.Context) (*domain.RegionInfo, error) { return f(ctx) }

func newClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("marquee: config is nil")
	}

	var o optionSet
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Provider.DeviceID == "" {
		// The caller skipped config.EnsureDeviceID; grants issued under
		// this identity last only for the current run
		cfg.Provider.DeviceID = uuid.NewString()
	}

	tr := o.transport
	if tr == nil {
		tr = transport.NewClient(logger.With("component", "transport"))
	}

	cacheStore := o.cache
	if cacheStore == nil {
		st, err := store.New(cfg.DataDir(), cfg.Provider.Territory, logger.With("component", "store"))
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		cacheStore = st
	}

	flow := strand.NewAuthClient(tr, cfg.Provider.BaseURL, logger.With("component", "auth"))

	var src source.Source
	mgr := session.NewManager(flow, profileFunc(func(ctx context.Context) (*domain.RegionInfo, error) {
		return src.Profile(ctx)
	}), tr, session.Config{
		BaseURL:     cfg.Provider.BaseURL,
		PlaybackURL: cfg.Provider.PlaybackURL,
		Territory:   cfg.Provider.Territory,
		DeviceID:    cfg.Provider.DeviceID,
		SessionFile: cfg.SessionFile(),
	}, logger.With("component", "session"))
	if o.solver != nil {
		mgr.SetSolver(o.solver)
	}

	src, err := source.New(cfg, tr, mgr, logger.With("component", "source"))
	if err != nil {
		cacheStore.Close()
		return nil, err
	}

	engine := catalog.New(src, cacheStore, catalog.Config{
		UseCache: cfg.Preferences.UseCache,
		TTL:      time.Duration(cfg.Preferences.CacheTTL) * time.Second,
	}, logger.With("component", "catalog"))

	return &Client{
		cfg:       cfg,
		logger:    logger,
		transport: tr,
		cache:     cacheStore,
		session:   mgr,
		source:    src,
		engine:    engine,
		playback:  playback.NewResolver(src, mgr, engine, mgr, logger.With("component", "playback")),
		lists:     watchlist.NewService(src, cacheStore, logger.With("component", "watchlist")),
	}, nil
}

func (c *Client) close() error {
	if c.session.Authenticated() {
		if err := c.session.Persist(); err != nil {
			c.logger.Warn("failed to persist session on shutdown", "error", err)
		}
	}
	return c.cache.Close()
}

// EnsureSession brings the session to a usable state: confirm the live
// one, else restore and confirm a persisted one, else sign in with the
// configured credentials. The returned state is AwaitingChallenge when
// the provider interposed a step no solver could answer.
func (c *Client) EnsureSession(ctx context.Context) (domain.SessionState, error) {
	if c.session.Verify(ctx) {
		return c.session.State(), nil
	}

	if !c.session.Authenticated() {
		if err := c.session.Restore(); err != nil {
			c.logger.Warn("stored session unusable", "error", err)
		}
		if c.session.Verify(ctx) {
			return c.session.State(), nil
		}
	}

	if !c.cfg.IsConfigured() {
		return c.session.State(), &domain.AuthError{
			Op:     "session",
			Reason: "no usable session and no stored credentials; sign in first",
		}
	}

	c.logger.Info("signing in", "email", c.cfg.Account.Email)
	return c.session.Login(ctx, c.cfg.Account.Email, c.cfg.Account.Password)
}

// EnsureReady is the playback preflight: a confirmed session and an
// account entitled for protected streams.
func (c *Client) EnsureReady(ctx context.Context) error {
	state, err := c.EnsureSession(ctx)
	if err != nil {
		return err
	}
	if state.Phase == domain.SessionAwaitingChallenge {
		return &domain.AuthError{Op: "preflight", Reason: "sign-in challenge pending"}
	}

	ready, err := c.playback.DRMReady(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return &domain.AuthError{Op: "preflight", Reason: "account is not entitled for protected playback in this territory"}
	}
	return nil
}

// GetHome returns the storefront rails in display order. Rail item
// lists may still be empty where the provider defers them; Browse on
// the rail id materializes those.
func (c *Client) GetHome(ctx context.Context) ([]domain.Rail, error) {
	start := time.Now()
	if _, err := c.engine.FetchRoot(ctx); err != nil {
		return nil, err
	}
	rails := c.engine.Rails()
	c.perf("get_home", start, homeColdThreshold)
	return rails, nil
}

// Browse lists the items behind a slash-separated node path. A cursor
// from a previous call continues the listing instead of restarting it.
func (c *Client) Browse(ctx context.Context, path, cursor string) ([]domain.Item, string, error) {
	start := time.Now()
	items, next, err := c.engine.Browse(ctx, path, cursor)
	if err != nil {
		return nil, "", err
	}
	c.perf("browse", start, railColdThreshold)
	return items, next, nil
}

// Search runs a provider search. When the provider cannot answer, the
// items already materialized locally are filtered instead, so the
// caller still gets something to show.
func (c *Client) Search(ctx context.Context, query, cursor string) ([]domain.Item, string, error) {
	start := time.Now()
	items, next, err := c.engine.Search(ctx, query, cursor)
	if err != nil {
		var beErr *domain.BackendError
		if errors.As(err, &beErr) {
			c.logger.Warn("provider search unavailable, filtering locally", "query", query, "error", err)
			return c.engine.FilterLocal(query), "", nil
		}
		return nil, "", err
	}
	c.perf("search", start, railColdThreshold)
	return items, next, nil
}

// GetPlayable exchanges an item id for a fresh stream descriptor.
// Descriptors carry short-lived grants and are never cached.
func (c *Client) GetPlayable(ctx context.Context, itemID string) (*domain.PlayableDescriptor, error) {
	return c.playback.GetPlayable(ctx, itemID)
}

// GetRegionInfo reports the territory and marketplace the account is
// pinned to
func (c *Client) GetRegionInfo(ctx context.Context) (*domain.RegionInfo, error) {
	return c.playback.RegionInfo(ctx)
}

// IsDRMReady reports whether protected streams can start on this device
func (c *Client) IsDRMReady(ctx context.Context) (bool, error) {
	return c.playback.DRMReady(ctx)
}

// AddToWatchlist puts an item on the account watchlist
func (c *Client) AddToWatchlist(ctx context.Context, itemID string) error {
	return c.lists.Add(ctx, itemID)
}

// MarkAsWatched flips an item's watched flag
func (c *Client) MarkAsWatched(ctx context.Context, itemID string, watched bool) error {
	return c.lists.MarkWatched(ctx, itemID, watched)
}

// Logout signs out of the provider and clears everything derived from
// the account: credentials, cookies and cached catalog pages.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.session.Logout(ctx); err != nil {
		return err
	}
	c.invalidateCatalog()
	return nil
}

// SessionState returns a snapshot of the session lifecycle
func (c *Client) SessionState() domain.SessionState {
	return c.session.State()
}

// invalidateCatalog drops every cached catalog page
func (c *Client) invalidateCatalog() {
	if err := c.cache.Invalidate(store.KeyHome); err != nil {
		c.logger.Warn("failed to evict home cache", "error", err)
	}
	for _, prefix := range []string{store.PrefixRail, store.PrefixBrowse, store.PrefixSearch} {
		if err := c.cache.InvalidatePrefix(prefix); err != nil {
			c.logger.Warn("failed to evict cache prefix", "prefix", prefix, "error", err)
		}
	}
}

// perf records an operation's duration: a warning whenever it breaches
// the threshold, an info line when timing logs are enabled.
func (c *Client) perf(op string, start time.Time, threshold time.Duration) {
	elapsed := time.Since(start)
	switch {
	case elapsed > threshold:
		c.logger.Warn("slow operation", "op", op, "elapsed", elapsed, "threshold", threshold)
	case c.cfg.Preferences.PerfLogging:
		c.logger.Info("operation timing", "op", op, "elapsed", elapsed)
	}
}
