package marquee

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/source"
	"github.com/marqueetv/marquee/internal/store"
)

const (
	probeRuns       = 3
	maxProbeWorkers = 4

	// Elapsed-time budgets. Cold applies to a provider round trip, warm
	// to a cache-served answer; exceeding one flags the run or rail as
	// slow and always logs a warning.
	homeColdThreshold = 2 * time.Second
	homeWarmThreshold = 200 * time.Millisecond
	railColdThreshold = 1500 * time.Millisecond
	railWarmThreshold = 100 * time.Millisecond
)

// RailSnapshot is one rail's share of a probe run
type RailSnapshot struct {
	RailID    string        // Rail node id
	Title     string        // Rail heading
	Elapsed   time.Duration // Time to materialize the rail's items
	FromCache bool          // Served without a provider round trip
	Slow      bool          // Elapsed breached the applicable budget
}

// ProbeRun is one timed home snapshot
type ProbeRun struct {
	Cold    bool           // The catalog cache was evicted before this run
	Warm    bool           // Every rail answered from cache
	Elapsed time.Duration  // Total wall time for the snapshot
	Rails   []RailSnapshot // Per-rail timings in display order
	Slow    bool           // Elapsed breached the applicable budget
}

// ProbeReport is what Diagnostics hands to a reporting layer
type ProbeReport struct {
	Strategy string     // Active backend strategy summary
	Session  string     // Session lifecycle summary
	Runs     []ProbeRun // Cold run first, then repeat snapshots
}

// Diagnostics measures how the catalog performs cold versus warm: the
// first run starts from an evicted cache, the following runs replay the
// same home snapshot against whatever the first one left behind. Rails
// within a run are resolved concurrently, a few at a time.
func (c *Client) Diagnostics(ctx context.Context) (*ProbeReport, error) {
	report := &ProbeReport{
		Strategy: source.Describe(source.Strategy(c.cfg.Provider.Strategy)),
		Session:  c.sessionSummary(),
	}

	for i := 0; i < probeRuns; i++ {
		cold := i == 0
		if cold {
			c.invalidateCatalog()
		}
		run, err := c.probeRun(ctx, cold)
		if err != nil {
			return nil, err
		}
		report.Runs = append(report.Runs, *run)
	}

	return report, nil
}

// probeRun takes one timed home snapshot
func (c *Client) probeRun(ctx context.Context, cold bool) (*ProbeRun, error) {
	homeCached := c.cachedKey(store.KeyHome)

	start := time.Now()
	root, err := c.engine.FetchRoot(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := make([]RailSnapshot, len(root.Children))
	p := pool.New().WithMaxGoroutines(maxProbeWorkers)
	for i, railID := range root.Children {
		i, railID := i, railID
		p.Go(func() {
			snapshots[i] = c.probeRail(ctx, railID, homeCached)
		})
	}
	p.Wait()

	run := &ProbeRun{
		Cold:    cold,
		Elapsed: time.Since(start),
		Rails:   snapshots,
	}

	run.Warm = len(snapshots) > 0
	for _, snap := range snapshots {
		if !snap.FromCache {
			run.Warm = false
			break
		}
	}

	budget := homeColdThreshold
	if run.Warm {
		budget = homeWarmThreshold
	}
	run.Slow = run.Elapsed > budget

	if run.Slow {
		c.logger.Warn("slow home snapshot",
			"cold", cold, "warm", run.Warm, "elapsed", run.Elapsed, "budget", budget)
	} else if c.cfg.Preferences.PerfLogging {
		c.logger.Info("home snapshot",
			"cold", cold, "warm", run.Warm, "elapsed", run.Elapsed, "rails", len(snapshots))
	}

	return run, nil
}

// probeRail times the materialization of one rail. homeCached tells it
// whether rails embedded in the storefront payload count as cache hits.
func (c *Client) probeRail(ctx context.Context, railID string, homeCached bool) RailSnapshot {
	snap := RailSnapshot{RailID: railID}

	if node, ok := c.engine.Node(railID); ok {
		snap.Title = node.Title
		if node.Resolved() {
			// Inline children arrived with the storefront page itself
			snap.FromCache = homeCached
		} else {
			snap.FromCache = c.cachedKey(store.RailKey(railID))
		}
	}

	start := time.Now()
	_, err := c.engine.Resolve(ctx, railID)
	snap.Elapsed = time.Since(start)
	if err != nil {
		// A dead rail still counts against the run's clock
		c.logger.Warn("rail probe failed", "rail", railID, "error", err)
		return snap
	}

	budget := railColdThreshold
	if snap.FromCache {
		budget = railWarmThreshold
	}
	snap.Slow = snap.Elapsed > budget
	if snap.Slow {
		c.logger.Warn("slow rail",
			"rail", railID, "title", snap.Title, "elapsed", snap.Elapsed, "budget", budget)
	}

	return snap
}

// cachedKey reports whether an unexpired cache entry backs key
func (c *Client) cachedKey(key string) bool {
	if !c.cfg.Preferences.UseCache || c.cache == nil {
		return false
	}
	data, err := c.cache.Get(key)
	return err == nil && data != nil
}

// sessionSummary renders the session lifecycle for the report header
func (c *Client) sessionSummary() string {
	state := c.session.State()
	switch state.Phase {
	case domain.SessionAuthenticated:
		if !state.ExpiresAt.IsZero() {
			return fmt.Sprintf("authenticated until %s", state.ExpiresAt.Format(time.RFC3339))
		}
		return "authenticated"
	case domain.SessionAwaitingChallenge:
		if state.Challenge != nil {
			return fmt.Sprintf("awaiting %s challenge", state.Challenge.Kind)
		}
		return "awaiting challenge"
	case domain.SessionInvalid:
		return fmt.Sprintf("invalid: %s", state.Reason)
	default:
		return "unauthenticated"
	}
}
