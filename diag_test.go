package marquee

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsColdThenWarm(t *testing.T) {
	ft := newFakeTransport()
	c := initTestClient(t, testCfg(t), ft, memStore(t))

	_, err := c.EnsureSession(context.Background())
	require.NoError(t, err)

	report, err := c.Diagnostics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "native-direct (strand)", report.Strategy)
	assert.True(t, strings.HasPrefix(report.Session, "authenticated"), "session summary was %q", report.Session)
	require.Len(t, report.Runs, probeRuns)

	first := report.Runs[0]
	assert.True(t, first.Cold)
	assert.False(t, first.Warm)
	require.Len(t, first.Rails, 2)
	assert.Equal(t, "Featured", first.Rails[0].Title)
	assert.Equal(t, "Action Movies", first.Rails[1].Title)
	for _, snap := range first.Rails {
		assert.False(t, snap.FromCache, "a cold run starts from an evicted cache")
	}

	for i, run := range report.Runs[1:] {
		assert.False(t, run.Cold, "run %d", i+1)
		assert.True(t, run.Warm, "run %d must be served from cache", i+1)
		for _, snap := range run.Rails {
			assert.True(t, snap.FromCache, "run %d rail %s", i+1, snap.RailID)
		}
	}

	assert.Equal(t, 1, ft.count("GET /storefront"), "only the cold run may pay a provider round trip")
	assert.Equal(t, 1, ft.count("GET /api/collection"))
}

func TestDiagnosticsWithoutCache(t *testing.T) {
	cfg := testCfg(t)
	cfg.Preferences.UseCache = false
	ft := newFakeTransport()
	c := initTestClient(t, cfg, ft, memStore(t))

	report, err := c.Diagnostics(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Runs, probeRuns)
	for i, run := range report.Runs {
		assert.False(t, run.Warm, "run %d cannot be warm without a cache", i)
		for _, snap := range run.Rails {
			assert.False(t, snap.FromCache)
		}
	}

	assert.Equal(t, probeRuns, ft.count("GET /storefront"), "every run pays the provider when caching is off")
	assert.Equal(t, probeRuns, ft.count("GET /api/collection"))
}

func TestDiagnosticsReportsSessionPhase(t *testing.T) {
	ft := newFakeTransport()
	c := initTestClient(t, testCfg(t), ft, memStore(t))

	report, err := c.Diagnostics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unauthenticated", report.Session, "no sign-in happened yet")
}
