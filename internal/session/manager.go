package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/source/strand"
)

// maxSolverRounds bounds automatic challenge answering so a solver that
// keeps producing wrong answers cannot loop the flow forever.
const maxSolverRounds = 2

// AuthFlow is the provider sign-in exchange the manager drives
type AuthFlow interface {
	Login(ctx context.Context, email, password string) (*strand.LoginOutcome, error)
	SubmitChallenge(ctx context.Context, ch domain.Challenge, answer string) (*strand.LoginOutcome, error)
	Logout(ctx context.Context)
}

// Config carries the identity the manager stamps onto requests and
// where the credential bundle lives.
type Config struct {
	BaseURL     string // Storefront origin, owns the session cookie
	PlaybackURL string // Playback origin, shares the cookie jar
	Territory   string // ISO country code
	DeviceID    string // Persistent device identifier
	SessionFile string // Path of the persisted bundle, empty disables persistence
}

// Manager owns the login lifecycle: one state machine per instance.
// Transitions are caller-serialized; reads are safe from any goroutine.
// It implements domain.Authorizer for the provider clients.
type Manager struct {
	flow      AuthFlow
	profiles  domain.ProfileSource
	transport domain.Transport
	solver    domain.ChallengeSolver // Optional, answers challenges without caller round-trips
	cfg       Config
	logger    *slog.Logger

	mu      sync.RWMutex
	state   domain.SessionState
	profile *domain.RegionInfo

	now func() time.Time
}

// NewManager creates a session manager starting from Unauthenticated
func NewManager(flow AuthFlow, profiles domain.ProfileSource, transport domain.Transport, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		flow:      flow,
		profiles:  profiles,
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		state:     domain.SessionState{Phase: domain.SessionUnauthenticated},
		now:       time.Now,
	}
}

// SetSolver wires an automatic challenge answerer. Without one, a
// challenged login surfaces AwaitingChallenge to the caller.
func (m *Manager) SetSolver(solver domain.ChallengeSolver) {
	m.solver = solver
}

// State returns a snapshot of the current session state
func (m *Manager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Login runs the credential exchange and settles the state machine on
// the verdict. A transport failure leaves the state untouched.
func (m *Manager) Login(ctx context.Context, email, password string) (domain.SessionState, error) {
	out, err := m.flow.Login(ctx, email, password)
	if err != nil {
		return m.State(), err
	}
	return m.settle(ctx, "login", out)
}

// SubmitChallenge answers the pending challenge. The token names which
// challenge is being answered; it must match the one the provider
// issued.
func (m *Manager) SubmitChallenge(ctx context.Context, token, answer string) (domain.SessionState, error) {
	m.mu.RLock()
	pending := m.state.Challenge
	phase := m.state.Phase
	m.mu.RUnlock()

	if phase != domain.SessionAwaitingChallenge || pending == nil {
		return m.State(), &domain.AuthError{Op: "challenge", Reason: "no challenge pending"}
	}
	ch := *pending
	if token != "" {
		ch.Token = token
	}

	out, err := m.flow.SubmitChallenge(ctx, ch, answer)
	if err != nil {
		return m.State(), err
	}
	return m.settle(ctx, "challenge", out)
}

// settle maps a sign-in outcome onto the state machine. When a solver
// is wired, interposed challenges are answered inline for a bounded
// number of rounds.
func (m *Manager) settle(ctx context.Context, op string, out *strand.LoginOutcome) (domain.SessionState, error) {
	for round := 0; ; round++ {
		switch {
		case out.Authenticated:
			m.setAuthenticated(out.ExpiresAt)
			if err := m.Persist(); err != nil {
				m.logger.Warn("failed to persist session", "error", err)
			}
			return m.State(), nil

		case out.Challenge != nil:
			m.setState(domain.SessionState{
				Phase:     domain.SessionAwaitingChallenge,
				Challenge: out.Challenge,
			})
			if m.solver == nil || round >= maxSolverRounds {
				return m.State(), nil
			}

			answer, err := m.solver.Solve(ctx, *out.Challenge)
			if err != nil {
				m.logger.Warn("challenge solver failed", "kind", out.Challenge.Kind, "error", err)
				return m.State(), nil
			}
			next, err := m.flow.SubmitChallenge(ctx, *out.Challenge, answer)
			if err != nil {
				return m.State(), err
			}
			out = next

		default:
			reason := out.FailureReason
			if reason == "" {
				reason = "sign-in failed"
			}
			m.setState(domain.SessionState{Phase: domain.SessionInvalid, Reason: reason})
			m.logger.Warn("sign-in rejected", "op", op, "reason", reason)
			return m.State(), &domain.AuthError{Op: op, Reason: reason}
		}
	}
}

// Verify probes the profile endpoint with the current credentials.
// A definitive refusal downgrades to Unauthenticated; this is the only
// path that silently discards a session. A transport failure changes
// nothing, because an unreachable provider proves nothing about the
// credentials.
func (m *Manager) Verify(ctx context.Context) bool {
	if !m.Authenticated() {
		return false
	}

	profile, err := m.profiles.Profile(ctx)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			m.logger.Info("session no longer valid, signing out locally")
			m.setState(domain.SessionState{Phase: domain.SessionUnauthenticated})
			return false
		}
		m.logger.Debug("session verify inconclusive", "error", err)
		return false
	}

	m.mu.Lock()
	m.profile = profile
	m.state.ExpiresAt = m.cookieHorizon()
	m.mu.Unlock()
	return true
}

// Authorize implements domain.Authorizer. It stamps device identity and
// territory onto the request; the session cookie rides the jar.
func (m *Manager) Authorize(req *domain.Request) error {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	if !state.Authenticated() {
		return &domain.AuthError{Op: "authorize", Reason: "not signed in"}
	}
	if state.Expired(m.now()) {
		return &domain.AuthError{Op: "authorize", Reason: "session expired"}
	}

	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("X-Strand-Device", m.cfg.DeviceID)
	if m.cfg.Territory != "" {
		req.Header.Set("X-Strand-Territory", m.cfg.Territory)
	}
	return nil
}

// Authenticated implements domain.Authorizer
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Authenticated() && !m.state.Expired(m.now())
}

// Profile returns the region and entitlement snapshot, fetching it on
// first use and serving the cached copy afterwards.
func (m *Manager) Profile(ctx context.Context) (*domain.RegionInfo, error) {
	m.mu.RLock()
	cached := m.profile
	m.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	profile, err := m.profiles.Profile(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.profile = profile
	m.mu.Unlock()
	return profile, nil
}

// Persist writes the whole credential bundle to the session file
func (m *Manager) Persist() error {
	if m.cfg.SessionFile == "" {
		return nil
	}

	m.mu.RLock()
	b := &bundle{
		Phase:     m.state.Phase.String(),
		ExpiresAt: m.state.ExpiresAt,
		SavedAt:   m.now(),
		Cookies: map[string][]cookieRecord{
			m.cfg.BaseURL:     records(m.transport.Cookies(m.cfg.BaseURL)),
			m.cfg.PlaybackURL: records(m.transport.Cookies(m.cfg.PlaybackURL)),
		},
	}
	m.mu.RUnlock()

	return saveBundle(m.cfg.SessionFile, b)
}

// Restore loads a previously persisted bundle. A restored session is
// only provisionally authenticated; it must be confirmed with Verify
// before it is trusted. No bundle on disk is not an error.
func (m *Manager) Restore() error {
	if m.cfg.SessionFile == "" {
		return nil
	}

	b, err := loadBundle(m.cfg.SessionFile)
	if err != nil {
		return err
	}
	if b == nil {
		m.logger.Debug("no persisted session")
		return nil
	}

	for _, origin := range []string{m.cfg.BaseURL, m.cfg.PlaybackURL} {
		if cookies := b.cookies(origin); len(cookies) > 0 {
			if err := m.transport.SetCookies(origin, cookies); err != nil {
				return fmt.Errorf("restore cookies for %s: %w", origin, err)
			}
		}
	}

	if b.Phase == domain.SessionAuthenticated.String() {
		m.setState(domain.SessionState{
			Phase:     domain.SessionAuthenticated,
			ExpiresAt: b.ExpiresAt,
		})
		m.logger.Debug("session restored, pending verification")
	}
	return nil
}

// Logout drops the session everywhere: provider, jar, disk, memory
func (m *Manager) Logout(ctx context.Context) error {
	m.flow.Logout(ctx)

	m.mu.Lock()
	m.state = domain.SessionState{Phase: domain.SessionUnauthenticated}
	m.profile = nil
	m.mu.Unlock()

	if m.cfg.SessionFile == "" {
		return nil
	}
	return discardBundle(m.cfg.SessionFile)
}

func (m *Manager) setAuthenticated(expiresAt time.Time) {
	if expiresAt.IsZero() {
		expiresAt = m.cookieHorizon()
	}
	m.setState(domain.SessionState{
		Phase:     domain.SessionAuthenticated,
		ExpiresAt: expiresAt,
	})
}

func (m *Manager) setState(s domain.SessionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// cookieHorizon reads the session cookie's expiry out of the jar.
// Zero when the provider issued a session-scoped cookie.
func (m *Manager) cookieHorizon() time.Time {
	for _, ck := range m.transport.Cookies(m.cfg.BaseURL) {
		if ck.Name == "session-id" && !ck.Expires.IsZero() {
			return ck.Expires
		}
	}
	return time.Time{}
}
