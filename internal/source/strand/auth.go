package strand

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/marqueetv/marquee/internal/domain"
)

const (
	pathSignin    = "/signin"
	pathChallenge = "/signin/challenge"
	pathSignout   = "/signout"

	// sessionCookie is the cookie Strand plants once sign-in completes
	sessionCookie = "session-id"
)

// LoginOutcome describes where one sign-in exchange landed. Exactly one
// of Authenticated, Challenge or FailureReason is meaningful.
type LoginOutcome struct {
	Authenticated bool
	Challenge     *domain.Challenge
	FailureReason string
	ExpiresAt     time.Time // Session cookie horizon, zero when the provider omits it
}

// AuthClient drives the Strand form-based sign-in flow
type AuthClient struct {
	transport domain.Transport
	baseURL   string
	logger    *slog.Logger
}

// NewAuthClient creates a new sign-in client
func NewAuthClient(transport domain.Transport, baseURL string, logger *slog.Logger) *AuthClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthClient{
		transport: transport,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// Login runs the credential exchange: fetch the sign-in form, echo its
// hidden fields back with the credentials, classify the verdict.
func (a *AuthClient) Login(ctx context.Context, email, password string) (*LoginOutcome, error) {
	header := http.Header{}
	header.Set("Accept", "text/html")
	resp, err := a.transport.Do(ctx, &domain.Request{
		Method: http.MethodGet,
		URL:    a.baseURL + pathSignin,
		Header: header,
	})
	if err != nil {
		return nil, a.wrap("login", err)
	}
	if resp.Status != http.StatusOK {
		return nil, &domain.BackendError{Op: "login", Status: resp.Status}
	}

	form, err := extractLoginForm(resp.Body, resp.URL)
	if err != nil {
		return nil, &domain.BackendError{Op: "login", Err: err}
	}

	form.Fields.Set("email", email)
	form.Fields.Set("password", password)

	return a.submit(ctx, "login", form.Action, form.Fields)
}

// SubmitChallenge answers an interposed verification step
func (a *AuthClient) SubmitChallenge(ctx context.Context, ch domain.Challenge, answer string) (*LoginOutcome, error) {
	fields := url.Values{}
	fields.Set("challengeToken", ch.Token)
	fields.Set("kind", string(ch.Kind))
	fields.Set("answer", answer)

	return a.submit(ctx, "challenge", a.baseURL+pathChallenge, fields)
}

// Logout tells the provider to drop the session, then clears the jar.
// Provider refusal is not fatal; the local session dies regardless.
func (a *AuthClient) Logout(ctx context.Context) {
	if _, err := a.transport.Do(ctx, &domain.Request{
		Method: http.MethodPost,
		URL:    a.baseURL + pathSignout,
	}); err != nil {
		a.logger.Debug("signout request failed", "error", err)
	}
	a.transport.ClearCookies()
}

// submit posts a sign-in form and classifies the provider verdict.
// Redirects are held back so the outcome can be read from the response
// itself instead of whatever page the redirect lands on.
func (a *AuthClient) submit(ctx context.Context, op, action string, fields url.Values) (*LoginOutcome, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", "text/html")

	resp, err := a.transport.Do(ctx, &domain.Request{
		Method:     http.MethodPost,
		URL:        action,
		Header:     header,
		Body:       []byte(fields.Encode()),
		NoRedirect: true,
	})
	if err != nil {
		return nil, a.wrap(op, err)
	}

	// A redirect that plants the session cookie means we are in
	switch resp.Status {
	case http.StatusFound, http.StatusSeeOther, http.StatusMovedPermanently:
		if ck, ok := sessionFromResponse(resp); ok {
			a.logger.Info("sign-in complete")
			out := &LoginOutcome{Authenticated: true}
			if !ck.Expires.IsZero() {
				out.ExpiresAt = ck.Expires
			}
			return out, nil
		}
		return &LoginOutcome{FailureReason: "redirected without a session cookie"}, nil
	case http.StatusOK:
		// Fall through: the page interposes a challenge or explains itself
	default:
		return nil, &domain.BackendError{Op: op, Status: resp.Status}
	}

	if ch := challengeFrom(resp.Body); ch != nil {
		a.logger.Info("sign-in challenged", "kind", ch.Kind)
		return &LoginOutcome{Challenge: ch}, nil
	}

	reason := failureReason(resp.Body)
	if reason == "" {
		reason = "provider rejected the credentials"
	}
	return &LoginOutcome{FailureReason: reason}, nil
}

// sessionFromResponse reads the session cookie out of Set-Cookie headers
func sessionFromResponse(resp *domain.Response) (*http.Cookie, bool) {
	hr := &http.Response{Header: resp.Header}
	for _, ck := range hr.Cookies() {
		if ck.Name == sessionCookie && ck.Value != "" {
			return ck, true
		}
	}
	return nil, false
}

func (a *AuthClient) wrap(op string, err error) error {
	be := &domain.BackendError{Op: op, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		be.Timeout = true
	}
	return be
}
