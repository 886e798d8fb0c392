package domain

import "time"

// SessionPhase tracks where a session sits in the login lifecycle
type SessionPhase int

const (
	SessionUnauthenticated SessionPhase = iota
	SessionAwaitingChallenge
	SessionAuthenticated
	SessionInvalid
)

// String returns a human-readable representation of the session phase
func (p SessionPhase) String() string {
	switch p {
	case SessionUnauthenticated:
		return "unauthenticated"
	case SessionAwaitingChallenge:
		return "awaiting-challenge"
	case SessionAuthenticated:
		return "authenticated"
	case SessionInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ChallengeKind distinguishes interactive verification steps
type ChallengeKind string

const (
	ChallengeMFA     ChallengeKind = "mfa"
	ChallengeCaptcha ChallengeKind = "captcha"
)

// Challenge is an interactive step the provider interposed during login.
// Token is opaque and must be echoed back verbatim with the answer.
type Challenge struct {
	Kind  ChallengeKind // What the provider is asking for
	Token string        // Continuation token from the login form
	Hint  string        // Prompt text or image URL to show the user
}

// SessionState is a snapshot of the login lifecycle
type SessionState struct {
	Phase     SessionPhase // Current lifecycle phase
	Challenge *Challenge   // Set only while awaiting a challenge
	ExpiresAt time.Time    // Soft credential horizon, zero when unknown
	Reason    string       // Failure detail, set only when invalid
}

// Authenticated reports whether the session can back authorized requests.
func (s SessionState) Authenticated() bool {
	return s.Phase == SessionAuthenticated
}

// Expired reports whether the credential horizon has passed.
func (s SessionState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
