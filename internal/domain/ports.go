package domain

import (
	"context"
	"net/http"
	"time"
)

// Request is one outbound provider call
type Request struct {
	Method     string        // HTTP method
	URL        string        // Absolute URL
	Header     http.Header   // Extra headers, may be nil
	Body       []byte        // Request body, nil for none
	Timeout    time.Duration // Per-request override, 0 uses the transport default
	NoRedirect bool          // Return redirects instead of following them
}

// Response is the outcome of a provider call
type Response struct {
	Status int         // HTTP status code
	Header http.Header // Response headers
	Body   []byte      // Fully read response body
	URL    string      // Final URL after any redirects
}

// Transport executes provider calls with retry and cookie handling.
type Transport interface {
	// Do executes one request, retrying transient failures.
	Do(ctx context.Context, req *Request) (*Response, error)

	// Cookies returns the cookies the jar would send to rawURL.
	Cookies(rawURL string) []*http.Cookie

	// SetCookies seeds the jar with cookies scoped to rawURL.
	SetCookies(rawURL string, cookies []*http.Cookie) error

	// ClearCookies drops every cookie from the jar.
	ClearCookies()
}

// CatalogPage is one normalized chunk of the provider tree. Node is the
// owner of the page with its bookkeeping already updated; Children are
// the member nodes in provider order.
type CatalogPage struct {
	Node     *CatalogNode   // Owning node, nil for pages without one
	Children []*CatalogNode // Member nodes in provider order
	Cursor   string         // Cursor for the following page, empty when exhausted
}

// CatalogSource feeds the catalog engine from a streaming provider.
type CatalogSource interface {
	// Root fetches the storefront landing page.
	Root(ctx context.Context) (*CatalogPage, error)

	// Expand materializes the children behind a lazy reference.
	// An empty cursor requests the first page.
	Expand(ctx context.Context, ref, cursor string) (*CatalogPage, error)

	// Search runs a provider-side query and returns one page of
	// matching nodes. An empty cursor requests the first page.
	Search(ctx context.Context, query, cursor string) (*CatalogPage, error)
}

// PlaybackSource resolves stream grants for playable items.
type PlaybackSource interface {
	// Playable requests a fresh stream grant for one item.
	Playable(ctx context.Context, itemID string) (*PlayableDescriptor, error)
}

// ProfileSource probes the account profile backing the session.
type ProfileSource interface {
	// Profile fetches the territory and entitlement snapshot.
	Profile(ctx context.Context) (*RegionInfo, error)
}

// WatchlistSource pushes user collection changes to the provider.
type WatchlistSource interface {
	// SetWatchlist adds or removes an item from the watchlist.
	SetWatchlist(ctx context.Context, itemID string, add bool) error

	// SetWatched marks an item watched or unwatched.
	SetWatched(ctx context.Context, itemID string, watched bool) error
}

// Authorizer gates outbound calls on the session lifecycle.
type Authorizer interface {
	// Authorize stamps req with session credentials, or returns an
	// *AuthError when the session cannot back it.
	Authorize(req *Request) error

	// Authenticated reports whether the session is currently usable.
	Authenticated() bool
}

// ChallengeSolver answers interactive login challenges, typically by
// prompting the user.
type ChallengeSolver interface {
	// Solve returns the user's answer to the challenge.
	Solve(ctx context.Context, ch Challenge) (string, error)
}

// Cache is a TTL'd byte cache. A nil-data, nil-error read is a miss.
type Cache interface {
	// Get returns the unexpired payload stored under key.
	Get(key string) ([]byte, error)

	// Set stores data under key for ttl.
	Set(key string, data []byte, ttl time.Duration) error

	// Invalidate drops one key.
	Invalidate(key string) error

	// InvalidatePrefix drops every key that starts with prefix.
	InvalidatePrefix(prefix string) error

	// Close releases the backing store.
	Close() error
}
