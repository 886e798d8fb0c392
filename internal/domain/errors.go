package domain

import "fmt"

// AuthError reports an operation that needed credentials the session
// could not supply.
type AuthError struct {
	Op     string // Operation that was refused, e.g. "login", "playback"
	Reason string // Provider-facing detail, safe to log
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: not authenticated", e.Op)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// BackendError reports a provider call that failed after retries.
type BackendError struct {
	Op      string // Operation being performed
	NodeID  string // Catalog node involved, empty when not node-scoped
	Status  int    // HTTP status, 0 for transport-level failures
	Timeout bool   // True when the deadline elapsed
	Err     error  // Underlying cause, may be nil
}

func (e *BackendError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: provider timed out", e.Op)
	case e.Status != 0:
		return fmt.Sprintf("%s: provider returned %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: provider request failed", e.Op)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

// NotFoundError reports a reference that resolves to nothing.
type NotFoundError struct {
	Kind string // What was looked up: "node", "item", "path"
	Ref  string // The reference that missed
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

// CacheError reports a cache read or write that could not complete.
// Callers treat it as a miss; it never aborts the underlying operation.
type CacheError struct {
	Op  string // "get", "set", "invalidate" or "close"
	Key string // Cache key involved, empty for store-wide failures
	Err error  // Underlying cause
}

func (e *CacheError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }
