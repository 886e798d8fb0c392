package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Cache keys for catalog content
const (
	// KeyHome is the cache key for the storefront landing page
	KeyHome = "home"

	// PrefixRail is the prefix for rail caches (rail:{railID})
	PrefixRail = "rail:"

	// PrefixBrowse is the prefix for browse page caches (browse:{hash})
	PrefixBrowse = "browse:"

	// PrefixSearch is the prefix for provider search caches (search:{hash})
	PrefixSearch = "search:"
)

// RailKey returns the cache key for the first page of a rail
func RailKey(railID string) string {
	return PrefixRail + railID
}

// RailPageKey returns the cache key for one paginated slice of a rail
func RailPageKey(railID, cursor string) string {
	if cursor == "" {
		return RailKey(railID)
	}
	return PrefixRail + railID + ":page:" + hashKey(cursor)
}

// RailPrefix returns the invalidation prefix covering every page of a rail
func RailPrefix(railID string) string {
	return PrefixRail + railID
}

// BrowseKey returns the cache key for a browse path and cursor
func BrowseKey(path []string, cursor string) string {
	return PrefixBrowse + hashKey(strings.Join(path, "/")+"#"+cursor)
}

// SearchKey returns the cache key for one page of a provider search
func SearchKey(query, cursor string) string {
	return PrefixSearch + hashKey(strings.ToLower(strings.TrimSpace(query))+"#"+cursor)
}

// hashKey collapses free-form input into a fixed-width key segment
func hashKey(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:8])
}
