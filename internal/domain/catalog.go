package domain

import (
	"fmt"
	"time"
)

// RootNodeID addresses the storefront root in every catalog arena
const RootNodeID = "root"

// NodeKind distinguishes positions in the catalog tree
type NodeKind int

const (
	NodeKindRail NodeKind = iota
	NodeKindContainer
	NodeKindLeaf
)

// String returns a human-readable representation of the node kind
func (k NodeKind) String() string {
	switch k {
	case NodeKindRail:
		return "rail"
	case NodeKindContainer:
		return "container"
	case NodeKindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// CatalogNode is one addressable position in the browse tree. Rails and
// containers carry children; leaves carry the item itself.
type CatalogNode struct {
	ID         string   // Arena-unique identifier
	ParentID   string   // Parent node ID, empty for the root
	Title      string   // Display title
	Kind       NodeKind // Rail, container or leaf
	LazyRef    string   // Provider reference for deferred expansion, cleared once resolved
	Children   []string // Child node IDs in provider order
	NextCursor string   // Cursor for the next child page, empty when exhausted
	PageRef    string   // Provider reference continuation pages load through, kept after resolution
	Item       *Item    // Payload for leaf nodes, nil otherwise
}

// Resolved reports whether the node's children have been materialized.
// Leaves are always resolved.
func (n *CatalogNode) Resolved() bool {
	return n.LazyRef == ""
}

// HasMore reports whether further child pages remain to be fetched.
func (n *CatalogNode) HasMore() bool {
	return n.NextCursor != ""
}

// MediaKind distinguishes content types
type MediaKind int

const (
	MediaKindMovie MediaKind = iota
	MediaKindShow
	MediaKindSeason
	MediaKindEpisode
)

// String returns a human-readable representation of the media kind
func (k MediaKind) String() string {
	switch k {
	case MediaKindMovie:
		return "movie"
	case MediaKindShow:
		return "show"
	case MediaKindSeason:
		return "season"
	case MediaKindEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// Playable reports whether content of this kind resolves to a stream.
// Shows and seasons only group other titles.
func (k MediaKind) Playable() bool {
	return k == MediaKindMovie || k == MediaKindEpisode
}

// Art groups the image URLs attached to an item
type Art struct {
	Thumb  string // Small tile image URL
	Poster string // Portrait poster URL
	Fanart string // Background art URL
}

// Item represents one title in the catalog
type Item struct {
	ID       string        // Provider identifier
	Title    string        // Display title
	Plot     string        // Synopsis
	Year     int           // Release year, 0 when the provider omits it
	Duration time.Duration // Runtime, 0 when unknown
	Kind     MediaKind     // Movie, show, season or episode
	Art      Art           // Image URLs
	Genres   []string      // Genre labels in provider order

	// Hierarchy links (empty where not applicable)
	ParentID string   // Season ID for episodes, show ID for seasons
	ChildIDs []string // Season IDs for shows, episode IDs for seasons
}

// Label returns the title decorated with the year when known
func (i Item) Label() string {
	if i.Year > 0 {
		return fmt.Sprintf("%s (%d)", i.Title, i.Year)
	}
	return i.Title
}

// FormattedDuration returns the runtime in a human-readable format
func (i Item) FormattedDuration() string {
	if i.Duration <= 0 {
		return ""
	}
	h := int(i.Duration.Hours())
	mins := int(i.Duration.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// RailClass groups rails by the content they carry
type RailClass int

const (
	RailClassMixed RailClass = iota
	RailClassMovies
	RailClassTV
)

// String returns a human-readable representation of the rail class
func (c RailClass) String() string {
	switch c {
	case RailClassMovies:
		return "movies"
	case RailClassTV:
		return "tv"
	default:
		return "mixed"
	}
}

// Rail is one horizontal shelf on the storefront
type Rail struct {
	ID      string    // Provider rail identifier
	Title   string    // Shelf heading
	Class   RailClass // Dominant content class
	ItemIDs []string  // Member node IDs in provider order
}
