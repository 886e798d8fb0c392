package strand

import (
	"errors"
	"testing"
	"time"

	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/logging"
)

func TestMapKind(t *testing.T) {
	tests := map[string]domain.MediaKind{
		"MOVIE":   domain.MediaKindMovie,
		"movie":   domain.MediaKindMovie,
		"FEATURE": domain.MediaKindMovie,
		"SERIES":  domain.MediaKindShow,
		"SEASON":  domain.MediaKindSeason,
		"EPISODE": domain.MediaKindEpisode,
	}
	for input, expect := range tests {
		got, ok := mapKind(input)
		if !ok || got != expect {
			t.Fatalf("mapKind(%q) = %v, %v, want %v", input, got, ok, expect)
		}
	}
	if _, ok := mapKind("TRAILER"); ok {
		t.Fatal("unknown content types must not map")
	}
}

func TestMapTitleDropsMalformed(t *testing.T) {
	if _, ok := mapTitle(TitleDTO{Title: "No ID", ContentType: "MOVIE"}); ok {
		t.Fatal("titles without an id must be dropped")
	}
	if _, ok := mapTitle(TitleDTO{ID: "tt1", Title: "Promo", ContentType: "TRAILER"}); ok {
		t.Fatal("unknown kinds must be dropped")
	}
}

func TestMapTitleFields(t *testing.T) {
	item, ok := mapTitle(TitleDTO{
		ID:             "ep-3",
		Title:          "The Long Night",
		ContentType:    "EPISODE",
		RuntimeSeconds: 3600,
		SeriesID:       "sh-1",
		SeasonID:       "se-1",
		Images:         ImageDTO{Cover: "c.jpg", Background: "b.jpg"},
	})
	if !ok {
		t.Fatal("expected episode to map")
	}
	if item.Kind != domain.MediaKindEpisode {
		t.Fatalf("unexpected kind: %v", item.Kind)
	}
	if item.Duration != time.Hour {
		t.Fatalf("unexpected duration: %v", item.Duration)
	}
	if item.ParentID != "se-1" {
		t.Fatalf("episodes should parent to their season, got %q", item.ParentID)
	}
	if item.Art.Thumb != "c.jpg" || item.Art.Fanart != "b.jpg" {
		t.Fatalf("unexpected art: %+v", item.Art)
	}
}

func TestTitleNodeKinds(t *testing.T) {
	movie, _ := mapTitle(TitleDTO{ID: "tt1", Title: "M", ContentType: "MOVIE"})
	node := titleNode(movie)
	if node.Kind != domain.NodeKindLeaf || node.LazyRef != "" {
		t.Fatalf("movies must be resolved leaves, got %+v", node)
	}

	show, _ := mapTitle(TitleDTO{ID: "sh1", Title: "S", ContentType: "SERIES"})
	node = titleNode(show)
	if node.Kind != domain.NodeKindContainer {
		t.Fatalf("shows must stay expandable, got %v", node.Kind)
	}
	if node.LazyRef != "detail:sh1" {
		t.Fatalf("shows must expand through the detail endpoint, got %q", node.LazyRef)
	}
}

func TestMapStorefront(t *testing.T) {
	dto := &StorefrontDTO{
		Containers: []ContainerDTO{
			{
				ID:    "hero-1",
				Title: "Featured",
				Type:  "hero",
				Items: []TitleDTO{
					{ID: "tt1", Title: "A", ContentType: "MOVIE"},
					{ID: "tr1", Title: "Promo", ContentType: "TRAILER"}, // dropped
					{ID: "sh1", Title: "B", ContentType: "SERIES"},
				},
			},
			{ID: "rail-2", Title: "Action", Type: "rail", SeeMoreRef: "col/v2/action"},
			{Title: "broken container"}, // dropped, no id
		},
		Pagination: &PaginationDTO{Cursor: "pg2", HasMore: true},
	}

	page := mapStorefront(dto, logging.NullLogger())

	root := page.Node
	if root.ID != domain.RootNodeID {
		t.Fatalf("unexpected root id: %q", root.ID)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 rails in provider order, got %v", root.Children)
	}
	if root.Children[0] != "hero-1" || root.Children[1] != "rail-2" {
		t.Fatalf("provider order not preserved: %v", root.Children)
	}
	if page.Cursor != "pg2" {
		t.Fatalf("unexpected cursor: %q", page.Cursor)
	}

	nodes := make(map[string]*domain.CatalogNode, len(page.Children))
	for _, n := range page.Children {
		nodes[n.ID] = n
	}

	hero := nodes["hero-1"]
	if !hero.Resolved() {
		t.Fatal("inline rails arrive resolved")
	}
	if len(hero.Children) != 2 || hero.Children[0] != "tt1" || hero.Children[1] != "sh1" {
		t.Fatalf("unmappable titles should be dropped in place, got %v", hero.Children)
	}

	rail := nodes["rail-2"]
	if rail.Resolved() {
		t.Fatal("empty rails must stay lazy")
	}
	if rail.LazyRef != "col/v2/action" {
		t.Fatalf("unexpected lazy ref: %q", rail.LazyRef)
	}

	if nodes["tt1"].ParentID != "hero-1" {
		t.Fatalf("children must parent to their rail, got %q", nodes["tt1"].ParentID)
	}
}

func TestMapRailPartialPage(t *testing.T) {
	rail, children := mapRail(ContainerDTO{
		ID:         "rail-new",
		Title:      "New",
		SeeMoreRef: "col/v2/new",
		Items:      []TitleDTO{{ID: "tt9", Title: "C", ContentType: "MOVIE"}},
		Pagination: &PaginationDTO{Cursor: "p2", HasMore: true},
	}, logging.NullLogger())

	if !rail.Resolved() {
		t.Fatal("a rail with inline items is resolved")
	}
	if rail.NextCursor != "p2" || rail.PageRef != "col/v2/new" {
		t.Fatalf("continuation not recorded: cursor=%q ref=%q", rail.NextCursor, rail.PageRef)
	}
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
}

func TestMapCollectionCursor(t *testing.T) {
	page := mapCollection(&CollectionDTO{
		Container:  ContainerDTO{ID: "c", Items: []TitleDTO{{ID: "tt1", Title: "A", ContentType: "MOVIE"}}},
		Pagination: &PaginationDTO{Cursor: "next", HasMore: true},
	}, logging.NullLogger())
	if page.Cursor != "next" {
		t.Fatalf("expected cursor, got %q", page.Cursor)
	}

	page = mapCollection(&CollectionDTO{
		Container:  ContainerDTO{ID: "c"},
		Pagination: &PaginationDTO{Cursor: "stale", HasMore: false},
	}, logging.NullLogger())
	if page.Cursor != "" {
		t.Fatal("exhausted collections must not advertise a cursor")
	}
}

func TestMapPlayback(t *testing.T) {
	dto := &PlaybackDTO{
		PlaybackUrls: &PlaybackUrlsDTO{MainManifestURL: "https://play.strand.tv/m/1.mpd", StreamingFormat: "DASH"},
		License:      &LicenseDTO{LicenseURL: "https://play.strand.tv/license"},
		AudioTracks: []AudioTrackDTO{
			{TrackID: "a1", LanguageCode: "en-US", DisplayName: "English (US)", IsOriginal: true},
			{TrackID: "a2", LanguageCode: "fr"},
		},
		TimedText: []TimedTextTrackDTO{
			{LanguageCode: "de", URL: "https://play.strand.tv/tt/de.vtt"},
			{LanguageCode: "es"}, // no URL, dropped
		},
	}

	d, err := mapPlayback(dto, "tt1")
	if err != nil {
		t.Fatalf("mapping failed: %v", err)
	}
	if d.ManifestURL != "https://play.strand.tv/m/1.mpd" || d.ManifestType != domain.ManifestDASH {
		t.Fatalf("unexpected manifest: %+v", d)
	}
	if !d.DRMProtected() {
		t.Fatal("license URL should mark the stream DRM protected")
	}
	if len(d.AudioTracks) != 2 {
		t.Fatalf("expected 2 audio tracks, got %d", len(d.AudioTracks))
	}
	if d.AudioTracks[0].DisplayName != "English (US)" {
		t.Fatal("provider labels take precedence")
	}
	if d.AudioTracks[1].DisplayName != "French" {
		t.Fatalf("missing labels fall back to the language name, got %q", d.AudioTracks[1].DisplayName)
	}
	if len(d.SubtitleTracks) != 1 {
		t.Fatalf("subtitle tracks without URLs must be dropped, got %d", len(d.SubtitleTracks))
	}
}

func TestMapPlaybackMissingManifest(t *testing.T) {
	_, err := mapPlayback(&PlaybackDTO{}, "tt1")
	if !errors.Is(err, errMissingManifest) {
		t.Fatalf("expected errMissingManifest, got %v", err)
	}

	_, err = mapPlayback(&PlaybackDTO{PlaybackUrls: &PlaybackUrlsDTO{}}, "tt1")
	if !errors.Is(err, errMissingManifest) {
		t.Fatalf("expected errMissingManifest for empty URL, got %v", err)
	}
}

func TestMapProfile(t *testing.T) {
	info := mapProfile(&ProfileDTO{
		Territory:     "US",
		MarketplaceID: "STRND-US-1",
		BaseURL:       "https://www.strand.tv",
		DRMEntitled:   true,
	})
	if info.Territory != "US" || info.MarketplaceID != "STRND-US-1" || !info.DRMReady {
		t.Fatalf("unexpected region info: %+v", info)
	}
}
