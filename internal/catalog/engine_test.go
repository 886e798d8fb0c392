package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/logging"
	"github.com/marqueetv/marquee/internal/store"
)

// fakeSource scripts catalog pages per ref
type fakeSource struct {
	mu          sync.Mutex
	rootPage    *domain.CatalogPage
	rootErr     error
	rootCalls   int
	expandFn    func(ref, cursor string) (*domain.CatalogPage, error)
	expandCalls int
	searchFn    func(query, cursor string) (*domain.CatalogPage, error)
	searchCalls int
}

func (f *fakeSource) Root(context.Context) (*domain.CatalogPage, error) {
	f.mu.Lock()
	f.rootCalls++
	f.mu.Unlock()
	return f.rootPage, f.rootErr
}

func (f *fakeSource) Expand(_ context.Context, ref, cursor string) (*domain.CatalogPage, error) {
	f.mu.Lock()
	f.expandCalls++
	f.mu.Unlock()
	if f.expandFn == nil {
		return nil, fmt.Errorf("unexpected expand of %q", ref)
	}
	return f.expandFn(ref, cursor)
}

func (f *fakeSource) Search(_ context.Context, query, cursor string) (*domain.CatalogPage, error) {
	f.mu.Lock()
	f.searchCalls++
	f.mu.Unlock()
	if f.searchFn == nil {
		return nil, fmt.Errorf("unexpected search for %q", query)
	}
	return f.searchFn(query, cursor)
}

func (f *fakeSource) expands() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expandCalls
}

func movieNode(id, title string) *domain.CatalogNode {
	return &domain.CatalogNode{
		ID:    id,
		Title: title,
		Kind:  domain.NodeKindLeaf,
		Item:  &domain.Item{ID: id, Title: title, Kind: domain.MediaKindMovie},
	}
}

func showNode(id, title string) *domain.CatalogNode {
	return &domain.CatalogNode{
		ID:      id,
		Title:   title,
		Kind:    domain.NodeKindContainer,
		LazyRef: "detail:" + id,
		Item:    &domain.Item{ID: id, Title: title, Kind: domain.MediaKindShow},
	}
}

func seasonNode(id, title string) *domain.CatalogNode {
	return &domain.CatalogNode{
		ID:      id,
		Title:   title,
		Kind:    domain.NodeKindContainer,
		LazyRef: "detail:" + id,
		Item:    &domain.Item{ID: id, Title: title, Kind: domain.MediaKindSeason},
	}
}

func lazyRail(id, title, ref string) *domain.CatalogNode {
	return &domain.CatalogNode{ID: id, Title: title, Kind: domain.NodeKindRail, LazyRef: ref}
}

// storefront assembles a root page; nodes other than rails are assumed
// to be pre-wired children of the rails that name them
func storefront(rails []*domain.CatalogNode, extra ...*domain.CatalogNode) *domain.CatalogPage {
	root := &domain.CatalogNode{ID: domain.RootNodeID, Title: "Home", Kind: domain.NodeKindContainer}
	var children []*domain.CatalogNode
	for _, r := range rails {
		r.ParentID = root.ID
		root.Children = append(root.Children, r.ID)
		children = append(children, r)
	}
	children = append(children, extra...)
	return &domain.CatalogPage{Node: root, Children: children}
}

func newTestEngine(src *fakeSource) *Engine {
	return New(src, nil, Config{}, logging.NullLogger())
}

func TestFetchRootEmptyStorefront(t *testing.T) {
	src := &fakeSource{rootPage: storefront(nil)}
	e := newTestEngine(src)

	root, err := e.FetchRoot(context.Background())
	if err != nil {
		t.Fatalf("FetchRoot failed: %v", err)
	}
	if root.ID != domain.RootNodeID || len(root.Children) != 0 {
		t.Fatalf("expected a valid empty root, got %+v", root)
	}
}

func TestFetchRootBuildsArena(t *testing.T) {
	inline := &domain.CatalogNode{ID: "rail-in", Title: "Featured", Kind: domain.NodeKindRail, Children: []string{"tt1"}}
	child := movieNode("tt1", "Night Alley")
	child.ParentID = "rail-in"
	lazy := lazyRail("rail-lz", "Action", "col/v2/action")

	src := &fakeSource{rootPage: storefront([]*domain.CatalogNode{inline, lazy}, child)}
	e := newTestEngine(src)

	if _, err := e.FetchRoot(context.Background()); err != nil {
		t.Fatalf("FetchRoot failed: %v", err)
	}

	rails := e.Rails()
	if len(rails) != 2 {
		t.Fatalf("expected 2 rails, got %d", len(rails))
	}
	if rails[0].Class != domain.RailClassMovies {
		t.Errorf("inline movie rail should classify as movies, got %s", rails[0].Class)
	}
	if rails[1].Class != domain.RailClassMixed {
		t.Errorf("unmaterialized rail should classify as mixed, got %s", rails[1].Class)
	}
	if _, ok := e.Item("tt1"); !ok {
		t.Error("inline child should be in the arena")
	}
}

func TestResolveIdempotent(t *testing.T) {
	src := &fakeSource{
		rootPage: storefront([]*domain.CatalogNode{lazyRail("rail-1", "Action", "col/v2/action")}),
		expandFn: func(ref, cursor string) (*domain.CatalogPage, error) {
			return &domain.CatalogPage{Children: []*domain.CatalogNode{movieNode("tt1", "A")}}, nil
		},
	}
	e := newTestEngine(src)
	if _, err := e.FetchRoot(context.Background()); err != nil {
		t.Fatal(err)
	}

	node, err := e.Resolve(context.Background(), "rail-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !node.Resolved() || len(node.Children) != 1 {
		t.Fatalf("expected resolved node with 1 child, got %+v", node)
	}

	again, err := e.Resolve(context.Background(), "rail-1")
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if src.expands() != 1 {
		t.Fatalf("resolving a resolved node must not refetch, got %d calls", src.expands())
	}
	if len(again.Children) != 1 {
		t.Fatalf("children changed on second resolve: %v", again.Children)
	}
}

func TestResolveFailureLeavesNodeUntouched(t *testing.T) {
	src := &fakeSource{
		rootPage: storefront([]*domain.CatalogNode{lazyRail("rail-1", "Action", "col/v2/action")}),
		expandFn: func(ref, cursor string) (*domain.CatalogPage, error) {
			return nil, &domain.BackendError{Op: "collection", Status: 502}
		},
	}
	e := newTestEngine(src)
	if _, err := e.FetchRoot(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := e.Resolve(context.Background(), "rail-1")
	var beErr *domain.BackendError
	if !errors.As(err, &beErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if beErr.NodeID != "rail-1" {
		t.Errorf("error should carry the node id, got %q", beErr.NodeID)
	}

	node, ok := e.Node("rail-1")
	if !ok {
		t.Fatal("node vanished")
	}
	if node.Resolved() || len(node.Children) != 0 || node.LazyRef != "col/v2/action" {
		t.Fatalf("failed resolve must leave the node untouched, got %+v", node)
	}
}

func TestResolveUnknownNode(t *testing.T) {
	e := newTestEngine(&fakeSource{rootPage: storefront(nil)})
	if _, err := e.FetchRoot(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := e.Resolve(context.Background(), "ghost")
	var nfErr *domain.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestBrowseWalksPath(t *testing.T) {
	sh := showNode("sh1", "B Show")
	sh.ParentID = "rail-1"
	src := &fakeSource{
		rootPage: storefront([]*domain.CatalogNode{lazyRail("rail-1", "Shows", "col/v2/shows")}),
		expandFn: func(ref, cursor string) (*domain.CatalogPage, error) {
			switch ref {
			case "col/v2/shows":
				return &domain.CatalogPage{Children: []*domain.CatalogNode{sh}}, nil
			case "detail:sh1":
				return &domain.CatalogPage{Children: []*domain.CatalogNode{seasonNode("se1", "Season 1")}}, nil
			default:
				return nil, fmt.Errorf("unexpected ref %q", ref)
			}
		},
	}
	e := newTestEngine(src)

	items, next, err := e.Browse(context.Background(), "rail-1/sh1", "")
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	if next != "" {
		t.Errorf("unexpected cursor %q", next)
	}
	if len(items) != 1 || items[0].ID != "se1" {
		t.Fatalf("expected the show's season, got %+v", items)
	}
}

func TestBrowseUnknownSegment(t *testing.T) {
	src := &fakeSource{rootPage: storefront([]*domain.CatalogNode{
		{ID: "rail-1", Title: "Empty", Kind: domain.NodeKindRail},
	})}
	e := newTestEngine(src)

	_, _, err := e.Browse(context.Background(), "rail-1/ghost", "")
	var nfErr *domain.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nfErr.Ref != "ghost" {
		t.Errorf("error should name the missing segment, got %q", nfErr.Ref)
	}
}

func TestBrowseAppendsPages(t *testing.T) {
	src := &fakeSource{
		rootPage: storefront([]*domain.CatalogNode{lazyRail("rail-1", "Action", "col/v2/action")}),
		expandFn: func(ref, cursor string) (*domain.CatalogPage, error) {
			if cursor == "" {
				return &domain.CatalogPage{
					Children: []*domain.CatalogNode{movieNode("tt1", "A"), movieNode("tt2", "B")},
					Cursor:   "c2",
				}, nil
			}
			// Provider pages overlap at the boundary
			return &domain.CatalogPage{
				Children: []*domain.CatalogNode{movieNode("tt2", "B"), movieNode("tt3", "C")},
			}, nil
		},
	}
	e := newTestEngine(src)

	items, next, err := e.Browse(context.Background(), "rail-1", "")
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	if len(items) != 2 || next != "c2" {
		t.Fatalf("expected first page of 2 with cursor, got %d items cursor %q", len(items), next)
	}

	items, next, err = e.Browse(context.Background(), "rail-1", next)
	if err != nil {
		t.Fatalf("Browse page 2 failed: %v", err)
	}
	if next != "" {
		t.Errorf("expected exhausted listing, got cursor %q", next)
	}
	want := []string{"tt1", "tt2", "tt3"}
	if len(items) != len(want) {
		t.Fatalf("expected %d deduplicated items, got %d", len(want), len(items))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("item %d: expected %s, got %s", i, id, items[i].ID)
		}
	}
}

func TestSearchPaginates(t *testing.T) {
	src := &fakeSource{
		rootPage: storefront(nil),
		searchFn: func(query, cursor string) (*domain.CatalogPage, error) {
			if query != "night" {
				return nil, fmt.Errorf("unexpected query %q", query)
			}
			if cursor == "" {
				return &domain.CatalogPage{Children: []*domain.CatalogNode{movieNode("tt1", "Night Alley")}, Cursor: "s2"}, nil
			}
			return &domain.CatalogPage{Children: []*domain.CatalogNode{movieNode("tt2", "Night Watch")}}, nil
		},
	}
	e := newTestEngine(src)

	items, next, err := e.Search(context.Background(), "night", "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 || next != "s2" {
		t.Fatalf("expected 1 result with cursor, got %d cursor %q", len(items), next)
	}

	items, next, err = e.Search(context.Background(), "night", next)
	if err != nil {
		t.Fatalf("Search page 2 failed: %v", err)
	}
	if len(items) != 2 || next != "" {
		t.Fatalf("expected accumulated results, got %d cursor %q", len(items), next)
	}
	if items[0].ID != "tt1" || items[1].ID != "tt2" {
		t.Errorf("provider order not preserved: %v", items)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	src := &fakeSource{}
	e := newTestEngine(src)

	items, next, err := e.Search(context.Background(), "  ", "")
	if err != nil || items != nil || next != "" {
		t.Fatalf("blank query should be a no-op, got %v %q %v", items, next, err)
	}
	if src.searchCalls != 0 {
		t.Error("blank query must not reach the provider")
	}
}

func TestConcurrentSiblingResolve(t *testing.T) {
	src := &fakeSource{
		rootPage: storefront([]*domain.CatalogNode{
			lazyRail("rail-1", "Action", "col/v2/action"),
			lazyRail("rail-2", "Drama", "col/v2/drama"),
		}),
		expandFn: func(ref, cursor string) (*domain.CatalogPage, error) {
			time.Sleep(5 * time.Millisecond)
			switch ref {
			case "col/v2/action":
				return &domain.CatalogPage{Children: []*domain.CatalogNode{movieNode("tt1", "A")}}, nil
			default:
				return &domain.CatalogPage{Children: []*domain.CatalogNode{movieNode("tt2", "B")}}, nil
			}
		},
	}
	e := newTestEngine(src)
	if _, err := e.FetchRoot(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, id := range []string{"rail-1", "rail-2", "rail-1", "rail-2"} {
		wg.Add(1)
		go func(nodeID string) {
			defer wg.Done()
			if _, err := e.Resolve(context.Background(), nodeID); err != nil {
				t.Errorf("Resolve %s failed: %v", nodeID, err)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"rail-1", "rail-2"} {
		node, ok := e.Node(id)
		if !ok {
			t.Fatalf("node %s missing", id)
		}
		if !node.Resolved() || len(node.Children) != 1 {
			t.Errorf("node %s corrupted by concurrent resolve: %+v", id, node)
		}
	}
}

func TestEngineServesFromSharedCache(t *testing.T) {
	st, err := store.New("", "US", logging.NullLogger())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	defer st.Close()

	src := &fakeSource{
		rootPage: storefront([]*domain.CatalogNode{lazyRail("rail-1", "Action", "col/v2/action")}),
		expandFn: func(ref, cursor string) (*domain.CatalogPage, error) {
			return &domain.CatalogPage{Children: []*domain.CatalogNode{movieNode("tt1", "A")}}, nil
		},
	}
	cfg := Config{UseCache: true, TTL: time.Minute}

	e1 := New(src, st, cfg, logging.NullLogger())
	if _, err := e1.FetchRoot(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := e1.Resolve(context.Background(), "rail-1"); err != nil {
		t.Fatal(err)
	}

	// A second engine over the same store sees only cache hits
	e2 := New(src, st, cfg, logging.NullLogger())
	if _, err := e2.FetchRoot(context.Background()); err != nil {
		t.Fatal(err)
	}
	node, err := e2.Resolve(context.Background(), "rail-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(node.Children) != 1 {
		t.Fatalf("cached resolve lost children: %+v", node)
	}
	if src.rootCalls != 1 || src.expands() != 1 {
		t.Fatalf("cached pages must not refetch, got root=%d expand=%d", src.rootCalls, src.expands())
	}
}

// failingCache errors on every operation
type failingCache struct{}

func (failingCache) Get(key string) ([]byte, error) {
	return nil, &domain.CacheError{Op: "get", Key: key, Err: errors.New("disk gone")}
}

func (failingCache) Set(key string, _ []byte, _ time.Duration) error {
	return &domain.CacheError{Op: "set", Key: key, Err: errors.New("disk gone")}
}

func (failingCache) Invalidate(string) error       { return nil }
func (failingCache) InvalidatePrefix(string) error { return nil }
func (failingCache) Close() error                  { return nil }

func TestCacheFailuresNeverAbort(t *testing.T) {
	src := &fakeSource{
		rootPage: storefront([]*domain.CatalogNode{lazyRail("rail-1", "Action", "col/v2/action")}),
		expandFn: func(ref, cursor string) (*domain.CatalogPage, error) {
			return &domain.CatalogPage{Children: []*domain.CatalogNode{movieNode("tt1", "A")}}, nil
		},
	}
	e := New(src, failingCache{}, Config{UseCache: true, TTL: time.Minute}, logging.NullLogger())

	if _, err := e.FetchRoot(context.Background()); err != nil {
		t.Fatalf("cache failure must degrade to a miss, got %v", err)
	}
	if _, err := e.Resolve(context.Background(), "rail-1"); err != nil {
		t.Fatalf("cache failure must degrade to a miss, got %v", err)
	}
}

func TestFilterLocal(t *testing.T) {
	inline := &domain.CatalogNode{ID: "rail-in", Title: "Featured", Kind: domain.NodeKindRail, Children: []string{"tt1", "tt2", "tt3"}}
	a := movieNode("tt1", "Night Alley")
	b := movieNode("tt2", "Day Watch")
	c := movieNode("tt3", "Alley Nights")
	src := &fakeSource{rootPage: storefront([]*domain.CatalogNode{inline}, a, b, c)}
	e := newTestEngine(src)
	if _, err := e.FetchRoot(context.Background()); err != nil {
		t.Fatal(err)
	}

	results := e.FilterLocal("alley")
	if len(results) != 2 {
		t.Fatalf("expected 2 fuzzy matches, got %d: %v", len(results), results)
	}
	for _, r := range results {
		if r.ID == "tt2" {
			t.Errorf("%q should not match %q", r.Title, "alley")
		}
	}

	if got := e.FilterLocal("   "); got != nil {
		t.Errorf("blank filter should return nothing, got %v", got)
	}
}
