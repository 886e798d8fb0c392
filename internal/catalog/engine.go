package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/store"
)

// searchNodePrefix namespaces the synthetic nodes that back provider
// searches so they can never collide with provider-issued ids.
const searchNodePrefix = "search:"

// Config tunes how the engine uses its cache
type Config struct {
	UseCache bool          // Serve catalog pages from the cache when possible
	TTL      time.Duration // Lifetime of cached pages
}

// cachedPage is the envelope catalog pages are cached under
type cachedPage struct {
	Nodes  []*domain.CatalogNode `json:"nodes"`
	Cursor string                `json:"cursor,omitempty"`
}

// Engine holds the browse tree: an arena of nodes addressed by id,
// hydrated lazily through the catalog source. Parents reference
// children by id only, so the arena is the single owner of every node.
type Engine struct {
	source domain.CatalogSource
	cache  domain.Cache
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	nodes map[string]*domain.CatalogNode
}

// New creates an engine with an empty arena
func New(source domain.CatalogSource, cache domain.Cache, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source: source,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		nodes:  make(map[string]*domain.CatalogNode),
	}
}

// FetchRoot pulls the storefront and rebuilds the arena around it.
// An empty storefront is a valid empty root, not an error.
func (e *Engine) FetchRoot(ctx context.Context) (*domain.CatalogNode, error) {
	if env, ok := e.cachedEnvelope(store.KeyHome); ok {
		e.rebuild(env.Nodes)
		e.logger.Debug("home served from cache")
		return e.mustRoot()
	}

	page, err := e.source.Root(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make([]*domain.CatalogNode, 0, len(page.Children)+1)
	nodes = append(nodes, page.Node)
	nodes = append(nodes, page.Children...)

	e.rebuild(nodes)
	e.storeEnvelope(store.KeyHome, nodes, "")
	e.logger.Info("loaded home", "rails", len(page.Node.Children))
	return e.mustRoot()
}

// Resolve materializes a node's children. Resolving an already
// resolved node returns its children without touching the provider;
// a failed fetch leaves the node exactly as it was.
func (e *Engine) Resolve(ctx context.Context, nodeID string) (*domain.CatalogNode, error) {
	e.mu.RLock()
	node, ok := e.nodes[nodeID]
	if !ok {
		e.mu.RUnlock()
		return nil, &domain.NotFoundError{Kind: "node", Ref: nodeID}
	}
	if node.Resolved() {
		out := copyNode(node)
		e.mu.RUnlock()
		return out, nil
	}
	ref := node.LazyRef
	kind := node.Kind
	e.mu.RUnlock()

	// Fetch outside the lock so sibling resolves can run in parallel
	page, err := e.fetchPage(ctx, nodeID, kind, ref, "")
	if err != nil {
		var beErr *domain.BackendError
		if errors.As(err, &beErr) {
			beErr.NodeID = nodeID
		}
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.nodes[nodeID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "node", Ref: nodeID}
	}
	if cur.Resolved() {
		// A sibling resolve won the race; its result stands
		return copyNode(cur), nil
	}

	for _, ch := range page.Children {
		if _, exists := e.nodes[ch.ID]; !exists {
			ch.ParentID = nodeID
			e.nodes[ch.ID] = ch
		}
		cur.Children = append(cur.Children, ch.ID)
	}
	cur.LazyRef = ""
	cur.NextCursor = page.Cursor
	if page.Cursor != "" {
		cur.PageRef = ref
	}
	return copyNode(cur), nil
}

// Browse walks slash-separated node ids from the root, resolving each
// hop lazily. A cursor continues the terminal node's listing instead
// of restarting it.
func (e *Engine) Browse(ctx context.Context, path, cursor string) ([]domain.Item, string, error) {
	if e.empty() {
		if _, err := e.FetchRoot(ctx); err != nil {
			return nil, "", err
		}
	}

	nodeID := domain.RootNodeID
	for _, seg := range splitPath(path) {
		node, err := e.Resolve(ctx, nodeID)
		if err != nil {
			return nil, "", err
		}
		if !containsID(node.Children, seg) {
			return nil, "", &domain.NotFoundError{Kind: "path", Ref: seg}
		}
		nodeID = seg
	}

	terminal, err := e.Resolve(ctx, nodeID)
	if err != nil {
		return nil, "", err
	}

	if cursor != "" {
		if err := e.nextPage(ctx, nodeID, cursor); err != nil {
			return nil, "", err
		}
		terminal, _ = e.Node(nodeID)
	}

	return e.itemsOf(terminal.Children), terminal.NextCursor, nil
}

// Search lists provider matches for a query through a synthetic node,
// so pagination works exactly like browsing a rail.
func (e *Engine) Search(ctx context.Context, query, cursor string) ([]domain.Item, string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, "", nil
	}

	nodeID := searchNodeID(query)
	e.mu.Lock()
	if _, ok := e.nodes[nodeID]; !ok {
		e.nodes[nodeID] = &domain.CatalogNode{
			ID:      nodeID,
			Title:   query,
			Kind:    domain.NodeKindRail,
			LazyRef: query,
		}
	}
	e.mu.Unlock()

	if cursor == "" {
		node, err := e.Resolve(ctx, nodeID)
		if err != nil {
			return nil, "", err
		}
		return e.itemsOf(node.Children), node.NextCursor, nil
	}

	if err := e.nextPage(ctx, nodeID, cursor); err != nil {
		return nil, "", err
	}
	node, ok := e.Node(nodeID)
	if !ok {
		return nil, "", &domain.NotFoundError{Kind: "node", Ref: nodeID}
	}
	return e.itemsOf(node.Children), node.NextCursor, nil
}

// Node returns a copy of one arena node
func (e *Engine) Node(id string) (*domain.CatalogNode, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	node, ok := e.nodes[id]
	if !ok {
		return nil, false
	}
	return copyNode(node), true
}

// Item returns the item carried by an arena node, if any
func (e *Engine) Item(id string) (*domain.Item, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	node, ok := e.nodes[id]
	if !ok || node.Item == nil {
		return nil, false
	}
	return node.Item, true
}

// Rails projects the root's children into display rails. The class is
// derived from whatever children are materialized so far.
func (e *Engine) Rails() []domain.Rail {
	e.mu.RLock()
	defer e.mu.RUnlock()

	root, ok := e.nodes[domain.RootNodeID]
	if !ok {
		return nil
	}

	rails := make([]domain.Rail, 0, len(root.Children))
	for _, id := range root.Children {
		node, ok := e.nodes[id]
		if !ok || node.Kind != domain.NodeKindRail {
			continue
		}
		rails = append(rails, domain.Rail{
			ID:      node.ID,
			Title:   node.Title,
			Class:   e.railClass(node),
			ItemIDs: append([]string{}, node.Children...),
		})
	}
	return rails
}

// nextPage fetches one continuation page for a node and appends its
// children, skipping ids the node already lists.
func (e *Engine) nextPage(ctx context.Context, nodeID, cursor string) error {
	e.mu.RLock()
	node, ok := e.nodes[nodeID]
	if !ok {
		e.mu.RUnlock()
		return &domain.NotFoundError{Kind: "node", Ref: nodeID}
	}
	ref := node.PageRef
	kind := node.Kind
	e.mu.RUnlock()

	if ref == "" {
		// Nothing further to load
		return nil
	}

	page, err := e.fetchPage(ctx, nodeID, kind, ref, cursor)
	if err != nil {
		var beErr *domain.BackendError
		if errors.As(err, &beErr) {
			beErr.NodeID = nodeID
		}
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.nodes[nodeID]
	if !ok {
		return &domain.NotFoundError{Kind: "node", Ref: nodeID}
	}

	seen := make(map[string]bool, len(cur.Children))
	for _, id := range cur.Children {
		seen[id] = true
	}
	for _, ch := range page.Children {
		if _, exists := e.nodes[ch.ID]; !exists {
			ch.ParentID = nodeID
			e.nodes[ch.ID] = ch
		}
		if !seen[ch.ID] {
			cur.Children = append(cur.Children, ch.ID)
			seen[ch.ID] = true
		}
	}
	cur.NextCursor = page.Cursor
	return nil
}

// fetchPage loads one page of children, from the cache when it can
func (e *Engine) fetchPage(ctx context.Context, nodeID string, kind domain.NodeKind, ref, cursor string) (*domain.CatalogPage, error) {
	key := e.pageKey(nodeID, kind, ref, cursor)
	if env, ok := e.cachedEnvelope(key); ok {
		e.logger.Debug("cache hit", "key", key)
		return &domain.CatalogPage{Children: env.Nodes, Cursor: env.Cursor}, nil
	}

	var page *domain.CatalogPage
	var err error
	if isSearchNode(nodeID) {
		page, err = e.source.Search(ctx, ref, cursor)
	} else {
		page, err = e.source.Expand(ctx, ref, cursor)
	}
	if err != nil {
		return nil, err
	}

	e.storeEnvelope(key, page.Children, page.Cursor)
	return page, nil
}

func (e *Engine) pageKey(nodeID string, kind domain.NodeKind, ref, cursor string) string {
	switch {
	case isSearchNode(nodeID):
		return store.SearchKey(ref, cursor)
	case kind == domain.NodeKindRail:
		return store.RailPageKey(nodeID, cursor)
	default:
		return store.BrowseKey([]string{ref}, cursor)
	}
}

// cachedEnvelope reads a page envelope; every failure is just a miss
func (e *Engine) cachedEnvelope(key string) (*cachedPage, bool) {
	if !e.cfg.UseCache || e.cache == nil {
		return nil, false
	}
	data, err := e.cache.Get(key)
	if err != nil {
		e.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var env cachedPage
	if err := json.Unmarshal(data, &env); err != nil {
		e.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return &env, true
}

// storeEnvelope writes a page envelope; failures are logged, never fatal
func (e *Engine) storeEnvelope(key string, nodes []*domain.CatalogNode, cursor string) {
	if !e.cfg.UseCache || e.cache == nil {
		return
	}
	data, err := json.Marshal(cachedPage{Nodes: nodes, Cursor: cursor})
	if err != nil {
		e.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := e.cache.Set(key, data, e.cfg.TTL); err != nil {
		e.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// rebuild swaps in a fresh arena built from the given nodes
func (e *Engine) rebuild(nodes []*domain.CatalogNode) {
	arena := make(map[string]*domain.CatalogNode, len(nodes))
	for _, n := range nodes {
		arena[n.ID] = n
	}
	e.mu.Lock()
	e.nodes = arena
	e.mu.Unlock()
}

func (e *Engine) mustRoot() (*domain.CatalogNode, error) {
	root, ok := e.Node(domain.RootNodeID)
	if !ok {
		return nil, &domain.NotFoundError{Kind: "node", Ref: domain.RootNodeID}
	}
	return root, nil
}

func (e *Engine) empty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.nodes) == 0
}

// itemsOf collects the items behind the given child ids, in order
func (e *Engine) itemsOf(childIDs []string) []domain.Item {
	e.mu.RLock()
	defer e.mu.RUnlock()

	items := make([]domain.Item, 0, len(childIDs))
	for _, id := range childIDs {
		if node, ok := e.nodes[id]; ok && node.Item != nil {
			items = append(items, *node.Item)
		}
	}
	return items
}

// railClass derives a rail's class from its materialized children.
// Callers hold at least a read lock.
func (e *Engine) railClass(rail *domain.CatalogNode) domain.RailClass {
	var movies, tv int
	for _, id := range rail.Children {
		node, ok := e.nodes[id]
		if !ok || node.Item == nil {
			continue
		}
		if node.Item.Kind == domain.MediaKindMovie {
			movies++
		} else {
			tv++
		}
	}
	switch {
	case movies > 0 && tv == 0:
		return domain.RailClassMovies
	case tv > 0 && movies == 0:
		return domain.RailClassTV
	default:
		return domain.RailClassMixed
	}
}

func copyNode(n *domain.CatalogNode) *domain.CatalogNode {
	out := *n
	out.Children = append([]string{}, n.Children...)
	return &out
}

func searchNodeID(query string) string {
	return searchNodePrefix + strings.ToLower(strings.TrimSpace(query))
}

func isSearchNode(nodeID string) bool {
	return strings.HasPrefix(nodeID, searchNodePrefix)
}

func splitPath(path string) []string {
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
