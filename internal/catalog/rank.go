package catalog

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/marqueetv/marquee/internal/domain"
)

// FilterLocal ranks the items already materialized in the arena against
// a query. It never touches the provider, which makes it the fallback
// when provider search is down.
func (e *Engine) FilterLocal(query string) []domain.Item {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	e.mu.RLock()
	titles := make([]string, 0, len(e.nodes))
	byTitle := make(map[string]domain.Item, len(e.nodes))
	for _, node := range e.nodes {
		if node.Item == nil {
			continue
		}
		title := strings.ToLower(node.Item.Title)
		if _, dup := byTitle[title]; dup {
			continue
		}
		byTitle[title] = *node.Item
		titles = append(titles, title)
	}
	e.mu.RUnlock()

	matches := fuzzy.RankFindFold(query, titles)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	results := make([]domain.Item, 0, len(matches))
	for _, match := range matches {
		if item, ok := byTitle[match.Target]; ok {
			results = append(results, item)
		}
	}
	return results
}
