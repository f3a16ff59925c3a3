package crew

import (
	"github.com/iSevenDays/motleycrew/internal/graphstore"
)

// adjacency maps a node ID to the IDs it has edges to, in edge order.
func adjacency(rels []graphstore.Relation) map[string][]string {
	adj := make(map[string][]string)
	for _, r := range rels {
		adj[r.FromID] = append(adj[r.FromID], r.ToID)
	}
	return adj
}

// findPath returns a path of IDs from -> ... -> to, or nil if to is unreachable.
func findPath(adj map[string][]string, from, to string) []string {
	visited := make(map[string]bool)
	var path []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		path = append(path, id)
		if id == to {
			return true
		}
		for _, next := range adj[id] {
			if dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if dfs(from) {
		return path
	}
	return nil
}

// cycleThrough returns the cycle an upstream -> downstream edge closes given the existing
// edges, as IDs starting and ending with upstream, or nil when it closes none.
func cycleThrough(adj map[string][]string, upstream, downstream string) []string {
	if upstream == downstream {
		return []string{upstream, upstream}
	}
	back := findPath(adj, downstream, upstream)
	if back == nil {
		return nil
	}
	return append([]string{upstream}, back...)
}

// topoOrder orders ids so every edge points forward, keeping input order among peers.
// ok is false when the edges contain a cycle.
func topoOrder(ids []string, rels []graphstore.Relation) ([]string, bool) {
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	indeg := make(map[string]int, len(ids))
	adj := make(map[string][]string)
	for _, r := range rels {
		if !known[r.FromID] || !known[r.ToID] {
			continue
		}
		adj[r.FromID] = append(adj[r.FromID], r.ToID)
		indeg[r.ToID]++
	}
	var order []string
	emitted := make(map[string]bool, len(ids))
	for len(order) < len(ids) {
		progressed := false
		for _, id := range ids {
			if emitted[id] || indeg[id] > 0 {
				continue
			}
			emitted[id] = true
			order = append(order, id)
			for _, next := range adj[id] {
				indeg[next]--
			}
			progressed = true
		}
		if !progressed {
			return order, false
		}
	}
	return order, true
}
