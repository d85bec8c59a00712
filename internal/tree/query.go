package tree

import "docconsole/internal/docs"

// ApplyTitleOverrides returns a copy of nodes where every id present in overrides
// carries the overriding title. The input tree is never modified.
func ApplyTitleOverrides(nodes []docs.DocumentNode, overrides map[string]string) []docs.DocumentNode {
	if nodes == nil {
		return nil
	}
	out := make([]docs.DocumentNode, len(nodes))
	for i, node := range nodes {
		if title, ok := overrides[node.ID]; ok {
			node.Title = title
		}
		node.ParentID = copyID(node.ParentID)
		node.Children = ApplyTitleOverrides(node.Children, overrides)
		out[i] = node
	}
	return out
}

// FindPath returns the ids from a root down to target, or nil when target is absent.
func FindPath(nodes []docs.DocumentNode, target string) []string {
	visited := make(map[string]bool)
	var search func(level []docs.DocumentNode, path []string) []string
	search = func(level []docs.DocumentNode, path []string) []string {
		for _, node := range level {
			if visited[node.ID] {
				continue
			}
			visited[node.ID] = true
			current := append(append([]string(nil), path...), node.ID)
			if node.ID == target {
				return current
			}
			if found := search(node.Children, current); found != nil {
				return found
			}
		}
		return nil
	}
	return search(nodes, nil)
}

// CollectPlaceholderIDs lists document ids whose effective title, the cached title
// when present and otherwise the node's own, is a placeholder.
func CollectPlaceholderIDs(nodes []docs.DocumentNode, cache map[string]string) []string {
	var ids []string
	seen := make(map[string]bool)
	var walk func(level []docs.DocumentNode)
	walk = func(level []docs.DocumentNode) {
		for _, node := range level {
			if seen[node.ID] {
				continue
			}
			seen[node.ID] = true
			title := node.Title
			if cached, ok := cache[node.ID]; ok {
				title = cached
			}
			if !docs.IsTaskID(node.ID) && docs.IsPlaceholderTitle(title) {
				ids = append(ids, node.ID)
			}
			walk(node.Children)
		}
	}
	walk(nodes)
	return ids
}

// Titles collects id to title for every node in the tree.
func Titles(nodes []docs.DocumentNode) map[string]string {
	titles := make(map[string]string)
	var walk func(level []docs.DocumentNode)
	walk = func(level []docs.DocumentNode) {
		for _, node := range level {
			if _, ok := titles[node.ID]; ok {
				continue
			}
			titles[node.ID] = node.Title
			walk(node.Children)
		}
	}
	walk(nodes)
	return titles
}

// DefaultExpanded returns the ids of non-leaf nodes at or above maxLevel.
func DefaultExpanded(nodes []docs.DocumentNode, maxLevel int) []string {
	var ids []string
	seen := make(map[string]bool)
	var walk func(level []docs.DocumentNode)
	walk = func(level []docs.DocumentNode) {
		for _, node := range level {
			if seen[node.ID] || node.Level > maxLevel {
				continue
			}
			seen[node.ID] = true
			if !node.IsLeaf() {
				ids = append(ids, node.ID)
				walk(node.Children)
			}
		}
	}
	walk(nodes)
	return ids
}
