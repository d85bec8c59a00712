// Package tree mirrors the document server's tree in memory. Everything here is a
// pure function of its inputs; the shape arriving from the server is never trusted,
// so every traversal is guarded against cycles and repeated ids.
package tree

import (
	"sort"

	"docconsole/internal/docs"

	"go.uber.org/zap"
)

// Build converts the nested server DTOs into DocumentNodes. A single virtual root
// wrapper is unwrapped, so wrapped and unwrapped input yield the same result.
func Build(raw []docs.RawNode) []docs.DocumentNode {
	if len(raw) == 1 && raw[0].Node != nil && raw[0].Node.ID == docs.VirtualRootID {
		raw = raw[0].Children
	}
	return buildLevel(raw, nil, 0)
}

func buildLevel(raw []docs.RawNode, parentID *string, depth int) []docs.DocumentNode {
	out := make([]docs.DocumentNode, 0, len(raw))
	for _, item := range raw {
		if item.Node == nil {
			// A wrapper without metadata contributes its children at this level.
			out = append(out, buildLevel(item.Children, parentID, depth)...)
			continue
		}
		if item.Node.ID == docs.VirtualRootID {
			out = append(out, buildLevel(item.Children, nil, depth)...)
			continue
		}
		out = append(out, buildNode(item, parentID, depth))
	}
	return out
}

func buildNode(item docs.RawNode, parentID *string, depth int) docs.DocumentNode {
	meta := item.Node
	node := docs.DocumentNode{
		ID:       meta.ID,
		Title:    meta.Title,
		Type:     meta.Type,
		Level:    meta.Level,
		Position: meta.Position,
		Version:  meta.Version,
		ParentID: copyID(parentID),
	}
	if node.Level <= 0 {
		node.Level = depth + 1
	}
	if len(item.Children) > 0 {
		id := meta.ID
		node.Children = buildLevel(item.Children, &id, depth+1)
	}
	return node
}

// BuildFlat assembles a tree from a flat parent-linked list. Entries whose parent is
// unknown, and members of parent cycles, are surfaced as root-level orphans.
func BuildFlat(entries []docs.DocMeta, logger *zap.Logger) []docs.DocumentNode {
	if logger == nil {
		logger = zap.NewNop()
	}

	byID := make(map[string]docs.DocMeta, len(entries))
	order := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" || entry.ID == docs.VirtualRootID {
			continue
		}
		if _, dup := byID[entry.ID]; dup {
			logger.Warn("duplicate node in flat tree", zap.String("node_id", entry.ID))
			continue
		}
		byID[entry.ID] = entry
		order = append(order, entry.ID)
	}

	children := make(map[string][]string)
	var roots []string
	for _, id := range order {
		parent := parentOf(byID[id])
		switch {
		case parent == "":
			roots = append(roots, id)
		case byID[parent].ID == "":
			logger.Warn("orphan node, parent missing", zap.String("node_id", id), zap.String("parent_id", parent))
			roots = append(roots, id)
		default:
			children[parent] = append(children[parent], id)
		}
	}
	for parent := range children {
		sortByPosition(children[parent], byID)
	}
	sortByPosition(roots, byID)

	visited := make(map[string]bool, len(order))
	var walk func(id string, parent *string, depth int) docs.DocumentNode
	walk = func(id string, parent *string, depth int) docs.DocumentNode {
		visited[id] = true
		meta := byID[id]
		node := docs.DocumentNode{
			ID:       id,
			Title:    meta.Title,
			Type:     meta.Type,
			Level:    depth + 1,
			Position: meta.Position,
			Version:  meta.Version,
			ParentID: copyID(parent),
		}
		self := id
		for _, child := range children[id] {
			if visited[child] {
				continue
			}
			node.Children = append(node.Children, walk(child, &self, depth+1))
		}
		return node
	}

	out := make([]docs.DocumentNode, 0, len(roots))
	for _, id := range roots {
		out = append(out, walk(id, nil, 0))
	}
	// Anything not reached from a root sits on a parent cycle.
	for _, id := range order {
		if visited[id] {
			continue
		}
		logger.Warn("cyclic parent chain, promoting node to root", zap.String("node_id", id))
		out = append(out, walk(id, nil, 0))
	}
	return out
}

func parentOf(meta docs.DocMeta) string {
	if meta.ParentID == nil || *meta.ParentID == docs.VirtualRootID {
		return ""
	}
	return *meta.ParentID
}

func sortByPosition(ids []string, byID map[string]docs.DocMeta) {
	sort.SliceStable(ids, func(i, j int) bool {
		return byID[ids[i]].Position < byID[ids[j]].Position
	})
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
