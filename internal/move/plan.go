// Package move turns a drag-and-drop gesture over the document tree into the
// parent and index to submit to the server. It never edits the tree.
package move

import (
	"errors"
	"fmt"

	"docconsole/internal/docs"
)

type Position string

const (
	Before Position = "before"
	After  Position = "after"
	Inside Position = "inside"
)

func (p Position) Valid() bool {
	return p == Before || p == After || p == Inside
}

var (
	ErrCircularMove    = errors.New("cannot move a node into its own subtree")
	ErrNodeNotFound    = errors.New("node not found in tree")
	ErrInvalidPosition = errors.New("position must be before, after or inside")
)

// Result is what the caller submits to the server. NewParentID is nil for the root
// level. NoOp means the node would land where it already is.
type Result struct {
	NodeID      string  `json:"node_id"`
	NewParentID *string `json:"new_parent_id,omitempty"`
	NewIndex    int     `json:"new_index"`
	NoOp        bool    `json:"noop"`
}

// Request converts the plan into the server's move body.
func (r Result) Request() docs.MoveNodeRequest {
	return docs.MoveNodeRequest{NewParentID: r.NewParentID, Position: r.NewIndex}
}

type layout struct {
	parent   map[string]string
	children map[string][]string
}

func scan(nodes []docs.DocumentNode) layout {
	l := layout{parent: make(map[string]string), children: make(map[string][]string)}
	var walk func(level []docs.DocumentNode, parent string)
	walk = func(level []docs.DocumentNode, parent string) {
		for _, node := range level {
			if _, seen := l.parent[node.ID]; seen {
				continue
			}
			l.parent[node.ID] = parent
			l.children[parent] = append(l.children[parent], node.ID)
			walk(node.Children, node.ID)
		}
	}
	walk(nodes, "")
	return l
}

// isAncestor reports whether ancestor lies on candidate's parent chain, or is
// candidate itself.
func (l layout) isAncestor(ancestor, candidate string) bool {
	seen := make(map[string]bool)
	for id := candidate; id != "" && !seen[id]; id = l.parent[id] {
		if id == ancestor {
			return true
		}
		seen[id] = true
	}
	return false
}

// Plan computes where dragID lands when dropped relative to targetID.
func Plan(nodes []docs.DocumentNode, dragID, targetID string, pos Position) (Result, error) {
	if !pos.Valid() {
		return Result{}, ErrInvalidPosition
	}
	l := scan(nodes)
	sourceParent, ok := l.parent[dragID]
	if !ok {
		return Result{}, fmt.Errorf("drag %s: %w", dragID, ErrNodeNotFound)
	}
	targetParent, ok := l.parent[targetID]
	if !ok {
		return Result{}, fmt.Errorf("target %s: %w", targetID, ErrNodeNotFound)
	}
	sourceIndex := indexOf(l.children[sourceParent], dragID)

	if dragID == targetID {
		if pos == Inside {
			return Result{}, ErrCircularMove
		}
		return noop(dragID, sourceParent, sourceIndex), nil
	}

	destParent := targetParent
	if pos == Inside {
		destParent = targetID
	}
	if l.isAncestor(dragID, destParent) {
		return Result{}, ErrCircularMove
	}

	siblings := without(l.children[destParent], dragID)
	var index int
	switch pos {
	case Before:
		index = indexOf(siblings, targetID)
	case After:
		index = indexOf(siblings, targetID) + 1
	case Inside:
		index = len(siblings)
	}

	if destParent == sourceParent && index == sourceIndex {
		return noop(dragID, sourceParent, sourceIndex), nil
	}
	return Result{NodeID: dragID, NewParentID: parentPtr(destParent), NewIndex: index}, nil
}

func noop(id, parent string, index int) Result {
	return Result{NodeID: id, NewParentID: parentPtr(parent), NewIndex: index, NoOp: true}
}

func parentPtr(parent string) *string {
	if parent == "" {
		return nil
	}
	return &parent
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
