package tree

import "docconsole/internal/docs"

// Index answers id, parent and sibling lookups over a built tree. The first
// occurrence of an id wins when the input repeats it.
type Index struct {
	nodes    map[string]docs.DocumentNode
	parents  map[string]string
	children map[string][]string
}

func NewIndex(roots []docs.DocumentNode) *Index {
	idx := &Index{
		nodes:    make(map[string]docs.DocumentNode),
		parents:  make(map[string]string),
		children: make(map[string][]string),
	}
	var walk func(level []docs.DocumentNode, parent string)
	walk = func(level []docs.DocumentNode, parent string) {
		for _, node := range level {
			if _, seen := idx.nodes[node.ID]; seen {
				continue
			}
			idx.nodes[node.ID] = node
			idx.parents[node.ID] = parent
			idx.children[parent] = append(idx.children[parent], node.ID)
			walk(node.Children, node.ID)
		}
	}
	walk(roots, "")
	return idx
}

func (i *Index) Node(id string) (docs.DocumentNode, bool) {
	node, ok := i.nodes[id]
	return node, ok
}

// Parent returns the parent id, "" for a root. ok is false for unknown ids.
func (i *Index) Parent(id string) (parent string, ok bool) {
	parent, ok = i.parents[id]
	return parent, ok
}

// Children lists the child ids of parent in order; "" lists the roots.
func (i *Index) Children(parent string) []string {
	return append([]string(nil), i.children[parent]...)
}

func (i *Index) Contains(id string) bool {
	_, ok := i.nodes[id]
	return ok
}

func (i *Index) Title(id string) (string, bool) {
	node, ok := i.nodes[id]
	return node.Title, ok
}

func (i *Index) Len() int {
	return len(i.nodes)
}
