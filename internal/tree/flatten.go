package tree

import (
	"strconv"
	"strings"

	"docconsole/internal/docs"
)

// Row is one render-ready line of the tree.
type Row struct {
	Key       string            `json:"key"`
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Type      docs.DocumentType `json:"type"`
	Depth     int               `json:"depth"`
	ParentID  string            `json:"parent_id,omitempty"`
	Path      []string          `json:"path"`
	Leaf      bool              `json:"leaf"`
	Duplicate bool              `json:"duplicate,omitempty"`
}

type FlattenOptions struct {
	// KeepDuplicates emits re-encountered ids as childless rows keyed by their
	// traversal path instead of dropping them.
	KeepDuplicates bool
}

// Flatten walks the tree depth-first. An id is expanded at most once.
func Flatten(nodes []docs.DocumentNode, opts FlattenOptions) []Row {
	var rows []Row
	visited := make(map[string]bool)
	keys := make(map[string]bool)

	var walk func(level []docs.DocumentNode, parent string, path []string)
	walk = func(level []docs.DocumentNode, parent string, path []string) {
		for _, node := range level {
			current := append(append([]string(nil), path...), node.ID)
			row := Row{
				ID:       node.ID,
				Title:    node.Title,
				Type:     node.Type,
				Depth:    len(path),
				ParentID: parent,
				Path:     current,
			}
			if visited[node.ID] {
				if !opts.KeepDuplicates {
					continue
				}
				row.Duplicate = true
				row.Leaf = true
				row.Key = uniqueKey(keys, strings.Join(current, "/"))
				rows = append(rows, row)
				continue
			}
			visited[node.ID] = true
			row.Leaf = node.IsLeaf()
			row.Key = uniqueKey(keys, node.ID)
			rows = append(rows, row)
			walk(node.Children, node.ID, current)
		}
	}
	walk(nodes, "", nil)
	return rows
}

func uniqueKey(keys map[string]bool, key string) string {
	candidate := key
	for n := 2; keys[candidate]; n++ {
		candidate = key + "#" + strconv.Itoa(n)
	}
	keys[candidate] = true
	return candidate
}
