// Package relgraph turns server relationships into a labelled graph and table rows.
package relgraph

import (
	"context"
	"fmt"
	"sync"

	"docconsole/internal/docs"
	"docconsole/internal/metacache"
	"docconsole/internal/tree"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type EdgeType string

const (
	EdgeDependsOn  EdgeType = "depends_on"
	EdgeInherits   EdgeType = "inherits"
	EdgeRelatedTo  EdgeType = "related_to"
	EdgeReferences EdgeType = "references"
)

// EdgeTypeFor maps a relationship to its display edge type. A dependency type
// always wins over the relation type.
func EdgeTypeFor(rel docs.Relationship) EdgeType {
	if rel.DependencyType != nil {
		return EdgeDependsOn
	}
	switch rel.Type {
	case docs.RelationParentChild:
		return EdgeInherits
	case docs.RelationSibling:
		return EdgeRelatedTo
	default:
		return EdgeReferences
	}
}

// CategoryFor groups document types into the graph's colour categories.
func CategoryFor(t docs.DocumentType) string {
	switch t {
	case docs.TypeArchitecture, docs.TypeTechDesign:
		return "design"
	case docs.TypeFeatureList, docs.TypeRequirements:
		return "requirement"
	case docs.TypeBackground, docs.TypeMeeting:
		return "context"
	default:
		return "document"
	}
}

type Node struct {
	ID           string            `json:"id"`
	Label        string            `json:"label"`
	Type         string            `json:"type"`
	DocumentType docs.DocumentType `json:"document_type,omitempty"`
}

type Edge struct {
	ID             string               `json:"id"`
	Source         string               `json:"source"`
	Target         string               `json:"target"`
	Type           EdgeType             `json:"type"`
	DependencyType *docs.DependencyType `json:"dependency_type,omitempty"`
	Description    string               `json:"description,omitempty"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func (g Graph) label(id string) string {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node.Label
		}
	}
	return id
}

// MetaFetcher reads one document's metadata from the server.
type MetaFetcher interface {
	GetDocumentMeta(ctx context.Context, project, docID string) (docs.DocMeta, error)
}

type Options struct {
	// Concurrency bounds metadata fetches during one Hydrate.
	Concurrency int
	Logger      *zap.Logger
}

type Builder struct {
	fetcher     MetaFetcher
	cache       metacache.Meta
	concurrency int
	logger      *zap.Logger
}

func NewBuilder(fetcher MetaFetcher, cache metacache.Meta, opts Options) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if cache == nil {
		cache = metacache.NewMemory()
	}
	return &Builder{fetcher: fetcher, cache: cache, concurrency: opts.Concurrency, logger: opts.Logger}
}

// Hydrate resolves a label for every endpoint of rels, looking in idx first, then
// the metadata cache, then fetching each still-missing id once. Fetched metadata is
// written back to the cache; failed fetches fall back to the id and are not cached.
// Task ids are never resolved and edges touching them are dropped.
func (b *Builder) Hydrate(ctx context.Context, project string, rels []docs.Relationship, idx *tree.Index) (Graph, error) {
	graph := Graph{Nodes: []Node{}, Edges: []Edge{}}
	var ids []string
	seen := map[string]bool{}
	for _, rel := range rels {
		if docs.IsTaskID(rel.FromID) || docs.IsTaskID(rel.ToID) {
			continue
		}
		id := rel.ID
		if id == "" {
			id = rel.FromID + "->" + rel.ToID
		}
		graph.Edges = append(graph.Edges, Edge{
			ID:             id,
			Source:         rel.FromID,
			Target:         rel.ToID,
			Type:           EdgeTypeFor(rel),
			DependencyType: rel.DependencyType,
			Description:    rel.Description,
		})
		for _, endpoint := range []string{rel.FromID, rel.ToID} {
			if !seen[endpoint] {
				seen[endpoint] = true
				ids = append(ids, endpoint)
			}
		}
	}

	resolved := make(map[string]metacache.NodeMeta, len(ids))
	var missing []string
	for _, id := range ids {
		if idx != nil {
			if node, ok := idx.Node(id); ok && !docs.IsPlaceholderTitle(node.Title) {
				resolved[id] = metacache.NodeMeta{Label: node.Title, Category: CategoryFor(node.Type), DocumentType: node.Type}
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		cached, err := b.cache.GetMeta(ctx, project, missing)
		if err != nil {
			b.logger.Warn("node metadata cache read failed", zap.String("project_id", project), zap.Error(err))
		}
		stillMissing := missing[:0:0]
		for _, id := range missing {
			if meta, ok := cached[id]; ok {
				resolved[id] = meta
				continue
			}
			stillMissing = append(stillMissing, id)
		}
		fetched, err := b.fetchAll(ctx, project, stillMissing)
		if err != nil {
			return Graph{}, err
		}
		for id, meta := range fetched {
			resolved[id] = meta
		}
		if len(fetched) > 0 {
			if err := b.cache.PutMeta(ctx, project, fetched); err != nil {
				b.logger.Warn("node metadata cache write failed", zap.String("project_id", project), zap.Error(err))
			}
		}
	}

	for _, id := range ids {
		meta, ok := resolved[id]
		if !ok {
			meta = metacache.NodeMeta{Label: id, Category: CategoryFor("")}
		}
		graph.Nodes = append(graph.Nodes, Node{ID: id, Label: meta.Label, Type: meta.Category, DocumentType: meta.DocumentType})
	}
	return graph, nil
}

// fetchAll only fails when ctx is cancelled; individual fetch errors are logged.
func (b *Builder) fetchAll(ctx context.Context, project string, ids []string) (map[string]metacache.NodeMeta, error) {
	out := make(map[string]metacache.NodeMeta, len(ids))
	if len(ids) == 0 || b.fetcher == nil {
		return out, nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			meta, err := b.fetcher.GetDocumentMeta(gctx, project, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				b.logger.Debug("node metadata fetch failed", zap.String("document_id", id), zap.Error(err))
				return nil
			}
			if docs.IsPlaceholderTitle(meta.Title) {
				return nil
			}
			mu.Lock()
			out[id] = metacache.NodeMeta{Label: meta.Title, Category: CategoryFor(meta.Type), DocumentType: meta.Type}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hydrate graph labels: %w", err)
	}
	return out, nil
}

// ValidateCreate rejects malformed relationship requests before any network I/O.
func ValidateCreate(req docs.CreateRelationshipRequest) error {
	return docs.Validate(req)
}

// Row is one line of the relationship table.
type Row struct {
	ID             string               `json:"id"`
	FromID         string               `json:"from_id"`
	FromLabel      string               `json:"from_label"`
	ToID           string               `json:"to_id"`
	ToLabel        string               `json:"to_label"`
	Type           docs.RelationType    `json:"type"`
	DependencyType *docs.DependencyType `json:"dependency_type,omitempty"`
	Description    string               `json:"description,omitempty"`
}

// Rows lists the reference relationships of rels, labelled from graph, in server order.
func Rows(rels []docs.Relationship, graph Graph) []Row {
	rows := []Row{}
	for _, rel := range rels {
		if rel.Type != docs.RelationReference {
			continue
		}
		if docs.IsTaskID(rel.FromID) || docs.IsTaskID(rel.ToID) {
			continue
		}
		rows = append(rows, Row{
			ID:             rel.ID,
			FromID:         rel.FromID,
			FromLabel:      graph.label(rel.FromID),
			ToID:           rel.ToID,
			ToLabel:        graph.label(rel.ToID),
			Type:           rel.Type,
			DependencyType: rel.DependencyType,
			Description:    rel.Description,
		})
	}
	return rows
}
