package relgraph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"docconsole/internal/docs"
	"docconsole/internal/metacache"
	"docconsole/internal/tree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls  atomic.Int32
	metaFn func(docID string) (docs.DocMeta, error)
}

func (f *fakeFetcher) GetDocumentMeta(_ context.Context, _, docID string) (docs.DocMeta, error) {
	f.calls.Add(1)
	return f.metaFn(docID)
}

func depType(t docs.DependencyType) *docs.DependencyType {
	return &t
}

func TestEdgeTypeFor(t *testing.T) {
	cases := []struct {
		rel  docs.Relationship
		want EdgeType
	}{
		{docs.Relationship{Type: docs.RelationReference, DependencyType: depType(docs.DepTypeData)}, EdgeDependsOn},
		{docs.Relationship{Type: docs.RelationParentChild, DependencyType: depType(docs.DepTypeConfig)}, EdgeDependsOn},
		{docs.Relationship{Type: docs.RelationParentChild}, EdgeInherits},
		{docs.Relationship{Type: docs.RelationSibling}, EdgeRelatedTo},
		{docs.Relationship{Type: docs.RelationReference}, EdgeReferences},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EdgeTypeFor(tc.rel))
	}
}

func TestHydrateResolvesFromIndexThenCacheThenFetch(t *testing.T) {
	ctx := context.Background()
	idx := tree.NewIndex([]docs.DocumentNode{
		{ID: "doc1", Title: "Architecture", Type: docs.TypeArchitecture, Level: 1},
	})
	cache := metacache.NewMemory()
	require.NoError(t, cache.PutMeta(ctx, "p1", map[string]metacache.NodeMeta{
		"doc3": {Label: "Kickoff notes", Category: "context", DocumentType: docs.TypeMeeting},
	}))
	fetcher := &fakeFetcher{metaFn: func(id string) (docs.DocMeta, error) {
		if id == "doc2" {
			return docs.DocMeta{ID: id, Title: "API Design", Type: docs.TypeTechDesign}, nil
		}
		return docs.DocMeta{}, errors.New("boom")
	}}
	b := NewBuilder(fetcher, cache, Options{})

	rels := []docs.Relationship{
		{ID: "r1", FromID: "doc2", ToID: "doc1", Type: docs.RelationReference, DependencyType: depType(docs.DepTypeInterface)},
		{ID: "r2", FromID: "doc3", ToID: "doc4", Type: docs.RelationSibling},
	}
	graph, err := b.Hydrate(ctx, "p1", rels, idx)
	require.NoError(t, err)

	labels := map[string]string{}
	categories := map[string]string{}
	for _, node := range graph.Nodes {
		labels[node.ID] = node.Label
		categories[node.ID] = node.Type
	}
	assert.Equal(t, map[string]string{
		"doc1": "Architecture",
		"doc2": "API Design",
		"doc3": "Kickoff notes",
		"doc4": "doc4",
	}, labels)
	assert.Equal(t, "design", categories["doc2"])
	assert.Equal(t, int32(2), fetcher.calls.Load())

	cached, _ := cache.GetMeta(ctx, "p1", []string{"doc2", "doc4"})
	assert.Contains(t, cached, "doc2")
	assert.NotContains(t, cached, "doc4")

	require.Len(t, graph.Edges, 2)
	assert.Equal(t, EdgeDependsOn, graph.Edges[0].Type)
	assert.Equal(t, EdgeRelatedTo, graph.Edges[1].Type)
}

func TestHydrateDropsTaskIDs(t *testing.T) {
	fetcher := &fakeFetcher{metaFn: func(id string) (docs.DocMeta, error) {
		return docs.DocMeta{ID: id, Title: "Doc " + id}, nil
	}}
	b := NewBuilder(fetcher, nil, Options{})
	rels := []docs.Relationship{
		{ID: "r1", FromID: "task_42", ToID: "doc1", Type: docs.RelationReference},
		{ID: "r2", FromID: "doc1", ToID: "doc2", Type: docs.RelationReference},
	}
	graph, err := b.Hydrate(context.Background(), "p1", rels, nil)
	require.NoError(t, err)
	for _, node := range graph.Nodes {
		assert.False(t, docs.IsTaskID(node.ID), "task id %s leaked into graph", node.ID)
	}
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, "r2", graph.Edges[0].ID)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestHydrateFetchesEachMissingIDOnce(t *testing.T) {
	fetcher := &fakeFetcher{metaFn: func(id string) (docs.DocMeta, error) {
		return docs.DocMeta{ID: id, Title: "T " + id}, nil
	}}
	b := NewBuilder(fetcher, nil, Options{Concurrency: 2})
	rels := []docs.Relationship{
		{ID: "r1", FromID: "a", ToID: "b"},
		{ID: "r2", FromID: "b", ToID: "c"},
		{ID: "r3", FromID: "c", ToID: "a"},
	}
	_, err := b.Hydrate(context.Background(), "p1", rels, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), fetcher.calls.Load())

	_, err = b.Hydrate(context.Background(), "p1", rels, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), fetcher.calls.Load(), "second hydrate should be served from cache")
}

func TestCreateThenRowsCarryLabels(t *testing.T) {
	req := docs.CreateRelationshipRequest{
		FromID:         "doc2",
		ToID:           "doc1",
		Type:           docs.RelationReference,
		DependencyType: depType(docs.DepTypeInterface),
	}
	require.NoError(t, ValidateCreate(req))

	idx := tree.NewIndex([]docs.DocumentNode{
		{ID: "doc1", Title: "Architecture", Type: docs.TypeArchitecture},
		{ID: "doc2", Title: "API Design", Type: docs.TypeTechDesign},
	})
	rels := []docs.Relationship{{ID: "r1", FromID: req.FromID, ToID: req.ToID, Type: req.Type, DependencyType: req.DependencyType}}
	graph, err := NewBuilder(nil, nil, Options{}).Hydrate(context.Background(), "p1", rels, idx)
	require.NoError(t, err)

	rows := Rows(rels, graph)
	require.Len(t, rows, 1)
	assert.Equal(t, "API Design", rows[0].FromLabel)
	assert.Equal(t, "Architecture", rows[0].ToLabel)
	assert.Equal(t, docs.DepTypeInterface, *rows[0].DependencyType)
}

func TestValidateCreateRejectsSelfReference(t *testing.T) {
	err := ValidateCreate(docs.CreateRelationshipRequest{
		FromID:         "doc1",
		ToID:           "doc1",
		Type:           docs.RelationReference,
		DependencyType: depType(docs.DepTypeData),
	})
	var verr *docs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "SELF_REFERENCE", verr.Code)
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, "requirement", CategoryFor(docs.TypeRequirements))
	assert.Equal(t, "context", CategoryFor(docs.TypeBackground))
	assert.Equal(t, "document", CategoryFor(docs.TypeTask))
}
