package search

import (
	"context"
	"strings"
	"sync"

	"docconsole/internal/docs"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to the
// document server's search.
type Service struct {
	index    Index
	fallback Fallback
	logger   *zap.Logger

	mu sync.Mutex
	// indexed holds the tree records last pushed per project, so a reload only
	// pushes what changed.
	indexed map[string]map[string]Record
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Fallback, logger *zap.Logger) *Service {
	var index Index
	if meili != nil {
		index = meili
	}
	return newService(index, fallback, logger)
}

func newService(index Index, fallback Fallback, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, fallback: fallback, logger: logger, indexed: make(map[string]map[string]Record)}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries Meilisearch if healthy, otherwise asks the document server. A failing
// server search degrades to an empty response.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return Response{}, ErrEmptyQuery
	}

	if s.indexReady() {
		results, err := s.index.Search(q)
		if err == nil {
			return newResponse(q, results, SourceIndex), nil
		}
		s.logger.Warn("meilisearch error, falling back to server search", zap.Error(err))
	}

	if s.fallback == nil {
		return newResponse(q, nil, SourceServer), nil
	}
	req := docs.SearchRequest{Query: q.Text, MaxResults: q.Limit, ContextChars: q.ContextChars}
	for _, t := range q.DocumentTypes {
		req.DocumentTypes = append(req.DocumentTypes, string(t))
	}
	hits, err := s.fallback.Search(ctx, q.ProjectID, req)
	if err != nil {
		s.logger.Warn("server search failed", zap.String("project_id", q.ProjectID), zap.Error(err))
		return newResponse(q, nil, SourceServer), nil
	}
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			DocumentID: hit.DocumentID,
			Title:      hit.Title,
			Snippet:    hit.Content,
			Score:      float64(hit.Score),
		})
	}
	return newResponse(q, results, SourceServer), nil
}

func newResponse(q Query, results []Result, source Source) Response {
	if results == nil {
		results = []Result{}
	}
	return Response{Results: results, Count: len(results), Query: q.Text, Source: source}
}

// IndexTree pushes the documents of a project tree that changed since the last
// push (fire-and-forget). Task nodes are not indexed. Tree records carry no
// excerpt, so excerpts written by IndexContent survive.
func (s *Service) IndexTree(project string, nodes []docs.DocumentNode) {
	if !s.indexReady() {
		return
	}
	records := TreeRecords(project, nodes)

	s.mu.Lock()
	prev := s.indexed[project]
	next := make(map[string]Record, len(records))
	var changed []Record
	for _, rec := range records {
		next[rec.ID] = rec
		if old, ok := prev[rec.ID]; !ok || old != rec {
			changed = append(changed, rec)
		}
	}
	s.indexed[project] = next
	s.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	go func() {
		if err := s.index.IndexDocuments(changed); err != nil {
			s.logger.Warn("index project tree failed", zap.String("project_id", project), zap.Error(err))
			s.mu.Lock()
			delete(s.indexed, project)
			s.mu.Unlock()
		}
	}()
}

// IndexContent refreshes one document's excerpt after a save (fire-and-forget).
func (s *Service) IndexContent(project string, meta docs.DocMeta, content string) {
	if !s.indexReady() {
		return
	}
	excerpt := Excerpt(content, 2000)
	rec := Record{
		ID:        meta.ID,
		ProjectID: project,
		Title:     meta.Title,
		Type:      string(meta.Type),
		Excerpt:   &excerpt,
		Level:     meta.Level,
	}
	s.forgetIndexed(project, meta.ID)
	go func() {
		if err := s.index.IndexDocuments([]Record{rec}); err != nil {
			s.logger.Warn("index document failed", zap.String("document_id", rec.ID), zap.Error(err))
		}
	}()
}

// DeleteDocument removes a document from the index (fire-and-forget).
func (s *Service) DeleteDocument(id string) {
	if !s.indexReady() {
		return
	}
	s.mu.Lock()
	for _, records := range s.indexed {
		delete(records, id)
	}
	s.mu.Unlock()
	go func() {
		if err := s.index.DeleteDocument(id); err != nil {
			s.logger.Warn("delete document from index failed", zap.String("document_id", id), zap.Error(err))
		}
	}()
}

// forgetIndexed makes the next tree push include id again.
func (s *Service) forgetIndexed(project, id string) {
	s.mu.Lock()
	delete(s.indexed[project], id)
	s.mu.Unlock()
}

// TreeRecords flattens a project tree into index records.
func TreeRecords(project string, nodes []docs.DocumentNode) []Record {
	var out []Record
	seen := map[string]bool{}
	var walk func(level []docs.DocumentNode)
	walk = func(level []docs.DocumentNode) {
		for _, node := range level {
			if seen[node.ID] {
				continue
			}
			seen[node.ID] = true
			if !docs.IsTaskID(node.ID) && node.Type != docs.TypeTask {
				out = append(out, Record{
					ID:        node.ID,
					ProjectID: project,
					Title:     node.Title,
					Type:      string(node.Type),
					Level:     node.Level,
				})
			}
			walk(node.Children)
		}
	}
	walk(nodes)
	return out
}

// Excerpt trims content to at most limit runes on a word boundary where possible.
func Excerpt(content string, limit int) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, " \n\t"); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func docsType(s string) docs.DocumentType {
	return docs.DocumentType(s)
}
