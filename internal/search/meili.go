package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxDocuments = "docconsole_documents"

// Meili searches and indexes project documents in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. An unreachable
// server is not an error: the health loop picks it up once it comes back.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxDocuments,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxDocuments), zap.Error(err))
	}

	index := m.client.Index(idxDocuments)
	filterable := []interface{}{"projectId", "type"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes failed", zap.String("index", idxDocuments), zap.Error(err))
	}
	searchable := []string{"title", "excerpt"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes failed", zap.String("index", idxDocuments), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	crop := int64(q.ContextChars / 5)
	if crop <= 0 {
		crop = 20
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxDocuments,
			Query:                 q.Text,
			Limit:                 limit,
			Filter:                filters(q),
			AttributesToHighlight: []string{"title", "excerpt"},
			AttributesToCrop:      []string{"excerpt"},
			CropLength:            crop,
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, nil
}

// filters scopes a query to one project and, optionally, some document types.
func filters(q Query) []string {
	out := []string{fmt.Sprintf("projectId = %q", q.ProjectID)}
	if len(q.DocumentTypes) > 0 {
		quoted := make([]string, len(q.DocumentTypes))
		for i, t := range q.DocumentTypes {
			quoted[i] = fmt.Sprintf("%q", string(t))
		}
		out = append(out, fmt.Sprintf("type IN [%s]", strings.Join(quoted, ", ")))
	}
	return out
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		DocumentID: decodeString(hit, "id"),
		Title:      firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet:    firstNonBlank(decodeFormattedString(hit, "excerpt"), decodeString(hit, "excerpt")),
	}
	r.Type = docsType(decodeString(hit, "type"))
	if raw, ok := hit["_rankingScore"]; ok {
		_ = json.Unmarshal(raw, &r.Score)
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexDocuments upserts records field by field, keeping fields a record omits.
func (m *Meili) IndexDocuments(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDocuments).UpdateDocuments(records, nil)
	return err
}

func (m *Meili) DeleteDocument(id string) error {
	_, err := m.client.Index(idxDocuments).DeleteDocument(id, nil)
	return err
}
