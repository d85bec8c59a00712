// Package search finds documents of a project, preferring a Meilisearch index and
// falling back to the document server's own search.
package search

import (
	"context"
	"errors"

	"docconsole/internal/docs"
)

var ErrEmptyQuery = errors.New("search query is empty")

type Source string

const (
	SourceIndex  Source = "index"
	SourceServer Source = "server"
)

// Result is a single search hit returned to the caller.
type Result struct {
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title"`
	Snippet    string            `json:"snippet"`
	Type       docs.DocumentType `json:"type,omitempty"`
	Score      float64           `json:"score"`
}

type Query struct {
	ProjectID     string
	Text          string
	DocumentTypes []docs.DocumentType
	Limit         int
	ContextChars  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Count   int      `json:"count"`
	Query   string   `json:"query"`
	Source  Source   `json:"source"`
}

// Record is what the index holds for one document. Records are written as
// partial updates: a nil Excerpt leaves the stored excerpt untouched.
type Record struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectId"`
	Title     string  `json:"title"`
	Type      string  `json:"type"`
	Excerpt   *string `json:"excerpt,omitempty"`
	Level     int     `json:"level"`
}

// Index is the document index searched before the server. *Meili implements it.
type Index interface {
	Healthy() bool
	Search(q Query) ([]Result, error)
	IndexDocuments(records []Record) error
	DeleteDocument(id string) error
}

// Fallback is the document server's search endpoint.
type Fallback interface {
	Search(ctx context.Context, project string, req docs.SearchRequest) ([]docs.SearchHit, error)
}
