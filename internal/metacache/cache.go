// Package metacache holds the per-project title overrides and graph node metadata
// shared by every view of a project. Writers merge: a known real title is never
// replaced by a placeholder or by a cheaper rebuild.
package metacache

import (
	"context"
	"sync"

	"docconsole/internal/docs"
)

// NodeMeta is the resolved display metadata of a graph node.
type NodeMeta struct {
	Label        string            `json:"label"`
	Category     string            `json:"category"`
	DocumentType docs.DocumentType `json:"document_type"`
}

type Titles interface {
	// Lookup returns all cached titles of a project.
	Lookup(ctx context.Context, project string) (map[string]string, error)
	// Merge stores titles for ids whose cached title is absent or a placeholder.
	// Placeholder values are ignored.
	Merge(ctx context.Context, project string, titles map[string]string) error
	// Put records a user rename. A placeholder title clears the entry.
	Put(ctx context.Context, project, id, title string) error
	// Reconcile applies titles read from the server; real titles win over cached ones.
	Reconcile(ctx context.Context, project string, titles map[string]string) error
}

type Meta interface {
	GetMeta(ctx context.Context, project string, ids []string) (map[string]NodeMeta, error)
	PutMeta(ctx context.Context, project string, metas map[string]NodeMeta) error
}

// Cache is the combined title and metadata cache.
type Cache interface {
	Titles
	Meta
}

// Memory is an in-process Cache.
type Memory struct {
	mu     sync.RWMutex
	titles map[string]map[string]string
	metas  map[string]map[string]NodeMeta
}

func NewMemory() *Memory {
	return &Memory{
		titles: make(map[string]map[string]string),
		metas:  make(map[string]map[string]NodeMeta),
	}
}

func (m *Memory) Lookup(_ context.Context, project string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.titles[project]))
	for id, title := range m.titles[project] {
		out[id] = title
	}
	return out, nil
}

func (m *Memory) Merge(_ context.Context, project string, titles map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.projectTitles(project)
	for id, title := range titles {
		if docs.IsPlaceholderTitle(title) {
			continue
		}
		if existing, ok := current[id]; ok && !docs.IsPlaceholderTitle(existing) {
			continue
		}
		current[id] = title
	}
	return nil
}

func (m *Memory) Put(_ context.Context, project, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.projectTitles(project)
	if docs.IsPlaceholderTitle(title) {
		delete(current, id)
		return nil
	}
	current[id] = title
	return nil
}

func (m *Memory) Reconcile(_ context.Context, project string, titles map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.projectTitles(project)
	for id, title := range titles {
		if !docs.IsPlaceholderTitle(title) {
			current[id] = title
		}
	}
	return nil
}

func (m *Memory) GetMeta(_ context.Context, project string, ids []string) (map[string]NodeMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]NodeMeta)
	for _, id := range ids {
		if meta, ok := m.metas[project][id]; ok {
			out[id] = meta
		}
	}
	return out, nil
}

func (m *Memory) PutMeta(_ context.Context, project string, metas map[string]NodeMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.metas[project]
	if !ok {
		current = make(map[string]NodeMeta)
		m.metas[project] = current
	}
	for id, meta := range metas {
		current[id] = meta
	}
	return nil
}

func (m *Memory) projectTitles(project string) map[string]string {
	current, ok := m.titles[project]
	if !ok {
		current = make(map[string]string)
		m.titles[project] = current
	}
	return current
}
