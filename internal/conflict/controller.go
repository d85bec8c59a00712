package conflict

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docconsole/internal/backend"
	"docconsole/internal/docs"
	"docconsole/internal/metacache"

	"go.uber.org/zap"
)

type Options struct {
	// MaxReopen bounds how many times Resolve re-opens a conflict that raced again.
	MaxReopen int
	Logger    *zap.Logger
	Now       func() time.Time
}

// Controller serialises saves per document and drives the conflict lifecycle.
type Controller struct {
	backend   Backend
	store     Store
	titles    metacache.Titles
	maxReopen int
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	states   map[string]State
	inflight map[string]bool
}

func NewController(b Backend, store Store, titles metacache.Titles, opts Options) *Controller {
	if opts.MaxReopen <= 0 {
		opts.MaxReopen = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Controller{
		backend:   b,
		store:     store,
		titles:    titles,
		maxReopen: opts.MaxReopen,
		logger:    opts.Logger,
		now:       opts.Now,
		states:    make(map[string]State),
		inflight:  make(map[string]bool),
	}
}

func docKey(project, docID string) string {
	return project + "/" + docID
}

// State reports the editing state of a document; unknown documents are clean.
func (c *Controller) State(project, docID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.states[docKey(project, docID)]; ok {
		return state
	}
	return StateClean
}

// BeginEdit marks a clean document as being edited.
func (c *Controller) BeginEdit(project, docID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := docKey(project, docID)
	state, ok := c.states[key]
	if !ok || state == StateClean {
		c.states[key] = StateEditing
		return StateEditing
	}
	return state
}

// Reset drops local state for a document, e.g. after it was deleted on the server.
func (c *Controller) Reset(project, docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, docKey(project, docID))
}

// acquire claims the document for one save or resolve and reports the state it
// was in before.
func (c *Controller) acquire(key string, state State) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.states[key]
	if !ok {
		prev = StateClean
	}
	if c.inflight[key] {
		return prev, false
	}
	c.inflight[key] = true
	c.states[key] = state
	return prev, true
}

func (c *Controller) release(key string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
	c.states[key] = state
}

type SaveResult struct {
	Version   int       `json:"version"`
	Title     string    `json:"title,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Save writes content at knownVersion. On success the document is re-read for its
// authoritative version and title. A version mismatch is never retried: it returns
// a *ConflictSignal carrying the server's current version.
func (c *Controller) Save(ctx context.Context, project, docID, content string, knownVersion int) (SaveResult, error) {
	key := docKey(project, docID)
	if _, ok := c.acquire(key, StateSaving); !ok {
		return SaveResult{}, ErrSaveInFlight
	}

	written, err := c.backend.UpdateContent(ctx, project, docID, content, knownVersion)
	if err != nil {
		if errors.Is(err, backend.ErrVersionMismatch) {
			signal := &ConflictSignal{ProjectID: project, DocumentID: docID, BaseVersion: knownVersion}
			current, readErr := c.backend.GetContent(ctx, project, docID)
			if readErr != nil {
				c.logger.Warn("read after version mismatch failed",
					zap.String("document_id", docID), zap.Error(readErr))
			} else {
				signal.ServerVersion = current.Version
			}
			c.release(key, StateConflicted)
			return SaveResult{}, signal
		}
		if errors.Is(err, backend.ErrNotFound) {
			c.release(key, StateClean)
			return SaveResult{}, err
		}
		c.release(key, StateEditing)
		return SaveResult{}, err
	}

	result := SaveResult{Version: written}
	fresh, err := c.backend.GetContent(ctx, project, docID)
	if err != nil {
		c.logger.Warn("read after save failed, using written version",
			zap.String("document_id", docID), zap.Int("version", written), zap.Error(err))
	} else {
		result.Version = fresh.Version
		if fresh.Meta != nil {
			result.Title = fresh.Meta.Title
			result.UpdatedAt = fresh.Meta.UpdatedAt
			if c.titles != nil {
				if err := c.titles.Reconcile(ctx, project, map[string]string{docID: fresh.Meta.Title}); err != nil {
					c.logger.Warn("reconcile title failed", zap.String("document_id", docID), zap.Error(err))
				}
			}
		}
	}
	c.release(key, StateClean)
	return result, nil
}

// OpenConflict materialises the three-way record for a failed save. When the
// history no longer holds baseVersion, current doubles as base.
func (c *Controller) OpenConflict(ctx context.Context, project, docID string, baseVersion int, incoming string) (Item, error) {
	current, err := c.backend.GetContent(ctx, project, docID)
	if err != nil {
		return Item{}, fmt.Errorf("read current content: %w", err)
	}

	item := Item{
		ID:        ItemID(docID, baseVersion, current.Version),
		ProjectID: project,
		NodeID:    docID,
		Title:     c.resolveTitle(ctx, project, docID, current),
		Status:    StatusUnresolved,
		Data: Data{
			BaseVersion:   baseVersion,
			ServerVersion: current.Version,
			ConflictContent: Content{
				Current:  current.Content,
				Incoming: incoming,
			},
		},
		CreatedAt: c.now().UTC(),
	}

	base, err := c.backend.GetVersionContent(ctx, project, docID, baseVersion)
	if err != nil {
		c.logger.Info("base version unavailable, falling back to two-way diff",
			zap.String("document_id", docID), zap.Int("base_version", baseVersion), zap.Error(err))
		base = current.Content
		item.BaseDegraded = true
	}
	item.Data.ConflictContent.Base = base

	if err := c.store.SaveConflict(ctx, item); err != nil {
		return Item{}, fmt.Errorf("save conflict: %w", err)
	}
	c.setState(project, docID, StateConflicted)
	return item, nil
}

// resolveTitle prefers the shared title cache over the server's metadata.
func (c *Controller) resolveTitle(ctx context.Context, project, docID string, current docs.VersionedContent) string {
	if c.titles != nil {
		if titles, err := c.titles.Lookup(ctx, project); err == nil {
			if title := titles[docID]; !docs.IsPlaceholderTitle(title) {
				return title
			}
		}
	}
	if current.Meta != nil && !docs.IsPlaceholderTitle(current.Meta.Title) {
		return current.Meta.Title
	}
	return docID
}

func (c *Controller) setState(project, docID string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[docKey(project, docID)] = state
}

type ResolveResult struct {
	Item    Item `json:"item"`
	Version int  `json:"version"`
}

// Resolve persists merged at the server version recorded on the conflict. If the
// document moved on again, the conflict is re-opened against the new server
// version, keeping its base and incoming panes, and a *ReconflictError is
// returned. Once MaxReopen re-opens are used up the conflict is still refreshed
// to the current server version, but a *ReopenLimitError is returned so the user
// reviews the new current pane before trying again.
func (c *Controller) Resolve(ctx context.Context, conflictID, merged string) (ResolveResult, error) {
	item, err := c.store.GetConflict(ctx, conflictID)
	if err != nil {
		return ResolveResult{}, err
	}
	if item.Status == StatusResolved {
		return ResolveResult{}, ErrAlreadyResolved
	}

	key := docKey(item.ProjectID, item.NodeID)
	prev, ok := c.acquire(key, StateResolving)
	if !ok {
		return ResolveResult{}, ErrSaveInFlight
	}
	// Another resolve may have finished between the read above and acquire.
	item, err = c.store.GetConflict(ctx, conflictID)
	if err != nil {
		c.release(key, prev)
		return ResolveResult{}, err
	}
	if item.Status == StatusResolved {
		c.release(key, prev)
		return ResolveResult{}, ErrAlreadyResolved
	}

	version, err := c.backend.UpdateContent(ctx, item.ProjectID, item.NodeID, merged, item.Data.ServerVersion)
	if err != nil {
		if !errors.Is(err, backend.ErrVersionMismatch) {
			c.release(key, StateConflicted)
			return ResolveResult{}, err
		}
		limited := item.Attempts >= c.maxReopen
		attempts := item.Attempts + 1
		if limited {
			attempts = item.Attempts
		}
		reopened, reopenErr := c.reopen(ctx, item, attempts)
		c.release(key, StateConflicted)
		if reopenErr != nil {
			return ResolveResult{}, reopenErr
		}
		if limited {
			c.logger.Warn("conflict re-open limit reached",
				zap.String("conflict_id", item.ID), zap.String("refreshed_id", reopened.ID), zap.Int("attempts", item.Attempts))
			return ResolveResult{}, &ReopenLimitError{Previous: item.ID, Item: reopened}
		}
		return ResolveResult{}, &ReconflictError{Previous: item.ID, Item: reopened}
	}

	resolvedAt := c.now().UTC()
	item.Status = StatusResolved
	item.ResolvedAt = &resolvedAt
	if err := c.store.SaveConflict(ctx, item); err != nil {
		c.logger.Error("mark conflict resolved failed", zap.String("conflict_id", item.ID), zap.Error(err))
	}
	c.release(key, StateClean)
	return ResolveResult{Item: item, Version: version}, nil
}

// reopen re-reads current only; the base pane is the one fetched at first open.
func (c *Controller) reopen(ctx context.Context, item Item, attempts int) (Item, error) {
	current, err := c.backend.GetContent(ctx, item.ProjectID, item.NodeID)
	if err != nil {
		return Item{}, fmt.Errorf("read current content: %w", err)
	}
	next := item
	next.ID = ItemID(item.NodeID, item.Data.BaseVersion, current.Version)
	next.Data.ServerVersion = current.Version
	next.Data.ConflictContent.Current = current.Content
	next.Attempts = attempts
	next.CreatedAt = c.now().UTC()

	if err := c.store.SaveConflict(ctx, next); err != nil {
		return Item{}, fmt.Errorf("save conflict: %w", err)
	}
	if next.ID != item.ID {
		if err := c.store.DeleteConflict(ctx, item.ID); err != nil {
			c.logger.Warn("delete superseded conflict failed", zap.String("conflict_id", item.ID), zap.Error(err))
		}
	}
	return next, nil
}

func (c *Controller) Get(ctx context.Context, conflictID string) (Item, error) {
	return c.store.GetConflict(ctx, conflictID)
}

// Open lists the unresolved conflicts of a project.
func (c *Controller) Open(ctx context.Context, project string) ([]Item, error) {
	return c.store.ListConflicts(ctx, project, StatusUnresolved)
}
