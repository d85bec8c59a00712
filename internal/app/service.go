package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"docconsole/internal/backend"
	"docconsole/internal/config"
	"docconsole/internal/conflict"
	"docconsole/internal/docs"
	"docconsole/internal/impact"
	"docconsole/internal/loader"
	"docconsole/internal/metacache"
	"docconsole/internal/metrics"
	"docconsole/internal/move"
	"docconsole/internal/refs"
	"docconsole/internal/relgraph"
	"docconsole/internal/search"
	"docconsole/internal/tree"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DocumentServer is the document server API the console drives.
type DocumentServer interface {
	Ping(ctx context.Context) error
	FetchTree(ctx context.Context, project string, depth int) ([]docs.RawNode, error)
	GetContent(ctx context.Context, project, docID string) (docs.VersionedContent, error)
	UpdateContent(ctx context.Context, project, docID, content string, version int) (int, error)
	ListVersions(ctx context.Context, project, docID string, limit int) ([]docs.VersionInfo, error)
	GetVersionContent(ctx context.Context, project, docID string, version int) (string, error)
	GetDocumentMeta(ctx context.Context, project, docID string) (docs.DocMeta, error)
	CreateNode(ctx context.Context, project string, req docs.CreateNodeRequest) (docs.DocMeta, error)
	MoveNode(ctx context.Context, project, nodeID string, req docs.MoveNodeRequest) error
	UpdateNode(ctx context.Context, project, nodeID string, req docs.UpdateNodeRequest) (docs.DocMeta, error)
	DeleteNode(ctx context.Context, project, nodeID string, cascade bool) error
	CreateRelationship(ctx context.Context, project string, req docs.CreateRelationshipRequest) (docs.Relationship, error)
	ListRelationships(ctx context.Context, project, nodeID string) ([]docs.Relationship, error)
	DeleteRelationship(ctx context.Context, project, fromID, toID string) error
	CreateReference(ctx context.Context, project string, req docs.CreateReferenceRequest) (docs.Reference, error)
	ListDocumentReferences(ctx context.Context, project, docID string) ([]docs.Reference, error)
	ListTaskReferences(ctx context.Context, project, taskID string) ([]docs.Reference, error)
	DeleteReference(ctx context.Context, project, refID string) error
	AnalyzeImpact(ctx context.Context, project, docID string, modes []docs.AnalysisMode) (docs.ImpactResponse, error)
	Search(ctx context.Context, project string, req docs.SearchRequest) ([]docs.SearchHit, error)
	CreateTag(ctx context.Context, target docs.TagTarget, name string) (docs.Tag, error)
	ListTags(ctx context.Context, target docs.TagTarget) ([]docs.Tag, error)
	SwitchTag(ctx context.Context, target docs.TagTarget, name string, force bool) (docs.TagSwitch, error)
	DeleteTag(ctx context.Context, target docs.TagTarget, name string) error
}

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Service. Only Server is required.
type Deps struct {
	Server    DocumentServer
	Cache     metacache.Cache
	Conflicts conflict.Store
	Search    *search.Service
	Metrics   *metrics.Collector
	Logger    *zap.Logger
	// Checks are reported by the readiness endpoint, keyed by name.
	Checks map[string]Pinger
}

type Service struct {
	cfg       config.Config
	server    DocumentServer
	cache     metacache.Cache
	conflicts *conflict.Controller
	graph     *relgraph.Builder
	refs      *refs.Manager
	search    *search.Service
	metrics   *metrics.Collector
	logger    *zap.Logger
	checks    map[string]Pinger

	deduper *loader.Deduper
	guard   *loader.Guard

	mu      sync.RWMutex
	indexes map[string]*tree.Index
}

func NewService(cfg config.Config, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = metacache.NewMemory()
	}
	if deps.Search == nil {
		deps.Search = search.NewService(nil, deps.Server, deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector("docconsole")
	}
	checks := map[string]Pinger{"document_server": deps.Server}
	for name, check := range deps.Checks {
		checks[name] = check
	}
	return &Service{
		cfg:    cfg,
		server: deps.Server,
		cache:  deps.Cache,
		conflicts: conflict.NewController(deps.Server, deps.Conflicts, deps.Cache, conflict.Options{
			MaxReopen: cfg.MaxReopen,
			Logger:    deps.Logger.Named("conflict"),
		}),
		graph: relgraph.NewBuilder(deps.Server, deps.Cache, relgraph.Options{
			Concurrency: cfg.FetchConcurrency,
			Logger:      deps.Logger.Named("relgraph"),
		}),
		refs:    refs.NewManager(deps.Server),
		search:  deps.Search,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		checks:  checks,
		deduper: loader.NewDeduper(cfg.DedupeWindow, cfg.BackendTimeout),
		guard:   loader.NewGuard(),
		indexes: make(map[string]*tree.Index),
	}
}

// Ready pings every dependency and reports failures by name.
func (s *Service) Ready(ctx context.Context) map[string]error {
	out := make(map[string]error, len(s.checks))
	for name, check := range s.checks {
		out[name] = check.Ping(ctx)
	}
	return out
}

// TreeView is the display tree of a project with cached titles applied.
type TreeView struct {
	Tree     []docs.DocumentNode `json:"tree"`
	Rows     []tree.Row          `json:"rows"`
	Expanded []string            `json:"expanded"`
	// Untitled lists documents still showing a placeholder title.
	Untitled []string `json:"untitled"`
	Degraded bool     `json:"degraded,omitempty"`
}

func treeKey(project string) string {
	return project + ":tree"
}

// Tree loads the project tree. Overlapping or repeated loads within the de-dup
// window share one fetch. A forbidden or unavailable server yields an empty,
// degraded view.
func (s *Service) Tree(ctx context.Context, project string) (TreeView, error) {
	token := s.guard.Begin(treeKey(project))
	value, shared, err := s.deduper.Do(ctx, treeKey(project), func(ctx context.Context) (any, error) {
		raw, err := s.server.FetchTree(ctx, project, s.cfg.TreeDepth)
		if err != nil {
			return nil, err
		}
		return tree.Build(raw), nil
	})
	s.metrics.Dedup(shared)
	if err != nil {
		if backend.Degradable(err) {
			s.logger.Warn("tree load degraded", zap.String("project_id", project), zap.Error(err))
			return TreeView{Tree: []docs.DocumentNode{}, Rows: []tree.Row{}, Expanded: []string{}, Untitled: []string{}, Degraded: true}, nil
		}
		return TreeView{}, err
	}
	nodes := value.([]docs.DocumentNode)

	if err := s.cache.Reconcile(ctx, project, tree.Titles(nodes)); err != nil {
		s.logger.Warn("reconcile titles failed", zap.String("project_id", project), zap.Error(err))
	}
	cached, err := s.cache.Lookup(ctx, project)
	if err != nil {
		s.logger.Warn("lookup titles failed", zap.String("project_id", project), zap.Error(err))
	}
	if cached == nil {
		cached = map[string]string{}
	}
	if !shared {
		for id, title := range s.resolvePlaceholderTitles(ctx, project, tree.CollectPlaceholderIDs(nodes, cached)) {
			if docs.IsPlaceholderTitle(cached[id]) {
				cached[id] = title
			}
		}
	}
	display := tree.ApplyTitleOverrides(nodes, cached)

	s.guard.Apply(token, func() {
		s.mu.Lock()
		s.indexes[project] = tree.NewIndex(display)
		s.mu.Unlock()
	})
	if !shared {
		s.search.IndexTree(project, display)
	}

	view := TreeView{
		Tree:     display,
		Rows:     tree.Flatten(display, tree.FlattenOptions{}),
		Expanded: tree.DefaultExpanded(display, s.cfg.ExpandLevel),
		Untitled: tree.CollectPlaceholderIDs(display, cached),
	}
	if view.Tree == nil {
		view.Tree = []docs.DocumentNode{}
	}
	if view.Rows == nil {
		view.Rows = []tree.Row{}
	}
	if view.Expanded == nil {
		view.Expanded = []string{}
	}
	if view.Untitled == nil {
		view.Untitled = []string{}
	}
	return view, nil
}

// resolvePlaceholderTitles reads the metadata of each placeholder document and
// merges the real titles it finds into the title cache. Failed reads are skipped.
func (s *Service) resolvePlaceholderTitles(ctx context.Context, project string, ids []string) map[string]string {
	found := make(map[string]string)
	if len(ids) == 0 {
		return found
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.FetchConcurrency))
	for _, id := range ids {
		if docs.IsTaskID(id) {
			continue
		}
		g.Go(func() error {
			meta, err := s.server.GetDocumentMeta(gctx, project, id)
			if err != nil {
				s.logger.Debug("placeholder title lookup failed", zap.String("document_id", id), zap.Error(err))
				return nil
			}
			if docs.IsPlaceholderTitle(meta.Title) {
				return nil
			}
			mu.Lock()
			found[id] = meta.Title
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(found) > 0 {
		if err := s.cache.Merge(ctx, project, found); err != nil {
			s.logger.Warn("merge resolved titles failed", zap.String("project_id", project), zap.Error(err))
		}
	}
	return found
}

// refreshTree re-reads the tree after a structural write.
func (s *Service) refreshTree(ctx context.Context, project string) (TreeView, error) {
	s.deduper.Forget(treeKey(project))
	return s.Tree(ctx, project)
}

// index returns the last loaded tree index of a project, loading it when absent.
func (s *Service) index(ctx context.Context, project string) *tree.Index {
	s.mu.RLock()
	idx := s.indexes[project]
	s.mu.RUnlock()
	if idx != nil {
		return idx
	}
	view, err := s.Tree(ctx, project)
	if err != nil {
		return tree.NewIndex(nil)
	}
	return tree.NewIndex(view.Tree)
}

type NodeView struct {
	Node docs.DocMeta `json:"node"`
	Tree TreeView     `json:"tree"`
}

func (s *Service) CreateNode(ctx context.Context, project string, req docs.CreateNodeRequest) (NodeView, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := docs.Validate(req); err != nil {
		return NodeView{}, err
	}
	node, err := s.server.CreateNode(ctx, project, req)
	if err != nil {
		return NodeView{}, err
	}
	if err := s.cache.Put(ctx, project, node.ID, node.Title); err != nil {
		s.logger.Warn("cache new node title failed", zap.String("document_id", node.ID), zap.Error(err))
	}
	view, err := s.refreshTree(ctx, project)
	if err != nil {
		return NodeView{}, err
	}
	return NodeView{Node: node, Tree: view}, nil
}

// UpdateNode renames or retypes a node. A rename is written to the title cache
// before the server call and rolled back if the server refuses it.
func (s *Service) UpdateNode(ctx context.Context, project, nodeID string, req docs.UpdateNodeRequest) (NodeView, error) {
	if req.Title == nil && req.Type == nil {
		return NodeView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title or type is required", nil)
	}
	if req.Type != nil && !req.Type.Valid() {
		return NodeView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown document type %q", *req.Type), map[string]string{"field": "type"})
	}

	var previous string
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		req.Title = &title
		cached, _ := s.cache.Lookup(ctx, project)
		previous = cached[nodeID]
		if err := s.cache.Put(ctx, project, nodeID, title); err != nil {
			s.logger.Warn("optimistic title write failed", zap.String("document_id", nodeID), zap.Error(err))
		}
	}

	node, err := s.server.UpdateNode(ctx, project, nodeID, req)
	if err != nil {
		if req.Title != nil {
			if rollbackErr := s.cache.Put(ctx, project, nodeID, previous); rollbackErr != nil {
				s.logger.Warn("title rollback failed", zap.String("document_id", nodeID), zap.Error(rollbackErr))
			}
		}
		return NodeView{}, err
	}
	view, err := s.refreshTree(ctx, project)
	if err != nil {
		return NodeView{}, err
	}
	return NodeView{Node: node, Tree: view}, nil
}

type MoveView struct {
	Plan move.Result `json:"plan"`
	Tree TreeView    `json:"tree"`
}

// MoveNode plans a drop against the current tree and submits it. A drop that
// leaves the node where it is makes no server call.
func (s *Service) MoveNode(ctx context.Context, project, nodeID, targetID string, pos move.Position) (MoveView, error) {
	current, err := s.Tree(ctx, project)
	if err != nil {
		return MoveView{}, err
	}
	plan, err := move.Plan(current.Tree, nodeID, targetID, pos)
	if err != nil {
		s.metrics.MovesPlanned.WithLabelValues("rejected").Inc()
		return MoveView{}, err
	}
	if plan.NoOp {
		s.metrics.MovesPlanned.WithLabelValues("noop").Inc()
		return MoveView{Plan: plan, Tree: current}, nil
	}
	if err := s.server.MoveNode(ctx, project, nodeID, plan.Request()); err != nil {
		return MoveView{}, err
	}
	s.metrics.MovesPlanned.WithLabelValues("moved").Inc()
	view, err := s.refreshTree(ctx, project)
	if err != nil {
		return MoveView{}, err
	}
	return MoveView{Plan: plan, Tree: view}, nil
}

func (s *Service) DeleteNode(ctx context.Context, project, nodeID string, cascade bool) (TreeView, error) {
	if err := s.server.DeleteNode(ctx, project, nodeID, cascade); err != nil {
		return TreeView{}, err
	}
	s.conflicts.Reset(project, nodeID)
	s.search.DeleteDocument(nodeID)
	s.deduper.Forget(contentKey(project, nodeID))
	s.deduper.ForgetPrefix(relationshipsPrefix(project))
	return s.refreshTree(ctx, project)
}

type ContentView struct {
	docs.VersionedContent
	State conflict.State `json:"state"`
}

func contentKey(project, docID string) string {
	return project + ":content:" + docID
}

// Content reads a document and marks it as being edited. Repeated reads within the
// de-dup window share one fetch.
func (s *Service) Content(ctx context.Context, project, docID string) (ContentView, error) {
	value, shared, err := s.deduper.Do(ctx, contentKey(project, docID), func(ctx context.Context) (any, error) {
		return s.server.GetContent(ctx, project, docID)
	})
	s.metrics.Dedup(shared)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			s.conflicts.Reset(project, docID)
		}
		return ContentView{}, err
	}
	content := value.(docs.VersionedContent)
	return ContentView{VersionedContent: content, State: s.conflicts.BeginEdit(project, docID)}, nil
}

// SaveContent writes content at version. A lost race opens a conflict and is
// reported as VERSION_MISMATCH with the conflict item; a deleted document is
// reported as NOT_FOUND with a reset hint.
func (s *Service) SaveContent(ctx context.Context, project, docID, content string, version int) (conflict.SaveResult, error) {
	result, err := s.conflicts.Save(ctx, project, docID, content, version)
	s.deduper.Forget(contentKey(project, docID))
	if err == nil {
		meta := docs.DocMeta{ID: docID, Title: result.Title, Version: result.Version}
		if idx := s.cachedIndex(project); idx != nil {
			if node, ok := idx.Node(docID); ok {
				meta.Type = node.Type
				meta.Level = node.Level
			}
		}
		s.search.IndexContent(project, meta, content)
		return result, nil
	}

	var signal *conflict.ConflictSignal
	if !errors.As(err, &signal) {
		return conflict.SaveResult{}, err
	}
	item, openErr := s.conflicts.OpenConflict(ctx, project, docID, signal.BaseVersion, content)
	if openErr != nil {
		s.logger.Error("open conflict failed", zap.String("document_id", docID), zap.Error(openErr))
		return conflict.SaveResult{}, domainError(http.StatusConflict, "VERSION_MISMATCH", "Document changed on the server",
			map[string]any{"server_version": signal.ServerVersion})
	}
	s.metrics.ConflictsOpened.Inc()
	return conflict.SaveResult{}, domainError(http.StatusConflict, "VERSION_MISMATCH", "Document changed on the server",
		map[string]any{"conflict": item})
}

func (s *Service) cachedIndex(project string) *tree.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[project]
}

type VersionsView struct {
	Versions []docs.VersionInfo `json:"versions"`
	Total    int                `json:"total"`
}

func (s *Service) Versions(ctx context.Context, project, docID string, limit int) (VersionsView, error) {
	versions, err := s.server.ListVersions(ctx, project, docID, limit)
	if err != nil {
		return VersionsView{}, err
	}
	if versions == nil {
		versions = []docs.VersionInfo{}
	}
	return VersionsView{Versions: versions, Total: len(versions)}, nil
}

func (s *Service) VersionContent(ctx context.Context, project, docID string, version int) (string, error) {
	return s.server.GetVersionContent(ctx, project, docID, version)
}

type DiffView struct {
	From  int                 `json:"from"`
	To    int                 `json:"to"`
	Lines []conflict.DiffLine `json:"lines"`
	Stats conflict.LineStats  `json:"stats"`
}

// Diff compares two stored versions line by line. to=0 compares against the
// current content.
func (s *Service) Diff(ctx context.Context, project, docID string, from, to int) (DiffView, error) {
	fromContent, err := s.server.GetVersionContent(ctx, project, docID, from)
	if err != nil {
		return DiffView{}, fmt.Errorf("read version %d: %w", from, err)
	}
	var toContent string
	if to == 0 {
		current, err := s.server.GetContent(ctx, project, docID)
		if err != nil {
			return DiffView{}, fmt.Errorf("read current content: %w", err)
		}
		toContent, to = current.Content, current.Version
	} else if toContent, err = s.server.GetVersionContent(ctx, project, docID, to); err != nil {
		return DiffView{}, fmt.Errorf("read version %d: %w", to, err)
	}
	lines, stats := conflict.LineDiff(fromContent, toContent)
	if lines == nil {
		lines = []conflict.DiffLine{}
	}
	return DiffView{From: from, To: to, Lines: lines, Stats: stats}, nil
}

func (s *Service) Conflicts(ctx context.Context, project string) ([]conflict.Item, error) {
	return s.conflicts.Open(ctx, project)
}

func (s *Service) Conflict(ctx context.Context, project, id string) (conflict.Item, error) {
	item, err := s.conflicts.Get(ctx, id)
	if err != nil {
		return conflict.Item{}, err
	}
	if item.ProjectID != project {
		return conflict.Item{}, conflict.ErrNotFound
	}
	return item, nil
}

// ResolveConflict merges the conflict's panes with strategy and persists the
// result. A document that moved again re-opens the conflict, reported as
// RECONFLICT with the new item.
func (s *Service) ResolveConflict(ctx context.Context, project, id string, strategy conflict.Strategy, manual string) (conflict.ResolveResult, error) {
	item, err := s.Conflict(ctx, project, id)
	if err != nil {
		return conflict.ResolveResult{}, err
	}
	merged, err := conflict.MergeContent(strategy, item.Data.ConflictContent, manual)
	if err != nil {
		return conflict.ResolveResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]string{"field": "strategy"})
	}

	result, err := s.conflicts.Resolve(ctx, id, merged)
	s.deduper.Forget(contentKey(project, item.NodeID))
	var reconflict *conflict.ReconflictError
	var limited *conflict.ReopenLimitError
	switch {
	case err == nil:
		s.metrics.ConflictsResolved.WithLabelValues("resolved").Inc()
		return result, nil
	case errors.As(err, &reconflict):
		s.metrics.ConflictsResolved.WithLabelValues("reopened").Inc()
		return conflict.ResolveResult{}, domainError(http.StatusConflict, "RECONFLICT", "Document changed again while resolving",
			map[string]any{"conflict": reconflict.Item, "previous_id": reconflict.Previous})
	case errors.As(err, &limited):
		s.metrics.ConflictsResolved.WithLabelValues("limit").Inc()
		return conflict.ResolveResult{}, domainError(http.StatusConflict, "REOPEN_LIMIT", "Document keeps changing; review the refreshed conflict and merge again",
			map[string]any{"conflict": limited.Item, "previous_id": limited.Previous})
	default:
		return conflict.ResolveResult{}, err
	}
}

type RelationshipsView struct {
	Graph    relgraph.Graph `json:"graph"`
	Rows     []relgraph.Row `json:"rows"`
	Degraded bool           `json:"degraded,omitempty"`
}

func relationshipsPrefix(project string) string {
	return project + ":relationships:"
}

// Relationships loads the relationship graph around nodeID. Repeated loads within
// the de-dup window share one fetch.
func (s *Service) Relationships(ctx context.Context, project, nodeID string) (RelationshipsView, error) {
	value, shared, err := s.deduper.Do(ctx, relationshipsPrefix(project)+nodeID, func(ctx context.Context) (any, error) {
		return s.server.ListRelationships(ctx, project, nodeID)
	})
	s.metrics.Dedup(shared)
	if err != nil {
		if backend.Degradable(err) {
			s.logger.Warn("relationships load degraded", zap.String("project_id", project), zap.Error(err))
			return RelationshipsView{Graph: relgraph.Graph{Nodes: []relgraph.Node{}, Edges: []relgraph.Edge{}}, Rows: []relgraph.Row{}, Degraded: true}, nil
		}
		return RelationshipsView{}, err
	}
	rels := value.([]docs.Relationship)
	graph, err := s.graph.Hydrate(ctx, project, rels, s.index(ctx, project))
	if err != nil {
		return RelationshipsView{}, err
	}
	return RelationshipsView{Graph: graph, Rows: relgraph.Rows(rels, graph)}, nil
}

// CreateRelationship validates before any server call, then returns the refreshed
// relationships of the source document.
func (s *Service) CreateRelationship(ctx context.Context, project string, req docs.CreateRelationshipRequest) (RelationshipsView, error) {
	req.FromID = strings.TrimSpace(req.FromID)
	req.ToID = strings.TrimSpace(req.ToID)
	req.Description = strings.TrimSpace(req.Description)
	if err := relgraph.ValidateCreate(req); err != nil {
		return RelationshipsView{}, err
	}
	if _, err := s.server.CreateRelationship(ctx, project, req); err != nil {
		return RelationshipsView{}, err
	}
	s.deduper.ForgetPrefix(relationshipsPrefix(project))
	return s.Relationships(ctx, project, req.FromID)
}

func (s *Service) DeleteRelationship(ctx context.Context, project, fromID, toID string) error {
	if err := s.server.DeleteRelationship(ctx, project, fromID, toID); err != nil {
		return err
	}
	s.deduper.ForgetPrefix(relationshipsPrefix(project))
	return nil
}

func (s *Service) References(ctx context.Context, project string, scope refs.Scope) ([]docs.Reference, error) {
	list, err := s.refs.Load(ctx, project, scope)
	if err != nil && !errors.Is(err, refs.ErrNoScope) && backend.Degradable(err) {
		s.logger.Warn("references load degraded", zap.String("project_id", project), zap.Error(err))
		return []docs.Reference{}, nil
	}
	return list, err
}

func (s *Service) AddReference(ctx context.Context, project string, req docs.CreateReferenceRequest) ([]docs.Reference, error) {
	return s.refs.Add(ctx, project, req)
}

func (s *Service) RemoveReference(ctx context.Context, project, documentID, refID string) ([]docs.Reference, error) {
	return s.refs.Remove(ctx, project, documentID, refID)
}

type ImpactView struct {
	NodeID  string          `json:"node_id"`
	Results []impact.Result `json:"results"`
}

func (s *Service) Impact(ctx context.Context, project, docID string, modes []docs.AnalysisMode) (ImpactView, error) {
	raw, err := s.server.AnalyzeImpact(ctx, project, docID, modes)
	if err != nil {
		return ImpactView{}, err
	}
	titles := map[string]string{}
	idx := s.index(ctx, project)
	for _, id := range affectedIDs(raw) {
		if title, ok := idx.Title(id); ok && !docs.IsPlaceholderTitle(title) {
			titles[id] = title
		}
	}
	if cached, err := s.cache.Lookup(ctx, project); err == nil {
		for id, title := range cached {
			if _, ok := titles[id]; !ok {
				titles[id] = title
			}
		}
	}
	results := impact.Score(raw, titles, s.cfg.Impact)
	if results == nil {
		results = []impact.Result{}
	}
	return ImpactView{NodeID: docID, Results: results}, nil
}

func affectedIDs(raw docs.ImpactResponse) []string {
	var ids []string
	for _, group := range [][]string{raw.Children, raw.Parents, raw.References, raw.Dependencies} {
		ids = append(ids, group...)
	}
	return ids
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	return s.search.Search(ctx, q)
}

func (s *Service) CreateTag(ctx context.Context, target docs.TagTarget, name string) (docs.Tag, error) {
	req := docs.CreateTagRequest{TagName: strings.TrimSpace(name)}
	if err := docs.Validate(req); err != nil {
		return docs.Tag{}, err
	}
	return s.server.CreateTag(ctx, target, req.TagName)
}

func (s *Service) ListTags(ctx context.Context, target docs.TagTarget) ([]docs.Tag, error) {
	tags, err := s.server.ListTags(ctx, target)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []docs.Tag{}
	}
	return tags, nil
}

// SwitchTag restores a tag. When uncommitted content would be lost and force is
// not set, the switch is refused with NEEDS_CONFIRMATION.
func (s *Service) SwitchTag(ctx context.Context, target docs.TagTarget, name string, force bool) (docs.TagSwitch, error) {
	result, err := s.server.SwitchTag(ctx, target, name, force)
	if err != nil {
		return docs.TagSwitch{}, err
	}
	if result.NeedConfirm {
		return docs.TagSwitch{}, domainError(http.StatusConflict, "NEEDS_CONFIRMATION",
			"Current content is not saved in any tag; switch again with force to discard it", result)
	}
	return result, nil
}

func (s *Service) DeleteTag(ctx context.Context, target docs.TagTarget, name string) error {
	return s.server.DeleteTag(ctx, target, name)
}

type Section struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Workspace loads everything a console view needs in parallel. A failing section
// is reported in place and never fails the others.
func (s *Service) Workspace(ctx context.Context, project, documentID, taskID string) map[string]Section {
	tasks := []loader.Task{
		{Name: "tree", Run: func(ctx context.Context) (any, error) { return s.Tree(ctx, project) }},
		{Name: "conflicts", Run: func(ctx context.Context) (any, error) { return s.Conflicts(ctx, project) }},
	}
	if documentID != "" || taskID != "" {
		tasks = append(tasks, loader.Task{Name: "references", Run: func(ctx context.Context) (any, error) {
			return s.References(ctx, project, refs.Scope{DocumentID: documentID, TaskID: taskID})
		}})
	}
	if documentID != "" {
		tasks = append(tasks,
			loader.Task{Name: "content", Run: func(ctx context.Context) (any, error) { return s.Content(ctx, project, documentID) }},
			loader.Task{Name: "relationships", Run: func(ctx context.Context) (any, error) {
				return s.Relationships(ctx, project, documentID)
			}},
		)
	}

	out := make(map[string]Section, len(tasks))
	for name, outcome := range loader.FanOut(ctx, s.cfg.FetchConcurrency, tasks...) {
		if outcome.Err != nil {
			s.logger.Warn("workspace section failed", zap.String("section", name), zap.Error(outcome.Err))
			_, code, message, _ := mapError(outcome.Err)
			out[name] = Section{Error: code + ": " + message}
			continue
		}
		out[name] = Section{Data: outcome.Value}
	}
	return out
}
