package app

import (
	"context"
	"net/http"

	"docconsole/internal/backend"
	"docconsole/internal/config"
	"docconsole/internal/docs"
	"docconsole/internal/metacache"
)

type fakeServer struct {
	pingFn                   func(context.Context) error
	fetchTreeFn              func(context.Context, string, int) ([]docs.RawNode, error)
	getContentFn             func(context.Context, string, string) (docs.VersionedContent, error)
	updateContentFn          func(context.Context, string, string, string, int) (int, error)
	listVersionsFn           func(context.Context, string, string, int) ([]docs.VersionInfo, error)
	getVersionContentFn      func(context.Context, string, string, int) (string, error)
	getDocumentMetaFn        func(context.Context, string, string) (docs.DocMeta, error)
	createNodeFn             func(context.Context, string, docs.CreateNodeRequest) (docs.DocMeta, error)
	moveNodeFn               func(context.Context, string, string, docs.MoveNodeRequest) error
	updateNodeFn             func(context.Context, string, string, docs.UpdateNodeRequest) (docs.DocMeta, error)
	deleteNodeFn             func(context.Context, string, string, bool) error
	createRelationshipFn     func(context.Context, string, docs.CreateRelationshipRequest) (docs.Relationship, error)
	listRelationshipsFn      func(context.Context, string, string) ([]docs.Relationship, error)
	deleteRelationshipFn     func(context.Context, string, string, string) error
	createReferenceFn        func(context.Context, string, docs.CreateReferenceRequest) (docs.Reference, error)
	listDocumentReferencesFn func(context.Context, string, string) ([]docs.Reference, error)
	listTaskReferencesFn     func(context.Context, string, string) ([]docs.Reference, error)
	deleteReferenceFn        func(context.Context, string, string) error
	analyzeImpactFn          func(context.Context, string, string, []docs.AnalysisMode) (docs.ImpactResponse, error)
	searchFn                 func(context.Context, string, docs.SearchRequest) ([]docs.SearchHit, error)
	createTagFn              func(context.Context, docs.TagTarget, string) (docs.Tag, error)
	listTagsFn               func(context.Context, docs.TagTarget) ([]docs.Tag, error)
	switchTagFn              func(context.Context, docs.TagTarget, string, bool) (docs.TagSwitch, error)
	deleteTagFn              func(context.Context, docs.TagTarget, string) error
}

var errNotFound = &backend.APIError{Status: http.StatusNotFound, Message: "not found"}

func (f *fakeServer) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeServer) FetchTree(ctx context.Context, project string, depth int) ([]docs.RawNode, error) {
	if f.fetchTreeFn != nil {
		return f.fetchTreeFn(ctx, project, depth)
	}
	return nil, nil
}

func (f *fakeServer) GetContent(ctx context.Context, project, docID string) (docs.VersionedContent, error) {
	if f.getContentFn != nil {
		return f.getContentFn(ctx, project, docID)
	}
	return docs.VersionedContent{}, errNotFound
}

func (f *fakeServer) UpdateContent(ctx context.Context, project, docID, content string, version int) (int, error) {
	if f.updateContentFn != nil {
		return f.updateContentFn(ctx, project, docID, content, version)
	}
	return version + 1, nil
}

func (f *fakeServer) ListVersions(ctx context.Context, project, docID string, limit int) ([]docs.VersionInfo, error) {
	if f.listVersionsFn != nil {
		return f.listVersionsFn(ctx, project, docID, limit)
	}
	return nil, nil
}

func (f *fakeServer) GetVersionContent(ctx context.Context, project, docID string, version int) (string, error) {
	if f.getVersionContentFn != nil {
		return f.getVersionContentFn(ctx, project, docID, version)
	}
	return "", errNotFound
}

func (f *fakeServer) GetDocumentMeta(ctx context.Context, project, docID string) (docs.DocMeta, error) {
	if f.getDocumentMetaFn != nil {
		return f.getDocumentMetaFn(ctx, project, docID)
	}
	return docs.DocMeta{}, errNotFound
}

func (f *fakeServer) CreateNode(ctx context.Context, project string, req docs.CreateNodeRequest) (docs.DocMeta, error) {
	if f.createNodeFn != nil {
		return f.createNodeFn(ctx, project, req)
	}
	return docs.DocMeta{ID: "new", Title: req.Title, Type: req.Type, ParentID: req.ParentID}, nil
}

func (f *fakeServer) MoveNode(ctx context.Context, project, nodeID string, req docs.MoveNodeRequest) error {
	if f.moveNodeFn != nil {
		return f.moveNodeFn(ctx, project, nodeID, req)
	}
	return nil
}

func (f *fakeServer) UpdateNode(ctx context.Context, project, nodeID string, req docs.UpdateNodeRequest) (docs.DocMeta, error) {
	if f.updateNodeFn != nil {
		return f.updateNodeFn(ctx, project, nodeID, req)
	}
	return docs.DocMeta{ID: nodeID}, nil
}

func (f *fakeServer) DeleteNode(ctx context.Context, project, nodeID string, cascade bool) error {
	if f.deleteNodeFn != nil {
		return f.deleteNodeFn(ctx, project, nodeID, cascade)
	}
	return nil
}

func (f *fakeServer) CreateRelationship(ctx context.Context, project string, req docs.CreateRelationshipRequest) (docs.Relationship, error) {
	if f.createRelationshipFn != nil {
		return f.createRelationshipFn(ctx, project, req)
	}
	return docs.Relationship{ID: "rel-new", FromID: req.FromID, ToID: req.ToID, Type: req.Type}, nil
}

func (f *fakeServer) ListRelationships(ctx context.Context, project, nodeID string) ([]docs.Relationship, error) {
	if f.listRelationshipsFn != nil {
		return f.listRelationshipsFn(ctx, project, nodeID)
	}
	return nil, nil
}

func (f *fakeServer) DeleteRelationship(ctx context.Context, project, fromID, toID string) error {
	if f.deleteRelationshipFn != nil {
		return f.deleteRelationshipFn(ctx, project, fromID, toID)
	}
	return nil
}

func (f *fakeServer) CreateReference(ctx context.Context, project string, req docs.CreateReferenceRequest) (docs.Reference, error) {
	if f.createReferenceFn != nil {
		return f.createReferenceFn(ctx, project, req)
	}
	return docs.Reference{ID: "ref-new", TaskID: req.TaskID, DocumentID: req.DocumentID}, nil
}

func (f *fakeServer) ListDocumentReferences(ctx context.Context, project, docID string) ([]docs.Reference, error) {
	if f.listDocumentReferencesFn != nil {
		return f.listDocumentReferencesFn(ctx, project, docID)
	}
	return nil, nil
}

func (f *fakeServer) ListTaskReferences(ctx context.Context, project, taskID string) ([]docs.Reference, error) {
	if f.listTaskReferencesFn != nil {
		return f.listTaskReferencesFn(ctx, project, taskID)
	}
	return nil, nil
}

func (f *fakeServer) DeleteReference(ctx context.Context, project, refID string) error {
	if f.deleteReferenceFn != nil {
		return f.deleteReferenceFn(ctx, project, refID)
	}
	return nil
}

func (f *fakeServer) AnalyzeImpact(ctx context.Context, project, docID string, modes []docs.AnalysisMode) (docs.ImpactResponse, error) {
	if f.analyzeImpactFn != nil {
		return f.analyzeImpactFn(ctx, project, docID, modes)
	}
	return docs.ImpactResponse{NodeID: docID}, nil
}

func (f *fakeServer) Search(ctx context.Context, project string, req docs.SearchRequest) ([]docs.SearchHit, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, project, req)
	}
	return nil, nil
}

func (f *fakeServer) CreateTag(ctx context.Context, target docs.TagTarget, name string) (docs.Tag, error) {
	if f.createTagFn != nil {
		return f.createTagFn(ctx, target, name)
	}
	return docs.Tag{TagName: name}, nil
}

func (f *fakeServer) ListTags(ctx context.Context, target docs.TagTarget) ([]docs.Tag, error) {
	if f.listTagsFn != nil {
		return f.listTagsFn(ctx, target)
	}
	return nil, nil
}

func (f *fakeServer) SwitchTag(ctx context.Context, target docs.TagTarget, name string, force bool) (docs.TagSwitch, error) {
	if f.switchTagFn != nil {
		return f.switchTagFn(ctx, target, name, force)
	}
	return docs.TagSwitch{Switched: true, TargetTag: name}, nil
}

func (f *fakeServer) DeleteTag(ctx context.Context, target docs.TagTarget, name string) error {
	if f.deleteTagFn != nil {
		return f.deleteTagFn(ctx, target, name)
	}
	return nil
}

func newTestService(fs *fakeServer) *Service {
	cfg := config.Defaults()
	return NewService(cfg, Deps{Server: fs, Cache: metacache.NewMemory()})
}

func strPtr(s string) *string {
	return &s
}

// sampleTree is
//
//	arch (Architecture)
//	  api (API Design)
//	  db  (Untitled)
//	reqs (Requirements)
func sampleTree() []docs.RawNode {
	return []docs.RawNode{
		{
			Node: &docs.DocMeta{ID: "arch", Title: "Architecture", Type: docs.TypeArchitecture, Level: 1, Position: 0},
			Children: []docs.RawNode{
				{Node: &docs.DocMeta{ID: "api", ParentID: strPtr("arch"), Title: "API Design", Type: docs.TypeTechDesign, Level: 2, Position: 0}},
				{Node: &docs.DocMeta{ID: "db", ParentID: strPtr("arch"), Title: "Untitled", Type: docs.TypeTechDesign, Level: 2, Position: 1}},
			},
		},
		{Node: &docs.DocMeta{ID: "reqs", Title: "Requirements", Type: docs.TypeRequirements, Level: 1, Position: 1}},
	}
}
