package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docconsole/internal/backend"
	"docconsole/internal/docs"
)

func serve(t *testing.T, svc *Service, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	NewHTTPServer(svc, "*").Handler().ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Body.Len() > 0 && strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
	}
	return rr, payload
}

func TestHealthEndpoint(t *testing.T) {
	rr, payload := serve(t, newTestService(&fakeServer{}), http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %v", payload)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestReadyEndpointReportsFailingServer(t *testing.T) {
	fs := &fakeServer{pingFn: func(context.Context) error { return errors.New("connection refused") }}
	rr, payload := serve(t, newTestService(fs), http.MethodGet, "/api/ready", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}
	checks := payload["checks"].(map[string]any)
	server := checks["document_server"].(map[string]any)
	if server["error"] != "connection refused" {
		t.Fatalf("unexpected check %v", server)
	}
}

func TestReadyEndpointOK(t *testing.T) {
	rr, payload := serve(t, newTestService(&fakeServer{}), http.MethodGet, "/api/ready", "")
	if rr.Code != http.StatusOK || payload["ok"] != true {
		t.Fatalf("expected ready, got %d %v", rr.Code, payload)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	svc := newTestService(&fakeServer{})
	serve(t, svc, http.MethodGet, "/api/health", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	NewHTTPServer(svc, "*").Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("expected request counter in scrape output")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	rr, payload := serve(t, newTestService(&fakeServer{}), http.MethodGet, "/api/projects/p1/unknown", "")
	if rr.Code != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %d %v", rr.Code, payload)
	}
}

func TestTreeRoute(t *testing.T) {
	fs := &fakeServer{
		fetchTreeFn: func(_ context.Context, project string, depth int) ([]docs.RawNode, error) {
			if project != "p1" || depth != 10 {
				t.Fatalf("unexpected fetch %s depth %d", project, depth)
			}
			return sampleTree(), nil
		},
	}
	rr, payload := serve(t, newTestService(fs), http.MethodGet, "/api/projects/p1/tree", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if roots := payload["tree"].([]any); len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
}

func TestMoveRouteRejectsCircularMove(t *testing.T) {
	fs := &fakeServer{
		fetchTreeFn: func(context.Context, string, int) ([]docs.RawNode, error) {
			return sampleTree(), nil
		},
		moveNodeFn: func(context.Context, string, string, docs.MoveNodeRequest) error {
			t.Fatal("circular move must not reach the server")
			return nil
		},
	}
	rr, payload := serve(t, newTestService(fs), http.MethodPost, "/api/projects/p1/nodes/arch/move",
		`{"target_id":"api","position":"inside"}`)
	if rr.Code != http.StatusUnprocessableEntity || payload["code"] != "CIRCULAR_MOVE" {
		t.Fatalf("expected CIRCULAR_MOVE, got %d %v", rr.Code, payload)
	}
}

func TestSaveContentRouteReturnsConflict(t *testing.T) {
	fs := &fakeServer{
		updateContentFn: func(context.Context, string, string, string, int) (int, error) {
			return 0, &backend.APIError{Status: http.StatusConflict, Code: "VERSION_MISMATCH", Message: "stale"}
		},
		getContentFn: func(_ context.Context, _, docID string) (docs.VersionedContent, error) {
			return docs.VersionedContent{DocumentID: docID, Content: "server", Version: 6}, nil
		},
		getVersionContentFn: func(context.Context, string, string, int) (string, error) {
			return "base", nil
		},
	}
	svc := newTestService(fs)
	rr, payload := serve(t, svc, http.MethodPut, "/api/projects/p1/documents/doc1/content", `{"content":"mine","version":5}`)
	if rr.Code != http.StatusConflict || payload["code"] != "VERSION_MISMATCH" {
		t.Fatalf("expected VERSION_MISMATCH, got %d %v", rr.Code, payload)
	}
	details := payload["details"].(map[string]any)
	item := details["conflict"].(map[string]any)
	if item["id"] != "doc1:5:6" {
		t.Fatalf("expected conflict doc1:5:6, got %v", item["id"])
	}

	fs.updateContentFn = func(_ context.Context, _, _, content string, version int) (int, error) {
		if content != "mine" || version != 6 {
			t.Fatalf("unexpected resolve write %q at %d", content, version)
		}
		return 7, nil
	}
	rr, payload = serve(t, svc, http.MethodPost, "/api/projects/p1/conflicts/doc1:5:6/resolve", `{"strategy":"accept_incoming"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", rr.Code, payload)
	}
	if payload["version"] != float64(7) {
		t.Fatalf("expected version 7, got %v", payload["version"])
	}

	rr, payload = serve(t, svc, http.MethodPost, "/api/projects/p1/conflicts/doc1:5:6/resolve", `{"strategy":"accept_incoming"}`)
	if rr.Code != http.StatusConflict || payload["code"] != "ALREADY_RESOLVED" {
		t.Fatalf("expected ALREADY_RESOLVED, got %d %v", rr.Code, payload)
	}
}

func TestSaveContentRouteRequiresVersion(t *testing.T) {
	rr, payload := serve(t, newTestService(&fakeServer{}), http.MethodPut, "/api/projects/p1/documents/doc1/content", `{"content":"x"}`)
	if rr.Code != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %d %v", rr.Code, payload)
	}
}

func TestContentRouteNotFoundCarriesReset(t *testing.T) {
	rr, payload := serve(t, newTestService(&fakeServer{}), http.MethodGet, "/api/projects/p1/documents/gone/content", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	details := payload["details"].(map[string]any)
	if details["reset"] != true {
		t.Fatalf("expected reset hint, got %v", details)
	}
}

func TestCreateRelationshipRouteRejectsSelfReference(t *testing.T) {
	fs := &fakeServer{
		createRelationshipFn: func(context.Context, string, docs.CreateRelationshipRequest) (docs.Relationship, error) {
			t.Fatal("invalid relationship must not reach the server")
			return docs.Relationship{}, nil
		},
	}
	rr, payload := serve(t, newTestService(fs), http.MethodPost, "/api/projects/p1/relationships",
		`{"from_id":"api","to_id":"api","type":"reference","dependency_type":"data"}`)
	if rr.Code != http.StatusUnprocessableEntity || payload["code"] != "SELF_REFERENCE" {
		t.Fatalf("expected SELF_REFERENCE, got %d %v", rr.Code, payload)
	}
}

func TestReferencesRouteRequiresScope(t *testing.T) {
	rr, payload := serve(t, newTestService(&fakeServer{}), http.MethodGet, "/api/projects/p1/references", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %v", rr.Code, payload)
	}
}

func TestSearchRouteRejectsEmptyQuery(t *testing.T) {
	rr, payload := serve(t, newTestService(&fakeServer{}), http.MethodGet, "/api/projects/p1/search?q=%20", "")
	if rr.Code != http.StatusBadRequest || payload["code"] != "EMPTY_QUERY" {
		t.Fatalf("expected EMPTY_QUERY, got %d %v", rr.Code, payload)
	}
}

func TestSearchRouteFallsBackToServer(t *testing.T) {
	fs := &fakeServer{
		searchFn: func(_ context.Context, _ string, req docs.SearchRequest) ([]docs.SearchHit, error) {
			if req.Query != "cache" || len(req.DocumentTypes) != 1 || req.DocumentTypes[0] != "tech_design" {
				t.Fatalf("unexpected search request %+v", req)
			}
			return []docs.SearchHit{{DocumentID: "api", Title: "API Design", Content: "cache layer", Score: 3}}, nil
		},
	}
	rr, payload := serve(t, newTestService(fs), http.MethodGet, "/api/projects/p1/search?q=cache&types=tech_design", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payload["source"] != "server" || payload["count"] != float64(1) {
		t.Fatalf("unexpected response %v", payload)
	}
}

func TestTagRoutes(t *testing.T) {
	var switched docs.TagTarget
	fs := &fakeServer{
		switchTagFn: func(_ context.Context, target docs.TagTarget, name string, force bool) (docs.TagSwitch, error) {
			switched = target
			return docs.TagSwitch{Switched: true, TargetTag: name}, nil
		},
	}
	svc := newTestService(fs)

	rr, payload := serve(t, svc, http.MethodPost, "/api/projects/p1/tasks/task_1/docs/requirements/tags", `{"tag_name":"bad name!"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected invalid tag name to be rejected, got %d %v", rr.Code, payload)
	}

	rr, _ = serve(t, svc, http.MethodPost, "/api/projects/p1/tasks/task_1/execution-plan/tags/v1/switch", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if switched.TaskID != "task_1" || !switched.IsExecutionPlan() {
		t.Fatalf("unexpected target %+v", switched)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rr, payload := serve(t, newTestService(&fakeServer{}), http.MethodDelete, "/api/projects/p1/conflicts", "")
	if rr.Code != http.StatusMethodNotAllowed || payload["code"] != "METHOD_NOT_ALLOWED" {
		t.Fatalf("expected METHOD_NOT_ALLOWED, got %d %v", rr.Code, payload)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/api/projects/p1/tree":                            "/api/projects/:id/tree",
		"/api/projects/p1/documents/doc9/versions/3":       "/api/projects/:id/documents/:id/versions/:id",
		"/api/projects/p1/tasks/t1/execution-plan/tags/v1": "/api/projects/:id/tasks/:id/execution-plan/tags/:id",
		"/api/health":                                      "/api/health",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
