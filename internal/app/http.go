package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docconsole/internal/backend"
	"docconsole/internal/conflict"
	"docconsole/internal/docs"
	"docconsole/internal/move"
	"docconsole/internal/refs"
	"docconsole/internal/search"
	"docconsole/internal/util"

	"go.uber.org/zap"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Ready(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.service.metrics.Handler().ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "projects" || parts[2] == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	project := parts[2]

	switch parts[3] {
	case "tree":
		s.handleTree(w, r, project, parts)
	case "nodes":
		s.handleNodes(w, r, project, parts)
	case "documents":
		s.handleDocuments(w, r, project, parts)
	case "conflicts":
		s.handleConflicts(w, r, project, parts)
	case "relationships":
		s.handleRelationships(w, r, project, parts)
	case "references":
		s.handleReferences(w, r, project, parts)
	case "search":
		s.handleSearch(w, r, project, parts)
	case "tasks":
		s.handleTags(w, r, project, parts)
	case "workspace":
		s.handleWorkspace(w, r, project, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleTree(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	if len(parts) != 4 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	payload, err := s.service.Tree(r.Context(), project)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleNodes(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	if len(parts) == 4 && r.Method == http.MethodPost {
		var body docs.CreateNodeRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateNode(r.Context(), project, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if len(parts) == 5 && r.Method == http.MethodPatch {
		var body docs.UpdateNodeRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateNode(r.Context(), project, parts[4], body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 5 && r.Method == http.MethodDelete {
		cascade := r.URL.Query().Get("cascade") == "true"
		payload, err := s.service.DeleteNode(r.Context(), project, parts[4], cascade)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 6 && parts[5] == "move" && r.Method == http.MethodPost {
		var body struct {
			TargetID string        `json:"target_id"`
			Position move.Position `json:"position"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.TargetID) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "target_id is required", map[string]string{"field": "target_id"})
			return
		}
		payload, err := s.service.MoveNode(r.Context(), project, parts[4], body.TargetID, body.Position)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) >= 4 && len(parts) <= 6 {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	if len(parts) < 6 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	documentID := parts[4]
	query := r.URL.Query()

	if len(parts) == 6 && parts[5] == "content" && r.Method == http.MethodGet {
		payload, err := s.service.Content(r.Context(), project, documentID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 6 && parts[5] == "content" && r.Method == http.MethodPut {
		var body struct {
			Content string `json:"content"`
			Version *int   `json:"version"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Version == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version is required", map[string]string{"field": "version"})
			return
		}
		payload, err := s.service.SaveContent(r.Context(), project, documentID, body.Content, *body.Version)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 6 && parts[5] == "versions" && r.Method == http.MethodGet {
		limit := 50
		if rawLimit := strings.TrimSpace(query.Get("limit")); rawLimit != "" {
			if parsedLimit, err := strconv.Atoi(rawLimit); err == nil && parsedLimit > 0 {
				limit = parsedLimit
			}
		}
		payload, err := s.service.Versions(r.Context(), project, documentID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 7 && parts[5] == "versions" && r.Method == http.MethodGet {
		version, err := strconv.Atoi(parts[6])
		if err != nil || version <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
			return
		}
		content, err := s.service.VersionContent(r.Context(), project, documentID, version)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": version, "content": content})
		return
	}

	if len(parts) == 6 && parts[5] == "diff" && r.Method == http.MethodGet {
		from, err := strconv.Atoi(strings.TrimSpace(query.Get("from")))
		if err != nil || from <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from version is required", map[string]string{"field": "from"})
			return
		}
		to := 0
		if rawTo := strings.TrimSpace(query.Get("to")); rawTo != "" {
			if to, err = strconv.Atoi(rawTo); err != nil || to < 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "to must be a version number", map[string]string{"field": "to"})
				return
			}
		}
		payload, err := s.service.Diff(r.Context(), project, documentID, from, to)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 6 && parts[5] == "impact" && r.Method == http.MethodGet {
		var modes []docs.AnalysisMode
		for _, mode := range splitList(query.Get("modes")) {
			modes = append(modes, docs.AnalysisMode(mode))
		}
		payload, err := s.service.Impact(r.Context(), project, documentID, modes)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	if len(parts) == 4 && r.Method == http.MethodGet {
		items, err := s.service.Conflicts(r.Context(), project)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conflicts": items})
		return
	}

	if len(parts) == 5 && r.Method == http.MethodGet {
		item, err := s.service.Conflict(r.Context(), project, parts[4])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
		return
	}

	if len(parts) == 6 && parts[5] == "resolve" && r.Method == http.MethodPost {
		var body struct {
			Strategy conflict.Strategy `json:"strategy"`
			Content  string            `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ResolveConflict(r.Context(), project, parts[4], body.Strategy, body.Content)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleRelationships(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	if len(parts) == 4 && r.Method == http.MethodGet {
		nodeID := strings.TrimSpace(r.URL.Query().Get("node_id"))
		if nodeID == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "node_id is required", map[string]string{"field": "node_id"})
			return
		}
		payload, err := s.service.Relationships(r.Context(), project, nodeID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && r.Method == http.MethodPost {
		var body docs.CreateRelationshipRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateRelationship(r.Context(), project, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if len(parts) == 6 && r.Method == http.MethodDelete {
		if err := s.service.DeleteRelationship(r.Context(), project, parts[4], parts[5]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleReferences(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	query := r.URL.Query()

	if len(parts) == 4 && r.Method == http.MethodGet {
		scope := refs.Scope{
			DocumentID: strings.TrimSpace(query.Get("document_id")),
			TaskID:     strings.TrimSpace(query.Get("task_id")),
		}
		list, err := s.service.References(r.Context(), project, scope)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"references": list})
		return
	}

	if len(parts) == 4 && r.Method == http.MethodPost {
		var body docs.CreateReferenceRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		list, err := s.service.AddReference(r.Context(), project, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"references": list})
		return
	}

	if len(parts) == 5 && r.Method == http.MethodDelete {
		list, err := s.service.RemoveReference(r.Context(), project, strings.TrimSpace(query.Get("document_id")), parts[4])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"references": list})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	if len(parts) != 4 || r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	query := r.URL.Query()
	q := search.Query{ProjectID: project, Text: query.Get("q")}
	for _, t := range splitList(query.Get("types")) {
		q.DocumentTypes = append(q.DocumentTypes, docs.DocumentType(t))
	}
	if rawLimit := strings.TrimSpace(query.Get("limit")); rawLimit != "" {
		if parsedLimit, err := strconv.Atoi(rawLimit); err == nil && parsedLimit > 0 {
			q.Limit = parsedLimit
		}
	}
	payload, err := s.service.Search(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleTags serves
//
//	tasks/{t}/docs/{docType}/tags[/{name}[/switch]]
//	tasks/{t}/execution-plan/tags[/{name}[/switch]]
func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	target, rest, ok := tagTarget(project, parts)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	if len(rest) == 0 && r.Method == http.MethodGet {
		tags, err := s.service.ListTags(r.Context(), target)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
		return
	}

	if len(rest) == 0 && r.Method == http.MethodPost {
		var body docs.CreateTagRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		tag, err := s.service.CreateTag(r.Context(), target, body.TagName)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tag)
		return
	}

	if len(rest) == 1 && r.Method == http.MethodDelete {
		if err := s.service.DeleteTag(r.Context(), target, rest[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(rest) == 2 && rest[1] == "switch" && r.Method == http.MethodPost {
		var body struct {
			Force bool `json:"force"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SwitchTag(r.Context(), target, rest[0], body.Force)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func tagTarget(project string, parts []string) (docs.TagTarget, []string, bool) {
	if len(parts) >= 8 && parts[5] == "docs" && parts[7] == "tags" {
		return docs.TagTarget{ProjectID: project, TaskID: parts[4], DocType: parts[6]}, parts[8:], true
	}
	if len(parts) >= 7 && parts[5] == "execution-plan" && parts[6] == "tags" {
		return docs.TagTarget{ProjectID: project, TaskID: parts[4]}, parts[7:], true
	}
	return docs.TagTarget{}, nil, false
}

func (s *HTTPServer) handleWorkspace(w http.ResponseWriter, r *http.Request, project string, parts []string) {
	if len(parts) != 4 || r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	query := r.URL.Query()
	sections := s.service.Workspace(r.Context(), project,
		strings.TrimSpace(query.Get("document_id")), strings.TrimSpace(query.Get("task_id")))
	writeJSON(w, http.StatusOK, sections)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = backend.WithToken(ctx, bearerToken(r))
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.service.metrics.ObserveHTTP(r.Method, routeLabel(r.URL.Path), writer.status, elapsed)
		s.service.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

var routeWords = map[string]bool{
	"api": true, "projects": true, "tree": true, "nodes": true, "move": true,
	"documents": true, "content": true, "versions": true, "diff": true, "impact": true,
	"conflicts": true, "resolve": true, "relationships": true, "references": true,
	"search": true, "tasks": true, "docs": true, "execution-plan": true, "tags": true,
	"switch": true, "workspace": true, "health": true, "ready": true, "metrics": true,
}

// routeLabel replaces identifiers in path with ":id" so metrics labels stay bounded.
func routeLabel(path string) string {
	parts := splitPath(path)
	for i, part := range parts {
		if !routeWords[part] {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
