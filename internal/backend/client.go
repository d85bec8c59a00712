// Package backend is the REST client for the document server. It forwards the
// caller's bearer token, decodes the server's error envelope into *APIError and
// guards every call with a circuit breaker.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docconsole/internal/docs"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type tokenKey struct{}

// WithToken attaches the caller's bearer token; requests made with the returned
// context forward it to the document server.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Observe is called once per request; status is 0 on transport failure.
	Observe func(method string, status int, elapsed time.Duration)
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	observe func(method string, status int, elapsed time.Duration)
}

func New(baseURL string, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    httpClient,
		logger:  logger,
		observe: opts.Observe,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "document-server",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Client errors are answers, not outages.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !IsTransient(err)
		},
	})
	return c
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func projectPath(project string, parts ...string) string {
	segments := []string{"projects", url.PathEscape(project)}
	for _, part := range parts {
		segments = append(segments, url.PathEscape(part))
	}
	return "/" + strings.Join(segments, "/")
}

// FetchTree returns the nested tree. The server answers either with a list of
// nodes or with a single (possibly virtual root) node.
func (c *Client) FetchTree(ctx context.Context, project string, depth int) ([]docs.RawNode, error) {
	query := url.Values{}
	if depth > 0 {
		query.Set("depth", strconv.Itoa(depth))
	}
	var resp struct {
		Tree json.RawMessage `json:"tree"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(project, "documents", "tree"), query, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch tree: %w", err)
	}
	nodes, err := decodeTree(resp.Tree)
	if err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return nodes, nil
}

func decodeTree(raw json.RawMessage) ([]docs.RawNode, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []docs.RawNode{}, nil
	}
	if trimmed[0] == '[' {
		var nodes []docs.RawNode
		if err := json.Unmarshal(trimmed, &nodes); err != nil {
			return nil, err
		}
		return nodes, nil
	}
	var node docs.RawNode
	if err := json.Unmarshal(trimmed, &node); err != nil {
		return nil, err
	}
	return []docs.RawNode{node}, nil
}

func (c *Client) GetContent(ctx context.Context, project, docID string) (docs.VersionedContent, error) {
	var resp struct {
		Meta    *docs.DocMeta `json:"meta"`
		Content string        `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(project, "documents", docID, "content"), nil, nil, &resp); err != nil {
		return docs.VersionedContent{}, fmt.Errorf("get content %s: %w", docID, err)
	}
	out := docs.VersionedContent{DocumentID: docID, Content: resp.Content, Meta: resp.Meta}
	if resp.Meta != nil {
		out.Version = resp.Meta.Version
	}
	return out, nil
}

// UpdateContent writes content at version and returns the server's new version.
// A stale version yields an error matching ErrVersionMismatch.
func (c *Client) UpdateContent(ctx context.Context, project, docID, content string, version int) (int, error) {
	body := map[string]any{"content": content, "version": version}
	var resp struct {
		Version int `json:"version"`
	}
	if err := c.do(ctx, http.MethodPut, projectPath(project, "documents", docID, "content"), nil, body, &resp); err != nil {
		return 0, fmt.Errorf("update content %s: %w", docID, err)
	}
	return resp.Version, nil
}

func (c *Client) ListVersions(ctx context.Context, project, docID string, limit int) ([]docs.VersionInfo, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Versions []docs.VersionInfo `json:"versions"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(project, "documents", docID, "versions"), query, nil, &resp); err != nil {
		return nil, fmt.Errorf("list versions %s: %w", docID, err)
	}
	return resp.Versions, nil
}

func (c *Client) GetVersionContent(ctx context.Context, project, docID string, version int) (string, error) {
	var resp struct {
		Content string `json:"content"`
	}
	path := projectPath(project, "documents", docID, "versions", strconv.Itoa(version))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return "", fmt.Errorf("get version %d of %s: %w", version, docID, err)
	}
	return resp.Content, nil
}

// GetDocumentMeta reads a single document's metadata through the content endpoint.
func (c *Client) GetDocumentMeta(ctx context.Context, project, docID string) (docs.DocMeta, error) {
	content, err := c.GetContent(ctx, project, docID)
	if err != nil {
		return docs.DocMeta{}, err
	}
	if content.Meta == nil {
		return docs.DocMeta{ID: docID}, nil
	}
	return *content.Meta, nil
}

func (c *Client) CreateNode(ctx context.Context, project string, req docs.CreateNodeRequest) (docs.DocMeta, error) {
	var resp struct {
		Node docs.DocMeta `json:"node"`
	}
	if err := c.do(ctx, http.MethodPost, projectPath(project, "documents", "nodes"), nil, req, &resp); err != nil {
		return docs.DocMeta{}, fmt.Errorf("create node: %w", err)
	}
	return resp.Node, nil
}

func (c *Client) MoveNode(ctx context.Context, project, nodeID string, req docs.MoveNodeRequest) error {
	if err := c.do(ctx, http.MethodPut, projectPath(project, "documents", "nodes", nodeID, "move"), nil, req, nil); err != nil {
		return fmt.Errorf("move node %s: %w", nodeID, err)
	}
	return nil
}

func (c *Client) UpdateNode(ctx context.Context, project, nodeID string, req docs.UpdateNodeRequest) (docs.DocMeta, error) {
	var resp struct {
		Node docs.DocMeta `json:"node"`
	}
	if err := c.do(ctx, http.MethodPatch, projectPath(project, "documents", "nodes", nodeID), nil, req, &resp); err != nil {
		return docs.DocMeta{}, fmt.Errorf("update node %s: %w", nodeID, err)
	}
	return resp.Node, nil
}

func (c *Client) DeleteNode(ctx context.Context, project, nodeID string, cascade bool) error {
	query := url.Values{"cascade": {strconv.FormatBool(cascade)}}
	if err := c.do(ctx, http.MethodDelete, projectPath(project, "documents", "nodes", nodeID), query, nil, nil); err != nil {
		return fmt.Errorf("delete node %s: %w", nodeID, err)
	}
	return nil
}

func (c *Client) CreateRelationship(ctx context.Context, project string, req docs.CreateRelationshipRequest) (docs.Relationship, error) {
	var resp struct {
		Relationship docs.Relationship `json:"relationship"`
	}
	if err := c.do(ctx, http.MethodPost, projectPath(project, "documents", "relationships"), nil, req, &resp); err != nil {
		return docs.Relationship{}, fmt.Errorf("create relationship: %w", err)
	}
	return resp.Relationship, nil
}

// ListRelationships lists all project relationships, or those touching nodeID when set.
func (c *Client) ListRelationships(ctx context.Context, project, nodeID string) ([]docs.Relationship, error) {
	query := url.Values{}
	if nodeID != "" {
		query.Set("node_id", nodeID)
	}
	var resp struct {
		Relationships []docs.Relationship `json:"relationships"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(project, "documents", "relationships"), query, nil, &resp); err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	return resp.Relationships, nil
}

func (c *Client) DeleteRelationship(ctx context.Context, project, fromID, toID string) error {
	if err := c.do(ctx, http.MethodDelete, projectPath(project, "documents", "relationships", fromID, toID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete relationship %s->%s: %w", fromID, toID, err)
	}
	return nil
}

func (c *Client) CreateReference(ctx context.Context, project string, req docs.CreateReferenceRequest) (docs.Reference, error) {
	var resp struct {
		Reference docs.Reference `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPost, projectPath(project, "documents", "references"), nil, req, &resp); err != nil {
		return docs.Reference{}, fmt.Errorf("create reference: %w", err)
	}
	return resp.Reference, nil
}

func (c *Client) ListDocumentReferences(ctx context.Context, project, docID string) ([]docs.Reference, error) {
	var resp struct {
		References []docs.Reference `json:"references"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(project, "documents", docID, "references"), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("list references of document %s: %w", docID, err)
	}
	return resp.References, nil
}

func (c *Client) ListTaskReferences(ctx context.Context, project, taskID string) ([]docs.Reference, error) {
	var resp struct {
		References []docs.Reference `json:"references"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(project, "tasks", taskID, "references"), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("list references of task %s: %w", taskID, err)
	}
	return resp.References, nil
}

func (c *Client) DeleteReference(ctx context.Context, project, refID string) error {
	if err := c.do(ctx, http.MethodDelete, projectPath(project, "documents", "references", refID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete reference %s: %w", refID, err)
	}
	return nil
}

// AnalyzeImpact runs the server's impact analysis; no modes means all.
func (c *Client) AnalyzeImpact(ctx context.Context, project, docID string, modes []docs.AnalysisMode) (docs.ImpactResponse, error) {
	query := url.Values{"modes": {joinModes(modes)}}
	var resp struct {
		Impact docs.ImpactResponse `json:"impact"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(project, "documents", docID, "impact"), query, nil, &resp); err != nil {
		return docs.ImpactResponse{}, fmt.Errorf("analyze impact %s: %w", docID, err)
	}
	return resp.Impact, nil
}

func joinModes(modes []docs.AnalysisMode) string {
	if len(modes) == 0 {
		return string(docs.ModeAll)
	}
	parts := make([]string, 0, len(modes))
	for _, mode := range modes {
		if mode == docs.ModeAll {
			return string(docs.ModeAll)
		}
		parts = append(parts, string(mode))
	}
	return strings.Join(parts, ",")
}

func (c *Client) Search(ctx context.Context, project string, req docs.SearchRequest) ([]docs.SearchHit, error) {
	var resp struct {
		Results []docs.SearchHit `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, projectPath(project, "documents", "search"), nil, req, &resp); err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return resp.Results, nil
}

func tagsPath(target docs.TagTarget, parts ...string) string {
	base := []string{"tasks", target.TaskID}
	if target.IsExecutionPlan() {
		base = append(base, "execution-plan", "tags")
	} else {
		base = append(base, "docs", target.DocType, "tags")
	}
	return projectPath(target.ProjectID, append(base, parts...)...)
}

func (c *Client) CreateTag(ctx context.Context, target docs.TagTarget, name string) (docs.Tag, error) {
	var resp struct {
		Data docs.Tag `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, tagsPath(target), nil, docs.CreateTagRequest{TagName: name}, &resp); err != nil {
		return docs.Tag{}, fmt.Errorf("create tag %s: %w", name, err)
	}
	return resp.Data, nil
}

func (c *Client) ListTags(ctx context.Context, target docs.TagTarget) ([]docs.Tag, error) {
	var resp struct {
		Tags []docs.Tag `json:"tags"`
	}
	if err := c.do(ctx, http.MethodGet, tagsPath(target), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return resp.Tags, nil
}

// SwitchTag restores a tag. Without force the server may refuse and ask for
// confirmation, which is reported through TagSwitch.NeedConfirm.
func (c *Client) SwitchTag(ctx context.Context, target docs.TagTarget, name string, force bool) (docs.TagSwitch, error) {
	var resp struct {
		Success     bool   `json:"success"`
		NeedConfirm bool   `json:"needConfirm"`
		CurrentMD5  string `json:"currentMd5"`
		Data        struct {
			SwitchedTo string `json:"switched_to"`
			CurrentMD5 string `json:"current_md5"`
			Warning    string `json:"warning"`
		} `json:"data"`
	}
	body := map[string]bool{"force": force}
	if err := c.do(ctx, http.MethodPost, tagsPath(target, name, "switch"), nil, body, &resp); err != nil {
		return docs.TagSwitch{}, fmt.Errorf("switch tag %s: %w", name, err)
	}
	if resp.NeedConfirm {
		return docs.TagSwitch{NeedConfirm: true, TargetTag: name, CurrentMD5: resp.CurrentMD5}, nil
	}
	return docs.TagSwitch{
		Switched:   resp.Success,
		TargetTag:  name,
		CurrentMD5: resp.Data.CurrentMD5,
		Warning:    resp.Data.Warning,
	}, nil
}

func (c *Client) DeleteTag(ctx context.Context, target docs.TagTarget, name string) error {
	if err := c.do(ctx, http.MethodDelete, tagsPath(target, name), nil, nil, nil); err != nil {
		return fmt.Errorf("delete tag %s: %w", name, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(method, path, 0, started)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.record(method, path, resp.StatusCode, started)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) record(method, path string, status int, started time.Time) {
	elapsed := time.Since(started)
	c.logger.Debug("document server call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed))
	if c.observe != nil {
		c.observe(method, status, elapsed)
	}
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Error
		if apiErr.Message == "" {
			apiErr.Message = envelope.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
