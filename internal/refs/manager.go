// Package refs manages task-to-document references for the focused document or task.
package refs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docconsole/internal/docs"
)

// ErrNoScope is returned when neither a document nor a task is focused.
var ErrNoScope = errors.New("reference scope needs a document_id or task_id")

type Backend interface {
	CreateReference(ctx context.Context, project string, req docs.CreateReferenceRequest) (docs.Reference, error)
	ListDocumentReferences(ctx context.Context, project, docID string) ([]docs.Reference, error)
	ListTaskReferences(ctx context.Context, project, taskID string) ([]docs.Reference, error)
	DeleteReference(ctx context.Context, project, refID string) error
}

// Scope selects whose references to load. A focused document wins over a task.
type Scope struct {
	DocumentID string
	TaskID     string
}

type Manager struct {
	backend Backend
}

func NewManager(b Backend) *Manager {
	return &Manager{backend: b}
}

func (m *Manager) Load(ctx context.Context, project string, scope Scope) ([]docs.Reference, error) {
	var (
		refs []docs.Reference
		err  error
	)
	switch {
	case scope.DocumentID != "":
		refs, err = m.backend.ListDocumentReferences(ctx, project, scope.DocumentID)
	case scope.TaskID != "":
		refs, err = m.backend.ListTaskReferences(ctx, project, scope.TaskID)
	default:
		return nil, ErrNoScope
	}
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []docs.Reference{}
	}
	return refs, nil
}

// Add creates a reference and returns the refreshed references of its document.
func (m *Manager) Add(ctx context.Context, project string, req docs.CreateReferenceRequest) ([]docs.Reference, error) {
	req.TaskID = strings.TrimSpace(req.TaskID)
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.Anchor = normalize(req.Anchor)
	req.Context = normalize(req.Context)
	if err := docs.Validate(req); err != nil {
		return nil, err
	}
	if _, err := m.backend.CreateReference(ctx, project, req); err != nil {
		return nil, err
	}
	refs, err := m.Load(ctx, project, Scope{DocumentID: req.DocumentID})
	if err != nil {
		return nil, fmt.Errorf("reload references: %w", err)
	}
	return refs, nil
}

// Remove deletes refID and returns the refreshed references of documentID.
func (m *Manager) Remove(ctx context.Context, project, documentID, refID string) ([]docs.Reference, error) {
	if strings.TrimSpace(refID) == "" {
		return nil, &docs.ValidationError{Field: "id", Code: "VALIDATION_ERROR", Reason: "id is required"}
	}
	if err := m.backend.DeleteReference(ctx, project, refID); err != nil {
		return nil, err
	}
	if documentID == "" {
		return []docs.Reference{}, nil
	}
	refs, err := m.Load(ctx, project, Scope{DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("reload references: %w", err)
	}
	return refs, nil
}

func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
