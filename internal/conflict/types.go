// Package conflict implements optimistic-lock saving for documents and the
// three-way conflict records created when a save loses the race.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docconsole/internal/docs"
)

// State is the per-document editing state.
//
//	Clean -> Editing -> Saving -> Clean | Conflicted
//	Conflicted -> Resolving -> Clean | Conflicted
type State string

const (
	StateClean      State = "clean"
	StateEditing    State = "editing"
	StateSaving     State = "saving"
	StateConflicted State = "conflicted"
	StateResolving  State = "resolving"
)

type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "resolved"
)

type Content struct {
	Base     string `json:"base"`
	Current  string `json:"current"`
	Incoming string `json:"incoming"`
}

type Data struct {
	BaseVersion     int     `json:"base_version"`
	ServerVersion   int     `json:"server_version"`
	ConflictContent Content `json:"conflict_content"`
}

// Item is an open or resolved conflict. Its ID is derived from the document and
// the two versions involved.
type Item struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	NodeID       string     `json:"node_id"`
	Title        string     `json:"title"`
	Status       Status     `json:"status"`
	Data         Data       `json:"conflict_data"`
	BaseDegraded bool       `json:"base_degraded"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func ItemID(documentID string, baseVersion, serverVersion int) string {
	return fmt.Sprintf("%s:%d:%d", documentID, baseVersion, serverVersion)
}

var (
	ErrSaveInFlight    = errors.New("a save for this document is already in flight")
	ErrReopenLimit     = errors.New("conflict re-opened too many times")
	ErrNotFound        = errors.New("conflict not found")
	ErrAlreadyResolved = errors.New("conflict already resolved")
)

// ConflictSignal is returned by Save when the server rejected the write because
// another writer advanced the document.
type ConflictSignal struct {
	ProjectID     string
	DocumentID    string
	BaseVersion   int
	ServerVersion int
}

func (s *ConflictSignal) Error() string {
	return fmt.Sprintf("version conflict on %s: saved against %d, server at %d", s.DocumentID, s.BaseVersion, s.ServerVersion)
}

// ReconflictError is returned by Resolve when the document moved again while the
// conflict was open. Item is the re-opened conflict.
type ReconflictError struct {
	Previous string
	Item     Item
}

func (e *ReconflictError) Error() string {
	return fmt.Sprintf("conflict %s re-opened as %s", e.Previous, e.Item.ID)
}

// ReopenLimitError is returned by Resolve once the conflict has been re-opened
// MaxReopen times. Item is the conflict refreshed to the current server version.
type ReopenLimitError struct {
	Previous string
	Item     Item
}

func (e *ReopenLimitError) Error() string {
	return fmt.Sprintf("conflict %s refreshed as %s: %v", e.Previous, e.Item.ID, ErrReopenLimit)
}

func (e *ReopenLimitError) Unwrap() error {
	return ErrReopenLimit
}

// Backend is the slice of the document server the controller needs.
type Backend interface {
	GetContent(ctx context.Context, project, docID string) (docs.VersionedContent, error)
	UpdateContent(ctx context.Context, project, docID, content string, version int) (int, error)
	GetVersionContent(ctx context.Context, project, docID string, version int) (string, error)
}

// Store persists conflict items so they survive reloads and restarts.
type Store interface {
	SaveConflict(ctx context.Context, item Item) error
	GetConflict(ctx context.Context, id string) (Item, error)
	ListConflicts(ctx context.Context, project string, status Status) ([]Item, error)
	DeleteConflict(ctx context.Context, id string) error
}
