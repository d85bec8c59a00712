// Package docs holds the document model shared by the console gateway: tree nodes,
// the document server's wire DTOs, relationships, references and tags.
package docs

import (
	"strings"
	"time"
)

// DocumentType is the closed set of document kinds the tree can hold.
type DocumentType string

const (
	TypeFeatureList  DocumentType = "feature_list"
	TypeArchitecture DocumentType = "architecture"
	TypeTechDesign   DocumentType = "tech_design"
	TypeBackground   DocumentType = "background"
	TypeRequirements DocumentType = "requirements"
	TypeMeeting      DocumentType = "meeting"
	TypeTask         DocumentType = "task"
)

var documentTypes = map[DocumentType]struct{}{
	TypeFeatureList:  {},
	TypeArchitecture: {},
	TypeTechDesign:   {},
	TypeBackground:   {},
	TypeRequirements: {},
	TypeMeeting:      {},
	TypeTask:         {},
}

func (t DocumentType) Valid() bool {
	_, ok := documentTypes[t]
	return ok
}

const (
	// VirtualRootID groups top-level nodes in server responses.
	VirtualRootID = "virtual_root"
	// TaskIDPrefix marks identifiers that belong to tasks, not documents.
	TaskIDPrefix = "task_"
)

// IsTaskID reports whether id names a task rather than a document.
func IsTaskID(id string) bool {
	return strings.HasPrefix(id, TaskIDPrefix)
}

var placeholderTitles = func() map[string]struct{} {
	titles := []string{"", "untitled", "untitled document", "new document", "新文档", "未命名文档"}
	set := make(map[string]struct{}, len(titles))
	for _, title := range titles {
		set[title] = struct{}{}
	}
	return set
}()

// IsPlaceholderTitle reports whether title is empty or one of the auto-generated defaults.
func IsPlaceholderTitle(title string) bool {
	_, ok := placeholderTitles[strings.ToLower(strings.TrimSpace(title))]
	return ok
}

// DocumentNode is an entry of the client-side document tree. Children are owned by
// the node; a nil slice means leaf.
type DocumentNode struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Type     DocumentType   `json:"type"`
	Level    int            `json:"level"`
	Position int            `json:"position"`
	Version  int            `json:"version"`
	ParentID *string        `json:"parent_id,omitempty"`
	Children []DocumentNode `json:"children,omitempty"`
}

func (n DocumentNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// DocMeta is the node metadata entry the document server returns.
type DocMeta struct {
	ID        string       `json:"id"`
	ParentID  *string      `json:"parent_id"`
	Title     string       `json:"title"`
	Type      DocumentType `json:"type"`
	Level     int          `json:"level"`
	Position  int          `json:"position"`
	Version   int          `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
	CreatedAt time.Time    `json:"created_at"`
}

// RawNode is the nested tree DTO of the tree endpoint.
type RawNode struct {
	Node     *DocMeta  `json:"node"`
	Children []RawNode `json:"children,omitempty"`
}

type VersionedContent struct {
	DocumentID string   `json:"document_id"`
	Content    string   `json:"content"`
	Version    int      `json:"version"`
	Meta       *DocMeta `json:"meta,omitempty"`
}

type VersionInfo struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"path,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Content   *string   `json:"content,omitempty"`
}

type CreateNodeRequest struct {
	ParentID *string      `json:"parent_id" validate:"omitempty,min=1"`
	Title    string       `json:"title" validate:"required,max=200"`
	Type     DocumentType `json:"type" validate:"required,doctype"`
	Content  string       `json:"content"`
}

type UpdateNodeRequest struct {
	Title *string       `json:"title,omitempty"`
	Type  *DocumentType `json:"type,omitempty"`
}

type MoveNodeRequest struct {
	NewParentID *string `json:"new_parent_id"`
	Position    int     `json:"position"`
}
