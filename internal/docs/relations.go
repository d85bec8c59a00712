package docs

import "time"

// RelationType separates server-maintained structural relations (parent_child,
// sibling) from user-created references.
type RelationType string

const (
	RelationParentChild RelationType = "parent_child"
	RelationSibling     RelationType = "sibling"
	RelationReference   RelationType = "reference"
)

// DependencyType refines a reference relationship.
type DependencyType string

const (
	DepTypeData      DependencyType = "data"
	DepTypeInterface DependencyType = "interface"
	DepTypeConfig    DependencyType = "config"
)

type Relationship struct {
	ID             string          `json:"id"`
	FromID         string          `json:"from_id"`
	ToID           string          `json:"to_id"`
	Type           RelationType    `json:"type"`
	DependencyType *DependencyType `json:"dependency_type,omitempty"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type CreateRelationshipRequest struct {
	FromID         string          `json:"from_id" validate:"required"`
	ToID           string          `json:"to_id" validate:"required,nefield=FromID"`
	Type           RelationType    `json:"type" validate:"required,eq=reference"`
	DependencyType *DependencyType `json:"dependency_type,omitempty" validate:"required,deptype"`
	Description    string          `json:"description,omitempty" validate:"max=500"`
}

type ReferenceStatus string

const (
	RefStatusActive   ReferenceStatus = "active"
	RefStatusOutdated ReferenceStatus = "outdated"
	RefStatusBroken   ReferenceStatus = "broken"
)

// Reference links a task to a location inside a document. It is independent of the
// document tree and of document-to-document relationships.
type Reference struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	DocumentID string          `json:"document_id"`
	Anchor     *string         `json:"anchor,omitempty"`
	Context    *string         `json:"context,omitempty"`
	Status     ReferenceStatus `json:"status"`
	Version    int             `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type CreateReferenceRequest struct {
	TaskID     string  `json:"task_id" validate:"required"`
	DocumentID string  `json:"document_id" validate:"required"`
	Anchor     *string `json:"anchor,omitempty"`
	Context    *string `json:"context,omitempty"`
}

// AnalysisMode restricts an impact analysis to some relation directions.
type AnalysisMode string

const (
	ModeParents      AnalysisMode = "parents"
	ModeChildren     AnalysisMode = "children"
	ModeReferences   AnalysisMode = "references"
	ModeDependencies AnalysisMode = "dependencies"
	ModeAll          AnalysisMode = "all"
)

// ImpactResponse is the raw impact analysis the server returns.
type ImpactResponse struct {
	NodeID       string              `json:"node_id"`
	Parents      []string            `json:"parents"`
	Children     []string            `json:"children"`
	References   []string            `json:"references"`
	Dependencies []string            `json:"dependencies"`
	Depth        map[string]int      `json:"depth"`
	Paths        map[string][]string `json:"paths,omitempty"`
}

type SearchRequest struct {
	Query         string   `json:"query"`
	MaxResults    int      `json:"max_results,omitempty"`
	DocumentTypes []string `json:"document_types,omitempty"`
	ContextChars  int      `json:"context_chars,omitempty"`
}

type SearchHit struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Score      int       `json:"score"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TagTarget addresses the content a tag snapshots: a task document section when
// DocType is set, otherwise the task's execution plan.
type TagTarget struct {
	ProjectID string
	TaskID    string
	DocType   string
}

func (t TagTarget) IsExecutionPlan() bool {
	return t.DocType == ""
}

type CreateTagRequest struct {
	TagName string `json:"tag_name" validate:"required,tagname"`
}

type Tag struct {
	TagName   string    `json:"tag_name"`
	CreatedAt time.Time `json:"created_at"`
	MD5Hash   string    `json:"md5_hash"`
	FileSize  int64     `json:"file_size"`
	Creator   string    `json:"creator"`
}

// TagSwitch reports the outcome of switching to a tag. NeedConfirm is set when the
// current content is not captured by any tag and the switch was not forced.
type TagSwitch struct {
	Switched    bool   `json:"switched"`
	NeedConfirm bool   `json:"need_confirm"`
	TargetTag   string `json:"target_tag"`
	CurrentMD5  string `json:"current_md5,omitempty"`
	Warning     string `json:"warning,omitempty"`
}
