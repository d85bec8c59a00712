package docs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPlaceholderTitle(t *testing.T) {
	for _, title := range []string{"", "  ", "Untitled", "untitled document", " New Document ", "新文档", "未命名文档"} {
		assert.True(t, IsPlaceholderTitle(title), "title %q", title)
	}
	for _, title := range []string{"Architecture", "Untitled plan", "API Design"} {
		assert.False(t, IsPlaceholderTitle(title), "title %q", title)
	}
}

func TestIsTaskID(t *testing.T) {
	assert.True(t, IsTaskID("task_42"))
	assert.False(t, IsTaskID("doc_task_42"))
	assert.False(t, IsTaskID("doc1"))
}

func TestValidateRelationship(t *testing.T) {
	iface := DepTypeInterface
	ok := CreateRelationshipRequest{FromID: "doc2", ToID: "doc1", Type: RelationReference, DependencyType: &iface}
	require.NoError(t, Validate(ok))

	tests := []struct {
		name  string
		req   CreateRelationshipRequest
		field string
		code  string
	}{
		{
			name:  "self reference",
			req:   CreateRelationshipRequest{FromID: "doc1", ToID: "doc1", Type: RelationReference, DependencyType: &iface},
			field: "to_id",
			code:  "SELF_REFERENCE",
		},
		{
			name:  "missing from",
			req:   CreateRelationshipRequest{ToID: "doc1", Type: RelationReference, DependencyType: &iface},
			field: "from_id",
			code:  "VALIDATION_ERROR",
		},
		{
			name:  "structural type",
			req:   CreateRelationshipRequest{FromID: "doc2", ToID: "doc1", Type: RelationSibling, DependencyType: &iface},
			field: "type",
			code:  "INVALID_RELATION_TYPE",
		},
		{
			name:  "missing dependency type",
			req:   CreateRelationshipRequest{FromID: "doc2", ToID: "doc1", Type: RelationReference},
			field: "dependency_type",
			code:  "MISSING_DEPENDENCY_TYPE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.code, verr.Code)
			assert.NotEmpty(t, verr.Reason)
		})
	}
}

func TestValidateUnknownDependencyType(t *testing.T) {
	bogus := DependencyType("runtime")
	err := Validate(CreateRelationshipRequest{FromID: "a", ToID: "b", Type: RelationReference, DependencyType: &bogus})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dependency_type", verr.Field)
}

func TestValidateCreateNode(t *testing.T) {
	require.NoError(t, Validate(CreateNodeRequest{Title: "Design", Type: TypeTechDesign}))

	err := Validate(CreateNodeRequest{Title: "Design", Type: "diagram"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
}

func TestValidateTagName(t *testing.T) {
	require.NoError(t, Validate(CreateTagRequest{TagName: "v1_0-rc"}))
	for _, name := range []string{"", "has space", "v1.0"} {
		assert.Error(t, Validate(CreateTagRequest{TagName: name}), "tag %q", name)
	}
}
