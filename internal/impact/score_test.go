package impact

import (
	"testing"

	"docconsole/internal/docs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreDirectChild(t *testing.T) {
	results := Score(docs.ImpactResponse{
		Children: []string{"X"},
		Depth:    map[string]int{"X": 0},
	}, nil, DefaultWeights())

	require.Len(t, results, 1)
	assert.Equal(t, LevelHigh, results[0].ImpactLevel)
	assert.Equal(t, 0.85, results[0].ChangeProbability)
	assert.Equal(t, "X", results[0].Title)
}

func TestScoreDistantParent(t *testing.T) {
	results := Score(docs.ImpactResponse{
		Parents: []string{"Y"},
		Depth:   map[string]int{"Y": 2},
	}, map[string]string{"Y": "Architecture"}, DefaultWeights())

	require.Len(t, results, 1)
	assert.Equal(t, LevelLow, results[0].ImpactLevel)
	assert.Equal(t, 0.45, results[0].ChangeProbability)
	assert.Equal(t, "Architecture", results[0].Title)
}

func TestScoreLevels(t *testing.T) {
	tests := []struct {
		kind  Kind
		depth int
		want  Level
	}{
		{KindChild, 0, LevelHigh},
		{KindChild, 1, LevelMedium},
		{KindParent, 0, LevelMedium},
		{KindParent, 1, LevelLow},
		{KindReference, 0, LevelMedium},
		{KindReference, 3, LevelLow},
		{KindDependency, 0, LevelLow},
		{KindDependency, 1, LevelMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levelFor(tt.kind, tt.depth), "%s at depth %d", tt.kind, tt.depth)
	}
}

func TestScoreClamps(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, 0.2, probability(w, KindDependency, 9))
	w.Child = 1.2
	assert.Equal(t, 0.95, probability(w, KindChild, 0))
}

func TestScoreDedupSortAndTaskExclusion(t *testing.T) {
	results := Score(docs.ImpactResponse{
		Children:     []string{"c", "c", "task_1"},
		Parents:      []string{"p"},
		References:   []string{"c", "task_2"},
		Dependencies: []string{"d"},
		Depth:        map[string]int{"c": 0, "p": 0, "d": 1},
	}, nil, DefaultWeights())

	var got []string
	for _, r := range results {
		assert.NotContains(t, r.AffectedNodeID, "task_")
		got = append(got, string(r.RelationshipType)+":"+r.AffectedNodeID)
	}
	// child .85, parent .65, reference .55, dependency .40
	assert.Equal(t, []string{"child:c", "parent:p", "reference:c", "dependency:d"}, got)
}

func TestScoreTieBreaksByKindThenID(t *testing.T) {
	w := DefaultWeights()
	w.Parent = 0.55
	results := Score(docs.ImpactResponse{
		References: []string{"r2", "r1"},
		Parents:    []string{"p"},
	}, nil, w)

	var got []string
	for _, r := range results {
		got = append(got, r.AffectedNodeID)
	}
	assert.Equal(t, []string{"p", "r1", "r2"}, got)
}

func TestScoreEmpty(t *testing.T) {
	results := Score(docs.ImpactResponse{}, nil, DefaultWeights())
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
