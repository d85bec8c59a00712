// Package impact scores the server's raw impact analysis for display.
package impact

import (
	"fmt"
	"math"
	"sort"

	"docconsole/internal/docs"
)

type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Kind is the relation through which a node is affected.
type Kind string

const (
	KindChild      Kind = "child"
	KindParent     Kind = "parent"
	KindReference  Kind = "reference"
	KindDependency Kind = "dependency"
)

var kindOrder = map[Kind]int{KindChild: 0, KindParent: 1, KindReference: 2, KindDependency: 3}

// Weights are the heuristic base probabilities per kind and the per-depth decay.
type Weights struct {
	Child      float64 `yaml:"child"`
	Parent     float64 `yaml:"parent"`
	Reference  float64 `yaml:"reference"`
	Dependency float64 `yaml:"dependency"`
	Decay      float64 `yaml:"decay"`
	Min        float64 `yaml:"min"`
	Max        float64 `yaml:"max"`
}

func DefaultWeights() Weights {
	return Weights{
		Child:      0.85,
		Parent:     0.65,
		Reference:  0.55,
		Dependency: 0.50,
		Decay:      0.1,
		Min:        0.2,
		Max:        0.95,
	}
}

func (w Weights) base(kind Kind) float64 {
	switch kind {
	case KindChild:
		return w.Child
	case KindParent:
		return w.Parent
	case KindReference:
		return w.Reference
	default:
		return w.Dependency
	}
}

type Result struct {
	AffectedNodeID    string  `json:"affected_node_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	ImpactLevel       Level   `json:"impact_level"`
	ChangeProbability float64 `json:"change_probability"`
	RelationshipType  Kind    `json:"relationship_type"`
	Depth             int     `json:"depth"`
}

// Score levels, scores, de-duplicates and sorts the affected nodes. titles maps ids
// to display titles; ids without a title are shown as-is. Task ids never appear.
func Score(raw docs.ImpactResponse, titles map[string]string, w Weights) []Result {
	groups := []struct {
		kind Kind
		ids  []string
	}{
		{KindChild, raw.Children},
		{KindParent, raw.Parents},
		{KindReference, raw.References},
		{KindDependency, raw.Dependencies},
	}

	type key struct {
		kind Kind
		id   string
	}
	seen := make(map[key]bool)
	results := []Result{}
	for _, group := range groups {
		for _, id := range group.ids {
			k := key{group.kind, id}
			if id == "" || docs.IsTaskID(id) || seen[k] {
				continue
			}
			seen[k] = true
			depth := raw.Depth[id]
			title := titles[id]
			if title == "" {
				title = id
			}
			results = append(results, Result{
				AffectedNodeID:    id,
				Title:             title,
				Description:       describe(group.kind, depth),
				ImpactLevel:       levelFor(group.kind, depth),
				ChangeProbability: probability(w, group.kind, depth),
				RelationshipType:  group.kind,
				Depth:             depth,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.ChangeProbability != b.ChangeProbability {
			return a.ChangeProbability > b.ChangeProbability
		}
		if a.RelationshipType != b.RelationshipType {
			return kindOrder[a.RelationshipType] < kindOrder[b.RelationshipType]
		}
		return a.AffectedNodeID < b.AffectedNodeID
	})
	return results
}

func levelFor(kind Kind, depth int) Level {
	switch kind {
	case KindChild:
		if depth == 0 {
			return LevelHigh
		}
		return LevelMedium
	case KindParent, KindReference:
		if depth == 0 {
			return LevelMedium
		}
		return LevelLow
	default:
		if depth > 0 {
			return LevelMedium
		}
		return LevelLow
	}
}

func probability(w Weights, kind Kind, depth int) float64 {
	p := w.base(kind) - w.Decay*float64(depth)
	p = math.Max(w.Min, math.Min(w.Max, p))
	return math.Round(p*100) / 100
}

func describe(kind Kind, depth int) string {
	var relation string
	switch kind {
	case KindChild:
		relation = "child document"
	case KindParent:
		relation = "parent document"
	case KindReference:
		relation = "referencing document"
	default:
		relation = "dependent document"
	}
	if depth == 0 {
		return fmt.Sprintf("Direct %s", relation)
	}
	return fmt.Sprintf("Indirect %s (%d levels away)", relation, depth)
}
