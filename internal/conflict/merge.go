package conflict

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Strategy string

const (
	StrategyMerge          Strategy = "merge"
	StrategyAcceptCurrent  Strategy = "accept_current"
	StrategyAcceptIncoming Strategy = "accept_incoming"
	StrategyManual         Strategy = "manual"
)

// MergeContent produces the content to persist for a resolution strategy. merge
// replays the base-to-incoming changes onto current; hunks that no longer apply
// are dropped, so current wins where both sides touched the same text.
func MergeContent(strategy Strategy, content Content, manual string) (string, error) {
	switch strategy {
	case StrategyAcceptCurrent:
		return content.Current, nil
	case StrategyAcceptIncoming:
		return content.Incoming, nil
	case StrategyManual:
		return manual, nil
	case StrategyMerge:
		dmp := diffmatchpatch.New()
		patches := dmp.PatchMake(content.Base, content.Incoming)
		merged, _ := dmp.PatchApply(patches, content.Current)
		return merged, nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q", strategy)
	}
}

// LineStats summarises a line diff between two texts.
type LineStats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
	Total   int `json:"total"`
}

type DiffLine struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// LineDiff compares from and to line by line.
func LineDiff(from, to string) ([]DiffLine, LineStats) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []DiffLine
	var stats LineStats
	for _, d := range diffs {
		op := "equal"
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = "add"
		case diffmatchpatch.DiffDelete:
			op = "delete"
		}
		for _, line := range splitLines(d.Text) {
			out = append(out, DiffLine{Op: op, Text: line})
			switch op {
			case "add":
				stats.Added++
			case "delete":
				stats.Deleted++
			}
		}
	}
	stats.Total = stats.Added + stats.Deleted
	return out, stats
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
