package diff

import (
	"fmt"
	"strings"
)

// Result represents the result of comparing two contents
type Result struct {
	// Changes contains the line-by-line diff
	Changes []Change `json:"lines"`
	// Unified is the traditional unified diff format
	Unified string `json:"unified_diff"`
	// HasChanges indicates if there are any differences
	HasChanges bool `json:"has_changes"`
}

// Change represents a single line in the diff
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Text    string     `json:"text"`
	OldLine int        `json:"old_line,omitempty"`
	NewLine int        `json:"new_line,omitempty"`
}

// ChangeKind represents the type of diff line
type ChangeKind string

const (
	Unchanged ChangeKind = "unchanged"
	Added     ChangeKind = "added"
	Removed   ChangeKind = "removed"
)

// Stats contains summary statistics about the diff
type Stats struct {
	Additions     int `json:"additions"`
	Deletions     int `json:"deletions"`
	Modifications int `json:"modifications"`
}

// Engine computes line-level diffs. It holds no state between calls.
type Engine struct {
	// Normalize is applied to both inputs before splitting into lines
	Normalize func(string) string
}

// NewEngine returns an engine that splits HTML at block boundaries
func NewEngine() *Engine {
	return &Engine{Normalize: BreakBlocks}
}

var defaultEngine = NewEngine()

// Compute diffs two contents with the default engine
func Compute(oldContent, newContent string) *Result {
	return defaultEngine.Diff(oldContent, newContent)
}

// ComputeStats returns only the aggregate statistics for two contents
func ComputeStats(oldContent, newContent string) Stats {
	return Compute(oldContent, newContent).Stats()
}

// Diff generates a line diff between two contents
func (e *Engine) Diff(oldContent, newContent string) *Result {
	result := &Result{
		Changes: []Change{},
	}

	if e.Normalize != nil {
		oldContent = e.Normalize(oldContent)
		newContent = e.Normalize(newContent)
	}

	if oldContent == newContent {
		result.Changes = unchangedLines(oldContent)
		return result
	}

	table := newLineTable()
	oldIDs := table.encode(splitLines(oldContent))
	newIDs := table.encode(splitLines(newContent))

	edits := newAligner(len(table.lines)).align(oldIDs, newIDs, make([]edit, 0, max(len(oldIDs), len(newIDs))))
	result.Changes = lineChanges(edits, table)

	for _, c := range result.Changes {
		if c.Kind != Unchanged {
			result.HasChanges = true
			break
		}
	}
	if result.HasChanges {
		result.Unified = unified(result.Changes)
	}

	return result
}

// Stats pairs each removed run with the added run that follows it. The
// overlapping part counts as modifications, the remainder as pure
// additions or deletions.
func (r *Result) Stats() Stats {
	var stats Stats
	removed, added := 0, 0

	flush := func() {
		mods := min(removed, added)
		stats.Modifications += mods
		stats.Additions += added - mods
		stats.Deletions += removed - mods
		removed, added = 0, 0
	}

	for _, c := range r.Changes {
		switch c.Kind {
		case Removed:
			if added > 0 {
				flush()
			}
			removed++
		case Added:
			added++
		default:
			flush()
		}
	}
	flush()

	return stats
}

// CompareVersions compares two contents and labels the unified diff header
func CompareVersions(oldContent, newContent, oldLabel, newLabel string) *Result {
	result := Compute(oldContent, newContent)

	if result.HasChanges {
		result.Unified = strings.Replace(result.Unified, "--- old", "--- "+oldLabel, 1)
		result.Unified = strings.Replace(result.Unified, "+++ new", "+++ "+newLabel, 1)
	}

	return result
}

// lineChanges numbers an edit script
func lineChanges(edits []edit, table *lineTable) []Change {
	changes := make([]Change, 0, len(edits))

	oldLine := 1
	newLine := 1

	for _, e := range edits {
		text := table.lines[e.line]
		switch e.kind {
		case Unchanged:
			changes = append(changes, Change{Kind: Unchanged, Text: text, OldLine: oldLine, NewLine: newLine})
			oldLine++
			newLine++
		case Removed:
			changes = append(changes, Change{Kind: Removed, Text: text, OldLine: oldLine})
			oldLine++
		case Added:
			changes = append(changes, Change{Kind: Added, Text: text, NewLine: newLine})
			newLine++
		}
	}

	return changes
}

func unchangedLines(content string) []Change {
	lines := splitLines(content)
	changes := make([]Change, 0, len(lines))
	for i, text := range lines {
		changes = append(changes, Change{Kind: Unchanged, Text: text, OldLine: i + 1, NewLine: i + 1})
	}
	return changes
}

// unified creates a unified diff format string
func unified(changes []Change) string {
	var sb strings.Builder

	sb.WriteString("--- old\n")
	sb.WriteString("+++ new\n")

	for _, c := range changes {
		switch c.Kind {
		case Unchanged:
			sb.WriteString(fmt.Sprintf(" %s\n", c.Text))
		case Removed:
			sb.WriteString(fmt.Sprintf("-%s\n", c.Text))
		case Added:
			sb.WriteString(fmt.Sprintf("+%s\n", c.Text))
		}
	}

	return sb.String()
}

// splitLines splits text on newlines, dropping the empty element left by a trailing newline
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
