package diff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultContextLines is the number of unchanged lines shown around each
// hunk in a unified diff.
const DefaultContextLines = 3

// Changes describes the differences between two content snapshots.
// It is computed pairwise and never persisted; callers decide whether to
// store, report, or discard it.
type Changes struct {
	// SimilarityRatio measures how much of the two snapshots is shared,
	// from 0.0 (fully disjoint line sets) to 1.0 (identical).
	SimilarityRatio float64 `json:"similarity_ratio"`

	// AddedLines are lines present only in the current snapshot.
	AddedLines []string `json:"added_lines,omitempty"`

	// RemovedLines are lines present only in the previous snapshot.
	RemovedLines []string `json:"removed_lines,omitempty"`

	// ModifiedLines pairs a previous line with the current line that
	// replaced it at the same position.
	ModifiedLines []Modification `json:"modified_lines,omitempty"`

	// UnifiedDiff is the rendered unified diff with DefaultContextLines
	// of context. Empty when the snapshots are identical.
	UnifiedDiff string `json:"unified_diff,omitempty"`
}

// Modification is a single line rewritten in place.
type Modification struct {
	// Before is the line as it appeared in the previous snapshot.
	Before string `json:"before"`

	// After is the line that replaced it in the current snapshot.
	After string `json:"after"`
}

// PercentChanged converts the similarity ratio to a change percentage
// in [0, 100].
func (c *Changes) PercentChanged() float64 {
	return (1 - c.SimilarityRatio) * 100
}

// Summary returns a human-readable summary of the changes.
func (c *Changes) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Similarity: %.1f%%\n", c.SimilarityRatio*100)
	fmt.Fprintf(&b, "Added: %d lines\n", len(c.AddedLines))
	fmt.Fprintf(&b, "Removed: %d lines\n", len(c.RemovedLines))
	fmt.Fprintf(&b, "Modified: %d lines", len(c.ModifiedLines))
	return b.String()
}

// Detector compares page content snapshots line by line.
//
// Design decision: We compare lines rather than bytes or words because:
// 1. HTML and rendered text change in line-sized units (a headline, a price,
//    a nav entry), so line diffs match what users consider "a change".
// 2. Line counts give an intuitive magnitude for reports.
// 3. Byte-level diffs on markup are dominated by attribute noise.
type Detector struct {
	// ignoreWhitespace strips leading and trailing whitespace from each
	// line before comparison, so indentation-only changes are ignored.
	ignoreWhitespace bool

	// minChangePercent is the change percentage (0-100) at or above which
	// Significant reports true.
	minChangePercent float64
}

// NewDetector creates a Detector. ignoreWhitespace controls whether
// leading/trailing whitespace participates in the comparison, and
// minChangePercent sets the significance threshold.
func NewDetector(ignoreWhitespace bool, minChangePercent float64) *Detector {
	return &Detector{
		ignoreWhitespace: ignoreWhitespace,
		minChangePercent: minChangePercent,
	}
}

// Detect compares the current snapshot against the previous one and
// returns the full set of changes, including the rendered unified diff.
//
// The similarity ratio is the matched fraction of both line sequences:
// 1.0 for identical sequences, 0.0 when no line is shared.
func (d *Detector) Detect(current, previous string) (*Changes, error) {
	currentLines := strings.Split(current, "\n")
	previousLines := strings.Split(previous, "\n")

	if d.ignoreWhitespace {
		currentLines = stripLines(currentLines)
		previousLines = stripLines(previousLines)
	}

	matcher := difflib.NewMatcher(previousLines, currentLines)
	changes := &Changes{
		SimilarityRatio: matcher.Ratio(),
	}

	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'd':
			changes.RemovedLines = append(changes.RemovedLines, previousLines[op.I1:op.I2]...)
		case 'i':
			changes.AddedLines = append(changes.AddedLines, currentLines[op.J1:op.J2]...)
		case 'r':
			// A replace block pairs lines positionally; the unpaired
			// tail on either side is a plain removal or addition.
			n := op.I2 - op.I1
			if m := op.J2 - op.J1; m < n {
				n = m
			}
			for k := 0; k < n; k++ {
				changes.ModifiedLines = append(changes.ModifiedLines, Modification{
					Before: previousLines[op.I1+k],
					After:  currentLines[op.J1+k],
				})
			}
			changes.RemovedLines = append(changes.RemovedLines, previousLines[op.I1+n:op.I2]...)
			changes.AddedLines = append(changes.AddedLines, currentLines[op.J1+n:op.J2]...)
		}
	}

	unified, err := d.Unified(current, previous, DefaultContextLines)
	if err != nil {
		return nil, err
	}
	changes.UnifiedDiff = unified

	return changes, nil
}

// Significant reports whether the changes meet the detector's threshold:
// (1 - similarity) x 100 at or above minChangePercent.
func (d *Detector) Significant(c *Changes) bool {
	return c.PercentChanged() >= d.minChangePercent
}

// Unified renders a unified diff between the snapshots with the given
// number of context lines. A negative count falls back to the default.
// The previous snapshot is the "from" side. Identical snapshots yield
// an empty string.
//
// Unlike Detect, the diff text always shows lines verbatim; whitespace
// stripping only affects comparison, not presentation.
func (d *Detector) Unified(current, previous string, contextLines int) (string, error) {
	if contextLines < 0 {
		contextLines = DefaultContextLines
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: "previous",
		ToFile:   "current",
		Context:  contextLines,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render unified diff: %w", err)
	}
	return text, nil
}

// stripLines returns a copy of lines with surrounding whitespace removed.
func stripLines(lines []string) []string {
	stripped := make([]string, len(lines))
	for i, line := range lines {
		stripped[i] = strings.TrimSpace(line)
	}
	return stripped
}
