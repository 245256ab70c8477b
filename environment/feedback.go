// Package environment compares predictions with ground truth.
package environment

import (
	"github.com/snow-ghost/skillforge/skills"
)

// Feedback is the per-row verdict for every evaluated output column. All
// slices are aligned with Index, the ids of the evaluated rows.
type Feedback struct {
	Index    []int
	Columns  []string
	Match    map[string][]bool
	Text     map[string][]string
	Expected map[string][]string
}

func newFeedback(index []int) *Feedback {
	return &Feedback{
		Index:    index,
		Match:    make(map[string][]bool),
		Text:     make(map[string][]string),
		Expected: make(map[string][]string),
	}
}

// Accuracy returns the share of matching rows per column. Columns with no
// evaluated rows are omitted.
func (f *Feedback) Accuracy() map[string]float64 {
	acc := make(map[string]float64, len(f.Columns))
	for _, col := range f.Columns {
		matches := f.Match[col]
		if len(matches) == 0 {
			continue
		}
		ok := 0
		for _, m := range matches {
			if m {
				ok++
			}
		}
		acc[col] = float64(ok) / float64(len(matches))
	}
	return acc
}

// Failing returns the ids of the rows whose column did not match, in row order.
func (f *Feedback) Failing(column string) []int {
	var ids []int
	for i, m := range f.Match[column] {
		if !m {
			ids = append(ids, f.Index[i])
		}
	}
	return ids
}

// Failures pairs every failing row of column with its expected value.
func (f *Feedback) Failures(column string) []skills.Failure {
	var out []skills.Failure
	expected := f.Expected[column]
	for i, m := range f.Match[column] {
		if m {
			continue
		}
		fl := skills.Failure{ID: f.Index[i]}
		if i < len(expected) {
			fl.Expected = expected[i]
		}
		out = append(out, fl)
	}
	return out
}

// ForRow returns the verdict and feedback text of one row. ok is false when
// the row or column was not evaluated.
func (f *Feedback) ForRow(column string, id int) (match bool, text string, ok bool) {
	matches, found := f.Match[column]
	if !found {
		return false, "", false
	}
	for i, rowID := range f.Index {
		if rowID == id {
			return matches[i], f.Text[column][i], true
		}
	}
	return false, "", false
}
