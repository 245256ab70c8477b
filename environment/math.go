package environment

import (
	"context"
	"slices"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/skills"
)

// Math grades only the final output of a pipeline and attributes its verdict
// to every skill of the row.
type Math struct {
	*Static
}

// NewMath creates a math environment. groundTruth must map the last skill
// output to its answer column.
func NewMath(ds core.Dataset, groundTruth map[string]string) *Math {
	return &Math{Static: NewStatic(ds, groundTruth)}
}

func (e *Math) GetFeedback(ctx context.Context, set *skills.Set, predictions core.Batch, numFeedbacks int) (*Feedback, error) {
	outputs := set.Outputs()
	last := outputs[len(outputs)-1].Field

	fb, err := e.grade(ctx, []string{last}, predictions, numFeedbacks)
	if err != nil {
		return nil, err
	}
	if _, graded := fb.Match[last]; !graded {
		return fb, nil
	}

	fb.Columns = fb.Columns[:0]
	for _, o := range outputs {
		fb.Columns = append(fb.Columns, o.Field)
		if o.Field == last {
			continue
		}
		fb.Match[o.Field] = slices.Clone(fb.Match[last])
		fb.Text[o.Field] = slices.Clone(fb.Text[last])
		fb.Expected[o.Field] = slices.Clone(fb.Expected[last])
	}
	return fb, nil
}
