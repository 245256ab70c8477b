package environment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/skills"
)

const (
	DefaultCorrect   = "the answer is correct"
	DefaultIncorrect = "the answer is incorrect"
)

// Static grades predictions against fixed ground-truth columns of a dataset.
type Static struct {
	Dataset core.Dataset
	// GroundTruthColumns maps a skill output to the column holding its answer.
	GroundTruthColumns map[string]string
	Correct            string
	Incorrect          string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewStatic creates a static environment over ds.
func NewStatic(ds core.Dataset, groundTruth map[string]string) *Static {
	return &Static{
		Dataset:            ds,
		GroundTruthColumns: groundTruth,
		Correct:            DefaultCorrect,
		Incorrect:          DefaultIncorrect,
		rng:                newRand(),
	}
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 2))
}

// SetRand replaces the source used to subsample feedback rows.
func (e *Static) SetRand(r *rand.Rand) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng = r
}

// GetDataBatch samples batchSize rows; batchSize <= 0 returns the whole dataset.
func (e *Static) GetDataBatch(ctx context.Context, batchSize int) (core.Batch, error) {
	return e.Dataset.Sample(ctx, batchSize)
}

// GetFeedback grades every skill output that has a ground-truth column.
// numFeedbacks > 0 grades only a random subsample of that many rows.
func (e *Static) GetFeedback(ctx context.Context, set *skills.Set, predictions core.Batch, numFeedbacks int) (*Feedback, error) {
	var outputs []string
	for _, o := range set.Outputs() {
		outputs = append(outputs, o.Field)
	}
	return e.grade(ctx, outputs, predictions, numFeedbacks)
}

func (e *Static) grade(ctx context.Context, outputs []string, predictions core.Batch, numFeedbacks int) (*Feedback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions := e.positions(predictions.Len(), numFeedbacks)
	index := make([]int, len(positions))
	for i, p := range positions {
		index[i] = predictions.ID(p)
	}
	fb := newFeedback(index)

	for _, output := range outputs {
		gtColumn, ok := e.GroundTruthColumns[output]
		if !ok {
			continue
		}
		expected, err := e.expected(predictions, positions, gtColumn)
		if err != nil {
			return nil, fmt.Errorf("ground truth for %s: %w", output, err)
		}

		matches := make([]bool, len(positions))
		texts := make([]string, len(positions))
		for i, p := range positions {
			got := strings.TrimSpace(predictions.Row(p).String(output))
			matches[i] = got == expected[i]
			texts[i] = e.text(matches[i])
		}
		fb.Columns = append(fb.Columns, output)
		fb.Match[output] = matches
		fb.Text[output] = texts
		fb.Expected[output] = expected
	}
	return fb, nil
}

// expected reads the ground truth from the prediction row when present and
// from the dataset column otherwise.
func (e *Static) expected(predictions core.Batch, positions []int, column string) ([]string, error) {
	var dsColumn []any
	out := make([]string, len(positions))
	for i, p := range positions {
		row := predictions.Row(p)
		if _, ok := row[column]; ok {
			out[i] = strings.TrimSpace(row.String(column))
			continue
		}
		if dsColumn == nil {
			col, err := e.Dataset.Column(column)
			if err != nil {
				return nil, err
			}
			dsColumn = col
		}
		id := predictions.ID(p)
		if id < 0 || id >= len(dsColumn) {
			return nil, fmt.Errorf("row %d outside dataset of %d rows", id, len(dsColumn))
		}
		out[i] = strings.TrimSpace(core.Record{column: dsColumn[id]}.String(column))
	}
	return out, nil
}

func (e *Static) positions(n, numFeedbacks int) []int {
	if numFeedbacks <= 0 || numFeedbacks >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	e.mu.Lock()
	if e.rng == nil {
		e.rng = newRand()
	}
	picked := e.rng.Perm(n)[:numFeedbacks]
	e.mu.Unlock()
	slices.Sort(picked)
	return picked
}

func (e *Static) text(match bool) string {
	switch {
	case match && e.Correct != "":
		return e.Correct
	case match:
		return DefaultCorrect
	case e.Incorrect != "":
		return e.Incorrect
	default:
		return DefaultIncorrect
	}
}
