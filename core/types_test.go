package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatch_AssignsSequentialIDs(t *testing.T) {
	b := NewBatch(Record{"a": 1}, Record{"a": 2}, Record{"a": 3})
	require.Equal(t, 3, b.Len())
	assert.Equal(t, []int{0, 1, 2}, b.Index)
	assert.Equal(t, 2, b.Row(1)["a"])
	assert.Equal(t, 1, b.Position(1))
	assert.Equal(t, -1, b.Position(7))
}

func TestBatch_CloneIsDeep(t *testing.T) {
	b := NewBatch(Record{"a": 1})
	c := b.Clone()
	c.Records[0]["a"] = 2
	c.Index[0] = 9

	assert.Equal(t, 1, b.Row(0)["a"])
	assert.Equal(t, 0, b.ID(0))
}

func TestBatch_SubsetKeepsIDs(t *testing.T) {
	b := NewBatch(Record{"a": "x"}, Record{"a": "y"}, Record{"a": "z"})
	s := b.Subset([]int{2, 0})

	assert.Equal(t, []int{2, 0}, s.Index)
	assert.Equal(t, []any{"z", "x"}, s.Column("a"))
}

func TestBatch_ConcatAndSlice(t *testing.T) {
	b := NewBatch(Record{"a": 1}, Record{"a": 2}, Record{"a": 3})
	joined := b.Slice(0, 1).Concat(b.Slice(1, 3))

	assert.Equal(t, b.Index, joined.Index)
	assert.Equal(t, b.Column("a"), joined.Column("a"))
}

func TestBatch_MergeAlignsByID(t *testing.T) {
	in := Batch{Index: []int{10, 20}, Records: []Record{{"text": "a"}, {"text": "b"}}}
	out := Batch{Index: []int{20, 10}, Records: []Record{{"label": "B"}, {"label": "A"}}}

	merged := in.Merge(out)

	assert.Equal(t, []int{10, 20}, merged.Index)
	assert.Equal(t, Record{"text": "a", "label": "A"}, merged.Row(0))
	assert.Equal(t, Record{"text": "b", "label": "B"}, merged.Row(1))
	_, touched := in.Row(0)["label"]
	assert.False(t, touched, "merge must not mutate its receiver")
}

func TestBatch_RenameField(t *testing.T) {
	b := NewBatch(Record{"label": "x"}, Record{"other": 1})
	b.RenameField("label", "sentiment")

	assert.Equal(t, Record{"sentiment": "x"}, b.Row(0))
	assert.Equal(t, Record{"other": 1}, b.Row(1))
	assert.Equal(t, []string{"other", "sentiment"}, b.Columns())
}

func TestRecord_String(t *testing.T) {
	r := Record{"n": 3, "s": "x", "nil": nil}
	assert.Equal(t, "3", r.String("n"))
	assert.Equal(t, "x", r.String("s"))
	assert.Equal(t, "", r.String("nil"))
	assert.Equal(t, "", r.String("missing"))
}

func TestInvocationError_UnwrapsProviderError(t *testing.T) {
	base := assert.AnError
	err := error(&InvocationError{Runtime: "student", Model: "m", Err: base})

	assert.ErrorIs(t, err, base)
	assert.True(t, IsInvocationError(err))
	assert.False(t, IsTemplateError(err))
	assert.Contains(t, err.Error(), "student")
}
