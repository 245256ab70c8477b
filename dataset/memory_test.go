package dataset

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/skillforge/core"
)

const sentimentCSV = `text,label
I love it,positive
"Terrible, never again",negative
It's fine,neutral
`

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sentimentCSV))
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())

	all := ds.All()
	assert.Equal(t, []int{0, 1, 2}, all.Index)
	assert.Equal(t, "Terrible, never again", all.Row(1)["text"])

	labels, err := ds.Column("label")
	require.NoError(t, err)
	assert.Equal(t, []any{"positive", "negative", "neutral"}, labels)

	_, err = ds.Column("missing")
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, core.ErrEmptyDataset)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sentimentCSV), 0o644))

	ds, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	_, err = LoadCSV(filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}

func TestSample(t *testing.T) {
	records := make([]core.Record, 20)
	for i := range records {
		records[i] = core.Record{"n": i}
	}
	ds := FromRecords(records...)
	ds.SetRand(rand.New(rand.NewPCG(7, 7)))

	batch, err := ds.Sample(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 5, batch.Len())

	seen := map[int]bool{}
	for i, id := range batch.Index {
		assert.False(t, seen[id], "sampled with replacement")
		seen[id] = true
		assert.Equal(t, id, batch.Row(i)["n"])
		if i > 0 {
			assert.Less(t, batch.Index[i-1], id)
		}
	}

	whole, err := ds.Sample(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 20, whole.Len())

	whole, err = ds.Sample(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 20, whole.Len())
}

func TestSample_DoesNotShareRows(t *testing.T) {
	ds := FromRecords(core.Record{"a": 1})
	batch, err := ds.Sample(context.Background(), 0)
	require.NoError(t, err)
	batch.Row(0)["a"] = 2

	col, err := ds.Column("a")
	require.NoError(t, err)
	assert.Equal(t, []any{1}, col)
}

func TestSample_EmptyAndCanceled(t *testing.T) {
	_, err := FromRecords().Sample(context.Background(), 1)
	assert.ErrorIs(t, err, core.ErrEmptyDataset)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FromRecords(core.Record{"a": 1}).Sample(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
