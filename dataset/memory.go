// Package dataset provides in-memory ground-truth tables.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/snow-ghost/skillforge/core"
)

// Memory is an in-memory core.Dataset. Row ids are positions in the table.
type Memory struct {
	records []core.Record

	mu  sync.Mutex
	rng *rand.Rand
}

var _ core.Dataset = (*Memory)(nil)

// FromRecords builds a dataset over copies of records.
func FromRecords(records ...core.Record) *Memory {
	rows := make([]core.Record, len(records))
	for i, r := range records {
		rows[i] = r.Clone()
	}
	return &Memory{
		records: rows,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1)),
	}
}

// LoadCSV reads a CSV file whose first row names the columns.
func LoadCSV(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return ds, nil
}

// ReadCSV parses CSV with a header row. Every value is a string.
func ReadCSV(r io.Reader) (*Memory, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.ErrEmptyDataset
	}
	if err != nil {
		return nil, err
	}

	var records []core.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(core.Record, len(header))
		for i, name := range header {
			rec[name] = row[i]
		}
		records = append(records, rec)
	}
	return FromRecords(records...), nil
}

// SetRand replaces the sampling source.
func (m *Memory) SetRand(r *rand.Rand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rng = r
}

func (m *Memory) Len() int { return len(m.records) }

// All returns every row.
func (m *Memory) All() core.Batch {
	return core.NewBatch(m.records...).Clone()
}

// Sample draws n rows uniformly without replacement, returned in id order.
// n <= 0 or n >= Len returns the whole table.
func (m *Memory) Sample(ctx context.Context, n int) (core.Batch, error) {
	if err := ctx.Err(); err != nil {
		return core.Batch{}, err
	}
	if len(m.records) == 0 {
		return core.Batch{}, core.ErrEmptyDataset
	}
	if n <= 0 || n >= len(m.records) {
		return m.All(), nil
	}

	m.mu.Lock()
	ids := m.rng.Perm(len(m.records))[:n]
	m.mu.Unlock()
	slices.Sort(ids)

	out := core.Batch{
		Index:   ids,
		Records: make([]core.Record, n),
	}
	for i, id := range ids {
		out.Records[i] = m.records[id].Clone()
	}
	return out, nil
}

// Column returns a column in row id order.
func (m *Memory) Column(name string) ([]any, error) {
	found := false
	col := make([]any, len(m.records))
	for i, r := range m.records {
		if v, ok := r[name]; ok {
			col[i] = v
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, name)
	}
	return col, nil
}
