package core

import (
	"fmt"
	"sort"
	"time"
)

// Record is a single row: field name to scalar value.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the field formatted with fmt.Sprint, or "" when absent.
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Field is one entry of an output template.
type Field struct {
	Name        string `json:"name" yaml:"name" koanf:"name"`
	Description string `json:"description" yaml:"description" koanf:"description"`
}

// FieldNames returns the names of the given fields in order.
func FieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Templates groups the three templates of one invocation.
type Templates struct {
	Instruction string
	Input       string
	Output      []Field
}

// Budget bounds a single LLM call.
type Budget struct {
	Timeout time.Duration
}

// Batch is an ordered set of records. Index holds the stable row id of each
// record and is used to align derived columns back onto their inputs.
type Batch struct {
	Index   []int
	Records []Record
}

// NewBatch creates a batch with row ids 0..n-1.
func NewBatch(records ...Record) Batch {
	idx := make([]int, len(records))
	for i := range records {
		idx[i] = i
	}
	return Batch{Index: idx, Records: records}
}

// Len returns the number of rows.
func (b Batch) Len() int { return len(b.Records) }

// Row returns the record at position i.
func (b Batch) Row(i int) Record { return b.Records[i] }

// ID returns the row id at position i.
func (b Batch) ID(i int) int { return b.Index[i] }

// Position returns the position of the row with the given id, or -1.
func (b Batch) Position(id int) int {
	for i, v := range b.Index {
		if v == id {
			return i
		}
	}
	return -1
}

// Clone copies the batch and each of its records.
func (b Batch) Clone() Batch {
	out := Batch{
		Index:   make([]int, len(b.Index)),
		Records: make([]Record, len(b.Records)),
	}
	copy(out.Index, b.Index)
	for i, r := range b.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// Column returns the values of a field in row order. Missing values are nil.
func (b Batch) Column(name string) []any {
	col := make([]any, len(b.Records))
	for i, r := range b.Records {
		col[i] = r[name]
	}
	return col
}

// Columns returns the sorted union of field names across all rows.
func (b Batch) Columns() []string {
	seen := map[string]struct{}{}
	for _, r := range b.Records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Subset returns the rows at the given positions, keeping their ids.
func (b Batch) Subset(positions []int) Batch {
	out := Batch{
		Index:   make([]int, 0, len(positions)),
		Records: make([]Record, 0, len(positions)),
	}
	for _, p := range positions {
		out.Index = append(out.Index, b.Index[p])
		out.Records = append(out.Records, b.Records[p])
	}
	return out
}

// Slice returns rows [from, to).
func (b Batch) Slice(from, to int) Batch {
	return Batch{Index: b.Index[from:to], Records: b.Records[from:to]}
}

// Concat appends other after b.
func (b Batch) Concat(other Batch) Batch {
	out := Batch{
		Index:   make([]int, 0, b.Len()+other.Len()),
		Records: make([]Record, 0, b.Len()+other.Len()),
	}
	out.Index = append(append(out.Index, b.Index...), other.Index...)
	out.Records = append(append(out.Records, b.Records...), other.Records...)
	return out
}

// Merge overlays the fields of other onto a copy of b, aligning rows by id.
// Rows of b with no counterpart in other are kept unchanged.
func (b Batch) Merge(other Batch) Batch {
	byID := make(map[int]Record, other.Len())
	for i, id := range other.Index {
		byID[id] = other.Records[i]
	}
	out := b.Clone()
	for i, id := range out.Index {
		extra, ok := byID[id]
		if !ok {
			continue
		}
		for k, v := range extra {
			out.Records[i][k] = v
		}
	}
	return out
}

// RenameField moves a field to a new name in every row that has it.
func (b Batch) RenameField(from, to string) {
	if from == to {
		return
	}
	for _, r := range b.Records {
		if v, ok := r[from]; ok {
			delete(r, from)
			r[to] = v
		}
	}
}
