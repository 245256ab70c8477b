package cost

import (
	"sort"
	"sync"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

// Entry is the accumulated spend of one runtime.
type Entry struct {
	Runtime  string    `json:"runtime"`
	Model    string    `json:"model"`
	Calls    int       `json:"calls"`
	Usage    llm.Usage `json:"usage"`
	Cost     float64   `json:"cost"`
	Currency string    `json:"currency"`
}

// Ledger aggregates usage and cost per runtime. It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Add records one call.
func (l *Ledger) Add(runtime, model string, res CostResult) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[runtime]
	if !ok {
		e = &Entry{Runtime: runtime, Model: model, Currency: res.Currency}
		l.entries[runtime] = e
	}
	e.Calls++
	e.Usage.PromptTokens += res.InputTokens
	e.Usage.CompletionTokens += res.OutputTokens
	e.Usage.TotalTokens += res.TotalTokens
	e.Cost = round6(e.Cost + res.TotalCost)
}

// Entries returns a snapshot sorted by runtime name.
func (l *Ledger) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Runtime < out[j].Runtime })
	return out
}

// Total returns the summed cost over all runtimes.
func (l *Ledger) Total() float64 {
	total := 0.0
	for _, e := range l.Entries() {
		total += e.Cost
	}
	return round6(total)
}
