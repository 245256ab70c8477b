// Package testkit holds fixtures and an evaluation runner for skill sets.
package testkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/dataset"
	"github.com/snow-ghost/skillforge/llm/mock"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/skills"
)

// Case is one labelled input. Expected maps a skill output to its answer.
type Case struct {
	Name     string
	Input    core.Record
	Expected map[string]string
}

// SentimentCases returns a fixed three-row sentiment set. The last row is
// sarcastic and is the one a naive classifier gets wrong.
func SentimentCases() []Case {
	return []Case{
		{Name: "praise", Input: core.Record{"text": "I love this phone"}, Expected: map[string]string{"sentiment": "positive"}},
		{Name: "complaint", Input: core.Record{"text": "The battery died in an hour"}, Expected: map[string]string{"sentiment": "negative"}},
		{Name: "sarcasm", Input: core.Record{"text": "Great, it broke again"}, Expected: map[string]string{"sentiment": "negative"}},
	}
}

// Dataset turns cases into a dataset whose ground-truth columns are named
// after the outputs with a "_label" suffix.
func Dataset(cases []Case) (*dataset.Memory, map[string]string) {
	groundTruth := map[string]string{}
	records := make([]core.Record, len(cases))
	for i, c := range cases {
		rec := c.Input.Clone()
		for output, want := range c.Expected {
			col := output + "_label"
			rec[col] = want
			groundTruth[output] = col
		}
		records[i] = rec
	}
	return dataset.FromRecords(records...), groundTruth
}

// Classifier answers "<field>: <label>" for the first key of answers found in
// the user message, and "<field>: unknown" otherwise. Keys are tried longest
// first.
func Classifier(field string, answers map[string]string) mock.Responder {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	return func(req llm.ChatRequest) (string, error) {
		user := req.Content(llm.RoleUser)
		for _, k := range keys {
			if strings.Contains(user, k) {
				return field + ": " + answers[k], nil
			}
		}
		return field + ": unknown", nil
	}
}

// Teacher scripts the two optimization prompts: the diagnosis returns
// reasoning and the rewrite returns newPrompt.
func Teacher(reasoning, newPrompt string) *mock.Client {
	return mock.New().
		OnSystem("You are a helpful assistant", "reasoning: "+reasoning).
		OnSystem(reasoning, "new_prompt: "+newPrompt)
}

// Runner evaluates a skill set against labelled cases.
type Runner struct{}

func NewRunner() *Runner { return &Runner{} }

// Run applies set to every case in one batch and compares each expected output.
// It returns aggregate metrics and whether every case passed.
func (r *Runner) Run(ctx context.Context, set *skills.Set, cases []Case, rt core.Runtime) (map[string]float64, bool, error) {
	metrics := map[string]float64{
		"cases_total":       0,
		"cases_passed":      0,
		"cases_failed":      0,
		"duration_ms_total": 0,
	}
	if len(cases) == 0 {
		return metrics, true, nil
	}

	records := make([]core.Record, len(cases))
	for i, c := range cases {
		records[i] = c.Input.Clone()
	}

	start := time.Now()
	out, err := set.Apply(ctx, core.NewBatch(records...), rt, "")
	metrics["duration_ms_total"] = float64(time.Since(start).Milliseconds())
	if err != nil {
		return metrics, false, fmt.Errorf("apply skill set: %w", err)
	}

	allPassed := true
	for i, c := range cases {
		metrics["cases_total"]++
		if evaluateCase(c, out.Row(i)) {
			metrics["cases_passed"]++
		} else {
			metrics["cases_failed"]++
			allPassed = false
		}
	}
	metrics["accuracy"] = metrics["cases_passed"] / metrics["cases_total"]
	return metrics, allPassed, nil
}

func evaluateCase(c Case, row core.Record) bool {
	for output, want := range c.Expected {
		if strings.TrimSpace(row.String(output)) != strings.TrimSpace(want) {
			return false
		}
	}
	return true
}
