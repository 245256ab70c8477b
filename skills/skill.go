// Package skills defines templated LLM transformations and their composition.
package skills

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/runtime"
)

// DefaultAnalysisSampleCap bounds the failing rows examined by Analyze.
const DefaultAnalysisSampleCap = 3

var ErrNoName = errors.New("skill name is required")

// Config describes a skill.
type Config struct {
	Name              string       `koanf:"name" yaml:"name"`
	Description       string       `koanf:"description" yaml:"description"`
	Instruction       string       `koanf:"instruction" yaml:"instruction"`
	InputTemplate     string       `koanf:"input_template" yaml:"input_template"`
	Output            []core.Field `koanf:"output" yaml:"output"`
	PredictionField   string       `koanf:"prediction_field" yaml:"prediction_field"`
	BatchSize         int          `koanf:"batch_size" yaml:"batch_size"`
	AnalysisSampleCap int          `koanf:"analysis_sample_cap" yaml:"analysis_sample_cap"`
}

// Skill is a named templated transformation with one prediction field. Only
// the instruction changes after construction.
type Skill struct {
	Name              string
	Description       string
	InputTemplate     string
	Output            []core.Field
	PredictionField   string
	BatchSize         int
	AnalysisSampleCap int

	mu          sync.RWMutex
	instruction string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Failure is a wrong prediction together with the expected value.
type Failure struct {
	ID       int
	Expected string
}

// New validates cfg and builds a skill.
func New(cfg Config) (*Skill, error) {
	if cfg.Name == "" {
		return nil, ErrNoName
	}
	if len(cfg.Output) == 0 {
		return nil, fmt.Errorf("skill %s: %w", cfg.Name, core.ErrNoOutputTemplate)
	}
	names := core.FieldNames(cfg.Output)
	if cfg.PredictionField == "" {
		cfg.PredictionField = names[0]
	}
	if !slices.Contains(names, cfg.PredictionField) {
		return nil, fmt.Errorf("skill %s: prediction field %q is not an output field", cfg.Name, cfg.PredictionField)
	}
	if cfg.AnalysisSampleCap <= 0 {
		cfg.AnalysisSampleCap = DefaultAnalysisSampleCap
	}
	if cfg.BatchSize < 0 {
		cfg.BatchSize = 0
	}

	return &Skill{
		Name:              cfg.Name,
		Description:       cfg.Description,
		InputTemplate:     cfg.InputTemplate,
		Output:            slices.Clone(cfg.Output),
		PredictionField:   cfg.PredictionField,
		BatchSize:         cfg.BatchSize,
		AnalysisSampleCap: cfg.AnalysisSampleCap,
		instruction:       cfg.Instruction,
		rng:               rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}, nil
}

// Instruction returns the current instruction template.
func (s *Skill) Instruction() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instruction
}

// SetInstruction replaces the instruction template.
func (s *Skill) SetInstruction(instruction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruction = instruction
}

// SetRand replaces the source used to sample failing rows.
func (s *Skill) SetRand(r *rand.Rand) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng = r
}

// Templates returns the templates of one invocation of the skill.
func (s *Skill) Templates() core.Templates {
	return core.Templates{
		Instruction: s.Instruction(),
		Input:       s.InputTemplate,
		Output:      s.Output,
	}
}

// Outputs returns the columns the skill adds: its name, then every output
// field other than the prediction field.
func (s *Skill) Outputs() []string {
	out := []string{s.Name}
	for _, f := range s.Output {
		if f.Name != s.PredictionField {
			out = append(out, f.Name)
		}
	}
	return out
}

// KnownFields returns the placeholders an instruction may reference.
func (s *Skill) KnownFields() []string {
	fields := core.Placeholders(s.InputTemplate)
	for _, f := range core.Placeholders(s.Instruction()) {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// InputLine renders the input template against a row.
func (s *Skill) InputLine(row core.Record) (string, error) {
	return core.Render(s.InputTemplate, row)
}

// OutputLine renders the output fields of a prediction row, reading the
// prediction from the column named after the skill.
func (s *Skill) OutputLine(row core.Record) string {
	view := row.Clone()
	if v, ok := row[s.Name]; ok {
		view[s.PredictionField] = v
	}
	return core.RenderOutputLine(s.Output, view)
}

// Apply runs the skill over batch in chunks of BatchSize and merges the
// predictions onto a copy of batch. Row count and order are preserved.
func (s *Skill) Apply(ctx context.Context, batch core.Batch, rt core.Runtime) (core.Batch, error) {
	n := batch.Len()
	if n == 0 {
		return batch.Clone(), nil
	}
	size := s.BatchSize
	if size <= 0 || size > n {
		size = n
	}

	tpl := s.Templates()
	if size < n {
		// chunks are validated one at a time by the runtime
		for i := 0; i < n; i++ {
			if err := checkTemplates(tpl, batch.Row(i)); err != nil {
				return core.Batch{}, err
			}
		}
	}
	var preds core.Batch
	for from := 0; from < n; from += size {
		to := min(from+size, n)
		chunk, err := rt.BatchToBatch(ctx, batch.Slice(from, to), tpl)
		if err != nil {
			return core.Batch{}, err
		}
		preds = preds.Concat(chunk)
	}

	preds.RenameField(s.PredictionField, s.Name)
	return batch.Merge(preds), nil
}

func checkTemplates(tpl core.Templates, row core.Record) error {
	if _, err := core.Render(tpl.Instruction, row); err != nil {
		return err
	}
	_, err := core.Render(tpl.Input, row)
	return err
}

// Synthesize generates n rows from a single record.
func (s *Skill) Synthesize(ctx context.Context, rec core.Record, rt core.Runtime, n int) (core.Batch, error) {
	out, err := rt.RecordToBatch(ctx, rec, s.Templates(), n)
	if err != nil {
		return core.Batch{}, err
	}
	out.RenameField(s.PredictionField, s.Name)
	return out, nil
}

// Aggregate renders every row with the input template and analyzes them
// together in a single call.
func (s *Skill) Aggregate(ctx context.Context, batch core.Batch, rt core.Runtime) (core.Record, error) {
	lines := make([]string, 0, batch.Len())
	for _, row := range batch.Records {
		line, err := s.InputLine(row)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	tpl := core.Templates{
		Instruction: s.Instruction(),
		Input:       "{aggregated_input}",
		Output:      s.Output,
	}
	return rt.RecordToRecord(ctx, core.Record{"aggregated_input": strings.Join(lines, "\n")}, tpl)
}

const (
	recoverInstruction = "The text below is a prompt that was sent to a language model. " +
		"It consists of an instruction followed by an input. Recover the input exactly as it was given."
	reasonInstruction = "A language model followed the instruction below and produced a wrong prediction.\n" +
		"Instruction:\n{instruction}\n\n" +
		"Give a concise reason for the error."
	reportInstruction = "Below are the reasons a language model made several errors. " +
		"Combine them into a single error analysis report that names the recurring problems."
	improveInstruction = "You are a prompt engineer. Write a new instruction for a language model " +
		"that fixes the errors described in the analysis. The new instruction must include " +
		"2 or 3 worked examples that follow the input and output format exactly."
)

// Analyze samples up to AnalysisSampleCap failures, asks the teacher for the
// reason of each and returns a combined error analysis. The student runtime
// is used when teacher is nil.
func (s *Skill) Analyze(ctx context.Context, predictions core.Batch, failures []Failure, student, teacher core.Runtime) (string, error) {
	if teacher == nil {
		teacher = student
	}
	if len(failures) == 0 {
		return "", nil
	}

	instruction := s.Instruction()
	reasons := make([]string, 0, s.AnalysisSampleCap)
	for i, f := range s.sample(failures) {
		pos := predictions.Position(f.ID)
		if pos < 0 {
			return "", fmt.Errorf("skill %s: row %d not in predictions: %w", s.Name, f.ID, core.ErrColumnNotFound)
		}
		row := predictions.Row(pos)

		input, err := s.InputLine(row)
		if err != nil {
			return "", err
		}
		prompt := input
		if instruction != "" {
			prompt = instruction + "\n\n" + input
		}

		recovered, err := teacher.RecordToRecord(ctx, core.Record{"prompt": prompt}, core.Templates{
			Instruction: recoverInstruction,
			Input:       "{prompt}",
			Output:      []core.Field{{Name: "input", Description: "Original input"}},
		})
		if err != nil {
			return "", err
		}

		reason, err := teacher.RecordToRecord(ctx, core.Record{
			"instruction":  instruction,
			"input":        value(recovered, "input"),
			"prediction":   row.String(s.Name),
			"ground_truth": f.Expected,
		}, core.Templates{
			Instruction: reasonInstruction,
			Input:       "Input: {input}\nPrediction: {prediction}\nGround truth: {ground_truth}",
			Output:      []core.Field{{Name: "reason", Description: "Reason for the error"}},
		})
		if err != nil {
			return "", err
		}
		reasons = append(reasons, fmt.Sprintf("Error %d: %s", i+1, value(reason, "reason")))
	}

	report, err := teacher.RecordToRecord(ctx, core.Record{"reasons": strings.Join(reasons, "\n")}, core.Templates{
		Instruction: reportInstruction,
		Input:       "{reasons}",
		Output:      []core.Field{{Name: "analysis", Description: "Error analysis report"}},
	})
	if err != nil {
		return "", err
	}
	return value(report, "analysis"), nil
}

// Improve asks rt for a new instruction that addresses analysis and installs
// it. The instruction is left unchanged when the call fails.
func (s *Skill) Improve(ctx context.Context, analysis string, rt core.Runtime) error {
	out, err := rt.RecordToRecord(ctx, core.Record{
		"instruction":     s.Instruction(),
		"input_template":  s.InputTemplate,
		"output_template": core.RenderOutputLine(s.Output, placeholderView(s.Output)),
		"analysis":        analysis,
	}, core.Templates{
		Instruction: improveInstruction,
		Input: "## Current instruction\n{instruction}\n\n" +
			"## Input format\n{input_template}\n\n" +
			"## Output format\n{output_template}\n\n" +
			"## Error analysis\n{analysis}",
		Output: []core.Field{{Name: "new_instruction", Description: "New instruction"}},
	})
	if err != nil {
		return err
	}

	next := strings.TrimSpace(value(out, "new_instruction"))
	if next == "" {
		return nil
	}
	s.SetInstruction(core.EscapeUnknown(next, s.KnownFields()))
	return nil
}

// sample picks up to AnalysisSampleCap failures uniformly at random.
func (s *Skill) sample(failures []Failure) []Failure {
	if len(failures) <= s.AnalysisSampleCap {
		return failures
	}
	s.rngMu.Lock()
	perm := s.rng.Perm(len(failures))
	s.rngMu.Unlock()

	picked := perm[:s.AnalysisSampleCap]
	slices.Sort(picked)
	out := make([]Failure, len(picked))
	for i, p := range picked {
		out[i] = failures[p]
	}
	return out
}

// value reads a decoded field, or the raw completion when decoding fell back.
func value(rec core.Record, field string) string {
	if _, ok := rec[field]; ok {
		return rec.String(field)
	}
	return rec.String(runtime.FallbackField)
}

// placeholderView maps every field to its own placeholder text.
func placeholderView(fields []core.Field) core.Record {
	rec := make(core.Record, len(fields))
	for _, f := range fields {
		rec[f.Name] = "{" + f.Name + "}"
	}
	return rec
}
