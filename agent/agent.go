// Package agent runs the learning loop that improves the weakest skill of a
// skill set from environment feedback.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/environment"
	"github.com/snow-ghost/skillforge/pkg/logging"
	"github.com/snow-ghost/skillforge/pkg/observability"
	"github.com/snow-ghost/skillforge/pkg/tracing"
	"github.com/snow-ghost/skillforge/skills"
)

// Learning defaults.
const (
	DefaultLearningIterations = 3
	DefaultAccuracyThreshold  = 0.9
)

var (
	ErrNoEnvironment = errors.New("agent requires an environment")
	ErrNoSkills      = errors.New("agent requires a skill set")
)

// Environment supplies data batches and grades predictions.
type Environment interface {
	GetDataBatch(ctx context.Context, batchSize int) (core.Batch, error)
	GetFeedback(ctx context.Context, set *skills.Set, predictions core.Batch, numFeedbacks int) (*environment.Feedback, error)
}

// Config wires an agent. When DefaultRuntime is empty and exactly one
// runtime is registered, that runtime is the default. The teacher defaults
// to the student runtime.
type Config struct {
	Environment           Environment
	Skills                *skills.Set
	Runtimes              map[string]core.Runtime
	TeacherRuntimes       map[string]core.Runtime
	DefaultRuntime        string
	DefaultTeacherRuntime string
	Observability         *observability.Manager
}

type Agent struct {
	env            Environment
	skills         *skills.Set
	runtimes       map[string]core.Runtime
	teachers       map[string]core.Runtime
	defaultRuntime string
	defaultTeacher string
	obs            *observability.Manager
}

// New validates cfg and builds an agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Environment == nil {
		return nil, ErrNoEnvironment
	}
	if cfg.Skills == nil {
		return nil, ErrNoSkills
	}

	a := &Agent{
		env:            cfg.Environment,
		skills:         cfg.Skills,
		runtimes:       cfg.Runtimes,
		teachers:       cfg.TeacherRuntimes,
		defaultRuntime: cfg.DefaultRuntime,
		defaultTeacher: cfg.DefaultTeacherRuntime,
		obs:            observability.OrNop(cfg.Observability).Named("agent"),
	}
	if a.defaultRuntime == "" && len(a.runtimes) == 1 {
		for name := range a.runtimes {
			a.defaultRuntime = name
		}
	}
	if _, err := a.Runtime(""); err != nil {
		return nil, err
	}
	if _, err := a.TeacherRuntime(""); err != nil {
		return nil, err
	}
	return a, nil
}

// Skills returns the agent's skill set.
func (a *Agent) Skills() *skills.Set { return a.skills }

// Runtime returns the named runtime, or the default for an empty name.
func (a *Agent) Runtime(name string) (core.Runtime, error) {
	if name == "" {
		name = a.defaultRuntime
	}
	rt, ok := a.runtimes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrRuntimeNotFound, name)
	}
	return rt, nil
}

// TeacherRuntime returns the named teacher runtime. Student runtimes are
// also eligible, and an empty name selects the default teacher.
func (a *Agent) TeacherRuntime(name string) (core.Runtime, error) {
	if name == "" {
		name = a.defaultTeacher
	}
	if name == "" {
		return a.Runtime("")
	}
	if rt, ok := a.teachers[name]; ok {
		return rt, nil
	}
	if rt, ok := a.runtimes[name]; ok {
		return rt, nil
	}
	return nil, fmt.Errorf("teacher %w: %q", core.ErrRuntimeNotFound, name)
}

// Run applies the skill set to input, or to a batch drawn from the
// environment when input is empty.
func (a *Agent) Run(ctx context.Context, input core.Batch, runtime string) (core.Batch, error) {
	rt, err := a.Runtime(runtime)
	if err != nil {
		return core.Batch{}, err
	}
	if input.Len() == 0 {
		input, err = a.env.GetDataBatch(ctx, 0)
		if err != nil {
			return core.Batch{}, fmt.Errorf("get data batch: %w", err)
		}
	}
	return a.skills.Apply(ctx, input, rt, "")
}

// SelectSkillToTrain applies the skill set's selection rule to the accuracy
// in fb. It returns a nil skill when every output reaches threshold.
func (a *Agent) SelectSkillToTrain(fb *environment.Feedback, threshold float64) (*skills.Skill, string, float64) {
	acc := fb.Accuracy()
	skill := a.skills.SelectSkillToImprove(acc, threshold)
	if skill == nil {
		return nil, "", 0
	}
	return skill, skill.Name, acc[skill.Name]
}

// LearnOptions configures Learn. Zero values select the defaults.
type LearnOptions struct {
	LearningIterations int     `koanf:"learning_iterations"`
	AccuracyThreshold  float64 `koanf:"accuracy_threshold"`
	BatchSize          int     `koanf:"batch_size"`
	NumFeedbacks       int     `koanf:"num_feedbacks"`
	Runtime            string  `koanf:"runtime"`
	TeacherRuntime     string  `koanf:"teacher_runtime"`
	// StopOnConvergence ends learning after the first iteration in which
	// no skill falls below the threshold.
	StopOnConvergence bool `koanf:"stop_on_convergence"`
	// FeedExperience prefixes each diagnosis with the reasoning gathered so far.
	FeedExperience bool `koanf:"feed_experience"`
}

func (o LearnOptions) withDefaults() LearnOptions {
	if o.LearningIterations <= 0 {
		o.LearningIterations = DefaultLearningIterations
	}
	if o.AccuracyThreshold <= 0 {
		o.AccuracyThreshold = DefaultAccuracyThreshold
	}
	return o
}

// IterationReport summarizes one learning iteration.
type IterationReport struct {
	Iteration     int                `json:"iteration"`
	Accuracy      map[string]float64 `json:"accuracy"`
	Skill         string             `json:"skill,omitempty"`
	Output        string             `json:"output,omitempty"`
	SkillAccuracy float64            `json:"skill_accuracy,omitempty"`
	Examples      int                `json:"examples"`
	Instruction   string             `json:"instruction,omitempty"`
}

// Improved reports whether the iteration rewrote an instruction.
func (r IterationReport) Improved() bool { return r.Skill != "" }

// Result is the outcome of Learn.
type Result struct {
	RunID string `json:"run_id"`
	// FinalInstruction is the instruction of the last skill trained, or the
	// unchanged instruction of the first skill when none was trained.
	FinalInstruction string            `json:"final_instruction"`
	Experience       string            `json:"experience"`
	Instructions     map[string]string `json:"instructions"`
	Iterations       []IterationReport `json:"iterations"`
}

// Learn runs the learning loop. An error aborts the loop and leaves the
// instruction of the skill being trained unchanged; iterations completed
// before it are kept in the returned result.
func (a *Agent) Learn(ctx context.Context, opts LearnOptions) (Result, error) {
	opts = opts.withDefaults()
	runID := uuid.NewString()
	res := Result{RunID: runID}

	rt, err := a.Runtime(opts.Runtime)
	if err != nil {
		return res, err
	}
	teacher, err := a.TeacherRuntime(opts.TeacherRuntime)
	if err != nil {
		return res, err
	}

	logger := a.obs.Logger().With(zap.String("run_id", runID))
	logger.Info("learning started",
		zap.Int("iterations", opts.LearningIterations),
		zap.Float64("threshold", opts.AccuracyThreshold),
	)

	var (
		experience strings.Builder
		lastSkill  *skills.Skill
	)
	for i := 0; i < opts.LearningIterations; i++ {
		report, trained, err := a.iterate(ctx, runID, i, opts, rt, teacher, &experience)
		if err != nil {
			a.finish(&res, experience.String(), lastSkill)
			return res, fmt.Errorf("learning iteration %d: %w", i, err)
		}
		res.Iterations = append(res.Iterations, report)
		if trained != nil {
			lastSkill = trained
		} else if opts.StopOnConvergence {
			logger.Info("all skills reached the accuracy threshold", zap.Int("iteration", i))
			break
		}
	}

	a.finish(&res, experience.String(), lastSkill)
	return res, nil
}

func (a *Agent) finish(res *Result, experience string, last *skills.Skill) {
	res.Experience = experience
	res.Instructions = make(map[string]string)
	for _, s := range a.skills.Skills() {
		res.Instructions[s.Name] = s.Instruction()
	}
	if last == nil {
		last = a.skills.Skills()[0]
	}
	res.FinalInstruction = last.Instruction()
}

func (a *Agent) iterate(ctx context.Context, runID string, i int, opts LearnOptions, rt, teacher core.Runtime, experience *strings.Builder) (IterationReport, *skills.Skill, error) {
	ctx, span := a.obs.Tracer().StartIterationSpan(ctx, runID, i)
	defer span.End()

	m := a.obs.Metrics()
	report := IterationReport{Iteration: i}
	fail := func(stage string, err error) (IterationReport, *skills.Skill, error) {
		m.RecordIteration("error")
		tracing.RecordSpanError(span, err)
		logging.LogIteration(ctx, a.obs.Logger(), runID, i, report.Skill, "error", report.SkillAccuracy)
		return report, nil, fmt.Errorf("%s: %w", stage, err)
	}

	batch, err := a.env.GetDataBatch(ctx, opts.BatchSize)
	if err != nil {
		return fail("get data batch", err)
	}
	predictions, err := a.skills.Apply(ctx, batch, rt, "")
	if err != nil {
		return fail("apply skills", err)
	}
	fb, err := a.env.GetFeedback(ctx, a.skills, predictions, opts.NumFeedbacks)
	if err != nil {
		return fail("get feedback", err)
	}

	report.Accuracy = fb.Accuracy()
	for output, acc := range report.Accuracy {
		m.RecordAccuracy(output, acc)
	}

	skill, output, acc := a.SelectSkillToTrain(fb, opts.AccuracyThreshold)
	if skill == nil {
		m.RecordIteration("noop")
		tracing.RecordSpanSuccess(span)
		logging.LogIteration(ctx, a.obs.Logger(), runID, i, "", "noop", 0)
		return report, nil, nil
	}
	report.Skill, report.Output, report.SkillAccuracy = skill.Name, output, acc

	examples, err := failingExamples(skill, output, predictions, fb)
	if err != nil {
		return fail("build examples", err)
	}
	report.Examples = len(examples)

	var prior string
	if opts.FeedExperience {
		prior = experience.String()
	}
	instruction, reasoning, err := a.optimize(ctx, skill, examples, teacher, prior)
	if err != nil {
		return fail("optimize "+skill.Name, err)
	}

	if instruction == "" {
		instruction = skill.Instruction()
	} else {
		skill.SetInstruction(instruction)
	}
	experience.WriteString("\n" + reasoning + "\n")
	report.Instruction = instruction

	m.RecordIteration("improved")
	tracing.RecordSpanSuccess(span)
	logging.LogIteration(ctx, a.obs.Logger(), runID, i, skill.Name, "improved", acc)
	return report, skill, nil
}

// failingExamples renders every row whose output did not match, in row order.
func failingExamples(skill *skills.Skill, output string, predictions core.Batch, fb *environment.Feedback) ([]string, error) {
	var examples []string
	for _, id := range fb.Failing(output) {
		pos := predictions.Position(id)
		if pos < 0 {
			continue
		}
		row := predictions.Row(pos)
		input, err := skill.InputLine(row)
		if err != nil {
			return nil, err
		}
		_, text, _ := fb.ForRow(output, id)
		examples = append(examples, fmt.Sprintf("%s\n%s\nFeedback: %s\n\n", input, skill.OutputLine(row), text))
	}
	return examples, nil
}
