// Package runtime executes templated prompts against an LLM client and
// decodes the completions into structured records.
package runtime

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/pkg/cost"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/logging"
	"github.com/snow-ghost/skillforge/pkg/observability"
	"github.com/snow-ghost/skillforge/pkg/registry"
	"github.com/snow-ghost/skillforge/pkg/tokens"
	"github.com/snow-ghost/skillforge/pkg/tracing"
	"github.com/snow-ghost/skillforge/policy/local"
)

// Defaults applied by New to zero-valued config fields.
const (
	DefaultMaxTokens      = 256
	DefaultTimeout        = 30 * time.Second
	DefaultConcurrency    = 1
	DefaultRepairAttempts = 1
)

// Config describes one runtime. Zero values select the defaults; a negative
// RepairAttempts disables repair.
type Config struct {
	Name           string        `koanf:"name"`
	Model          string        `koanf:"model"`
	Temperature    float32       `koanf:"temperature"`
	MaxTokens      int           `koanf:"max_tokens"`
	Timeout        time.Duration `koanf:"timeout"`
	Concurrency    int           `koanf:"concurrency"`
	RepairAttempts int           `koanf:"repair_attempts"`
}

// DefaultConfig returns a config with every default filled in.
func DefaultConfig(name, model string) Config {
	return Config{
		Name:           name,
		Model:          model,
		MaxTokens:      DefaultMaxTokens,
		Timeout:        DefaultTimeout,
		Concurrency:    DefaultConcurrency,
		RepairAttempts: DefaultRepairAttempts,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	switch {
	case c.RepairAttempts == 0:
		c.RepairAttempts = DefaultRepairAttempts
	case c.RepairAttempts < 0:
		c.RepairAttempts = 0
	}
	return c
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithObservability attaches logging, metrics and tracing.
func WithObservability(obs *observability.Manager) Option {
	return func(r *Runtime) { r.obs = observability.OrNop(obs) }
}

// WithGuard replaces the per-call policy guard.
func WithGuard(g core.PolicyGuard) Option {
	return func(r *Runtime) { r.guard = g }
}

// WithTokens sets the encoder registry used when a provider omits usage.
func WithTokens(reg *tokens.EncoderRegistry) Option {
	return func(r *Runtime) { r.tokens = reg }
}

// WithCost records the spend of every call in ledger, priced with p.
func WithCost(ledger *cost.Ledger, p registry.Pricing) Option {
	return func(r *Runtime) {
		r.ledger = ledger
		r.pricing = p
	}
}

// Runtime implements core.Runtime over a single LLM client.
type Runtime struct {
	cfg     Config
	client  core.LLMClient
	guard   core.PolicyGuard
	obs     *observability.Manager
	tokens  *tokens.EncoderRegistry
	ledger  *cost.Ledger
	pricing registry.Pricing
}

var _ core.Runtime = (*Runtime)(nil)

// New creates a runtime bound to client.
func New(client core.LLMClient, cfg Config, opts ...Option) *Runtime {
	cfg = cfg.withDefaults()
	r := &Runtime{
		cfg:    cfg,
		client: client,
		guard:  local.NewGuard(cfg.Timeout),
		obs:    observability.Nop(),
		tokens: tokens.GetDefaultRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the runtime name.
func (r *Runtime) Name() string { return r.cfg.Name }

// Config returns the effective configuration.
func (r *Runtime) Config() Config { return r.cfg }

type prompt struct {
	instruction string
	input       string
}

func render(rec core.Record, tpl core.Templates) (prompt, error) {
	instruction, err := core.Render(tpl.Instruction, rec)
	if err != nil {
		return prompt{}, err
	}
	input, err := core.Render(tpl.Input, rec)
	if err != nil {
		return prompt{}, err
	}
	return prompt{instruction: instruction, input: input}, nil
}

// RecordToRecord renders the templates against rec, issues one completion
// and decodes it into the declared output fields.
func (r *Runtime) RecordToRecord(ctx context.Context, rec core.Record, tpl core.Templates) (core.Record, error) {
	if len(tpl.Output) == 0 {
		return nil, core.ErrNoOutputTemplate
	}
	p, err := render(rec, tpl)
	if err != nil {
		return nil, err
	}
	d, err := r.Decode(ctx, p.instruction, p.input, tpl.Output)
	if err != nil {
		return nil, err
	}
	return d.Fields, nil
}

// BatchToBatch applies RecordToRecord to every row. The result keeps the row
// ids and order of batch. Every row is rendered before the first call, so a
// template error is returned without contacting the model.
func (r *Runtime) BatchToBatch(ctx context.Context, batch core.Batch, tpl core.Templates) (core.Batch, error) {
	if len(tpl.Output) == 0 {
		return core.Batch{}, core.ErrNoOutputTemplate
	}

	prompts := make([]prompt, batch.Len())
	for i := range batch.Records {
		p, err := render(batch.Row(i), tpl)
		if err != nil {
			return core.Batch{}, err
		}
		prompts[i] = p
	}

	out := core.Batch{
		Index:   make([]int, batch.Len()),
		Records: make([]core.Record, batch.Len()),
	}
	copy(out.Index, batch.Index)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, p := range prompts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := r.Decode(gctx, p.instruction, p.input, tpl.Output)
			if err != nil {
				return err
			}
			out.Records[i] = d.Fields
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Batch{}, err
	}
	return out, nil
}

// RecordToBatch runs rec n times and returns one row per run.
func (r *Runtime) RecordToBatch(ctx context.Context, rec core.Record, tpl core.Templates, n int) (core.Batch, error) {
	if n < 1 {
		n = 1
	}
	records := make([]core.Record, n)
	for i := range records {
		records[i] = rec.Clone()
	}
	return r.BatchToBatch(ctx, core.NewBatch(records...), tpl)
}

// Decode issues the completion for an already rendered prompt and decodes it.
// A completion that cannot be parsed is repaired up to RepairAttempts times
// and otherwise returned as a fallback record {"output": raw}. Only
// invocation errors are returned.
func (r *Runtime) Decode(ctx context.Context, instruction, input string, fields []core.Field) (Decoded, error) {
	userMsg := Contract(fields)
	if input != "" {
		userMsg = input + "\n\n" + userMsg
	}

	raw, err := r.call(ctx, "completion", instruction, userMsg)
	if err != nil {
		return Decoded{}, err
	}

	rec, perr := parse(raw, fields)
	if perr == nil {
		d := Decoded{Fields: rec, Raw: raw}
		r.recordDecode(ctx, d, nil)
		return d, nil
	}

	last := raw
	for attempt := 0; attempt < r.cfg.RepairAttempts; attempt++ {
		repaired, err := r.call(ctx, "repair", repairInstruction, repairPrompt(instruction, userMsg, last, perr, fields))
		if err != nil {
			return Decoded{}, err
		}
		if rec, perr = parse(repaired, fields); perr == nil {
			d := Decoded{Fields: rec, Raw: repaired, Repaired: true}
			r.recordDecode(ctx, d, nil)
			return d, nil
		}
		last = repaired
	}

	d := Decoded{Fields: core.Record{FallbackField: raw}, Raw: raw, Fallback: true}
	r.recordDecode(ctx, d, perr)
	return d, nil
}

func (r *Runtime) recordDecode(ctx context.Context, d Decoded, perr error) {
	r.obs.Metrics().RecordDecode(r.cfg.Name, d.Outcome())
	var missing []string
	var de *core.DecodeError
	if errors.As(perr, &de) {
		missing = de.Missing
	}
	logging.LogDecode(ctx, r.obs.Logger(), r.cfg.Name, d.Outcome(), missing)
}

// call performs one chat completion under the policy guard.
func (r *Runtime) call(ctx context.Context, kind, instruction, input string) (string, error) {
	req := llm.NewChatRequest(r.cfg.Model, instruction, input, r.cfg.Temperature, r.cfg.MaxTokens)
	req.Caller = r.cfg.Name

	ctx, span := r.obs.Tracer().StartCallSpan(ctx, r.cfg.Name, r.cfg.Model, kind)
	defer span.End()

	m := r.obs.Metrics()
	start := time.Now()
	var resp llm.ChatResponse
	err := r.guard.Wrap(ctx, core.Budget{Timeout: r.cfg.Timeout}, func(ctx context.Context) error {
		var err error
		resp, err = r.client.Chat(ctx, req)
		return err
	})
	elapsed := time.Since(start)
	m.RecordLatency(r.cfg.Name, r.cfg.Model, elapsed)
	tracing.RecordSpanDuration(span, elapsed)

	if err != nil {
		m.RecordRequest(r.cfg.Name, r.cfg.Model, "error")
		tracing.RecordSpanError(span, err)
		logging.LogLLMCall(ctx, r.obs.Logger(), r.cfg.Name, r.cfg.Model, "error", elapsed, 0, err)
		return "", &core.InvocationError{Runtime: r.cfg.Name, Model: r.cfg.Model, Err: err}
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage = r.estimateUsage(req, resp.Text)
	}
	m.RecordRequest(r.cfg.Name, r.cfg.Model, "success")
	m.RecordTokens(r.cfg.Name, r.cfg.Model, usage.PromptTokens, usage.CompletionTokens)

	res := cost.Result(usage, r.pricing)
	r.ledger.Add(r.cfg.Name, r.cfg.Model, res)
	if res.TotalCost > 0 {
		m.RecordCost(r.cfg.Name, r.cfg.Model, res.Currency, res.TotalCost)
	}

	tracing.RecordSpanTokens(span, usage.PromptTokens, usage.CompletionTokens)
	tracing.RecordSpanSuccess(span)
	logging.LogLLMCall(ctx, r.obs.Logger(), r.cfg.Name, r.cfg.Model, "success", elapsed, usage.TotalTokens, nil)
	if resp.Cached {
		r.obs.Logger().Debug("completion served from cache", zap.String("runtime", r.cfg.Name))
	}
	return resp.Text, nil
}

func (r *Runtime) estimateUsage(req llm.ChatRequest, text string) llm.Usage {
	in, err := r.tokens.CountMessages(req.Model, req.Messages)
	if err != nil {
		return llm.Usage{}
	}
	out, err := r.tokens.CountTokens(req.Model, text)
	if err != nil {
		return llm.Usage{}
	}
	return llm.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}
