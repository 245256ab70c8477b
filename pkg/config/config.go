// Package config loads the pipeline configuration: runtimes, skills, the
// environment, learning options and the ambient stack.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/snow-ghost/skillforge/agent"
	"github.com/snow-ghost/skillforge/dataset"
	"github.com/snow-ghost/skillforge/environment"
	"github.com/snow-ghost/skillforge/pkg/cache"
	"github.com/snow-ghost/skillforge/pkg/limiter"
	"github.com/snow-ghost/skillforge/pkg/logging"
	"github.com/snow-ghost/skillforge/pkg/observability"
	"github.com/snow-ghost/skillforge/pkg/tracing"
	"github.com/snow-ghost/skillforge/runtime"
	"github.com/snow-ghost/skillforge/skills"
)

// EnvPrefix marks environment overrides. A double underscore separates
// levels: SKILLFORGE_LEARN__BATCH_SIZE sets learn.batch_size.
const EnvPrefix = "SKILLFORGE_"

var ErrNoRuntimes = errors.New("config: at least one runtime is required")

type Config struct {
	Log      logging.Config    `koanf:"log"`
	Metrics  MetricsConfig     `koanf:"metrics"`
	Tracing  tracing.Config    `koanf:"tracing"`
	Cache    cache.CacheConfig `koanf:"cache"`
	Limiter  limiter.Config    `koanf:"limiter"`
	Registry string            `koanf:"registry"` // path to models.yaml

	Runtimes              map[string]RuntimeConfig `koanf:"runtimes"`
	TeacherRuntimes       map[string]RuntimeConfig `koanf:"teacher_runtimes"`
	DefaultRuntime        string                   `koanf:"default_runtime"`
	DefaultTeacherRuntime string                   `koanf:"default_teacher_runtime"`

	Skills      SkillSetConfig     `koanf:"skills"`
	Environment EnvironmentConfig  `koanf:"environment"`
	Learn       agent.LearnOptions `koanf:"learn"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// RuntimeConfig binds a runtime name to a registry model, named by id or
// chosen by tags and a routing strategy.
type RuntimeConfig struct {
	Model          string        `koanf:"model"`
	Tags           []string      `koanf:"tags"`
	Strategy       string        `koanf:"strategy"` // first or cheapest
	Temperature    float32       `koanf:"temperature"`
	MaxTokens      int           `koanf:"max_tokens"`
	Timeout        time.Duration `koanf:"timeout"`
	Concurrency    int           `koanf:"concurrency"`
	RepairAttempts int           `koanf:"repair_attempts"`
	MaxRetries     int           `koanf:"max_retries"`
}

// Runtime converts rc into a runtime config named name.
func (rc RuntimeConfig) Runtime(name string) runtime.Config {
	return runtime.Config{
		Name:           name,
		Model:          rc.Model,
		Temperature:    rc.Temperature,
		MaxTokens:      rc.MaxTokens,
		Timeout:        rc.Timeout,
		Concurrency:    rc.Concurrency,
		RepairAttempts: rc.RepairAttempts,
	}
}

// SkillConfig describes one skill. Preset fills the templates of a built-in
// skill; explicit fields override it.
type SkillConfig struct {
	Preset        string   `koanf:"preset"` // classification, question_answering, summarization, text_generation
	Labels        []string `koanf:"labels"`
	skills.Config `koanf:",squash"`
}

// Build constructs the skill.
func (sc SkillConfig) Build() (*skills.Skill, error) {
	cfg, err := sc.resolve()
	if err != nil {
		return nil, err
	}
	return skills.New(cfg)
}

func (sc SkillConfig) resolve() (skills.Config, error) {
	var base skills.Config
	switch sc.Preset {
	case "":
		return sc.Config, nil
	case "classification":
		if len(sc.Labels) == 0 {
			return skills.Config{}, fmt.Errorf("skill %q: classification requires labels", sc.Name)
		}
		base = skills.Classification(sc.Name, sc.Labels)
	case "question_answering":
		base = skills.QuestionAnswering(sc.Name)
	case "summarization":
		base = skills.Summarization(sc.Name)
	case "text_generation":
		base = skills.TextGeneration(sc.Name)
	default:
		return skills.Config{}, fmt.Errorf("skill %q: unknown preset %q", sc.Name, sc.Preset)
	}

	o := sc.Config
	if o.Description != "" {
		base.Description = o.Description
	}
	if o.Instruction != "" {
		base.Instruction = o.Instruction
	}
	if o.InputTemplate != "" {
		base.InputTemplate = o.InputTemplate
	}
	if len(o.Output) > 0 {
		base.Output = o.Output
		base.PredictionField = ""
	}
	if o.PredictionField != "" {
		base.PredictionField = o.PredictionField
	}
	if o.BatchSize > 0 {
		base.BatchSize = o.BatchSize
	}
	if o.AnalysisSampleCap > 0 {
		base.AnalysisSampleCap = o.AnalysisSampleCap
	}
	return base, nil
}

type SkillSetConfig struct {
	Kind     string        `koanf:"kind"` // linear or parallel
	Sequence []string      `koanf:"sequence"`
	Items    []SkillConfig `koanf:"items"`
}

// Build constructs the skills and assembles them into a set.
func (c SkillSetConfig) Build() (*skills.Set, error) {
	kind, err := skills.ParseKind(c.Kind)
	if err != nil {
		return nil, err
	}
	list := make([]*skills.Skill, 0, len(c.Items))
	for _, item := range c.Items {
		s, err := item.Build()
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	if kind == skills.Parallel {
		return skills.NewParallel(list)
	}
	return skills.NewLinear(list, c.Sequence)
}

type EnvironmentConfig struct {
	Kind        string            `koanf:"kind"` // static or math
	Dataset     string            `koanf:"dataset"`
	GroundTruth map[string]string `koanf:"ground_truth"` // skill output -> dataset column
}

// Build loads the dataset and constructs the environment.
func (c EnvironmentConfig) Build() (agent.Environment, error) {
	if c.Dataset == "" {
		return nil, errors.New("environment: dataset path is required")
	}
	ds, err := dataset.LoadCSV(c.Dataset)
	if err != nil {
		return nil, err
	}
	switch c.Kind {
	case "", "static":
		return environment.NewStatic(ds, c.GroundTruth), nil
	case "math":
		return environment.NewMath(ds, c.GroundTruth), nil
	default:
		return nil, fmt.Errorf("environment: unknown kind %q", c.Kind)
	}
}

// Observability returns the settings for observability.NewManager.
func (c *Config) Observability() observability.Config {
	return observability.Config{
		Logging:        c.Log,
		Tracing:        c.Tracing,
		MetricsEnabled: c.Metrics.Enabled,
	}
}

// Protection returns the limiter settings for one runtime.
func (c *Config) Protection(rc RuntimeConfig) limiter.Config {
	pc := c.Limiter
	pc.Retry.RetryableErrors = append([]int(nil), c.Limiter.Retry.RetryableErrors...)
	if rc.MaxRetries > 0 {
		pc.Retry.MaxRetries = rc.MaxRetries
	}
	return pc
}

// Validate checks the parts that cannot be defaulted.
func (c *Config) Validate() error {
	if len(c.Runtimes) == 0 {
		return ErrNoRuntimes
	}
	for name, rc := range c.Runtimes {
		if rc.Model == "" && len(rc.Tags) == 0 {
			return fmt.Errorf("runtime %q: model or tags are required", name)
		}
	}
	for name, rc := range c.TeacherRuntimes {
		if rc.Model == "" && len(rc.Tags) == 0 {
			return fmt.Errorf("teacher runtime %q: model or tags are required", name)
		}
	}
	if len(c.Skills.Items) == 0 {
		return skills.ErrEmptySet
	}
	if _, err := skills.ParseKind(c.Skills.Kind); err != nil {
		return err
	}
	return nil
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "json")
	k.Set("log.output", "stderr")

	k.Set("metrics.enabled", false)
	k.Set("metrics.addr", ":9090")

	k.Set("tracing.enabled", false)
	k.Set("tracing.service_name", "skillforge")
	k.Set("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")

	cc := cache.DefaultCacheConfig()
	k.Set("cache.enabled", false)
	k.Set("cache.backend", cc.Backend)
	k.Set("cache.max_size", cc.MaxSize)
	k.Set("cache.default_ttl", cc.DefaultTTL)
	k.Set("cache.cleanup_interval", cc.CleanupInterval)
	k.Set("cache.key_prefix", cc.KeyPrefix)

	rc := limiter.DefaultRetryConfig()
	k.Set("limiter.rate_limit", true)
	k.Set("limiter.circuit_breaker", true)
	k.Set("limiter.retry.max_retries", rc.MaxRetries)
	k.Set("limiter.retry.base_delay", rc.BaseDelay)
	k.Set("limiter.retry.max_delay", rc.MaxDelay)
	k.Set("limiter.retry.backoff_factor", rc.BackoffFactor)
	k.Set("limiter.retry.jitter", rc.Jitter)
	k.Set("limiter.retry.retryable_errors", rc.RetryableErrors)

	k.Set("registry", "models.yaml")
	k.Set("skills.kind", "linear")
	k.Set("environment.kind", "static")
	k.Set("learn.learning_iterations", agent.DefaultLearningIterations)
	k.Set("learn.accuracy_threshold", agent.DefaultAccuracyThreshold)
}

// Load reads defaults, then the YAML file at path (when not empty), then
// SKILLFORGE_ environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
