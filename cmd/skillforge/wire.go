package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/snow-ghost/skillforge/agent"
	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/llm/mock"
	"github.com/snow-ghost/skillforge/pkg/cache"
	"github.com/snow-ghost/skillforge/pkg/config"
	"github.com/snow-ghost/skillforge/pkg/cost"
	"github.com/snow-ghost/skillforge/pkg/limiter"
	"github.com/snow-ghost/skillforge/pkg/observability"
	"github.com/snow-ghost/skillforge/pkg/providers"
	"github.com/snow-ghost/skillforge/pkg/registry"
	"github.com/snow-ghost/skillforge/pkg/routing"
	"github.com/snow-ghost/skillforge/runtime"
)

// app holds everything built from one pipeline config.
type app struct {
	cfg    *config.Config
	obs    *observability.Manager
	reg    *registry.Registry
	router *routing.ModelRouter
	ledger *cost.Ledger
	cache  *cache.CacheManager
	agent  *agent.Agent
}

func build(ctx context.Context, cfg *config.Config, promReg prometheus.Registerer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	obs, err := observability.NewManager(cfg.Observability(), promReg)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	reg, err := registry.NewLoader(cfg.Registry).LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("model registry: %w", err)
	}

	a := &app{cfg: cfg, obs: obs, reg: reg, router: routing.NewModelRouter(reg), ledger: cost.NewLedger()}
	if cfg.Cache.Enabled {
		cc := cfg.Cache
		a.cache, err = cache.NewCacheManager(ctx, &cc, obs.Logger(), obs.Metrics())
		if err != nil {
			return nil, err
		}
	}

	students, err := a.runtimes(cfg.Runtimes)
	if err != nil {
		return nil, err
	}
	teachers, err := a.runtimes(cfg.TeacherRuntimes)
	if err != nil {
		return nil, err
	}

	set, err := cfg.Skills.Build()
	if err != nil {
		return nil, fmt.Errorf("skills: %w", err)
	}
	env, err := cfg.Environment.Build()
	if err != nil {
		return nil, err
	}

	a.agent, err = agent.New(agent.Config{
		Environment:           env,
		Skills:                set,
		Runtimes:              students,
		TeacherRuntimes:       teachers,
		DefaultRuntime:        cfg.DefaultRuntime,
		DefaultTeacherRuntime: cfg.DefaultTeacherRuntime,
		Observability:         obs,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) runtimes(specs map[string]config.RuntimeConfig) (map[string]core.Runtime, error) {
	out := make(map[string]core.Runtime, len(specs))
	for name, rc := range specs {
		mc, err := a.router.Resolve(rc.Model, rc.Tags, rc.Strategy)
		if err != nil {
			return nil, fmt.Errorf("runtime %q: %w", name, err)
		}
		client, err := a.client(mc, a.cfg.Protection(rc))
		if err != nil {
			return nil, fmt.Errorf("runtime %q: %w", name, err)
		}

		rcfg := rc.Runtime(name)
		rcfg.Model = mc.ModelName()
		out[name] = runtime.New(client, rcfg,
			runtime.WithObservability(a.obs),
			runtime.WithCost(a.ledger, mc.Pricing),
		)
		a.obs.Logger().Debug("runtime ready",
			zap.String("runtime", name),
			zap.String("model", mc.ID),
			zap.String("provider", mc.Provider),
		)
	}
	return out, nil
}

// client builds the provider client for mc, behind the limiter and the cache.
func (a *app) client(mc registry.ModelConfig, pc limiter.Config) (core.LLMClient, error) {
	var client core.LLMClient
	if mc.Provider == "mock" {
		client = mock.New()
	} else {
		p, err := providers.CreateProvider(mc)
		if err != nil {
			return nil, err
		}
		client = providers.NewClient(p, mc)
	}
	pm := limiter.NewProtectionManager(pc, a.obs.Logger(), a.obs.Metrics())
	return cache.Wrap(limiter.Protect(client, pm, mc), a.cache), nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	errs = append(errs, a.obs.Shutdown(ctx))
	return errors.Join(errs...)
}
