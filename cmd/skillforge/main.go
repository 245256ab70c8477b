// Command skillforge learns better skill instructions from environment
// feedback, or runs a skill set over a dataset.
//
//	skillforge -config pipeline.yaml learn
//	skillforge -config pipeline.yaml -input rows.csv run
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/dataset"
	"github.com/snow-ghost/skillforge/pkg/config"
)

func main() {
	configPath := flag.String("config", "pipeline.yaml", "pipeline configuration file")
	registryPath := flag.String("registry", "", "model registry file (overrides the config)")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address (overrides the config)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	input := flag.String("input", "", "CSV rows for run; defaults to a batch from the environment")
	runtimeName := flag.String("runtime", "", "runtime used by run")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] learn|run\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd != "learn" && cmd != "run" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *registryPath != "" {
		cfg.Registry = *registryPath
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *metricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	a, err := build(ctx, cfg, promReg)
	if err != nil {
		log.Fatal(err)
	}
	logger := a.obs.Logger()

	var srv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	switch cmd {
	case "learn":
		err = learn(ctx, a)
	case "run":
		err = run(ctx, a, *input, *runtimeName)
	}

	logger.Info("spend", zap.Float64("total_cost", a.ledger.Total()), zap.Int("entries", len(a.ledger.Entries())))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	if cerr := a.close(shutdownCtx); cerr != nil {
		logger.Warn("shutdown", zap.Error(cerr))
	}
	if err != nil {
		logger.Error(cmd+" failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func learn(ctx context.Context, a *app) error {
	res, err := a.agent.Learn(ctx, a.cfg.Learn)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil && err == nil {
		err = encErr
	}
	return err
}

func run(ctx context.Context, a *app, input, runtimeName string) error {
	var batch core.Batch
	if input != "" {
		ds, err := dataset.LoadCSV(input)
		if err != nil {
			return err
		}
		batch = ds.All()
	}

	out, err := a.agent.Run(ctx, batch, runtimeName)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for i := 0; i < out.Len(); i++ {
		if err := enc.Encode(out.Row(i)); err != nil {
			return err
		}
	}
	return nil
}
