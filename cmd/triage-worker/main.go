// Package main provides the worker binary entrypoint.
//
// Usage:
//
//	triage-worker [--worker-config PATH]
//
// PATH defaults to /etc/strelka/backend.yaml. The process exits non-zero
// if the config can't be loaded, the coordinator can't be reached, or the
// configured ruleset fails to compile.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/triage/assign"
	"github.com/pithecene-io/triage/classify"
	"github.com/pithecene-io/triage/cli/config"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/distribute"
	"github.com/pithecene-io/triage/iox"
	"github.com/pithecene-io/triage/log"
	"github.com/pithecene-io/triage/metrics"
	"github.com/pithecene-io/triage/scanner"
	"github.com/pithecene-io/triage/worker"
)

// defaultConfigPath is the fallback when --worker-config is not given.
const defaultConfigPath = "/etc/strelka/backend.yaml"

// commit is set via ldflags at build time.
var commit = "unknown"

var workerConfigFlag = &cli.StringFlag{
	Name:  "worker-config",
	Usage: "path to the backend configuration document",
	Value: defaultConfigPath,
}

func main() {
	app := &cli.App{
		Name:    "triage-worker",
		Usage:   "backend worker for the file-scanning fleet",
		Version: fmt.Sprintf("dev (commit: %s)", commit),
		Flags:   []cli.Flag{workerConfigFlag},
		Action:  run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "triage-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	path := c.String("worker-config")

	cfg, err := config.Load(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}

	logger := log.New(log.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	sugar := logger.Sugar()

	coord := coordinator.New(coordinator.Config{
		Addr:     cfg.Coordinator.Addr,
		Password: cfg.Coordinator.Password,
		DB:       cfg.Coordinator.DB,
	})
	defer iox.DiscardClose(coord)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coord.Ping(pingCtx); err != nil {
		return cli.Exit(fmt.Sprintf("coordinator unavailable: %v", err), 1)
	}
	sugar.Infof("coordinator reachable at %s", cfg.Coordinator.Addr)

	mimeClassifier := classify.NewMimeClassifier(cfg.Tasting.MimeEnabled)

	var classifier *classify.Classifier
	if cfg.Tasting.YaraRules != "" {
		rulesCtx, rulesCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer rulesCancel()
		rulesPath, cleanup, err := classify.ResolveRulesPath(rulesCtx, cfg.Tasting.YaraRules)
		if err != nil {
			return cli.Exit(fmt.Sprintf("resolve yara rules: %v", err), 1)
		}
		defer cleanup()

		rules, err := classify.CompileRules(rulesPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("compile yara rules: %v", err), 1)
		}
		sugar.Infof("compiled yara rules from %s", cfg.Tasting.YaraRules)
		classifier = classify.New(mimeClassifier, rules, logger)
	} else {
		classifier = classify.New(mimeClassifier, nil, logger)
	}

	engine, err := assign.NewEngine(cfg.Scanners.Mappings())
	if err != nil {
		return cli.Exit(fmt.Sprintf("compile scanner assignment rules: %v", err), 1)
	}

	registry := scanner.NewRegistry(cfg, coord)
	if err := registry.ValidateConfigured(cfg.Scanners.Mappings()); err != nil {
		return cli.Exit(fmt.Sprintf("invalid scanner configuration: %v", err), 1)
	}

	collector := metrics.New()

	d := distribute.New(coord, classifier, engine, registry, collector, logger, distribute.Config{
		MaxDepth:            cfg.Limits.MaxDepth,
		DistributionTimeout: cfg.Limits.Distribution.Duration,
		ScannerNames:        cfg.Scanners.Names(),
	})

	w := worker.New(coord, d, collector, logger, worker.Config{
		MaxFiles:   cfg.Limits.MaxFiles,
		TimeToLive: cfg.Limits.TimeToLive.Duration,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sugar.Infof("worker starting: max_files=%d time_to_live=%s", cfg.Limits.MaxFiles, cfg.Limits.TimeToLive.Duration)
	if err := w.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("worker exited: %v", err), 1)
	}

	_ = logger.Sync()
	return nil
}
