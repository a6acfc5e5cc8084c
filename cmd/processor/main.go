// Command processor runs the scan pipeline: it polls the content feed,
// classifies items, routes escalations to review backends, and takes
// the resulting actions.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/modwatch/modwatch/internal/classifier"
	"github.com/modwatch/modwatch/internal/config"
	"github.com/modwatch/modwatch/internal/database"
	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/notify"
	"github.com/modwatch/modwatch/internal/processor"
	"github.com/modwatch/modwatch/internal/reconcile"
	"github.com/modwatch/modwatch/internal/router"
	"github.com/modwatch/modwatch/internal/scoreclient"
	"github.com/modwatch/modwatch/internal/source"
	"github.com/modwatch/modwatch/internal/telemetry"
)

const seenPrimeLimit = 2000

func main() {
	cfg, err := config.Load(config.Path("configs/config.yml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Service.Debug,
	})
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("processor exited", logger.Error(err))
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel := telemetry.NewProvider()

	db, err := database.Open(database.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     fmt.Sprint(cfg.Database.Port),
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		Path:     cfg.Database.Path,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		return err
	}
	auditRepo := database.NewAuditRepository(db)

	rules, err := classifier.LoadRules(cfg.Rules.Path)
	if err != nil {
		return err
	}
	engine, err := classifier.NewRuleEngine(rules, log, tel)
	if err != nil {
		return err
	}
	log.Info("rule table loaded",
		logger.String("path", cfg.Rules.Path),
		logger.Int("entries", engine.RuleCount()))

	directed := classifier.NewDirectednessClassifier(rules.Directedness, log)

	scorers := make([]classifier.Scorer, 0, len(cfg.Signals.Scorers))
	for _, sc := range cfg.Signals.Scorers {
		scorers = append(scorers, scoreclient.New(sc.Name, domain.ScorerKind(sc.Kind), sc.BaseURL, sc.Timeout))
	}
	aggregator := classifier.NewAggregator(scorers, signalPolicy(cfg), tel, log)
	c := classifier.New(engine, directed, aggregator, tel, log)

	backends, err := buildBackends(cfg)
	if err != nil {
		return err
	}
	reviewer := router.New(backends, cfg.Review.Timeout, cfg.Review.CooldownBuffer, cfg.Review.DefaultReset, tel, log)

	reporter := source.NewModerationClient(cfg.Source.BaseURL, cfg.Source.Token, log)
	var notifier processor.Notifier
	if cfg.Notify.Enabled && cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, log)
	}
	finalizer := processor.NewFinalizer(processor.FinalizerConfig{
		Enabled:            cfg.Actions.Enabled,
		DryRun:             cfg.Service.DryRun,
		ReasonTemplate:     cfg.Actions.ReasonTemplate,
		MinRemoveConsensus: cfg.Actions.MinRemoveConsensus,
		RemoveFloor:        cfg.Actions.RemoveFloor,
	}, reporter, auditRepo, notifier, tel, log)

	feed := source.NewHTTPFeed(cfg.Source.BaseURL, cfg.Source.Communities)
	pipeline := processor.NewPipeline(processor.PipelineConfig{
		Concurrency:  cfg.Service.Concurrency,
		QueueDepth:   cfg.Service.QueueDepth,
		PollInterval: cfg.Source.PollInterval,
		FetchLimit:   cfg.Source.Limit,
		ScanRate:     cfg.Service.ScanRate,
		ScanBurst:    cfg.Service.ScanBurst,
	}, feed, c, reviewer, finalizer, tel, log)

	if ids, seenErr := auditRepo.SeenItemIDs(ctx, seenPrimeLimit); seenErr != nil {
		log.Warn("seen prime failed, feed tail may rescan", logger.Error(seenErr))
	} else {
		pipeline.PrimeSeen(ids)
	}

	// In-process ground-truth refresh. cmd/reconcile stays available for
	// one-shot passes and the summary schedule.
	recFeed := reconcile.NewHTTPFeed(cfg.Reconcile.FeedURL)
	reconciler := reconcile.New(reconcile.Config{
		Interval:    cfg.Reconcile.Interval,
		Lookback:    time.Duration(cfg.Reconcile.LookbackDays) * 24 * time.Hour,
		DecisionLag: cfg.Reconcile.DecisionLag,
	}, auditRepo, recFeed, tel, log)
	go reconciler.Run(ctx)

	// Metrics-only listener so the pipeline is observable without httpd.
	go serveMetrics(cfg.Service.Port, tel, log)

	pipeline.Start(ctx)
	log.Info("processor running",
		logger.Bool("dry_run", cfg.Service.DryRun),
		logger.Bool("actions_enabled", cfg.Actions.Enabled))

	<-ctx.Done()
	log.Info("shutdown signal received")
	pipeline.Stop()
	return nil
}

func signalPolicy(cfg *config.Config) classifier.SignalPolicy {
	thresholds := make(map[string]classifier.LabelThreshold, len(cfg.Signals.Thresholds))
	for label, th := range cfg.Signals.Thresholds {
		thresholds[label] = classifier.LabelThreshold{Directed: th.Directed, Undirected: th.Undirected}
	}
	return classifier.SignalPolicy{
		Thresholds: thresholds,
		Default: classifier.LabelThreshold{
			Directed:   cfg.Signals.DefaultThreshold.Directed,
			Undirected: cfg.Signals.DefaultThreshold.Undirected,
		},
		LowConfidenceBound: cfg.Signals.LowConfidenceBound,
		ValidationFloor:    cfg.Signals.ValidationFloor,
	}
}

func buildBackends(cfg *config.Config) ([]router.Backend, error) {
	ordered := make([]config.BackendConfig, len(cfg.Review.Backends))
	copy(ordered, cfg.Review.Backends)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	backends := make([]router.Backend, 0, len(ordered))
	for _, b := range ordered {
		backend, err := router.NewOpenAIBackend(b.Name, b.Model, b.BaseURL, b.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		backends = append(backends, backend)
	}
	return backends, nil
}

func serveMetrics(port int, tel *telemetry.Provider, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", tel.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics listener failed", logger.Error(err))
	}
}
