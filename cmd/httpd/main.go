// Command httpd serves the moderation HTTP API: on-demand
// classification, rule and audit introspection, and metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modwatch/modwatch/internal/api"
	"github.com/modwatch/modwatch/internal/classifier"
	"github.com/modwatch/modwatch/internal/config"
	"github.com/modwatch/modwatch/internal/database"
	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/scoreclient"
	"github.com/modwatch/modwatch/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

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
		log.Fatal("httpd exited", logger.Error(err))
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
	directed := classifier.NewDirectednessClassifier(rules.Directedness, log)

	scorers := make([]classifier.Scorer, 0, len(cfg.Signals.Scorers))
	for _, sc := range cfg.Signals.Scorers {
		scorers = append(scorers, scoreclient.New(sc.Name, domain.ScorerKind(sc.Kind), sc.BaseURL, sc.Timeout))
	}
	thresholds := make(map[string]classifier.LabelThreshold, len(cfg.Signals.Thresholds))
	for label, th := range cfg.Signals.Thresholds {
		thresholds[label] = classifier.LabelThreshold{Directed: th.Directed, Undirected: th.Undirected}
	}
	aggregator := classifier.NewAggregator(scorers, classifier.SignalPolicy{
		Thresholds: thresholds,
		Default: classifier.LabelThreshold{
			Directed:   cfg.Signals.DefaultThreshold.Directed,
			Undirected: cfg.Signals.DefaultThreshold.Undirected,
		},
		LowConfidenceBound: cfg.Signals.LowConfidenceBound,
		ValidationFloor:    cfg.Signals.ValidationFloor,
	}, tel, log)
	c := classifier.New(engine, directed, aggregator, tel, log)

	handler := api.NewHandler(c, rules, auditRepo, cfg.Reconcile.DecisionLag, log)
	server := api.NewServer(api.ServerConfig{
		Port:  cfg.Service.Port,
		Debug: cfg.Service.Debug,
	}, handler, tel, log)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
