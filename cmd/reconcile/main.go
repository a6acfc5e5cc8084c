// Command reconcile folds moderator decisions back onto audit records
// and posts the periodic precision summary. It runs as a long-lived
// loop by default; --once runs a single pass and exits, and
// --force-summary posts a summary immediately regardless of schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modwatch/modwatch/internal/config"
	"github.com/modwatch/modwatch/internal/database"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/notify"
	"github.com/modwatch/modwatch/internal/reconcile"
	"github.com/modwatch/modwatch/internal/telemetry"
)

func main() {
	once := flag.Bool("once", false, "run a single reconcile pass and exit")
	forceSummary := flag.Bool("force-summary", false, "post the summary now, regardless of schedule")
	flag.Parse()

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

	if err := run(cfg, log, *once, *forceSummary); err != nil {
		log.Fatal("reconcile exited", logger.Error(err))
	}
}

func run(cfg *config.Config, log logger.Logger, once, forceSummary bool) error {
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

	feed := reconcile.NewHTTPFeed(cfg.Reconcile.FeedURL)
	reconciler := reconcile.New(reconcile.Config{
		Interval:    cfg.Reconcile.Interval,
		Lookback:    time.Duration(cfg.Reconcile.LookbackDays) * 24 * time.Hour,
		DecisionLag: cfg.Reconcile.DecisionLag,
	}, auditRepo, feed, tel, log)

	webhookURL := cfg.Notify.SummaryWebhook
	if webhookURL == "" {
		webhookURL = cfg.Notify.WebhookURL
	}
	if !cfg.Notify.Enabled {
		webhookURL = ""
	}
	summarizer := reconcile.NewSummarizer(reconcile.SummaryConfig{
		Interval:    cfg.Reconcile.SummaryInterval,
		DecisionLag: cfg.Reconcile.DecisionLag,
		StatePath:   cfg.Reconcile.StatePath,
	}, auditRepo, notify.NewWebhook(webhookURL, log), log)

	// Terminal records older than twice the lookback window can never be
	// touched again; sweep them so the table stays bounded.
	retention := 2 * time.Duration(cfg.Reconcile.LookbackDays) * 24 * time.Hour
	prune := func() {
		n, pruneErr := auditRepo.Prune(ctx, time.Now().Add(-retention))
		if pruneErr != nil {
			log.Error("prune failed", logger.Error(pruneErr))
			return
		}
		if n > 0 {
			log.Info("old audit records pruned", logger.Int64("deleted", n))
		}
	}

	if once || forceSummary {
		if err := reconciler.ReconcileOnce(ctx); err != nil {
			return err
		}
		posted, err := summarizer.MaybePost(ctx, forceSummary)
		if err != nil {
			return err
		}
		prune()
		log.Info("single pass complete", logger.Bool("summary_posted", posted))
		return nil
	}

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := summarizer.MaybePost(ctx, false); err != nil {
					log.Error("summary failed", logger.Error(err))
				}
				prune()
			}
		}
	}()

	reconciler.Run(ctx)
	return nil
}
