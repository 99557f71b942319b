package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	alertApp "github.com/cassiomorais/payouts/internal/application/alert"
	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	"github.com/cassiomorais/payouts/internal/bootstrap"
	infraRedis "github.com/cassiomorais/payouts/internal/infrastructure/redis"
	"github.com/cassiomorais/payouts/internal/notification"
	"github.com/cassiomorais/payouts/internal/report"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const idempotencyCleanupInterval = time.Hour

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "payouts-worker", "payouts_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	repos := app.Repositories()
	uc := app.UseCases(repos)
	workerCfg := app.Config.Worker
	payoutCfg := app.Config.Payout

	// --- Alert pipeline ---
	producer := infraRedis.NewStreamProducer(app.Redis, app.Config.Alerts.Stream)
	relay := alertApp.NewRelayOutboxUseCase(repos.Tx, repos.Outbox, producer, int(workerCfg.BatchSize), app.Logger)

	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		app.Config.Alerts.Stream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
	}

	var mailer notification.Mailer = notification.LogMailer{Logger: app.Logger}
	if app.Config.Alerts.Enabled {
		smtp, err := notification.NewSMTPMailer(app.Config.Alerts)
		if err != nil {
			app.Logger.Fatal().Err(err).Msg("Failed to configure SMTP mailer")
		}
		mailer = smtp
	}
	notifier := notification.NewNotifier(consumer, mailer, app.Metrics, app.Logger)

	app.Logger.Info().
		Str("stream", app.Config.Alerts.Stream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Dur("batch_interval", payoutCfg.BatchInterval).
		Dur("cutoff_lag", payoutCfg.CutoffLag).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Scheduled batch run over payouts delivered before now - cutoff lag.
	g.Go(func() error {
		return every(gCtx, payoutCfg.BatchInterval, func(ctx context.Context) {
			runBatch(ctx, app.Logger, uc.Batch, payoutCfg.CutoffLag, workerCfg.ReportDir)
		})
	})

	// 2. Outbox relay (payout.failed events to the alert stream).
	g.Go(func() error {
		return every(gCtx, workerCfg.OutboxPollInterval, func(ctx context.Context) {
			relayOutbox(ctx, app.Logger, relay, repos.Outbox, app.Metrics)
		})
	})

	// 3. Alert notifier.
	g.Go(func() error {
		return notifier.Run(gCtx)
	})

	// 4. Ledger reconciliation sweep.
	g.Go(func() error {
		return every(gCtx, payoutCfg.ReconcileInterval, func(ctx context.Context) {
			n, err := uc.Reconcile.Execute(ctx)
			if err != nil {
				app.Logger.Error().Err(err).Msg("Ledger reconciliation failed")
				return
			}
			if n > 0 {
				app.Logger.Warn().Int("repaired", n).Msg("Ledger entries repaired")
			}
		})
	})

	// 5. Expired idempotency keys.
	g.Go(func() error {
		return every(gCtx, idempotencyCleanupInterval, func(ctx context.Context) {
			n, err := repos.Idempotency.Cleanup(ctx)
			if err != nil {
				app.Logger.Error().Err(err).Msg("Idempotency cleanup failed")
				return
			}
			app.Logger.Debug().Int64("deleted", n).Msg("Idempotency keys cleaned up")
		})
	})

	// 6. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// every calls fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		fn(ctx)
	}
}

func runBatch(ctx context.Context, logger zerolog.Logger, batch *payoutApp.RunBatchUseCase, cutoffLag time.Duration, reportDir string) {
	cutoff := time.Now().UTC().Add(-cutoffLag)
	summary, err := batch.Execute(ctx, cutoff)
	if err != nil {
		logger.Error().Err(err).Time("cutoff", cutoff).Msg("Batch run failed")
		return
	}
	if reportDir == "" || summary.Selected == 0 {
		return
	}

	path := filepath.Join(reportDir, report.FileName(summary.StartedAt))
	if err := report.SaveBatchReport(path, summary); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Failed to write batch report")
		return
	}
	logger.Info().Str("path", path).Msg("Batch report written")
}

type backlogRecorder interface {
	SetOutboxBacklog(n int)
}

type pendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

func relayOutbox(ctx context.Context, logger zerolog.Logger, relay *alertApp.RelayOutboxUseCase, outbox pendingCounter, metrics backlogRecorder) {
	start := time.Now()
	n, err := relay.Execute(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Outbox relay error")
	} else if n > 0 {
		logger.Debug().Int("published", n).Dur("took", time.Since(start)).Msg("Outbox relayed")
	}

	pending, err := outbox.CountPending(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to count pending outbox entries")
		return
	}
	metrics.SetOutboxBacklog(int(pending))
}
