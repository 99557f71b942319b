package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/payouts/internal/bootstrap"
	"github.com/cassiomorais/payouts/internal/controller"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "payouts-api", "payouts")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	repos := app.Repositories()
	uc := app.UseCases(repos)

	router := controller.NewRouter(controller.RouterDeps{
		Database: app.Pool,
		Redis: controller.PingFunc(func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}),
		Payouts:          controller.NewPayoutController(uc.Create, uc.Run, uc.Batch, repos.Payouts, repos.Ledger),
		IdempotencyStore: repos.Idempotency,
		IdempotencyTTL:   app.Config.Worker.IdempotencyTTL,
		Metrics:          app.Metrics,
		ServiceName:      "payouts-api",
		Server:           app.Config.Server,
		Auth:             app.Config.Auth,
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
