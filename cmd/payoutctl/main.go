package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/payouts/internal/bootstrap"
)

func main() {
	// Ctrl-C stops a batch before its next payout.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(connect)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*services, error) {
	app, err := bootstrap.New(ctx, "payoutctl", "payoutctl")
	if err != nil {
		return nil, err
	}
	uc := app.UseCases(app.Repositories())
	return &services{
		create:    uc.Create,
		run:       uc.Run,
		batch:     uc.Batch,
		reconcile: uc.Reconcile,
		close:     app.Close,
	}, nil
}
