package payout_test

import (
	"context"
	"io"
	"testing"
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/cassiomorais/payouts/internal/infrastructure/observability"
	"github.com/cassiomorais/payouts/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileLedger_RepairsMissingEntries(t *testing.T) {
	entries := testutil.NewMockLedgerRepository()
	payouts := testutil.NewMockPayoutRepository().WithLedger(entries)

	orphan := testutil.NewPaidPayout("S1", "ORD-1", "120.00", "prov-1")
	booked := testutil.NewPaidPayout("S2", "ORD-1", "30.00", "prov-2")
	payouts.AddPayout(orphan)
	payouts.AddPayout(booked)
	payouts.AddPayout(testutil.NewFailedPayout("S3", "ORD-1", "5.00", "declined"))

	e, err := ledger.NewPayoutEntry(booked)
	require.NoError(t, err)
	require.NoError(t, entries.Append(context.Background(), e))

	uc := payoutApp.NewReconcileLedgerUseCase(payouts, entries, 100, time.Minute, nil, zerolog.New(io.Discard))
	n, err := uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := entries.EntriesFor(orphan.ID)
	require.Len(t, got, 1)
	assert.Equal(t, "-120.00", got[0].Amount.StringFixed(2))
	assert.Equal(t, "prov-1", got[0].Meta["provider_ref"])

	n, err = uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, entries.Len())
}

func TestReconcileLedger_ReportsStaleProcessing(t *testing.T) {
	entries := testutil.NewMockLedgerRepository()
	payouts := testutil.NewMockPayoutRepository().WithLedger(entries)

	stuck := testutil.NewTestPayout("S1", "ORD-1", "40.00", payout.CurrencyRON)
	stuck.Status = payout.StatusProcessing
	stuck.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	running := testutil.NewTestPayout("S2", "ORD-1", "15.00", payout.CurrencyRON)
	running.Status = payout.StatusProcessing
	payouts.AddPayout(stuck)
	payouts.AddPayout(running)

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	uc := payoutApp.NewReconcileLedgerUseCase(payouts, entries, 100, 2*time.Minute, metrics, zerolog.New(io.Discard))

	n, err := uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.StaleProcessingPayouts))
	assert.Equal(t, payout.StatusProcessing, payouts.Payout(stuck.ID).Status)
	assert.Zero(t, entries.Len())
}
