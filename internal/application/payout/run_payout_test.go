package payout_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/outbox"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/cassiomorais/payouts/internal/providers"
	"github.com/cassiomorais/payouts/internal/testutil"
	"github.com/cassiomorais/payouts/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	payouts  *testutil.MockPayoutRepository
	ledger   *testutil.MockLedgerRepository
	outbox   *testutil.MockOutboxRepository
	tx       *testutil.MockTransactionManager
	locker   *testutil.MockLocker
	provider *testutil.MockProvider
	runner   *payoutApp.RunPayoutUseCase
}

func newHarness(provider *testutil.MockProvider) *harness {
	h := &harness{
		ledger:   testutil.NewMockLedgerRepository(),
		outbox:   &testutil.MockOutboxRepository{},
		tx:       testutil.NewMockTransactionManager(),
		locker:   testutil.NewMockLocker(),
		provider: provider,
	}
	h.payouts = testutil.NewMockPayoutRepository().WithLedger(h.ledger)
	h.runner = payoutApp.NewRunPayoutUseCase(
		h.payouts, h.ledger, h.outbox, h.tx, h.locker.AsLocker(), provider,
		payoutApp.RunnerConfig{
			Retry: retry.Config{
				MaxAttempts:    3,
				InitialDelay:   time.Millisecond,
				MaxDelay:       2 * time.Millisecond,
				AttemptTimeout: time.Second,
			},
			LockTTL: time.Minute,
		},
		nil, zerolog.New(io.Discard),
	)
	return h
}

func transient() error {
	return domainErrors.NewTransientError("mock", "gateway timeout", 504, nil)
}

func TestRunPayout_Success(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewTestPayout("S1", "ORD-1", "120.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, payout.StatusPaid, res.Status)
	assert.Equal(t, "mock_PAYOUT-"+p.ID.String(), res.ProviderRef)
	assert.Empty(t, res.FailureReason)
	assert.False(t, res.InProgress)
	assert.Equal(t, 1, res.Attempts)

	stored := h.payouts.Payout(p.ID)
	assert.Equal(t, payout.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)

	entries := h.ledger.EntriesFor(p.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "-120.00", entries[0].Amount.StringFixed(2))
	assert.Equal(t, payout.CurrencyRON, entries[0].Currency)
	assert.Empty(t, h.outbox.Entries())

	in := h.provider.Instructions()[0]
	assert.Equal(t, "PAYOUT-"+p.ID.String(), in.Reference)
	assert.Equal(t, "S1", in.SellerID)

	acquired, released := h.locker.Counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}

func TestRunPayout_TwiceOnPaidIsNoop(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewTestPayout("S1", "ORD-1", "50.00", payout.CurrencyEUR)
	h.payouts.AddPayout(p)

	first, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	second, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ProviderRef, second.ProviderRef)
	assert.Equal(t, payout.StatusPaid, second.Status)
	assert.Equal(t, 1, h.provider.Calls())
	assert.Equal(t, 1, h.ledger.Len())
}

func TestRunPayout_TransientTwiceThenSuccess(t *testing.T) {
	h := newHarness(testutil.NewMockProvider(transient(), transient()))
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, payout.StatusPaid, res.Status)
	assert.Equal(t, 3, h.provider.Calls())
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, h.ledger.EntriesFor(p.ID), 1)
}

func TestRunPayout_AlwaysRejected(t *testing.T) {
	provider := testutil.NewMockProvider()
	provider.Always = domainErrors.NewRejectedError("mock", "invalid IBAN", 422)
	h := newHarness(provider)
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, payout.StatusFailed, res.Status)
	assert.Equal(t, "invalid IBAN", res.FailureReason)
	assert.Equal(t, 1, h.provider.Calls())
	assert.Equal(t, "invalid IBAN", h.payouts.Payout(p.ID).FailureReasonValue())
	assert.Zero(t, h.ledger.Len())

	entries := h.outbox.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventPayoutFailed, entries[0].EventType)
	assert.Equal(t, p.ID, entries[0].AggregateID)
	assert.Equal(t, "invalid IBAN", entries[0].Payload["reason"])
}

func TestRunPayout_TransientExhausted(t *testing.T) {
	provider := testutil.NewMockProvider()
	provider.Always = transient()
	h := newHarness(provider)
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, payout.StatusFailed, res.Status)
	assert.Equal(t, 3, h.provider.Calls())
	assert.Contains(t, res.FailureReason, "gateway timeout")
	assert.Len(t, h.outbox.Entries(), 1)
}

func TestRunPayout_UnclassifiedErrorIsNotRetried(t *testing.T) {
	provider := testutil.NewMockProvider()
	provider.Always = errors.New("unexpected EOF")
	h := newHarness(provider)
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusFailed, res.Status)
	assert.Equal(t, "unexpected EOF", res.FailureReason)
	assert.Equal(t, 1, h.provider.Calls())
}

func TestRunPayout_NotFound(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())

	res, err := h.runner.Execute(context.Background(), uuid.New())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domainErrors.ErrPayoutNotFound)
	assert.Zero(t, h.provider.Calls())
	assert.Zero(t, h.tx.Calls())
}

func TestRunPayout_Processing(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	p.Status = payout.StatusProcessing
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, res.InProgress)
	assert.Equal(t, payout.StatusProcessing, res.Status)
	assert.Zero(t, h.provider.Calls())
}

func TestRunPayout_FailedIsRefused(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewFailedPayout("S1", "ORD-1", "10.00", "account closed")
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(context.Background(), p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrPayoutAlreadyFailed)
	require.NotNil(t, res)
	assert.Equal(t, payout.StatusFailed, res.Status)
	assert.Equal(t, "account closed", res.FailureReason)
	assert.Zero(t, h.provider.Calls())
}

func TestRunPayout_InvalidFieldsPersistNothing(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *payout.Payout)
	}{
		{"zero amount", func(p *payout.Payout) { p.Amount = testutil.Dec("0") }},
		{"negative amount", func(p *payout.Payout) { p.Amount = testutil.Dec("-1") }},
		{"unsupported currency", func(p *payout.Payout) { p.Currency = "USD" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(testutil.NewMockProvider())
			p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
			tt.setup(p)
			h.payouts.AddPayout(p)

			_, err := h.runner.Execute(context.Background(), p.ID)
			assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
			assert.Equal(t, payout.StatusPending, h.payouts.Payout(p.ID).Status)
			assert.Zero(t, h.provider.Calls())
			acquired, _ := h.locker.Counts()
			assert.Zero(t, acquired)
		})
	}
}

func TestRunPayout_LockHeldElsewhere(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)
	h.locker.Hold("payout:" + p.ID.String())

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, res.InProgress)
	assert.Zero(t, h.provider.Calls())
	assert.Equal(t, payout.StatusPending, h.payouts.Payout(p.ID).Status)
}

func TestRunPayout_LostCompareAndSet(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)
	h.payouts.TransitionStatusFunc = func(context.Context, uuid.UUID, payout.Status, payout.Status) (bool, error) {
		return false, nil
	}

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, res.InProgress)
	assert.Zero(t, h.provider.Calls())
	assert.Zero(t, h.locker.Held())
}

func TestRunPayout_ConcurrentRunsDispatchOnce(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.runner.Execute(context.Background(), p.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.provider.Calls())
	assert.Equal(t, 1, h.ledger.Len())
	assert.Equal(t, payout.StatusPaid, h.payouts.Payout(p.ID).Status)
	assert.Zero(t, h.locker.Held())
}

func TestRunPayout_LedgerFailureRollsBackPaid(t *testing.T) {
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	// Emulate rollback: the paid write is only kept when fn succeeds.
	h.tx.WithTransactionFunc = func(ctx context.Context, fn func(context.Context) error) error {
		before := h.payouts.Payout(p.ID)
		if err := fn(ctx); err != nil {
			h.payouts.AddPayout(before)
			return err
		}
		return nil
	}
	h.ledger.AppendFunc = func(context.Context, *ledger.Entry) error {
		return errors.New("connection reset")
	}

	res, err := h.runner.Execute(context.Background(), p.ID)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, payout.StatusProcessing, h.payouts.Payout(p.ID).Status)
	assert.Zero(t, h.locker.Held())
}

func TestRunPayout_CallerCancelDuringSendStillCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := testutil.NewMockProvider()
	provider.SendFunc = func(sendCtx context.Context, in providers.Instruction) (*providers.Result, error) {
		cancel()
		select {
		case <-sendCtx.Done():
			return nil, sendCtx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		return &providers.Result{ProviderReference: "prov-" + in.Reference}, nil
	}
	h := newHarness(provider)
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusPaid, res.Status)
	assert.Equal(t, 1, provider.Calls())
	assert.Equal(t, payout.StatusPaid, h.payouts.Payout(p.ID).Status)
	assert.Len(t, h.ledger.EntriesFor(p.ID), 1)
	assert.Empty(t, h.outbox.Entries())
	assert.Zero(t, h.locker.Held())
}

func TestRunPayout_CancelledBeforeClaimLeavesPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(testutil.NewMockProvider())
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)
	h.payouts.TransitionStatusFunc = func(ctx context.Context, _ uuid.UUID, _, _ payout.Status) (bool, error) {
		cancel()
		return false, ctx.Err()
	}

	_, err := h.runner.Execute(ctx, p.ID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, payout.StatusPending, h.payouts.Payout(p.ID).Status)
	assert.Zero(t, h.provider.Calls())
	assert.Empty(t, h.outbox.Entries())
}

func TestRunPayout_RetriesExtendTheLock(t *testing.T) {
	h := newHarness(testutil.NewMockProvider(transient(), transient()))
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	h.payouts.AddPayout(p)

	res, err := h.runner.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusPaid, res.Status)
	assert.Equal(t, 2, h.locker.Extended())
}
