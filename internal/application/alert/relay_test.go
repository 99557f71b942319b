package alert_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cassiomorais/payouts/internal/application/alert"
	"github.com/cassiomorais/payouts/internal/domain/outbox"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/cassiomorais/payouts/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []*outbox.Entry
	failFor   map[string]bool
}

func (f *fakePublisher) Publish(_ context.Context, e *outbox.Entry) error {
	if f.failFor[e.Payload["seller_id"].(string)] {
		return errors.New("redis: connection refused")
	}
	f.published = append(f.published, e)
	return nil
}

func failedEntry(repo *testutil.MockOutboxRepository, seller string) *outbox.Entry {
	p := testutil.NewTestPayout(seller, "ORD-1", "10.00", payout.CurrencyRON)
	e := outbox.NewPayoutFailed(p, "declined", p.CreatedAt)
	_ = repo.Insert(context.Background(), e)
	return e
}

func TestRelayOutbox_PublishesPending(t *testing.T) {
	repo := &testutil.MockOutboxRepository{}
	a := failedEntry(repo, "S1")
	b := failedEntry(repo, "S2")
	pub := &fakePublisher{}
	tx := testutil.NewMockTransactionManager()

	uc := alert.NewRelayOutboxUseCase(tx, repo, pub, 10, zerolog.New(io.Discard))
	n, err := uc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []*outbox.Entry{a, b}, pub.published)
	assert.Equal(t, outbox.StatusPublished, a.Status)
	assert.NotNil(t, b.PublishedAt)
	assert.Equal(t, 1, tx.Calls())

	n, err = uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayOutbox_PublishFailureRetriesThenGivesUp(t *testing.T) {
	repo := &testutil.MockOutboxRepository{}
	e := failedEntry(repo, "S1")
	pub := &fakePublisher{failFor: map[string]bool{"S1": true}}

	uc := alert.NewRelayOutboxUseCase(testutil.NewMockTransactionManager(), repo, pub, 10, zerolog.New(io.Discard))
	for i := 0; i < e.MaxRetries; i++ {
		n, err := uc.Execute(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	assert.Equal(t, outbox.StatusFailed, e.Status)
	assert.Equal(t, e.MaxRetries, e.RetryCount)
	assert.Equal(t, "redis: connection refused", e.LastError)
	assert.Empty(t, pub.published)
}

func TestRelayOutbox_PublishesOneAlertPerPayout(t *testing.T) {
	repo := &testutil.MockOutboxRepository{}
	p := testutil.NewTestPayout("S1", "ORD-1", "10.00", payout.CurrencyRON)
	require.NoError(t, repo.Insert(context.Background(), outbox.NewPayoutFailed(p, "declined", p.CreatedAt)))
	require.NoError(t, repo.Insert(context.Background(), outbox.NewPayoutFailed(p, "declined", p.CreatedAt)))
	pub := &fakePublisher{}

	uc := alert.NewRelayOutboxUseCase(testutil.NewMockTransactionManager(), repo, pub, 10, zerolog.New(io.Discard))
	n, err := uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, pub.published, 1)
}

func TestRelayOutbox_RepositoryError(t *testing.T) {
	repo := &testutil.MockOutboxRepository{
		ClaimPendingFunc: func(context.Context, int) ([]*outbox.Entry, error) {
			return nil, errors.New("deadlock detected")
		},
	}
	uc := alert.NewRelayOutboxUseCase(testutil.NewMockTransactionManager(), repo, &fakePublisher{}, 10, zerolog.New(io.Discard))

	_, err := uc.Execute(context.Background())
	assert.Error(t, err)
}
