package testutil

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/order"
	"github.com/cassiomorais/payouts/internal/domain/outbox"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/cassiomorais/payouts/internal/providers"
	"github.com/cassiomorais/payouts/internal/repository/postgres"
	"github.com/google/uuid"
)

// --- Payout Repository Mock ---

// MockPayoutRepository is an in-memory payout.Repository with compare-and-set semantics.
type MockPayoutRepository struct {
	mu          sync.Mutex
	payouts     map[uuid.UUID]*payout.Payout
	deliveredAt map[string]time.Time
	ledger      *MockLedgerRepository

	CreateFunc                     func(ctx context.Context, p *payout.Payout) error
	GetByIDFunc                    func(ctx context.Context, id uuid.UUID) (*payout.Payout, error)
	TransitionStatusFunc           func(ctx context.Context, id uuid.UUID, from, to payout.Status) (bool, error)
	MarkPaidFunc                   func(ctx context.Context, id uuid.UUID, ref string, paidAt time.Time) (bool, error)
	MarkFailedFunc                 func(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ListPendingDeliveredBeforeFunc func(ctx context.Context, cutoff time.Time, limit int) ([]*payout.Payout, error)
}

func NewMockPayoutRepository() *MockPayoutRepository {
	return &MockPayoutRepository{
		payouts:     make(map[uuid.UUID]*payout.Payout),
		deliveredAt: make(map[string]time.Time),
	}
}

// WithLedger lets ListPaidWithoutLedger see the entries of l.
func (m *MockPayoutRepository) WithLedger(l *MockLedgerRepository) *MockPayoutRepository {
	m.ledger = l
	return m
}

// SetDelivered records when an order was delivered for batch selection.
func (m *MockPayoutRepository) SetDelivered(orderID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveredAt[orderID] = at
}

// AddPayout stores p as is, bypassing Create.
func (m *MockPayoutRepository) AddPayout(p *payout.Payout) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[p.ID] = clonePayout(p)
}

func (m *MockPayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payouts {
		if existing.OrderID == p.OrderID && existing.SellerID == p.SellerID {
			return domainErrors.ErrPayoutAlreadyExists
		}
	}
	m.payouts[p.ID] = clonePayout(p)
	return nil
}

func (m *MockPayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, domainErrors.ErrPayoutNotFound
	}
	return clonePayout(p), nil
}

func (m *MockPayoutRepository) ListByOrder(_ context.Context, orderID string) ([]*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payout.Payout
	for _, p := range m.payouts {
		if p.OrderID == orderID {
			out = append(out, clonePayout(p))
		}
	}
	sortPayouts(out)
	return out, nil
}

func (m *MockPayoutRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to payout.Status) (bool, error) {
	if m.TransitionStatusFunc != nil {
		return m.TransitionStatusFunc(ctx, id, from, to)
	}
	if !payout.CanTransition(from, to) {
		return false, domainErrors.ErrInvalidStateTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MockPayoutRepository) MarkPaid(ctx context.Context, id uuid.UUID, ref string, paidAt time.Time) (bool, error) {
	if m.MarkPaidFunc != nil {
		return m.MarkPaidFunc(ctx, id, ref, paidAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok || p.Status != payout.StatusProcessing {
		return false, nil
	}
	p.Status = payout.StatusPaid
	p.ProviderRef = &ref
	p.PaidAt = &paidAt
	return true, nil
}

func (m *MockPayoutRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok || p.Status != payout.StatusProcessing {
		return false, nil
	}
	p.Status = payout.StatusFailed
	p.FailureReason = &reason
	return true, nil
}

func (m *MockPayoutRepository) ListPendingDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*payout.Payout, error) {
	if m.ListPendingDeliveredBeforeFunc != nil {
		return m.ListPendingDeliveredBeforeFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payout.Payout
	for _, p := range m.payouts {
		at, ok := m.deliveredAt[p.OrderID]
		if p.Status == payout.StatusPending && ok && !at.After(cutoff) {
			out = append(out, clonePayout(p))
		}
	}
	sortPayouts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPayoutRepository) ListPaidWithoutLedger(ctx context.Context, limit int) ([]*payout.Payout, error) {
	m.mu.Lock()
	var out []*payout.Payout
	for _, p := range m.payouts {
		if p.Status == payout.StatusPaid {
			out = append(out, clonePayout(p))
		}
	}
	m.mu.Unlock()

	if m.ledger != nil {
		filtered := out[:0]
		for _, p := range out {
			if len(m.ledger.EntriesFor(p.ID)) == 0 {
				filtered = append(filtered, p)
			}
		}
		out = filtered
	}
	sortPayouts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPayoutRepository) ListStaleProcessing(_ context.Context, before time.Time, limit int) ([]*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payout.Payout
	for _, p := range m.payouts {
		if p.Status == payout.StatusProcessing && p.UpdatedAt.Before(before) {
			out = append(out, clonePayout(p))
		}
	}
	sortPayouts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Payout returns the stored payout or nil.
func (m *MockPayoutRepository) Payout(id uuid.UUID) *payout.Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payouts[id]; ok {
		return clonePayout(p)
	}
	return nil
}

func clonePayout(p *payout.Payout) *payout.Payout {
	c := *p
	if p.ProviderRef != nil {
		ref := *p.ProviderRef
		c.ProviderRef = &ref
	}
	if p.FailureReason != nil {
		reason := *p.FailureReason
		c.FailureReason = &reason
	}
	if p.PaidAt != nil {
		at := *p.PaidAt
		c.PaidAt = &at
	}
	return &c
}

func sortPayouts(ps []*payout.Payout) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return bytes.Compare(ps[i].ID[:], ps[j].ID[:]) < 0
	})
}

// --- Ledger Repository Mock ---

// MockLedgerRepository is an append-only in-memory ledger.Repository.
type MockLedgerRepository struct {
	mu      sync.Mutex
	entries []*ledger.Entry

	AppendFunc func(ctx context.Context, e *ledger.Entry) error
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{}
}

func (m *MockLedgerRepository) Append(ctx context.Context, e *ledger.Entry) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.Type == e.Type && existing.EntityType == e.EntityType && existing.EntityID == e.EntityID {
			return domainErrors.ErrLedgerEntryExists
		}
	}
	c := *e
	m.entries = append(m.entries, &c)
	return nil
}

func (m *MockLedgerRepository) ListByEntity(_ context.Context, entityType ledger.EntityType, entityID uuid.UUID) ([]*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Entry
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// EntriesFor returns the payout entries recorded for id.
func (m *MockLedgerRepository) EntriesFor(id uuid.UUID) []*ledger.Entry {
	out, _ := m.ListByEntity(context.Background(), ledger.EntityPayout, id)
	return out
}

// Len returns the total number of entries.
func (m *MockLedgerRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// --- Order Repository Mock ---

// MockOrderRepository is an in-memory order.Repository.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*order.Order

	GetByIDFunc func(ctx context.Context, id string) (*order.Order, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*order.Order)}
}

func (m *MockOrderRepository) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	return o, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	mu    sync.Mutex
	calls int

	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// Calls returns how many transactions were opened.
func (m *MockTransactionManager) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Outbox Repository Mock ---

// MockOutboxRepository keeps inserted entries in memory. Like the table, it holds
// at most one entry per payout and event type.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc       func(ctx context.Context, entry *outbox.Entry) error
	ClaimPendingFunc func(ctx context.Context, limit int) ([]*outbox.Entry, error)
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.AggregateID == entry.AggregateID && e.EventType == entry.EventType {
			return nil
		}
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.ClaimPendingFunc != nil {
		return m.ClaimPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending && (limit <= 0 || len(out) < limit) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
			e.PublishedAt = &at
			e.LastError = ""
		}
	}
	return nil
}

func (m *MockOutboxRepository) RecordPublishFailure(_ context.Context, id uuid.UUID, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			e.LastError = cause
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// Entries returns every inserted entry.
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.entries...)
}

// --- Locker Mock ---

// MockLocker hands out in-process locks keyed like the Redis locker.
type MockLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
	released int
	extended int

	AcquireErr error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

// MockLock is a lock handed out by MockLocker.
type MockLock struct {
	locker *MockLocker
	key    string
}

func (m *MockLocker) Acquire(_ context.Context, key string, _ time.Duration) (*MockLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	if m.held[key] {
		return nil, fmt.Errorf("lock:%s: %w", key, domainErrors.ErrLockAcquisitionFailed)
	}
	m.held[key] = true
	m.acquired++
	return &MockLock{locker: m, key: key}, nil
}

// AsLocker adapts the mock to the runner's Locker port.
func (m *MockLocker) AsLocker() payoutApp.Locker {
	return payoutApp.LockerFunc(func(ctx context.Context, key string, ttl time.Duration) (payoutApp.Lock, error) {
		l, err := m.Acquire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		return l, nil
	})
}

// Hold marks key as held by someone else.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

func (l *MockLock) Extend(context.Context, time.Duration) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if !l.locker.held[l.key] {
		return domainErrors.ErrLockNotHeld
	}
	l.locker.extended++
	return nil
}

func (l *MockLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if !l.locker.held[l.key] {
		return domainErrors.ErrLockNotHeld
	}
	delete(l.locker.held, l.key)
	l.locker.released++
	return nil
}

// Held reports whether any lock is currently held.
func (m *MockLocker) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Extended returns how many times a held lock was extended.
func (m *MockLocker) Extended() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extended
}

// Counts returns how many locks were acquired and released.
func (m *MockLocker) Counts() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.released
}

// --- Provider Mock ---

// MockProvider returns scripted errors in order, then accepts every call.
type MockProvider struct {
	mu     sync.Mutex
	calls  []providers.Instruction
	script []error

	NameValue string
	// Always, when set, is returned on every call after the script runs out.
	Always error
	// SendFunc overrides everything above.
	SendFunc func(ctx context.Context, in providers.Instruction) (*providers.Result, error)
}

func NewMockProvider(script ...error) *MockProvider {
	return &MockProvider{NameValue: "mock", script: script}
}

func (m *MockProvider) Name() string { return m.NameValue }

func (m *MockProvider) Send(ctx context.Context, in providers.Instruction) (*providers.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	n := len(m.calls)
	var err error
	switch {
	case n <= len(m.script):
		err = m.script[n-1]
	case m.Always != nil:
		err = m.Always
	}
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, in)
	}
	if err != nil {
		return nil, err
	}
	return &providers.Result{ProviderReference: "mock_" + in.Reference}, nil
}

// Calls returns the number of Send invocations.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Instructions returns every instruction sent.
func (m *MockProvider) Instructions() []providers.Instruction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]providers.Instruction(nil), m.calls...)
}

// --- Idempotency Store Mock ---

// MockIdempotencyStore keeps responses in memory. Set keeps the first entry per key.
type MockIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry

	GetErr error
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (m *MockIdempotencyStore) Get(_ context.Context, key string) (*postgres.IdempotencyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	e, ok := m.entries[key]
	if !ok || !e.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *MockIdempotencyStore) Set(_ context.Context, entry *postgres.IdempotencyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[entry.Key]; ok && e.ExpiresAt.After(time.Now()) {
		return nil
	}
	cp := *entry
	m.entries[entry.Key] = &cp
	return nil
}

// Keys returns the stored keys.
func (m *MockIdempotencyStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
