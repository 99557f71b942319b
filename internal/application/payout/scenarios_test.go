package payout_test

import (
	"context"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/cassiomorais/payouts/internal/testutil"
	"github.com/rs/zerolog"
)

var _ = Describe("Seller payouts end to end", func() {
	var (
		ctx       context.Context
		h         *harness
		orders    *testutil.MockOrderRepository
		generator *payoutApp.CreatePayoutsUseCase
		batch     *payoutApp.RunBatchUseCase
	)

	setup := func(provider *testutil.MockProvider) {
		ctx = context.Background()
		h = newHarness(provider)
		orders = testutil.NewMockOrderRepository()
		generator = payoutApp.NewCreatePayoutsUseCase(orders, h.payouts, h.tx, zerolog.New(io.Discard))
		batch = payoutApp.NewRunBatchUseCase(h.payouts, h.runner, 100, nil, zerolog.New(io.Discard))
	}

	Context("order ORD-1 delivered to seller S1", func() {
		BeforeEach(func() {
			setup(testutil.NewMockProvider())
			o := testutil.NewDeliveredOrder("ORD-1", payout.CurrencyRON, [3]string{"S1", "120.00", "15.00"})
			orders.AddOrder(o)
			h.payouts.SetDelivered("ORD-1", *o.DeliveredAt)
		})

		It("creates one pending payout for the seller", func() {
			created, err := generator.Execute(ctx, "ORD-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(HaveLen(1))

			p := created[0]
			Expect(p.SellerID).To(Equal("S1"))
			Expect(p.Amount.StringFixed(2)).To(Equal("120.00"))
			Expect(p.CommissionAmount.StringFixed(2)).To(Equal("15.00"))
			Expect(p.Currency).To(Equal(payout.CurrencyRON))
			Expect(p.Status).To(Equal(payout.StatusPending))
		})

		It("pays it and books a single negative ledger entry", func() {
			created, err := generator.Execute(ctx, "ORD-1")
			Expect(err).NotTo(HaveOccurred())

			res, err := h.runner.Execute(ctx, created[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(payout.StatusPaid))
			Expect(res.ProviderRef).NotTo(BeEmpty())

			entries := h.ledger.EntriesFor(created[0].ID)
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Amount.StringFixed(2)).To(Equal("-120.00"))
			Expect(entries[0].Currency).To(Equal(payout.CurrencyRON))
			Expect(ledger.Sum(entries).Neg().Equal(created[0].Amount)).To(BeTrue())
		})

		It("runs the batch once and finds nothing the second time", func() {
			_, err := generator.Execute(ctx, "ORD-1")
			Expect(err).NotTo(HaveOccurred())

			cutoff := time.Now().UTC()
			first, err := batch.Execute(ctx, cutoff)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Succeeded).To(Equal(1))

			second, err := batch.Execute(ctx, cutoff)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Processed).To(BeZero())
			Expect(h.provider.Calls()).To(Equal(1))
			Expect(h.ledger.Len()).To(Equal(1))
		})

		It("returns the same reference when run again after paying", func() {
			created, _ := generator.Execute(ctx, "ORD-1")
			first, err := h.runner.Execute(ctx, created[0].ID)
			Expect(err).NotTo(HaveOccurred())
			again, err := h.runner.Execute(ctx, created[0].ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(again.ProviderRef).To(Equal(first.ProviderRef))
			Expect(h.ledger.Len()).To(Equal(1))
		})
	})

	Context("provider failing transiently twice", func() {
		BeforeEach(func() {
			setup(testutil.NewMockProvider(transient(), transient()))
		})

		It("ends paid after exactly three invocations", func() {
			p := testutil.NewTestPayout("S1", "ORD-9", "10.00", payout.CurrencyEUR)
			h.payouts.AddPayout(p)

			res, err := h.runner.Execute(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(payout.StatusPaid))
			Expect(h.provider.Calls()).To(Equal(3))
		})
	})

	Context("provider always rejecting", func() {
		BeforeEach(func() {
			provider := testutil.NewMockProvider()
			provider.Always = domainErrors.NewRejectedError("mock", "beneficiary account closed", 422)
			setup(provider)
		})

		It("fails with the verbatim reason after one invocation and emits an alert", func() {
			p := testutil.NewTestPayout("S1", "ORD-9", "10.00", payout.CurrencyEUR)
			h.payouts.AddPayout(p)

			res, err := h.runner.Execute(ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(payout.StatusFailed))
			Expect(res.FailureReason).To(Equal("beneficiary account closed"))
			Expect(h.provider.Calls()).To(Equal(1))
			Expect(h.outbox.Entries()).To(HaveLen(1))

			_, err = h.runner.Execute(ctx, p.ID)
			Expect(err).To(MatchError(domainErrors.ErrPayoutAlreadyFailed))
			Expect(h.provider.Calls()).To(Equal(1))
		})
	})

	DescribeTable("state machine edges",
		func(from, to payout.Status, allowed bool) {
			Expect(payout.CanTransition(from, to)).To(Equal(allowed))
		},
		Entry("pending to processing", payout.StatusPending, payout.StatusProcessing, true),
		Entry("processing to paid", payout.StatusProcessing, payout.StatusPaid, true),
		Entry("processing to failed", payout.StatusProcessing, payout.StatusFailed, true),
		Entry("pending to paid", payout.StatusPending, payout.StatusPaid, false),
		Entry("pending to failed", payout.StatusPending, payout.StatusFailed, false),
		Entry("paid to failed", payout.StatusPaid, payout.StatusFailed, false),
		Entry("failed to pending", payout.StatusFailed, payout.StatusPending, false),
		Entry("paid to processing", payout.StatusPaid, payout.StatusProcessing, false),
	)
})
