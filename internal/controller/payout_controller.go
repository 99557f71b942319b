package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PayoutCreator generates the payouts of a delivered order.
type PayoutCreator interface {
	Execute(ctx context.Context, orderID string) ([]*payout.Payout, error)
}

// BatchRunner runs every eligible payout for a cutoff.
type BatchRunner interface {
	Execute(ctx context.Context, cutoff time.Time) (*payoutApp.BatchSummary, error)
}

// PayoutController exposes the payout triggers and read endpoints.
type PayoutController struct {
	creator    PayoutCreator
	runner     payoutApp.PayoutRunner
	batch      BatchRunner
	payoutRepo payout.Repository
	ledgerRepo ledger.Repository
	now        func() time.Time
}

func NewPayoutController(
	creator PayoutCreator,
	runner payoutApp.PayoutRunner,
	batch BatchRunner,
	payoutRepo payout.Repository,
	ledgerRepo ledger.Repository,
) *PayoutController {
	return &PayoutController{
		creator:    creator,
		runner:     runner,
		batch:      batch,
		payoutRepo: payoutRepo,
		ledgerRepo: ledgerRepo,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateForOrder handles POST /api/v1/orders/{id}/payouts.
func (c *PayoutController) CreateForOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, domainErrors.NewValidationError("id", "order id is required"))
		return
	}

	payouts, err := c.creator.Execute(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := CreatePayoutsResponse{OrderID: orderID, Payouts: make([]PayoutResponse, 0, len(payouts))}
	for _, p := range payouts {
		resp.Payouts = append(resp.Payouts, toPayoutResponse(p))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Run handles POST /api/v1/payouts/{id}/run.
func (c *PayoutController) Run(w http.ResponseWriter, r *http.Request) {
	id, ok := payoutIDParam(w, r)
	if !ok {
		return
	}

	res, err := c.runner.Execute(r.Context(), id)
	if err != nil {
		if res != nil && errors.Is(err, domainErrors.ErrPayoutAlreadyFailed) {
			writeJSON(w, http.StatusConflict, toRunResultResponse(res))
			return
		}
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.InProgress {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toRunResultResponse(res))
}

// RunBatch handles POST /api/v1/payouts/batch. An empty body runs with cutoff now.
func (c *PayoutController) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req RunBatchRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	cutoff, err := req.CutoffOr(c.now())
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := c.batch.Execute(r.Context(), cutoff)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(summary))
}

// Get handles GET /api/v1/payouts/{id}.
func (c *PayoutController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := payoutIDParam(w, r)
	if !ok {
		return
	}

	p, err := c.payoutRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutResponse(p))
}

// Ledger handles GET /api/v1/payouts/{id}/ledger.
func (c *PayoutController) Ledger(w http.ResponseWriter, r *http.Request) {
	id, ok := payoutIDParam(w, r)
	if !ok {
		return
	}

	if _, err := c.payoutRepo.GetByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	entries, err := c.ledgerRepo.ListByEntity(r.Context(), ledger.EntityPayout, id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toLedgerEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func payoutIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}
