package controller

import (
	"time"

	payoutApp "github.com/cassiomorais/payouts/internal/application/payout"
	"github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/payout"
)

// --- Request DTOs ---

// RunBatchRequest holds the input for a batch run. Cutoff is RFC 3339; an empty
// cutoff means now.
type RunBatchRequest struct {
	Cutoff string `json:"cutoff,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// CutoffOr parses the cutoff, falling back to now when it is empty.
func (r RunBatchRequest) CutoffOr(now time.Time) (time.Time, error) {
	if r.Cutoff == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, r.Cutoff)
	if err != nil {
		return time.Time{}, errors.NewValidationError("cutoff", "must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

// --- Response DTOs ---
// Money is rendered as a fixed two-decimal string so no precision is lost in JSON.

// PayoutResponse represents a payout in API responses.
type PayoutResponse struct {
	ID            string     `json:"id"`
	SellerID      string     `json:"seller_id"`
	OrderID       string     `json:"order_id"`
	Amount        string     `json:"amount"`
	Commission    string     `json:"commission"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	ProviderRef   *string    `json:"provider_ref,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// CreatePayoutsResponse lists the payouts of an order.
type CreatePayoutsResponse struct {
	OrderID string           `json:"order_id"`
	Payouts []PayoutResponse `json:"payouts"`
}

// RunResultResponse is the outcome of one payout run.
type RunResultResponse struct {
	PayoutID      string `json:"payout_id"`
	SellerID      string `json:"seller_id"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	ProviderRef   string `json:"provider_ref,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	InProgress    bool   `json:"in_progress"`
	Attempts      int    `json:"attempts"`
}

// BatchResponse summarises a batch run.
type BatchResponse struct {
	Cutoff     time.Time           `json:"cutoff"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Selected   int                 `json:"selected"`
	Processed  int                 `json:"processed"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	Skipped    int                 `json:"skipped"`
	Cancelled  bool                `json:"cancelled"`
	Results    []RunResultResponse `json:"results"`
}

// LedgerEntryResponse represents a ledger entry in API responses.
type LedgerEntryResponse struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Amount    string            `json:"amount"`
	Currency  string            `json:"currency"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// --- Conversion helpers ---

func toPayoutResponse(p *payout.Payout) PayoutResponse {
	return PayoutResponse{
		ID:            p.ID.String(),
		SellerID:      p.SellerID,
		OrderID:       p.OrderID,
		Amount:        p.Amount.StringFixed(2),
		Commission:    p.CommissionAmount.StringFixed(2),
		Currency:      string(p.Currency),
		Status:        string(p.Status),
		ProviderRef:   p.ProviderRef,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		PaidAt:        p.PaidAt,
	}
}

func toRunResultResponse(r *payoutApp.Result) RunResultResponse {
	return RunResultResponse{
		PayoutID:      r.PayoutID.String(),
		SellerID:      r.SellerID,
		OrderID:       r.OrderID,
		Status:        string(r.Status),
		ProviderRef:   r.ProviderRef,
		FailureReason: r.FailureReason,
		InProgress:    r.InProgress,
		Attempts:      r.Attempts,
	}
}

func toBatchResponse(s *payoutApp.BatchSummary) BatchResponse {
	resp := BatchResponse{
		Cutoff:     s.Cutoff,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Selected:   s.Selected,
		Processed:  s.Processed,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		Cancelled:  s.Cancelled,
		Results:    make([]RunResultResponse, 0, len(s.Results)),
	}
	for _, r := range s.Results {
		resp.Results = append(resp.Results, toRunResultResponse(r))
	}
	return resp
}

func toLedgerEntryResponse(e *ledger.Entry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:        e.ID.String(),
		Type:      string(e.Type),
		Amount:    e.Amount.StringFixed(2),
		Currency:  string(e.Currency),
		Meta:      e.Meta,
		CreatedAt: e.CreatedAt,
	}
}
