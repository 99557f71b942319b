package notification

import (
	"fmt"
	"strings"
	"time"
)

// Alert is a payout failure worth telling operators about.
type Alert struct {
	PayoutID string
	SellerID string
	OrderID  string
	Amount   string
	Currency string
	Reason   string
	FailedAt time.Time
}

// AlertFromPayload reads the payload of a payout.failed event.
func AlertFromPayload(payload map[string]any) (Alert, error) {
	str := func(k string) string {
		s, _ := payload[k].(string)
		return s
	}

	a := Alert{
		PayoutID: str("payout_id"),
		SellerID: str("seller_id"),
		OrderID:  str("order_id"),
		Amount:   str("amount"),
		Currency: str("currency"),
		Reason:   str("reason"),
	}
	if a.PayoutID == "" {
		return Alert{}, fmt.Errorf("alert payload has no payout_id")
	}
	if raw := str("failed_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Alert{}, fmt.Errorf("alert failed_at: %w", err)
		}
		a.FailedAt = t
	}
	return a, nil
}

func (a Alert) Subject() string {
	return fmt.Sprintf("[payouts] Payout %s failed", a.PayoutID)
}

func (a Alert) Body() string {
	var b strings.Builder
	b.WriteString("A seller payout reached the failed state.\n\n")
	fmt.Fprintf(&b, "Payout:    %s\n", a.PayoutID)
	fmt.Fprintf(&b, "Seller:    %s\n", a.SellerID)
	fmt.Fprintf(&b, "Order:     %s\n", a.OrderID)
	fmt.Fprintf(&b, "Amount:    %s %s\n", a.Amount, a.Currency)
	fmt.Fprintf(&b, "Reason:    %s\n", a.Reason)
	if !a.FailedAt.IsZero() {
		fmt.Fprintf(&b, "Failed at: %s\n", a.FailedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\nFailed payouts are not retried automatically.\n")
	return b.String()
}
