package providers

import (
	"context"
	"net/http"
	"strings"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/infrastructure/config"
)

// NetopiaProvider sends payouts through the Netopia gateway using API-key auth.
type NetopiaProvider struct {
	endpoint  string
	apiKey    string
	signature string
	client    *http.Client
}

type netopiaRequest struct {
	Reference string `json:"reference"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Signature string `json:"signature,omitempty"`
}

type netopiaResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewNetopiaProvider(cfg config.NetopiaConfig, client *http.Client) (*NetopiaProvider, error) {
	if cfg.APIKey == "" {
		return nil, domainErrors.NewMisconfiguredError(NameNetopia, "api key is empty")
	}
	if cfg.BaseURL == "" {
		return nil, domainErrors.NewMisconfiguredError(NameNetopia, "base url is empty")
	}
	endpoint, err := endpointURL(cfg.BaseURL, "/payouts")
	if err != nil {
		return nil, domainErrors.NewMisconfiguredError(NameNetopia, err.Error())
	}

	return &NetopiaProvider{
		endpoint:  endpoint,
		apiKey:    cfg.APIKey,
		signature: cfg.Signature,
		client:    client,
	}, nil
}

func (p *NetopiaProvider) Name() string { return NameNetopia }

func (p *NetopiaProvider) Send(ctx context.Context, in Instruction) (*Result, error) {
	body := netopiaRequest{
		Reference: in.Reference,
		Recipient: in.SellerID,
		Amount:    in.Amount.StringFixed(2),
		Currency:  string(in.Currency),
		Signature: p.signature,
	}
	headers := map[string]string{
		"Authorization":   "apikey " + p.apiKey,
		"Idempotency-Key": in.Reference,
	}

	var resp netopiaResponse
	if err := postJSON(ctx, p.client, NameNetopia, p.endpoint, headers, body, &resp); err != nil {
		return nil, err
	}

	switch strings.ToLower(resp.Status) {
	case "declined", "rejected", "failed":
		reason := resp.Message
		if reason == "" {
			reason = "declined by gateway"
		}
		return nil, domainErrors.NewRejectedError(NameNetopia, reason, http.StatusOK)
	}
	if resp.ID == "" {
		return nil, domainErrors.NewTransientError(NameNetopia, "response without payout id", http.StatusOK, nil)
	}

	return &Result{ProviderReference: resp.ID}, nil
}
