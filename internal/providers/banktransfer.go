package providers

import (
	"context"
	"net/http"
	"strings"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/infrastructure/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// BankTransferProvider sends credit transfers through a bank gateway using
// OAuth2 client credentials.
type BankTransferProvider struct {
	endpoint string
	client   *http.Client
}

type transferRequest struct {
	EndToEndID string `json:"end_to_end_id"`
	CreditorID string `json:"creditor_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
	State      string `json:"state"`
	Reason     string `json:"reason"`
}

// NewBankTransferProvider builds the provider. base supplies timeouts and transport
// for both the token and the transfer calls.
func NewBankTransferProvider(cfg config.BankTransferConfig, base *http.Client) (*BankTransferProvider, error) {
	switch {
	case cfg.ClientID == "":
		return nil, domainErrors.NewMisconfiguredError(NameBankTransfer, "client id is empty")
	case cfg.ClientSecret == "":
		return nil, domainErrors.NewMisconfiguredError(NameBankTransfer, "client secret is empty")
	case cfg.TokenURL == "":
		return nil, domainErrors.NewMisconfiguredError(NameBankTransfer, "token url is empty")
	case cfg.BaseURL == "":
		return nil, domainErrors.NewMisconfiguredError(NameBankTransfer, "base url is empty")
	}
	endpoint, err := endpointURL(cfg.BaseURL, "/v1/transfers")
	if err != nil {
		return nil, domainErrors.NewMisconfiguredError(NameBankTransfer, err.Error())
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(tokenCtx, cc.TokenSource(tokenCtx))
	client.Timeout = base.Timeout

	return &BankTransferProvider{endpoint: endpoint, client: client}, nil
}

func (p *BankTransferProvider) Name() string { return NameBankTransfer }

func (p *BankTransferProvider) Send(ctx context.Context, in Instruction) (*Result, error) {
	body := transferRequest{
		EndToEndID: in.Reference,
		CreditorID: in.SellerID,
		Amount:     in.Amount.StringFixed(2),
		Currency:   string(in.Currency),
	}
	headers := map[string]string{"X-Idempotency-Key": in.Reference}

	var resp transferResponse
	if err := postJSON(ctx, p.client, NameBankTransfer, p.endpoint, headers, body, &resp); err != nil {
		return nil, err
	}

	switch strings.ToUpper(resp.State) {
	case "REJECTED", "RJCT":
		reason := resp.Reason
		if reason == "" {
			reason = "transfer rejected by bank"
		}
		return nil, domainErrors.NewRejectedError(NameBankTransfer, reason, http.StatusOK)
	}
	if resp.TransferID == "" {
		return nil, domainErrors.NewTransientError(NameBankTransfer, "response without transfer id", http.StatusOK, nil)
	}

	return &Result{ProviderReference: resp.TransferID}, nil
}
