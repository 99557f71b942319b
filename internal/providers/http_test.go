package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNetopia(t *testing.T, handler http.HandlerFunc) *NetopiaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewNetopiaProvider(config.NetopiaConfig{BaseURL: srv.URL, APIKey: "key-123"}, &http.Client{Timeout: time.Second})
	require.NoError(t, err)
	return p
}

func TestNetopiaProvider_Success(t *testing.T) {
	var got netopiaRequest
	p := newNetopia(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payouts", r.URL.Path)
		assert.Equal(t, "apikey key-123", r.Header.Get("Authorization"))
		assert.Equal(t, testInstruction().Reference, r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ntp-42","status":"accepted"}`))
	})

	res, err := p.Send(context.Background(), testInstruction())
	require.NoError(t, err)
	assert.Equal(t, "ntp-42", res.ProviderReference)
	assert.Equal(t, "120.00", got.Amount)
	assert.Equal(t, "RON", got.Currency)
	assert.Equal(t, "S1", got.Recipient)
	assert.Equal(t, testInstruction().Reference, got.Reference)
}

func TestNetopiaProvider_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   domainErrors.ProviderErrorKind
		reason string
	}{
		{"server error", http.StatusBadGateway, ``, domainErrors.KindTransient, "Bad Gateway"},
		{"request timeout", http.StatusRequestTimeout, ``, domainErrors.KindTransient, "Request Timeout"},
		{"rate limited", http.StatusTooManyRequests, `{"message":"slow down"}`, domainErrors.KindTransient, "slow down"},
		{"unprocessable", http.StatusUnprocessableEntity, `{"message":"invalid IBAN"}`, domainErrors.KindRejected, "invalid IBAN"},
		{"unauthorized", http.StatusUnauthorized, `denied`, domainErrors.KindRejected, "denied"},
		{"declined body", http.StatusOK, `{"id":"x","status":"declined","message":"account closed"}`, domainErrors.KindRejected, "account closed"},
		{"missing id", http.StatusOK, `{"status":"accepted"}`, domainErrors.KindTransient, "response without payout id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newNetopia(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.Send(context.Background(), testInstruction())
			var pe *domainErrors.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.reason, pe.Reason)
		})
	}
}

func TestNetopiaProvider_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := NewNetopiaProvider(config.NetopiaConfig{BaseURL: url, APIKey: "k"}, &http.Client{Timeout: time.Second})
	require.NoError(t, err)

	_, err = p.Send(context.Background(), testInstruction())
	assert.ErrorIs(t, err, domainErrors.ErrProviderTransient)
}

func TestNetopiaProvider_SlowResponseIsTransient(t *testing.T) {
	p := newNetopia(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Send(ctx, testInstruction())
	assert.ErrorIs(t, err, domainErrors.ErrProviderTransient)
	assert.True(t, IsRetryable(err))
}

func TestNewNetopiaProvider_Misconfigured(t *testing.T) {
	_, err := NewNetopiaProvider(config.NetopiaConfig{BaseURL: "http://x"}, http.DefaultClient)
	assert.ErrorIs(t, err, domainErrors.ErrProviderMisconfigured)
}

func TestBankTransferProvider_UsesClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var req transferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testInstruction().Reference, req.EndToEndID)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transfer_id":"trf-9","state":"ACCEPTED"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewBankTransferProvider(config.BankTransferConfig{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/oauth/token",
		ClientID:     "id",
		ClientSecret: "secret",
	}, &http.Client{Timeout: time.Second})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := p.Send(context.Background(), testInstruction())
		require.NoError(t, err)
		assert.Equal(t, "trf-9", res.ProviderReference)
	}
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestBankTransferProvider_RejectedState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transfer_id":"trf-1","state":"REJECTED","reason":"creditor account closed"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewBankTransferProvider(config.BankTransferConfig{
		BaseURL: srv.URL, TokenURL: srv.URL + "/oauth/token", ClientID: "id", ClientSecret: "s",
	}, &http.Client{Timeout: time.Second})
	require.NoError(t, err)

	_, err = p.Send(context.Background(), testInstruction())
	require.ErrorIs(t, err, domainErrors.ErrProviderRejected)
	assert.Equal(t, "creditor account closed", FailureReason(err))
}

func TestBankTransferProvider_TokenRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewBankTransferProvider(config.BankTransferConfig{
		BaseURL: srv.URL, TokenURL: srv.URL + "/oauth/token", ClientID: "id", ClientSecret: "bad",
	}, &http.Client{Timeout: time.Second})
	require.NoError(t, err)

	_, err = p.Send(context.Background(), testInstruction())
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
}

func TestNewBankTransferProvider_Misconfigured(t *testing.T) {
	_, err := NewBankTransferProvider(config.BankTransferConfig{BaseURL: "http://x", TokenURL: "http://x/t"}, http.DefaultClient)
	assert.ErrorIs(t, err, domainErrors.ErrProviderMisconfigured)
}
