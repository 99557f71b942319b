package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"golang.org/x/oauth2"
)

const maxErrorBody = 4 << 10

// postJSON sends body to endpoint and decodes a 2xx response into out.
// Every failure comes back as a classified *ProviderError.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domainErrors.NewRejectedError(provider, "cannot encode instruction: "+err.Error(), 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domainErrors.NewRejectedError(provider, "cannot build request: "+err.Error(), 0)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domainErrors.NewTransientError(provider, "cannot read response", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(provider, resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return domainErrors.NewTransientError(provider, "malformed response", resp.StatusCode, err)
		}
	}
	return nil
}

// classifyStatus maps a non-2xx response to a provider error kind.
func classifyStatus(provider string, status int, body []byte) error {
	reason := errorMessage(body)
	if reason == "" {
		reason = http.StatusText(status)
	}

	switch {
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return domainErrors.NewTransientError(provider, reason, status, nil)
	default:
		return domainErrors.NewRejectedError(provider, reason, status)
	}
}

func classifyTransportError(provider string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		if status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
			return domainErrors.NewRejectedError(provider, "authentication rejected", status)
		}
		return domainErrors.NewTransientError(provider, "token endpoint unavailable", status, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return domainErrors.NewTransientError(provider, "request timed out", 0, err)
	}
	return domainErrors.NewTransientError(provider, "transport error", 0, err)
}

// errorMessage pulls a message out of common JSON error shapes, or returns the trimmed body.
func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, m := range []string{parsed.Message, parsed.Reason, parsed.Error} {
			if m != "" {
				return m
			}
		}
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(bytes.TrimSpace(body))
}

func endpointURL(base, path string) (string, error) {
	u, err := url.JoinPath(base, path)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	return u, nil
}
