package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reelqueue/reelqueue/pkg/metrics"
	"go.uber.org/zap"
)

const maxErrorBody = 64 * 1024

// HTTPClient performs provider API calls and turns non 2xx answers into
// *ErrProviderRequest.
//
// timeout bounds a whole Do call but only the wait for response headers in
// Stream, so long downloads are limited by the caller's context alone.
type HTTPClient struct {
	provider   string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPClient(provider string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &HTTPClient{
		provider:   provider,
		timeout:    timeout,
		httpClient: &http.Client{Transport: transport},
	}
}

// Do sends req and returns the body of a successful response.
func (c *HTTPClient) Do(req *http.Request, operation string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(req.Context(), c.timeout)
	defer cancel()

	resp, err := c.Stream(req.WithContext(ctx), operation)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrProviderRequest{Provider: c.provider, Operation: operation, Message: fmt.Sprintf("failed to read response body: %s", err)}
	}
	return body, nil
}

// Stream sends req and hands back the open response of a successful call.
// Callers must close the body.
func (c *HTTPClient) Stream(req *http.Request, operation string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest(c.provider, operation, metrics.OutcomeError, time.Since(start))
		return nil, &ErrProviderRequest{Provider: c.provider, Operation: operation, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			_ = resp.Body.Close()
		}()
		metrics.ObserveProviderRequest(c.provider, operation, metrics.OutcomeError, time.Since(start))

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message, raw := parseErrorBody(body)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}

		zap.S().Named(c.provider).Debugw("provider call failed", "operation", operation, "status", resp.StatusCode, "body", string(body))
		return nil, &ErrProviderRequest{
			Provider:   c.provider,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    message,
			Raw:        raw,
		}
	}

	metrics.ObserveProviderRequest(c.provider, operation, metrics.OutcomeSuccess, time.Since(start))
	return resp, nil
}

// NewErrMalformedResponse reports a successful call whose body could not be understood.
func (c *HTTPClient) NewErrMalformedResponse(operation string, err error) error {
	return &ErrProviderRequest{Provider: c.provider, Operation: operation, Message: fmt.Sprintf("malformed response: %s", err)}
}

// parseErrorBody understands the {"error": {"message": ...}} envelope shared by
// the OpenAI and Google APIs and falls back to the raw text.
func parseErrorBody(body []byte) (string, any) {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		text := strings.TrimSpace(string(body))
		if len(text) > 512 {
			text = text[:512]
		}
		return text, text
	}

	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Message != "" {
			return detail.Message, raw
		}
		var text string
		if err := json.Unmarshal(envelope.Error, &text); err == nil {
			return text, raw
		}
	}
	return "", raw
}
