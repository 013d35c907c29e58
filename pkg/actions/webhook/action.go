// Package webhook calls an external HTTP endpoint as a workflow step.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/autoflow/pkg/actions"
)

const (
	defaultTimeoutSeconds = 30
	maxResponseBytes      = 1 << 20
	maxRetryInterval      = time.Minute
)

var (
	// ErrURLInvalid is returned when the url is missing or not http(s).
	ErrURLInvalid = errors.New("invalid webhook url")
	// ErrHTTPServerError is returned when the endpoint keeps answering 5xx.
	ErrHTTPServerError = errors.New("server error during webhook call")
	// ErrHTTPClientError is returned for 4xx answers, which are never retried.
	ErrHTTPClientError = errors.New("client error during webhook call")
)

// RetryConfig defines retry behavior for webhook calls. Delay is the first
// wait in seconds; each further wait doubles, capped at a minute.
type RetryConfig struct {
	Attempts int
	Delay    float64
}

// BackOff returns the exponential retry schedule for the config. Attempts
// counts the first call, so it allows Attempts-1 retries.
func (r RetryConfig) BackOff() backoff.BackOff {
	exponential := &backoff.ExponentialBackOff{
		InitialInterval:     time.Duration(r.Delay * float64(time.Second)),
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxRetryInterval,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exponential.Reset()

	retries := max(r.Attempts-1, 0)

	return backoff.WithMaxRetries(exponential, uint64(retries)) //nolint:gosec // retries is not negative
}

// Request is a parsed webhook action config.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
	Retry   RetryConfig
}

// Handler performs outbound HTTP calls. Client is swappable for tests.
type Handler struct {
	Client *http.Client
}

func NewHandler() *Handler {
	return &Handler{Client: &http.Client{}}
}

// ParseRequest reads a rendered config.
func ParseRequest(config map[string]any) (*Request, error) {
	url, _ := config["url"].(string)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: %q", ErrURLInvalid, url)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	headers := make(map[string]string)

	if headersMap, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersMap {
			headers[k] = fmt.Sprintf("%v", v)
		}
	}

	var body []byte

	switch value := config["body"].(type) {
	case nil:
	case string:
		body = []byte(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}

		body = encoded

		if _, set := headers["Content-Type"]; !set {
			headers["Content-Type"] = "application/json"
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &Request{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		Retry:   parseRetryConfig(config["retry"]),
	}, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok && delay >= 0 {
		retry.Delay = delay
	}

	return retry
}

// Execute performs the call, retrying transport failures and 5xx answers.
func (h *Handler) Execute(
	ctx context.Context,
	config map[string]any,
	executionCtx actions.ExecutionContext,
	logger *slog.Logger,
) (any, error) {
	logger = logger.With("module", "webhook_action", "action_id", executionCtx.ActionID)

	request, err := ParseRequest(config)
	if err != nil {
		return nil, err
	}

	var (
		result  map[string]any
		attempt int
	)

	operation := func() error {
		attempt++

		result, err = h.do(ctx, request, executionCtx)
		if err != nil && errors.Is(err, ErrHTTPClientError) {
			return backoff.Permanent(err)
		}

		return err
	}

	policy := backoff.WithContext(request.Retry.BackOff(), ctx)

	notify := func(err error, wait time.Duration) {
		logger.InfoContext(ctx, fmt.Sprintf("webhook retry attempt %d/%d", attempt+1, request.Retry.Attempts),
			"wait", wait,
			"error", err)
	}

	err = backoff.RetryNotify(operation, policy, notify)
	if err != nil {
		return nil, fmt.Errorf("webhook call to %s failed after %d attempt(s): %w", request.URL, attempt, err)
	}

	logger.InfoContext(ctx, "webhook call completed", "status_code", result["status_code"])

	return result, nil
}

func (h *Handler) do(ctx context.Context, request *Request, executionCtx actions.ExecutionContext) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, request.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, request.Method, request.URL, bytes.NewReader(request.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	req.Header.Set("X-Autoflow-Execution-Id", executionCtx.ExecutionID)

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrHTTPServerError, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("%w: status %d", ErrHTTPClientError, resp.StatusCode)
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
	}, nil
}

// Schema describes the webhook action config.
func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Endpoint to call. Supports templating with trigger data and results.",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "POST",
				"enum":    []any{"GET", "POST", "PUT", "DELETE", "PATCH", "get", "post", "put", "delete", "patch"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"timeout_seconds": map[string]any{"type": "number", "minimum": 0},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1},
					"delay":    map[string]any{"type": "number", "minimum": 0},
				},
			},
		},
	}
}
