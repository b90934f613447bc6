package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/metrics"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// maxAttempts bounds retries on malformed bodies. Transport and status
// failures are returned immediately; the submitter decides whether to retry.
const maxAttempts = 2

// maxBodyBytes caps how much of an evaluator response is read.
const maxBodyBytes = 1 << 20

// HTTPClient calls the evaluator service over HTTP.
type HTTPClient struct {
	url    string
	apiKey string
	client *http.Client
	log    zerolog.Logger
}

// Compile-time check: *HTTPClient satisfies the Evaluator interface.
var _ Evaluator = (*HTTPClient)(nil)

// NewHTTPClient creates an evaluator client for baseURL. The per-call bound
// comes from the caller's context; timeout is only a transport backstop.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		url:    strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "evaluator_client").Logger(),
	}
}

// Evaluate sends the submission for grading.
func (c *HTTPClient) Evaluate(ctx context.Context, req Request) (*model.EvaluationResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Reason: "marshal request", Wrapped: err}
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, err := c.post(ctx, payload)
		if err != nil {
			metrics.EvaluationDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			return nil, err
		}

		result, err := DecodeResult(body)
		if err != nil {
			lastErr = &Error{Reason: "invalid evaluation payload", Retryable: true, Wrapped: err}
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Malformed evaluator response")
			continue
		}

		metrics.EvaluationDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
		c.log.Debug().
			Bool("is_correct", result.IsCorrect).
			Dur("latency", time.Since(start)).
			Msg("Submission evaluated")
		return result, nil
	}

	metrics.EvaluationDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
	return nil, lastErr
}

func (c *HTTPClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/evaluate", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Reason: "build request", Wrapped: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Reason: "request failed", Retryable: true, Wrapped: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Reason: "read response", Retryable: true, Wrapped: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Reason:     fmt.Sprintf("evaluator returned status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Wrapped:    errors.New(strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}
