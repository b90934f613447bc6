package evaluator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_SendsRequestAndDecodes(t *testing.T) {
	var got evaluator.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/evaluate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"is_correct": true, "code_quality": {"score": 90}}`))
	}))
	defer srv.Close()

	client := evaluator.NewHTTPClient(srv.URL+"/", "secret", 5*time.Second, zerolog.Nop())
	res, err := client.Evaluate(context.Background(), evaluator.Request{
		Code:         "func twoSum() {}",
		Language:     "go",
		ThinkingTime: 30,
		CodingTime:   240,
	})
	require.NoError(t, err)

	assert.True(t, res.IsCorrect)
	assert.Equal(t, 90, res.CodeQuality.Score)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, 240, got.CodingTime)
}

func TestHTTPClient_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := evaluator.NewHTTPClient(srv.URL, "", 5*time.Second, zerolog.Nop())
	_, err := client.Evaluate(context.Background(), evaluator.Request{Code: "x"})

	var evalErr *evaluator.Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, http.StatusServiceUnavailable, evalErr.StatusCode)
	assert.True(t, evaluator.IsRetryable(err))
}

func TestHTTPClient_BadRequestIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported language", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := evaluator.NewHTTPClient(srv.URL, "", 5*time.Second, zerolog.Nop())
	_, err := client.Evaluate(context.Background(), evaluator.Request{Code: "x"})

	require.Error(t, err)
	assert.False(t, evaluator.IsRetryable(err))
}

func TestHTTPClient_RetriesMalformedBodyOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte("not json at all"))
			return
		}
		_, _ = w.Write([]byte(`{"is_correct": false}`))
	}))
	defer srv.Close()

	client := evaluator.NewHTTPClient(srv.URL, "", 5*time.Second, zerolog.Nop())
	res, err := client.Evaluate(context.Background(), evaluator.Request{Code: "x"})

	require.NoError(t, err)
	assert.False(t, res.IsCorrect)
	assert.Equal(t, int32(2), calls.Load())
}
