package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/wager-quiz/internal/question"
)

func newTestGenerator(url string) *Generator {
	return NewGenerator(Config{
		BaseURL:        url,
		Model:          "test-model",
		Timeout:        2 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, zerolog.New(io.Discard))
}

func writeCandidate(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
}

func TestCompleteReturnsCandidateText(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		writeCandidate(w, `{"questions":[]}`)
	}))
	defer srv.Close()

	out, err := newTestGenerator(srv.URL).Complete(context.Background(), "prompt", "secret")
	require.NoError(t, err)
	assert.Equal(t, `{"questions":[]}`, out)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/v1beta/models/test-model:generateContent", gotPath)
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeCandidate(w, "ok")
	}))
	defer srv.Close()

	out, err := newTestGenerator(srv.URL).Complete(context.Background(), "prompt", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCompleteStopsAtAttemptCap(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := newTestGenerator(srv.URL).Complete(context.Background(), "prompt", "secret")
	require.Error(t, err)
	assert.Equal(t, question.CodeRateLimited, question.CodeOf(err))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCompleteDoesNotRetryQuotaOrInvalidKey(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"quota on 429", http.StatusTooManyRequests, `{"error":{"status":"RESOURCE_EXHAUSTED","message":"You exceeded your current quota"}}`, question.CodeQuotaExceeded},
		{"billing", http.StatusForbidden, `{"error":{"message":"Billing account disabled"}}`, question.CodeQuotaExceeded},
		{"invalid key", http.StatusBadRequest, `{"error":{"message":"API key not valid. Please pass a valid API key.","details":[{"reason":"API_KEY_INVALID"}]}}`, question.CodeInvalidAPIKey},
		{"unauthorized", http.StatusUnauthorized, `{}`, question.CodeInvalidAPIKey},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestGenerator(srv.URL).Complete(context.Background(), "prompt", "secret")
			assert.Equal(t, tc.code, question.CodeOf(err))
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
		})
	}
}

func TestCompleteNetworkErrorIsRetriedThenSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestGenerator(url).Complete(context.Background(), "prompt", "secret")
	assert.Equal(t, question.CodeNetworkError, question.CodeOf(err))
}

func TestCompleteMissingCredential(t *testing.T) {
	_, err := newTestGenerator("http://127.0.0.1:1").Complete(context.Background(), "prompt", "")
	assert.Equal(t, question.CodeMissingAPIKey, question.CodeOf(err))
}

func TestCompleteEmptyCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	_, err := newTestGenerator(srv.URL).Complete(context.Background(), "prompt", "secret")
	require.Error(t, err)
	assert.Equal(t, question.CodeInvalidResponse, question.CodeOf(err))
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 2*time.Second, parseRetryAfter("2", now))
	assert.Equal(t, maxRetryAfter, parseRetryAfter("600", now))
	assert.Equal(t, 5*time.Second, parseRetryAfter(now.Add(5*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Zero(t, parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestBackoffPrefersLargerRetryAfter(t *testing.T) {
	g := newTestGenerator("http://example.invalid")
	retryAfter := 50 * time.Millisecond
	b := g.backoff(&retryAfter)

	d, stop := b.Next()
	require.False(t, stop)
	assert.Equal(t, 50*time.Millisecond, d)
	assert.Zero(t, retryAfter, "retry-after is consumed once")

	d, stop = b.Next()
	require.False(t, stop)
	assert.Less(t, d, 50*time.Millisecond)

	_, stop = b.Next()
	assert.True(t, stop, "two retries for three attempts")
}
