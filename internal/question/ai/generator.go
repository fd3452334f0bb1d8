package ai

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
	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/wager-quiz/internal/question"
)

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com"
	defaultModel          = "gemini-2.0-flash"
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 8 * time.Second
	maxRetryAfter         = 30 * time.Second
	maxBodyBytes          = 4 << 20
)

// Config holds connection details for the generative provider.
type Config struct {
	BaseURL        string
	Model          string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Generator implements question.Completer against a generateContent-style API.
type Generator struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	endpoint   string
}

var _ question.Completer = (*Generator)(nil)

func NewGenerator(cfg Config, logger zerolog.Logger) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	return &Generator{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger.With().Str("component", "ai_generator").Logger(),
		endpoint:   fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, cfg.Model),
	}
}

// Complete sends the prompt and returns the concatenated text parts of the first candidate.
func (g *Generator) Complete(ctx context.Context, prompt, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", question.NewError(question.CodeMissingAPIKey, "no provider credential configured", nil)
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.9,
		},
	})
	if err != nil {
		return "", question.NewError(question.CodeUnknown, "encode provider request", err)
	}

	var (
		text       string
		lastErr    *question.Error
		retryAfter time.Duration
		attempt    int
	)
	err = retry.Do(ctx, g.backoff(&retryAfter), func(ctx context.Context) error {
		attempt++
		out, aerr := g.call(ctx, body, credential)
		if aerr == nil {
			text = out
			providerCalls.WithLabelValues("ok").Inc()
			return nil
		}
		lastErr = aerr.err
		providerCalls.WithLabelValues(aerr.err.Code).Inc()
		if !aerr.retryable {
			return aerr.err
		}
		retryAfter = aerr.retryAfter
		providerRetries.Inc()
		g.logger.Warn().Err(aerr.err).Int("attempt", attempt).Dur("retry_after", aerr.retryAfter).Msg("provider call failed, retrying")
		return retry.RetryableError(aerr.err)
	})
	if err == nil {
		return text, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", question.NewError(question.CodeNetworkError, "provider call cancelled", err)
	}
	return "", question.AsError(err)
}

// backoff is exponential with jitter; a larger Retry-After from the last response wins.
func (g *Generator) backoff(retryAfter *time.Duration) retry.Backoff {
	base := retry.NewExponential(g.config.InitialBackoff)
	base = retry.WithCappedDuration(g.config.MaxBackoff, base)
	base = retry.WithJitterPercent(20, base)
	base = retry.WithMaxRetries(uint64(g.config.MaxAttempts-1), base)

	return retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := base.Next()
		if stop {
			return 0, true
		}
		if *retryAfter > next {
			next = *retryAfter
		}
		*retryAfter = 0
		return next, false
	})
}

type attemptError struct {
	err        *question.Error
	retryable  bool
	retryAfter time.Duration
}

func (g *Generator) call(ctx context.Context, body []byte, credential string) (string, *attemptError) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &attemptError{err: question.NewError(question.CodeUnknown, "build provider request", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", credential)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", &attemptError{err: question.NewError(question.CodeNetworkError, "provider call cancelled", ctx.Err())}
		}
		return "", &attemptError{
			err:       question.NewError(question.CodeNetworkError, "provider unreachable", err),
			retryable: true,
		}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &attemptError{
			err:       question.NewError(question.CodeNetworkError, "read provider response", err),
			retryable: true,
		}
	}

	if aerr := classifyResponse(resp.StatusCode, resp.Header, payload, time.Now()); aerr != nil {
		return "", aerr
	}

	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", &attemptError{err: question.NewError(question.CodeParsingError, "provider envelope is not valid JSON", err)}
	}
	text := decoded.text()
	if text == "" {
		reason := decoded.PromptFeedback.BlockReason
		if reason == "" {
			reason = "empty candidate"
		}
		return "", &attemptError{err: question.NewError(question.CodeInvalidResponse, "provider returned no text: "+reason, nil)}
	}
	return text, nil
}

// classifyResponse maps a non-2xx response onto a typed error and decides retryability.
// Quota exhaustion is detected from the body, since providers reuse 429 for it.
func classifyResponse(status int, header http.Header, body []byte, now time.Time) *attemptError {
	if status >= 200 && status < 300 {
		return nil
	}
	lower := strings.ToLower(string(body))
	msg := fmt.Sprintf("provider returned status %d", status)

	switch {
	case isQuotaExhausted(lower):
		return &attemptError{err: question.NewError(question.CodeQuotaExceeded, msg, nil)}
	case isInvalidCredential(status, lower):
		return &attemptError{err: question.NewError(question.CodeInvalidAPIKey, msg, nil)}
	case status == http.StatusTooManyRequests:
		return &attemptError{
			err:        question.NewError(question.CodeRateLimited, msg, nil),
			retryable:  true,
			retryAfter: parseRetryAfter(header.Get("Retry-After"), now),
		}
	case status >= 500:
		return &attemptError{
			err:        question.NewError(question.CodeNetworkError, msg, nil),
			retryable:  true,
			retryAfter: parseRetryAfter(header.Get("Retry-After"), now),
		}
	default:
		return &attemptError{err: question.NewError(question.CodeUnknown, msg, nil)}
	}
}

func isQuotaExhausted(body string) bool {
	if strings.Contains(body, "insufficient_quota") || strings.Contains(body, "billing") {
		return true
	}
	if strings.Contains(body, "quota") && (strings.Contains(body, "exceeded") || strings.Contains(body, "exhausted")) {
		return true
	}
	return false
}

func isInvalidCredential(status int, body string) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status != http.StatusBadRequest && status != http.StatusForbidden {
		return false
	}
	return strings.Contains(body, "api key not valid") ||
		strings.Contains(body, "api_key_invalid") ||
		strings.Contains(body, "invalid api key") ||
		strings.Contains(body, "api key expired")
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Values are capped.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && fmt.Sprint(secs) == v {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = t.Sub(now)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}
