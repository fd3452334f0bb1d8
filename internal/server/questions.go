package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/match"
	"github.com/gokatarajesh/wager-quiz/internal/question"
	httperrors "github.com/gokatarajesh/wager-quiz/pkg/http/errors"
)

// QuestionHandlers proxies question generation for clients that cannot reach the
// provider directly. The credential is used for the one call and never stored.
type QuestionHandlers struct {
	source  match.QuestionSource
	timeout time.Duration
	logger  zerolog.Logger
}

func NewQuestionHandlers(source match.QuestionSource, timeout time.Duration, logger zerolog.Logger) *QuestionHandlers {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &QuestionHandlers{
		source:  source,
		timeout: timeout,
		logger:  logger.With().Str("component", "question_handlers").Logger(),
	}
}

// Generate handles POST /v1/questions/generate
func (h *QuestionHandlers) Generate(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(question.ProviderKeyHeader))
	if key == "" {
		httperrors.RespondProviderError(w, http.StatusBadRequest, "Provider key header is required", question.CodeMissingAPIKey)
		return
	}

	var req question.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if req.Count < 1 || req.Count > match.MaxQuestions {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "count must be within [1,20]", "count")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	qs, err := h.source.Generate(ctx, req, key)
	if err != nil {
		qe := question.AsError(err)
		h.logger.Warn().Err(err).Str("code", qe.Code).Msg("question generation failed")
		httperrors.RespondProviderError(w, providerStatus(qe.Code), qe.Message, qe.Code)
		return
	}
	writeJSON(w, http.StatusOK, question.GenerateResponse{Questions: qs})
}

func providerStatus(code string) int {
	switch code {
	case question.CodeMissingAPIKey:
		return http.StatusBadRequest
	case question.CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case question.CodeQuotaExceeded, question.CodeRateLimited:
		return http.StatusTooManyRequests
	case question.CodeNetworkError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
