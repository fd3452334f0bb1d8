package question

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/wager-quiz/pkg/http/errors"
)

// ProviderKeyHeader carries the caller's own provider credential.
const ProviderKeyHeader = "X-Provider-Key"

const generatePath = "/v1/questions/generate"

// GenerateResponse is the body of a successful POST /v1/questions/generate.
type GenerateResponse struct {
	Questions []Question `json:"questions"`
}

// RemoteSource generates questions through the api service instead of calling the
// provider from this process. The credential travels per request and is not kept.
type RemoteSource struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewRemoteSource(baseURL string, timeout time.Duration, logger zerolog.Logger) *RemoteSource {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &RemoteSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "remote_question_source").Logger(),
	}
}

// Generate posts req and maps the service's error envelope back onto typed provider errors.
func (s *RemoteSource) Generate(ctx context.Context, req GenerateRequest, credential string) ([]Question, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, NewError(CodeMissingAPIKey, "no provider key configured", nil)
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+generatePath, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(ProviderKeyHeader, credential)

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, NewError(CodeNetworkError, "question service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env := httperrors.Decode(resp.StatusCode, resp.Body)
		code := env.Code
		if code == "" {
			code = CodeUnknown
		}
		s.logger.Debug().Int("status", resp.StatusCode).Str("code", code).Msg("question service rejected request")
		return nil, NewError(code, env.Message, nil)
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, NewError(CodeInvalidResponse, "undecodable question service response", err)
	}
	if len(out.Questions) == 0 {
		return nil, NewError(CodeInvalidResponse, "question service returned no questions", nil)
	}
	return out.Questions, nil
}
