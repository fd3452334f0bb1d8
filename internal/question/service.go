package question

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Completer sends a prompt to the generative provider and returns its raw text output.
type Completer interface {
	Complete(ctx context.Context, prompt, credential string) (string, error)
}

// PackCache defines cache behavior (implemented by Redis-backed Cache).
type PackCache interface {
	Get(ctx context.Context, req GenerateRequest, credential string) ([]Question, error)
	Set(ctx context.Context, req GenerateRequest, credential string, questions []Question) error
}

// Service wraps the provider call with prompt building, validation and caching.
type Service struct {
	provider Completer
	cache    PackCache
	logger   zerolog.Logger
}

// NewService builds the adapter. cache may be nil.
func NewService(provider Completer, cache PackCache, logger zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		cache:    cache,
		logger:   logger.With().Str("component", "question_service").Logger(),
	}
}

// Generate returns exactly req.Count validated questions or a *Error.
func (s *Service) Generate(ctx context.Context, req GenerateRequest, credential string) ([]Question, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, NewError(CodeMissingAPIKey, "no provider credential configured", nil)
	}
	if req.Count <= 0 {
		return nil, NewError(CodeInvalidResponse, "question count must be positive", nil)
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, req, credential); err == nil && len(cached) >= req.Count {
			return cached[:req.Count], nil
		} else if err != nil {
			s.logger.Warn().Err(err).Msg("question cache read failed")
		}
	}

	raw, err := s.provider.Complete(ctx, BuildPrompt(req), credential)
	if err != nil {
		qe := AsError(err)
		s.logger.Warn().Err(err).Str("code", qe.Code).Msg("provider call failed")
		return nil, qe
	}

	questions, err := ParseQuestions(raw, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("theme", req.Theme).Int("count", req.Count).Msg("provider response rejected")
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, req, credential, questions); err != nil {
			s.logger.Warn().Err(err).Msg("question cache write failed")
		}
	}

	s.logger.Info().Str("theme", req.Theme).Str("type", req.Type).Int("count", len(questions)).Msg("questions generated")
	return questions, nil
}
