package question

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	mu      sync.Mutex
	out     string
	err     error
	calls   int
	prompts []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.out, s.err
}

type memoryCache struct {
	store map[string][]Question
}

func newMemoryCache() *memoryCache {
	return &memoryCache{store: map[string][]Question{}}
}

func (c *memoryCache) Get(_ context.Context, req GenerateRequest, credential string) ([]Question, error) {
	return c.store[cacheKey(req, credential)], nil
}

func (c *memoryCache) Set(_ context.Context, req GenerateRequest, credential string, qs []Question) error {
	c.store[cacheKey(req, credential)] = qs
	return nil
}

func fivePack() string {
	items := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		items = append(items, mcqItem(i, "A", "B", "C", "D"))
	}
	return `{"questions":[` + strings.Join(items, ",") + `]}`
}

func TestGenerateRequiresCredential(t *testing.T) {
	provider := &stubCompleter{out: fivePack()}
	svc := NewService(provider, nil, zerolog.New(io.Discard))

	_, err := svc.Generate(context.Background(), mcqRequest(5), "  ")
	require.Error(t, err)
	assert.Equal(t, CodeMissingAPIKey, CodeOf(err))
	assert.Zero(t, provider.calls, "provider must not be called without a credential")
}

func TestGenerateUsesCache(t *testing.T) {
	provider := &stubCompleter{out: fivePack()}
	cache := newMemoryCache()
	svc := NewService(provider, cache, zerolog.New(io.Discard))

	first, err := svc.Generate(context.Background(), mcqRequest(5), "key")
	require.NoError(t, err)
	assert.Len(t, first, 5)

	second, err := svc.Generate(context.Background(), mcqRequest(5), "key")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.calls)
	assert.Len(t, cache.store, 1)
}

func TestGenerateCacheKeyedByCredential(t *testing.T) {
	provider := &stubCompleter{out: fivePack()}
	svc := NewService(provider, newMemoryCache(), zerolog.New(io.Discard))

	_, err := svc.Generate(context.Background(), mcqRequest(5), "key-a")
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), mcqRequest(5), "key-b")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestGeneratePassesTypedProviderErrors(t *testing.T) {
	provider := &stubCompleter{err: NewError(CodeQuotaExceeded, "quota", nil)}
	svc := NewService(provider, nil, zerolog.New(io.Discard))

	_, err := svc.Generate(context.Background(), mcqRequest(5), "key")
	var qe *Error
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, CodeQuotaExceeded, qe.Code)
	assert.True(t, qe.NeedsSettings())
	assert.False(t, qe.Retryable())
}

func TestGenerateWrapsUnknownErrors(t *testing.T) {
	provider := &stubCompleter{err: errors.New("boom")}
	svc := NewService(provider, nil, zerolog.New(io.Discard))

	_, err := svc.Generate(context.Background(), mcqRequest(5), "key")
	assert.Equal(t, CodeUnknown, CodeOf(err))
}

func TestGenerateRejectsInvalidPayloadWithoutCaching(t *testing.T) {
	provider := &stubCompleter{out: "not json"}
	cache := newMemoryCache()
	svc := NewService(provider, cache, zerolog.New(io.Discard))

	_, err := svc.Generate(context.Background(), mcqRequest(5), "key")
	assert.Equal(t, CodeParsingError, CodeOf(err))
	assert.Empty(t, cache.store)
}

func TestCacheKeyHidesCredential(t *testing.T) {
	key := cacheKey(mcqRequest(5), "super-secret-key")
	assert.NotContains(t, key, "super-secret-key")
	assert.True(t, strings.HasPrefix(key, "questionset:"))
}
