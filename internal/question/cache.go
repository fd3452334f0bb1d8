package question

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// Cache keeps validated question sets in Redis so a retried request does not spend quota twice.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ PackCache = (*Cache)(nil)

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// cacheKey never embeds the raw credential, only a digest prefix.
func cacheKey(req GenerateRequest, credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return strings.Join([]string{
		"questionset",
		hex.EncodeToString(sum[:8]),
		strings.ToLower(req.Theme),
		req.Difficulty,
		req.Type,
		req.Language,
		fmt.Sprint(req.Count),
		fmt.Sprint(req.HintsEnabled),
	}, ":")
}

func (c *Cache) Get(ctx context.Context, req GenerateRequest, credential string) ([]Question, error) {
	data, err := c.client.Get(ctx, cacheKey(req, credential)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (c *Cache) Set(ctx context.Context, req GenerateRequest, credential string, questions []Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(req, credential), data, c.ttl).Err()
}
