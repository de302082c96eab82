package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/pinkeye-api/internal/repository"
)

// resultTTL bounds how long a finished prediction stays in the cache.
const resultTTL = 5 * time.Minute

// Cache abstracts the Redis operations used by the use case to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get returns redis.Nil on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

type cachedPrediction struct {
	RequestID   string    `json:"request_id"`
	SubjectName string    `json:"subject_name"`
	SubjectType string    `json:"subject_type"`
	Class       string    `json:"class"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	ModelID     string    `json:"model_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func resultCacheKey(requestID string) string {
	return "prediction:" + requestID
}

func encodeCachedLog(log *repository.PredictionLog) (string, error) {
	raw, err := json.Marshal(cachedPrediction{
		RequestID:   log.RequestID,
		SubjectName: log.SubjectName,
		SubjectType: log.SubjectType,
		Class:       log.Class,
		Label:       log.Label,
		Confidence:  log.Confidence,
		ModelID:     log.ModelID,
		CreatedAt:   log.CreatedAt,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeCachedLog(value string) (*repository.PredictionLog, error) {
	var payload cachedPrediction
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return nil, err
	}
	return &repository.PredictionLog{
		RequestID:   payload.RequestID,
		SubjectName: payload.SubjectName,
		SubjectType: payload.SubjectType,
		Class:       payload.Class,
		Label:       payload.Label,
		Confidence:  payload.Confidence,
		ModelID:     payload.ModelID,
		CreatedAt:   payload.CreatedAt,
	}, nil
}
