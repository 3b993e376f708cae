package predicting

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache abstracts the Redis operations the cached predictor needs
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a Cache backed by go-redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a Redis-backed cache adapter
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Cached wraps a Predictor and remembers successful predictions by image hash.
// Entries are scoped to the backend and vocabulary that produced them.
// Cache failures never fail a prediction.
type Cached struct {
	next       Predictor
	cache      Cache
	ttl        time.Duration
	vocabulary *Vocabulary
	prefix     string
}

// NewCached creates a caching decorator around next. backend names the
// predictor kind so entries from different backends never mix.
func NewCached(next Predictor, cache Cache, ttl time.Duration, backend string, vocabulary *Vocabulary) *Cached {
	return &Cached{
		next:       next,
		cache:      cache,
		ttl:        ttl,
		vocabulary: vocabulary,
		prefix:     "prediction:" + backend + ":" + vocabulary.Fingerprint() + ":",
	}
}

func (c *Cached) predictionKey(imageData []byte) string {
	sum := sha1.Sum(imageData)
	return c.prefix + hex.EncodeToString(sum[:])
}

// valid reports whether a cached prediction still resolves the same way
func (c *Cached) valid(p *Prediction) bool {
	category, ok := c.vocabulary.Lookup(p.RawLabel)
	return ok && category == p.Category && p.Confidence >= 0 && p.Confidence <= 1
}

// Predict serves from the cache when possible and fills it on success
func (c *Cached) Predict(ctx context.Context, filename string, imageData []byte, contentType string) (*Prediction, error) {
	key := c.predictionKey(imageData)

	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var p Prediction
		if jsonErr := json.Unmarshal([]byte(cached), &p); jsonErr != nil {
			slog.Warn("Discarding unreadable cached prediction", "key", key)
			break
		}
		if !c.valid(&p) {
			slog.Warn("Discarding cached prediction outside the vocabulary", "key", key, "label", p.RawLabel)
			break
		}
		slog.Debug("Prediction served from cache", "key", key, "category", p.Category.Name)
		return &p, nil
	case !errors.Is(err, redis.Nil):
		slog.Warn("Prediction cache lookup failed", "key", key, "error", err)
	}

	prediction, err := c.next.Predict(ctx, filename, imageData, contentType)
	if err != nil {
		return nil, err
	}

	serialized, err := json.Marshal(prediction)
	if err != nil {
		slog.Warn("Failed to serialize prediction for cache", "error", err)
		return prediction, nil
	}
	if err := c.cache.Set(ctx, key, serialized, c.ttl); err != nil {
		slog.Warn("Prediction cache write failed", "key", key, "error", err)
	}

	return prediction, nil
}

// Ping forwards to the wrapped predictor. It returns ErrPingUnsupported
// when the wrapped predictor cannot check reachability.
func (c *Cached) Ping(ctx context.Context) error {
	if p, ok := c.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return ErrPingUnsupported
}

// Close closes the wrapped predictor
func (c *Cached) Close() error {
	return c.next.Close()
}
