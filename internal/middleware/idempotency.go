package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const idempotencyHeader = "Idempotency-Key"

// ResponseCache stores finished responses keyed by idempotency key. Get
// returns (nil, nil) on a miss so callers can tell absence from a backend
// failure.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// redisResponseCache backs ResponseCache with redis.
type redisResponseCache struct {
	client *redis.Client
}

// NewRedisResponseCache creates a redis-backed ResponseCache.
func NewRedisResponseCache(client *redis.Client) ResponseCache {
	return &redisResponseCache{client: client}
}

func (r *redisResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

func (r *redisResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// storedResponse is the serialized form of a completed response.
type storedResponse struct {
	Status int             `json:"status"`
	Header http.Header     `json:"header"`
	Body   json.RawMessage `json:"body"`
}

// bodyRecorder wraps gin.ResponseWriter to keep a copy of the body as it is
// written out.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the first response for repeated mutating
// requests carrying the same Idempotency-Key header. Booking creation is
// idempotent at the service layer too; the cache keeps client retries from
// reaching the database at all. A cache outage degrades to passing requests
// through, never to refusing them.
func IdempotencyMiddleware(cache ResponseCache, ttl time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := "idempotency:" + key

		if stored, ok := lookupStored(ctx, cache, cacheKey, logger); ok {
			for name, values := range stored.Header {
				for _, value := range values {
					c.Header(name, value)
				}
			}
			logger.WithFields(logrus.Fields{
				"idempotency_key": key,
				"status":          stored.Status,
			}).Info("Replaying cached response for repeated idempotency key")
			c.Data(stored.Status, stored.Header.Get("Content-Type"), stored.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		// 5xx responses are not cached so retries get a fresh attempt.
		status := c.Writer.Status()
		if status < 200 || status >= 500 {
			return
		}

		stored := storedResponse{
			Status: status,
			Header: c.Writer.Header().Clone(),
			Body:   recorder.buf.Bytes(),
		}
		data, err := json.Marshal(stored)
		if err != nil {
			logger.WithError(err).WithField("idempotency_key", key).Warn("Failed to serialize response for idempotency cache")
			return
		}
		if err := cache.Set(ctx, cacheKey, data, ttl); err != nil {
			logger.WithError(err).WithField("idempotency_key", key).Warn("Failed to cache idempotent response")
		}
	}
}

// lookupStored fetches and decodes a cached response. Backend failures and
// undecodable entries are treated as misses: replay protection degrades to
// the service-layer idempotency check.
func lookupStored(ctx context.Context, cache ResponseCache, cacheKey string, logger *logrus.Logger) (*storedResponse, bool) {
	data, err := cache.Get(ctx, cacheKey)
	if err != nil {
		logger.WithError(err).Warn("Idempotency cache unavailable, handling request without replay protection")
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var stored storedResponse
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.WithError(err).Warn("Discarding undecodable idempotency cache entry")
		return nil, false
	}
	return &stored, true
}
