package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bazaarino/bazaar/internal/apperr"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idem:v2:"
	replayedHeader       = "Idempotent-Replayed"
	cacheOpTimeout       = 2 * time.Second
)

// ErrIdempotencyKeyReused rejects a key presented again with a different body.
var ErrIdempotencyKeyReused = apperr.Validation("idempotency key reused with a different request")

var errRequestInFlight = fiber.NewError(fiber.StatusConflict, "a request with this idempotency key is still being processed")

// idempotentEntry is what lives under a reserved key. Status is zero while
// the first request is still running.
type idempotentEntry struct {
	Fingerprint string            `json:"fingerprint"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// unsafe methods. Keys are scoped to the authenticated principal and bound to
// the request body. Requests without the header pass through untouched, as do
// all requests when cache is nil.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" || cache == nil {
			return c.Next()
		}

		scope := "anonymous"
		if p, ok := CurrentPrincipal(c); ok {
			scope = p.ID
		}
		cacheKey := idempotencyPrefix + scope + ":" + c.Method() + ":" + c.Path() + ":" + key
		fingerprint := fingerprintOf(c.Body())

		ctx, cancel := context.WithTimeout(c.UserContext(), cacheOpTimeout)
		defer cancel()

		pending, _ := json.Marshal(idempotentEntry{Fingerprint: fingerprint})
		reserved, err := cache.SetNX(ctx, cacheKey, pending, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return apperr.Internal("reserve idempotency key", err)
		}
		if !reserved {
			return replay(ctx, c, cache, cacheKey, fingerprint)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			release(cache, cacheKey)
			return nil
		}

		entry := idempotentEntry{
			Fingerprint: fingerprint,
			Status:      c.Response().StatusCode(),
			Body:        string(c.Response().Body()),
			Headers:     map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			name := string(k)
			if strings.EqualFold(name, fiber.HeaderContentLength) {
				return
			}
			entry.Headers[name] = string(v)
		})
		payload, err := json.Marshal(entry)
		if err != nil {
			logger.Error("encode idempotent response", slog.String("key", key), slog.Any("error", err))
			release(cache, cacheKey)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			// the write already happened; the response still goes out
			logger.Error("persist idempotent response", slog.String("key", key), slog.Any("error", err))
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}

func replay(ctx context.Context, c *fiber.Ctx, cache *redis.Client, cacheKey, fingerprint string) error {
	raw, err := cache.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// released between SetNX and Get
		return errRequestInFlight
	}
	if err != nil {
		return apperr.Internal("load idempotent response", err)
	}

	var entry idempotentEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return apperr.Internal("decode idempotent response", err)
	}
	if entry.Fingerprint != fingerprint {
		return ErrIdempotencyKeyReused
	}
	if entry.Status == 0 {
		return errRequestInFlight
	}
	for name, value := range entry.Headers {
		c.Set(name, value)
	}
	c.Set(replayedHeader, "true")
	return c.Status(entry.Status).SendString(entry.Body)
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
