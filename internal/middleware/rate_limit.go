package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitPrefix = "rl:otp:"
	rateLimitWindow = time.Minute
)

// OTPRateLimit caps code-issuing and code-checking requests per phone (or
// client IP when no phone is given) to maxPerMin within a fixed one-minute
// window. It fails open when Redis is unavailable.
func OTPRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := phoneDigits(req.Phone)
		if subject == "" {
			subject = "ip:" + c.IP()
		}
		key := rateLimitPrefix + c.Path() + ":" + subject

		ctx := c.UserContext()
		var (
			incr *redis.IntCmd
			ttl  *redis.DurationCmd
		)
		if _, err := cache.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			ttl = pipe.TTL(ctx, key)
			return nil
		}); err != nil {
			logger.Warn("rate limit check failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}
		cnt := incr.Val()
		// a key without expiry would lock the phone out for good
		if ttl.Val() < 0 {
			if err := cache.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
				logger.Error("rate limit expiry failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many attempts, try again later")
		}
		return c.Next()
	}
}

// phoneDigits reduces a phone to its last ten digits so national and
// international spellings share a bucket.
func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) > 10 {
		d = d[len(d)-10:]
	}
	return d
}
