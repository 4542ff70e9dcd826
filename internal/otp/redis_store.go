package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "otp:v1:"
	// records linger briefly past expiry; acceptance is decided by expires_at
	retentionGrace = time.Minute
)

// consumeScript deletes the key only when it still holds the expected hash,
// making check-and-delete a single atomic step.
var consumeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "code_hash") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps OTP records in Redis hashes keyed by phone.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Redis-backed OTP store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save replaces the record for rec.Phone.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	key := keyPrefix + rec.Phone
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code_hash", rec.CodeHash,
			"expires_at", rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
			"created_at", rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.ExpireAt(ctx, key, rec.ExpiresAt.Add(retentionGrace))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save otp: %w", err)
	}
	return nil
}

// Get loads the record for phone.
func (s *RedisStore) Get(ctx context.Context, phone string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+phone).Result()
	if err != nil {
		return Record{}, fmt.Errorf("redis get otp: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return Record{}, fmt.Errorf("decode otp expiry: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return Record{
		Phone:     phone,
		CodeHash:  fields["code_hash"],
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// Consume removes the record for phone if it still carries codeHash.
func (s *RedisStore) Consume(ctx context.Context, phone, codeHash string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{keyPrefix + phone}, codeHash).Int64()
	if err != nil {
		return false, fmt.Errorf("redis consume otp: %w", err)
	}
	return n == 1, nil
}
