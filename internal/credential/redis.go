package credential

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisKey = "runsync:credentials"

// RedisStore persists the pair so a restarted agent resumes without
// re-authenticating. Both fields are written in one HSET, so readers
// never see a mixed pair.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context) (Pair, error) {
	fields, err := s.client.HGetAll(ctx, redisKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
	}, nil
}

func (s *RedisStore) Set(ctx context.Context, pair Pair) error {
	return s.client.HSet(ctx, redisKey,
		"access_token", pair.AccessToken,
		"refresh_token", pair.RefreshToken,
	).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, redisKey).Err()
}

// Connect returns a redis client for addr, or nil when no address is
// configured; callers fall back to the in-memory store.
func Connect(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}
