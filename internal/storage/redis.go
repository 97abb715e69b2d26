package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// incrementScript sets the expiry only on the increment that created the
// key, so a busy window is never extended.
var incrementScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[1])
	local ttl = tonumber(ARGV[2])
	if ttl > 0 and current == tonumber(ARGV[1]) then
		redis.call('PEXPIRE', KEYS[1], ttl)
	end
	return current
`)

type RedisStorage struct {
	client redis.UniversalClient
}

var _ Storage = (*RedisStorage)(nil)

type RedisOptions struct {
	URL         string
	Host        string
	Port        int
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewRedisClient builds a client from a redis:// URL, or from host and port
// when no URL is given.
func NewRedisClient(opts RedisOptions) (*redis.Client, error) {
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if opts.DialTimeout > 0 {
			parsed.DialTimeout = opts.DialTimeout
		}
		return redis.NewClient(parsed), nil
	}

	if opts.Host == "" {
		return nil, errors.New("redis address is required")
	}

	return redis.NewClient(&redis.Options{
		Addr:        net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	}), nil
}

func NewRedisStorage(client redis.UniversalClient) *RedisStorage {
	return &RedisStorage{client: client}
}

func (s *RedisStorage) Increment(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error) {
	count, err := incrementScript.Run(ctx, s.client, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return count, nil
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// AddToList stores value as the score of a sorted set member. The member
// carries a uuid so equal timestamps are all counted.
func (s *RedisStorage) AddToList(ctx context.Context, key string, value int64, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(value),
		Member: strconv.FormatInt(value, 10) + ":" + uuid.NewString(),
	})
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add to list %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) RemoveOldFromList(ctx context.Context, key string, cutoff int64) error {
	err := s.client.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err()
	if err != nil {
		return fmt.Errorf("remove old from list %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) GetListLength(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("list length %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStorage) GetBucket(ctx context.Context, key string) (BucketState, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return BucketState{}, err
	}
	return decodeBucket(raw), nil
}

func (s *RedisStorage) SetBucket(ctx context.Context, key string, state BucketState, ttl time.Duration) error {
	raw, err := encodeBucket(state)
	if err != nil {
		return fmt.Errorf("encode bucket %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
