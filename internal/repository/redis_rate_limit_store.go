package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/folio/contact-relay/internal/models"
	"github.com/folio/contact-relay/pkg/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const (
	redisStoreName = "redis"

	// RedisKeyPrefix namespaces the per-IP sorted sets
	RedisKeyPrefix = "contact_rate_limits:"
)

// RedisRateLimitStore keeps one sorted set per IP, scored by creation time in
// epoch milliseconds. Keys expire one window after their newest member.
type RedisRateLimitStore struct {
	rdb    goredis.UniversalClient
	window time.Duration
}

// NewRedisClient connects to the server at url (redis://...)
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewRedisRateLimitStore creates a store over rdb
func NewRedisRateLimitStore(rdb goredis.UniversalClient, window time.Duration) *RedisRateLimitStore {
	return &RedisRateLimitStore{rdb: rdb, window: window}
}

func redisKey(ip string) string {
	return RedisKeyPrefix + ip
}

func scoreOf(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (s *RedisRateLimitStore) Name() string {
	return redisStoreName
}

// Purge trims expired members from every per-IP set
func (s *RedisRateLimitStore) Purge(ctx context.Context, before time.Time) (deleted int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore(redisStoreName, "purge", start, err) }()

	maxScore := "(" + scoreOf(before)
	var cursor uint64
	for {
		keys, next, scanErr := s.rdb.Scan(ctx, cursor, RedisKeyPrefix+"*", 100).Result()
		if scanErr != nil {
			return deleted, fmt.Errorf("failed to scan rate limit keys: %w", scanErr)
		}
		for _, key := range keys {
			n, remErr := s.rdb.ZRemRangeByScore(ctx, key, "-inf", maxScore).Result()
			if remErr != nil {
				return deleted, fmt.Errorf("failed to purge %s: %w", key, remErr)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (s *RedisRateLimitStore) Usage(ctx context.Context, ip string, since time.Time) (usage models.RateLimitUsage, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore(redisStoreName, "usage", start, err) }()

	key := redisKey(ip)
	minScore := "(" + scoreOf(since)

	var (
		countCmd  *goredis.IntCmd
		oldestCmd *goredis.ZSliceCmd
	)
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		countCmd = pipe.ZCount(ctx, key, minScore, "+inf")
		oldestCmd = pipe.ZRangeByScoreWithScores(ctx, key, &goredis.ZRangeBy{
			Min:   minScore,
			Max:   "+inf",
			Count: 1,
		})
		return nil
	})
	if err != nil {
		return models.RateLimitUsage{}, fmt.Errorf("failed to count rate limit records: %w", err)
	}

	usage.Count = int(countCmd.Val())
	if zs := oldestCmd.Val(); len(zs) > 0 {
		usage.Oldest = time.UnixMilli(int64(zs[0].Score))
	}
	return usage, nil
}

// Insert adds rec.ID as a set member, so a repeated insert only rewrites its score
func (s *RedisRateLimitStore) Insert(ctx context.Context, rec models.RateLimitRecord) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore(redisStoreName, "insert", start, err) }()

	key := redisKey(rec.IPAddress)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(rec.CreatedAt.UnixMilli()), Member: rec.ID})
		pipe.PExpire(ctx, key, s.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert rate limit record: %w", err)
	}
	return nil
}

func (s *RedisRateLimitStore) Delete(ctx context.Context, rec models.RateLimitRecord) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore(redisStoreName, "delete", start, err) }()

	if err = s.rdb.ZRem(ctx, redisKey(rec.IPAddress), rec.ID).Err(); err != nil {
		return fmt.Errorf("failed to delete rate limit record: %w", err)
	}
	return nil
}

func (s *RedisRateLimitStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
