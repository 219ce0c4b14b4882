// Package cache decorates chain readers with a Redis read-through cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/metrics"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultCountTTL = 30 * time.Second
)

// CachedFarmSource wraps a primary domain.FarmSource with Redis. Farm structs
// and the farm count are cached; prices always go to the primary. Redis
// failures fall through to the primary.
type CachedFarmSource struct {
	primary  domain.FarmSource
	rdb      *redis.Client
	factory  common.Address
	ttl      time.Duration
	countTTL time.Duration
	logger   *slog.Logger
}

// NewCachedFarmSource creates a cached wrapper around primary. Keys are
// scoped by the factory address.
func NewCachedFarmSource(primary domain.FarmSource, rdb *redis.Client, factory common.Address, ttl time.Duration, logger *slog.Logger) *CachedFarmSource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	countTTL := DefaultCountTTL
	if ttl < countTTL {
		countTTL = ttl
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFarmSource{
		primary:  primary,
		rdb:      rdb,
		factory:  factory,
		ttl:      ttl,
		countTTL: countTTL,
		logger:   logger,
	}
}

// Dial parses a redis:// URL and verifies the server responds.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *CachedFarmSource) TotalFarms(ctx context.Context) (uint64, error) {
	key := countKey(s.factory)
	raw, err := s.rdb.Get(ctx, key).Result()
	if s.observe(key, err) {
		if n, perr := strconv.ParseUint(raw, 10, 64); perr == nil {
			return n, nil
		}
	}

	n, err := s.primary.TotalFarms(ctx)
	if err != nil {
		return 0, err
	}
	s.rdb.Set(ctx, key, strconv.FormatUint(n, 10), s.countTTL)
	return n, nil
}

func (s *CachedFarmSource) Farm(ctx context.Context, index uint64) (*domain.FarmRecord, error) {
	key := farmKey(s.factory, index)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if s.observe(key, err) {
		var rec domain.FarmRecord
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	rec, err := s.primary.Farm(ctx, index)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return rec, nil
}

// PricePerToken is never cached.
func (s *CachedFarmSource) PricePerToken(ctx context.Context, token common.Address) (*big.Int, error) {
	return s.primary.PricePerToken(ctx, token)
}

// Invalidate drops the cached count so the next read sees new farms.
func (s *CachedFarmSource) Invalidate(ctx context.Context) error {
	return s.rdb.Del(ctx, countKey(s.factory)).Err()
}

// observe records the lookup result and reports whether it was a hit.
func (s *CachedFarmSource) observe(key string, err error) bool {
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return true
	case errors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.logger.Debug("farm cache unavailable", slog.String("key", key), slog.Any("error", err))
	}
	return false
}

func countKey(factory common.Address) string {
	return fmt.Sprintf("farm:%s:count", factory.Hex())
}

func farmKey(factory common.Address, index uint64) string {
	return fmt.Sprintf("farm:%s:%d", factory.Hex(), index)
}
