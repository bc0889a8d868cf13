package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/repository"
)

const redisKeyPrefix = "settlement"

// StoreGuard layers a Redis fast path over the Postgres settlements table.
// Postgres is the source of truth: the unique payment_reference constraint
// decides races, Redis only short-circuits repeat requests.
type StoreGuard struct {
	repo   *repository.Settlements
	redis  redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewStoreGuard builds a guard over the settlements store. rdb may be nil;
// ttl bounds how long the Redis fast-path entry outlives the request.
func NewStoreGuard(repo *repository.Settlements, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *StoreGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreGuard{repo: repo, redis: rdb, ttl: ttl, logger: logger}
}

var _ Guard = (*StoreGuard)(nil)

func (g *StoreGuard) Reserve(ctx context.Context, ref domain.PaymentReference, asset string) (bool, error) {
	if g.redis != nil {
		ok, err := g.redis.SetNX(ctx, redisKey(ref), domain.SettlementReserved, g.ttl).Result()
		if err != nil {
			g.logger.Warn("redis reserve failed, falling through to postgres", zap.Error(err))
		} else if !ok {
			return false, nil
		}
	}

	ok, err := g.repo.Reserve(ctx, ref, asset)
	if err != nil {
		g.dropCache(ctx, ref)
		return false, err
	}
	if !ok {
		// lost the durable race (or the redis entry had expired); keep the
		// cache entry so the next repeat is cheap
		return false, nil
	}
	return true, nil
}

func (g *StoreGuard) Commit(ctx context.Context, rec domain.Settlement) error {
	if err := g.repo.Finalize(ctx, rec); err != nil {
		return fmt.Errorf("commit settlement %s: %w", rec.Reference, err)
	}
	if g.redis != nil {
		if err := g.redis.Set(ctx, redisKey(rec.Reference), rec.Status, g.ttl).Err(); err != nil {
			g.logger.Warn("redis commit cache failed", zap.Error(err))
		}
	}
	return nil
}

func (g *StoreGuard) Release(ctx context.Context, ref domain.PaymentReference) error {
	if err := g.repo.Release(ctx, ref); err != nil {
		return err
	}
	g.dropCache(ctx, ref)
	return nil
}

func (g *StoreGuard) dropCache(ctx context.Context, ref domain.PaymentReference) {
	if g.redis == nil {
		return
	}
	if err := g.redis.Del(ctx, redisKey(ref)).Err(); err != nil {
		g.logger.Warn("redis release failed", zap.Error(err))
	}
}

func redisKey(ref domain.PaymentReference) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, ref)
}
