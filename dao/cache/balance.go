package cache

import (
	"Orbit/config"
	"Orbit/models"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceStorage 积分余额展示缓存
type BalanceStorage struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewBalanceStorage(rds *redis.Client, conf *config.Points) *BalanceStorage {
	return &BalanceStorage{redis: rds, ttl: conf.CacheTTL()}
}

// Get 读取缓存的余额
// @params owner 积分归属方
func (b *BalanceStorage) Get(ctx context.Context, owner models.Owner) (models.Balance, bool) {
	values, err := b.redis.HGetAll(ctx, b.name(owner)).Result()
	if err != nil || len(values) == 0 {
		return models.Balance{}, false
	}

	total, err := strconv.ParseInt(values["total"], 10, 64)
	if err != nil {
		return models.Balance{}, false
	}
	withdrawable, err := strconv.ParseInt(values["withdrawable"], 10, 64)
	if err != nil {
		return models.Balance{}, false
	}
	return models.Balance{Total: total, Withdrawable: withdrawable}, true
}

// Version 读库前先取版本号，回写时用来判断期间是否有失效
func (b *BalanceStorage) Version(ctx context.Context, owner models.Owner) int64 {
	v, err := b.redis.Get(ctx, b.versionName(owner)).Int64()
	if err != nil {
		return 0
	}
	return v
}

// Set 仅在版本号未变化时回写，避免覆盖并发失效
func (b *BalanceStorage) Set(ctx context.Context, owner models.Owner, balance models.Balance, version int64) {
	name := b.name(owner)
	ver := b.versionName(owner)
	_ = b.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, ver).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, name, "total", balance.Total, "withdrawable", balance.Withdrawable)
			pipe.Expire(ctx, name, b.ttl)
			return nil
		})
		return err
	}, ver)
}

// Invalidate 积分变动后删除缓存并推进版本号
func (b *BalanceStorage) Invalidate(ctx context.Context, owner models.Owner) {
	ver := b.versionName(owner)
	_, _ = b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.name(owner))
		pipe.Incr(ctx, ver)
		pipe.Expire(ctx, ver, versionTTL)
		return nil
	})
}

// 版本号只需活得比一次读库久
const versionTTL = 24 * time.Hour

func (b *BalanceStorage) versionName(owner models.Owner) string {
	return b.name(owner) + ":ver"
}

// points:balance:kind:id
func (b *BalanceStorage) name(owner models.Owner) string {
	return fmt.Sprintf("points:balance:%s:%d", owner.Kind, owner.ID)
}
