package client

import (
	"Orbit/config"
	"Orbit/pkg/log"
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func NewRedisClient(conf *config.Config) *redis.Client {
	rc := conf.Redis
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr(),
		Password:     rc.Password,
		Username:     rc.Username,
		DB:           rc.Database,
		PoolSize:     rc.PoolSize,
		ReadTimeout:  rc.Timeout(),
		WriteTimeout: rc.Timeout(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*rc.Timeout())
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.L.Fatal("connect redis error", zap.String("addr", rc.Addr()), zap.Error(err))
	}
	log.L.Info("redis client success", zap.String("addr", rc.Addr()))
	return client
}
