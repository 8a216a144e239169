//go:build wireinject
// +build wireinject

package main

import (
	"Orbit/config"
	"Orbit/dao"
	"Orbit/dao/cache"
	"Orbit/pkg/client"
	"Orbit/pkg/database"
	"Orbit/pkg/rocketmq"
	"Orbit/service"
	"Orbit/worker"
	"Orbit/worker/process"

	"github.com/google/wire"
)

func InitWorker(cfg *config.Config) *worker.AppProvider {
	wire.Build(
		database.NewDB,
		client.NewRedisClient,
		config.ProvidePointsConfig,
		config.ProvideRocketMQConfig,
		rocketmq.InitConsumer,
		dao.ProviderSet,
		cache.ProviderSet,
		service.NewPointService,
		wire.Bind(new(service.BalanceCache), new(*cache.BalanceStorage)),
		service.NewClaimService,
		wire.Bind(new(service.IClaimService), new(*service.ClaimService)),
		process.NewClaimSubscribe,
		process.NewRetriggerCron,
		wire.Struct(new(process.SubServers), "*"),
		process.NewServer,
		wire.Struct(new(worker.AppProvider), "*"),
	)
	return nil
}
