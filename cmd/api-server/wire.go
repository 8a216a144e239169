//go:build wireinject
// +build wireinject

package main

import (
	"Orbit/config"
	"Orbit/dao"
	"Orbit/dao/cache"
	"Orbit/handler"
	"Orbit/pkg/client"
	"Orbit/pkg/contribution"
	"Orbit/pkg/database"
	"Orbit/pkg/esign"
	"Orbit/pkg/labels"
	"Orbit/pkg/server"
	"Orbit/service"

	"github.com/google/wire"
)

func InitServer(cfg *config.Config) *server.AppProvider {
	wire.Build(
		database.NewDB,
		client.NewRedisClient,
		config.ProvidePointsConfig,
		config.ProvideWithdrawalConfig,
		config.ProvideEsignConfig,
		config.ProvideLabelsConfig,
		config.ProvideContributionConfig,
		esign.NewClient,
		labels.NewEvaluator,
		contribution.NewClient,
		dao.ProviderSet,
		cache.ProviderSet,
		service.ProviderSet,
		wire.Struct(new(handler.Point), "*"),
		wire.Struct(new(handler.Withdrawal), "*"),
		wire.Struct(new(handler.Allocation), "*"),
		wire.Struct(new(server.Handlers), "*"),
		server.NewGinEngine,
		wire.Struct(new(server.AppProvider), "*"),
	)
	return nil
}

func InitCommands(cfg *config.Config) *Commands {
	wire.Build(
		database.NewDB,
		client.NewRedisClient,
		config.ProvidePointsConfig,
		dao.ProviderSet,
		cache.ProviderSet,
		service.NewPointService,
		wire.Bind(new(service.BalanceCache), new(*cache.BalanceStorage)),
		service.NewClaimService,
		wire.Struct(new(Commands), "*"),
	)
	return nil
}
