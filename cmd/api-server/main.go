package main

import (
	"Orbit/config"
	"Orbit/models"
	"Orbit/pkg/database"
	"Orbit/pkg/log"
	"Orbit/pkg/rocketmq"
	"Orbit/pkg/server"
	"Orbit/service"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	path := fmt.Sprintf("configs/config.%s.yaml", env)
	cfg := config.New(path)
	log.SetDebug(cfg.Debug())

	cliApp := &cli.App{
		Name: "api-server",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start http server",
				Action: func(ctx *cli.Context) error {
					return server.Run(ctx, InitServer(cfg))
				},
			},
			{
				Name:  "migrate",
				Usage: "create or update tables",
				Action: func(ctx *cli.Context) error {
					return database.Migrate(database.NewDB(cfg))
				},
			},
			{
				Name:  "grant-points",
				Usage: "grant points to a user or organization",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner-type", Value: "user"},
					&cli.Uint64Flag{Name: "owner-id", Required: true},
					&cli.Int64Flag{Name: "amount", Required: true},
					&cli.StringFlag{Name: "description"},
					&cli.StringSliceFlag{Name: "tag"},
					&cli.TimestampFlag{Name: "expires-at", Layout: time.RFC3339},
				},
				Action: grantPoints(cfg),
			},
			{
				Name:  "rollback-claims",
				Usage: "revert every claimed pending grant of a user",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "user-id", Required: true},
				},
				Action: rollbackClaims(cfg),
			},
			{
				Name:  "retrigger-claims",
				Usage: "run pending grant claims for all accounts",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "batch", Value: 100},
					&cli.BoolFlag{Name: "async", Usage: "publish batches to the claim worker instead of claiming inline"},
				},
				Action: retriggerClaims(cfg),
			},
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		log.L.Fatal("failed to run command", zap.Error(err))
	}
}

func grantPoints(cfg *config.Config) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		kind, ok := models.ParseOwnerKind(ctx.String("owner-type"))
		if !ok {
			return fmt.Errorf("unknown owner type %q", ctx.String("owner-type"))
		}

		cmd := InitCommands(cfg)
		src, err := cmd.PointService.Grant(ctx.Context, service.GrantInput{
			Owner:       models.Owner{Kind: kind, ID: ctx.Uint64("owner-id")},
			Amount:      ctx.Int64("amount"),
			Description: ctx.String("description"),
			Tags:        ctx.StringSlice("tag"),
			ExpiresAt:   ctx.Timestamp("expires-at"),
		})
		if err != nil {
			return err
		}
		log.L.Info("points granted", zap.Uint64("source_id", src.ID), zap.Int64("amount", src.InitialAmount))
		return nil
	}
}

func rollbackClaims(cfg *config.Config) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cmd := InitCommands(cfg)
		res, err := cmd.ClaimService.RollbackClaims(ctx.Context, ctx.Uint64("user-id"))
		if err != nil {
			return err
		}
		log.L.Info("claims rolled back",
			zap.Int("rolled_back", res.RolledBack),
			zap.Int64("amount", res.TotalAmount),
			zap.Uint64s("failed_grants", res.FailedGrants),
		)
		return nil
	}
}

func retriggerClaims(cfg *config.Config) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cmd := InitCommands(cfg)
		batch := ctx.Int("batch")

		if !ctx.Bool("async") {
			res, err := cmd.ClaimService.RetriggerClaims(ctx.Context, batch)
			if err != nil {
				return err
			}
			log.L.Info("claims retriggered", zap.Int("claimed", res.ClaimedCount), zap.Int64("amount", res.TotalAmount))
			return nil
		}

		producer, err := rocketmq.InitProducer(cfg.RocketMQ)
		if err != nil {
			return fmt.Errorf("init producer: %w", err)
		}
		publisher := rocketmq.NewPublisher(producer, cfg.RocketMQ)
		defer publisher.Shutdown()

		published := 0
		err = cmd.ClaimService.ForEachAccountBatch(ctx.Context, batch, func(accounts []models.Users) error {
			ids := make([]uint64, 0, len(accounts))
			for _, a := range accounts {
				ids = append(ids, a.ID)
			}
			if err := publisher.PublishClaimRetrigger(ctx.Context, ids); err != nil {
				return err
			}
			published += len(ids)
			return nil
		})
		log.L.Info("claim retrigger published", zap.Int("accounts", published))
		return err
	}
}
