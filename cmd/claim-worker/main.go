package main

import (
	"Orbit/config"
	"Orbit/pkg/log"
	"Orbit/worker"
	"fmt"
	"os"

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
		Name: "claim-worker",

		// 默认启动行为
		Action: func(ctx *cli.Context) error {
			return worker.Run(ctx, InitWorker(cfg))
		},

		Commands: []*cli.Command{
			{
				Name: "serve",
				Action: func(ctx *cli.Context) error {
					return worker.Run(ctx, InitWorker(cfg))
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.L.Fatal("failed to start worker", zap.Error(err))
	}
}
