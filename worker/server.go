package worker

import (
	"Orbit/config"
	"Orbit/pkg/log"
	"Orbit/pkg/server"
	"Orbit/worker/process"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider struct {
	Config    *config.Config
	Coroutine *process.Server
}

func Run(ctx *cli.Context, app *AppProvider) error {
	eg, groupCtx := errgroup.WithContext(ctx.Context)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)

	log.L.Info("claim worker starting",
		zap.String("server_id", server.ServerID(app.Config.Server.Http)),
		zap.Int("pid", os.Getpid()),
	)

	// 收到信号后取消 groupCtx，各个任务自行退出
	stopCtx, cancel := context.WithCancel(groupCtx)
	defer cancel()
	go func() {
		select {
		case <-c:
			cancel()
		case <-stopCtx.Done():
		}
	}()

	app.Coroutine.Start(eg, stopCtx)

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.L.Error("claim worker exited", zap.Error(err))
		return err
	}

	log.L.Info("claim worker stopped")
	return nil
}
