package process

import (
	"Orbit/config"
	"Orbit/pkg/log"
	"Orbit/service"
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetriggerCron 定时把所有账号重新跑一遍认领，兜底丢失的注册事件
type RetriggerCron struct {
	Config       *config.Points
	ClaimService service.IClaimService

	cron *cron.Cron
}

func NewRetriggerCron(conf *config.Points, claim service.IClaimService) *RetriggerCron {
	return &RetriggerCron{Config: conf, ClaimService: claim, cron: cron.New()}
}

func (r *RetriggerCron) Init() error {
	if r.Config.RetriggerCron == "" {
		return nil
	}
	if _, err := cron.ParseStandard(r.Config.RetriggerCron); err != nil {
		return fmt.Errorf("parse retrigger cron %q: %w", r.Config.RetriggerCron, err)
	}
	return nil
}

func (r *RetriggerCron) Setup(ctx context.Context) error {
	if r.Config.RetriggerCron == "" {
		log.L.Info("[CRON] retrigger disabled")
		return nil
	}

	_, err := r.cron.AddFunc(r.Config.RetriggerCron, func() {
		r.run(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	log.L.Info("[CRON] retrigger scheduled", zap.String("cron", r.Config.RetriggerCron))

	<-ctx.Done()
	<-r.cron.Stop().Done()
	log.L.Info("[CRON] retrigger stopped")
	return nil
}

func (r *RetriggerCron) run(ctx context.Context) {
	res, err := r.ClaimService.RetriggerClaims(ctx, r.Config.RetriggerBatch)
	if err != nil {
		log.L.Error("[CRON] retrigger claims failed", zap.Error(err))
		return
	}
	log.L.Info("[CRON] retrigger claims done", zap.Int("claimed", res.ClaimedCount), zap.Int64("amount", res.TotalAmount))
}
