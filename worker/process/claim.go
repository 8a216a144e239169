package process

import (
	"Orbit/config"
	"Orbit/pkg/log"
	"Orbit/pkg/rocketmq"
	"Orbit/service"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	rmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// ClaimSubscribe 消费注册事件和批量重试消息，为账号认领待领取积分
type ClaimSubscribe struct {
	MqConsumer   rmq.PushConsumer
	ClaimService service.IClaimService
	Topics       config.Topics

	// 同一账号同时只处理一次，其余消息稍后重投
	inflight cmap.ConcurrentMap[string, struct{}]
}

func NewClaimSubscribe(c rmq.PushConsumer, claim service.IClaimService, cfg *config.RocketMQConfig) *ClaimSubscribe {
	return &ClaimSubscribe{
		MqConsumer:   c,
		ClaimService: claim,
		Topics:       cfg.Topics,
		inflight:     cmap.New[struct{}](),
	}
}

func (m *ClaimSubscribe) Init() error {
	if err := m.MqConsumer.Subscribe(m.Topics.AccountRegistered, consumer.MessageSelector{}, m.handleRegistered); err != nil {
		return fmt.Errorf("subscribe %s: %w", m.Topics.AccountRegistered, err)
	}
	if err := m.MqConsumer.Subscribe(m.Topics.ClaimRetrigger, consumer.MessageSelector{}, m.handleRetrigger); err != nil {
		return fmt.Errorf("subscribe %s: %w", m.Topics.ClaimRetrigger, err)
	}
	return nil
}

func (m *ClaimSubscribe) Setup(ctx context.Context) error {
	log.L.Info("[MQ] 启动认领消费者", zap.String("registered", m.Topics.AccountRegistered), zap.String("retrigger", m.Topics.ClaimRetrigger))

	if err := m.MqConsumer.Start(); err != nil {
		log.L.Error("start claim consumer error", zap.Error(err))
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := m.MqConsumer.Start(); err == nil {
						log.L.Info("[MQ] claim consumer started")
						return
					}
				}
			}
		}()
	}

	<-ctx.Done()
	log.L.Info("[MQ] 正在关闭认领消费者...")
	return m.MqConsumer.Shutdown()
}

func (m *ClaimSubscribe) handleRegistered(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var event rocketmq.AccountRegisteredMsg
		if err := json.Unmarshal(msg.Body, &event); err != nil || event.UserID == 0 {
			// 坏消息重投也没用
			log.L.Error("bad account registered message", zap.ByteString("body", msg.Body), zap.Error(err))
			continue
		}
		if err := m.claim(ctx, event.UserID); err != nil {
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

func (m *ClaimSubscribe) handleRetrigger(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	retry := false
	for _, msg := range msgs {
		var event rocketmq.ClaimRetriggerMsg
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			log.L.Error("bad claim retrigger message", zap.ByteString("body", msg.Body), zap.Error(err))
			continue
		}
		for _, uid := range event.UserIDs {
			if err := m.claim(ctx, uid); err != nil {
				retry = true
			}
		}
	}
	if retry {
		return consumer.ConsumeRetryLater, nil
	}
	return consumer.ConsumeSuccess, nil
}

var errInflight = errors.New("claim already in progress")

func (m *ClaimSubscribe) claim(ctx context.Context, userID uint64) error {
	key := strconv.FormatUint(userID, 10)
	if !m.inflight.SetIfAbsent(key, struct{}{}) {
		return errInflight
	}
	defer m.inflight.Remove(key)

	res, err := m.ClaimService.ClaimForAccount(ctx, userID)
	if err != nil {
		log.L.Error("claim pending points failed", zap.Uint64("user_id", userID), zap.Error(err))
		return err
	}
	if res.ClaimedCount > 0 {
		log.L.Info("pending points claimed", zap.Uint64("user_id", userID),
			zap.Int("count", res.ClaimedCount), zap.Int64("amount", res.TotalAmount))
	}
	return nil
}
