package rocketmq

import (
	"Orbit/config"
	"Orbit/pkg/log"
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/apache/rocketmq-client-go/v2/rlog"
	"go.uber.org/zap"
)

// AccountRegisteredMsg 账号注册或绑定了新的第三方身份
type AccountRegisteredMsg struct {
	UserID uint64 `json:"user_id"`
}

// ClaimRetriggerMsg 一批需要重新尝试认领的账号
type ClaimRetriggerMsg struct {
	UserIDs []uint64 `json:"user_ids"`
}

func init() {
	rlog.SetLogLevel("error")
}

func InitProducer(cfg *config.RocketMQConfig) (rocketmq.Producer, error) {
	p, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.NameServer),
		producer.WithGroupName(cfg.Producer.Group),
		producer.WithRetry(cfg.Producer.Retry),
	)
	if err != nil {
		return nil, err
	}
	if err = p.Start(); err != nil {
		return nil, err
	}
	log.L.Info("init producer success")

	return p, nil
}

func InitConsumer(cfg *config.RocketMQConfig) rocketmq.PushConsumer {
	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer(cfg.NameServer),
		consumer.WithGroupName(cfg.Consumer.Group),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
	)
	if err != nil {
		log.L.Fatal("init consumer", zap.Error(err))
	}

	return c
}

type Publisher struct {
	Producer rocketmq.Producer
	Topics   config.Topics
}

func NewPublisher(p rocketmq.Producer, cfg *config.RocketMQConfig) *Publisher {
	return &Publisher{Producer: p, Topics: cfg.Topics}
}

func (p *Publisher) SendMsg(ctx context.Context, topic string, body []byte) error {
	msg := &primitive.Message{
		Topic: topic,
		Body:  body,
	}

	res, err := p.Producer.SendSync(ctx, msg)
	if err != nil {
		return err
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send message to %s: status %d", topic, res.Status)
	}
	log.L.Debug("send message success", zap.String("topic", topic), zap.String("msg_id", res.MsgID))
	return nil
}

func (p *Publisher) PublishAccountRegistered(ctx context.Context, userID uint64) error {
	body, err := json.Marshal(AccountRegisteredMsg{UserID: userID})
	if err != nil {
		return err
	}
	return p.SendMsg(ctx, p.Topics.AccountRegistered, body)
}

func (p *Publisher) PublishClaimRetrigger(ctx context.Context, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	body, err := json.Marshal(ClaimRetriggerMsg{UserIDs: userIDs})
	if err != nil {
		return err
	}
	return p.SendMsg(ctx, p.Topics.ClaimRetrigger, body)
}

func (p *Publisher) Shutdown() error {
	return p.Producer.Shutdown()
}
