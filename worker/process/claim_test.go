package process

import (
	"Orbit/config"
	"Orbit/models"
	"Orbit/service"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClaimService struct {
	mu      sync.Mutex
	claimed []uint64
	failFor map[uint64]bool
}

func (f *fakeClaimService) ClaimPendingPoints(context.Context, *models.Users) (service.ClaimResult, error) {
	return service.ClaimResult{}, nil
}

func (f *fakeClaimService) ClaimForAccount(_ context.Context, userID uint64) (service.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[userID] {
		return service.ClaimResult{}, errors.New("db down")
	}
	f.claimed = append(f.claimed, userID)
	return service.ClaimResult{ClaimedCount: 1, TotalAmount: 10}, nil
}

func (f *fakeClaimService) RollbackClaims(context.Context, uint64) (service.RollbackResult, error) {
	return service.RollbackResult{}, nil
}

func (f *fakeClaimService) RetriggerClaims(context.Context, int) (service.ClaimResult, error) {
	return service.ClaimResult{}, nil
}

func (f *fakeClaimService) ForEachAccountBatch(context.Context, int, func([]models.Users) error) error {
	return nil
}

func newSubscribe(claim *fakeClaimService) *ClaimSubscribe {
	return NewClaimSubscribe(nil, claim, &config.RocketMQConfig{
		Topics: config.Topics{AccountRegistered: "registered", ClaimRetrigger: "retrigger"},
	})
}

func message(body string) *primitive.MessageExt {
	return &primitive.MessageExt{Message: primitive.Message{Body: []byte(body)}}
}

func TestClaimSubscribe_Registered(t *testing.T) {
	claim := &fakeClaimService{}
	sub := newSubscribe(claim)

	res, err := sub.handleRegistered(context.Background(), message(`{"user_id":7}`), message(`not json`), message(`{"user_id":0}`))
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeSuccess, res)
	assert.Equal(t, []uint64{7}, claim.claimed)
}

func TestClaimSubscribe_RetryOnFailure(t *testing.T) {
	claim := &fakeClaimService{failFor: map[uint64]bool{7: true}}
	sub := newSubscribe(claim)

	res, err := sub.handleRegistered(context.Background(), message(`{"user_id":7}`))
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeRetryLater, res)
	// 失败后要释放占位
	assert.False(t, sub.inflight.Has("7"))
}

func TestClaimSubscribe_InflightDedupe(t *testing.T) {
	claim := &fakeClaimService{}
	sub := newSubscribe(claim)
	sub.inflight.Set("7", struct{}{})

	res, err := sub.handleRegistered(context.Background(), message(`{"user_id":7}`))
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeRetryLater, res)
	assert.Empty(t, claim.claimed)
}

func TestClaimSubscribe_Retrigger(t *testing.T) {
	claim := &fakeClaimService{failFor: map[uint64]bool{2: true}}
	sub := newSubscribe(claim)

	res, err := sub.handleRetrigger(context.Background(), message(`{"user_ids":[1,2,3]}`))
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeRetryLater, res)
	assert.Equal(t, []uint64{1, 3}, claim.claimed)

	claim.failFor = nil
	res, err = sub.handleRetrigger(context.Background(), message(`{"user_ids":[2]}`))
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeSuccess, res)
}

func TestRetriggerCron_Init(t *testing.T) {
	claim := &fakeClaimService{}

	assert.NoError(t, NewRetriggerCron(&config.Points{}, claim).Init())
	assert.NoError(t, NewRetriggerCron(&config.Points{RetriggerCron: "30 3 * * *"}, claim).Init())
	assert.Error(t, NewRetriggerCron(&config.Points{RetriggerCron: "every day"}, claim).Init())
}

func TestServer_BindsOnlyConfiguredProcesses(t *testing.T) {
	claim := &fakeClaimService{}
	s := NewServer(&SubServers{RetriggerCron: NewRetriggerCron(&config.Points{}, claim)})
	assert.Len(t, s.items, 1)
}
