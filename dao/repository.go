package dao

import (
	"Orbit/models"
	"context"
	"errors"
	"time"
)

// ErrStaleSource 扣减时积分桶余额已被其他事务改变
var ErrStaleSource = errors.New("point source changed concurrently")

// PointRepository 积分桶、标签与流水
type PointRepository interface {
	CreateSource(ctx context.Context, src *models.PointSource) error
	FindSource(ctx context.Context, id uint64) (*models.PointSource, error)
	// LockSource 加行锁读取积分桶（含标签）
	LockSource(ctx context.Context, id uint64) (*models.PointSource, error)
	// LockEligibleSources 加行锁读取归属方所有可用积分桶，按创建时间升序
	LockEligibleSources(ctx context.Context, owner models.Owner, now time.Time) ([]*models.PointSource, error)
	ListActiveSources(ctx context.Context, owner models.Owner, now time.Time) ([]*models.PointSource, error)
	DeductSource(ctx context.Context, id uint64, amount int64) error

	FindTagByRef(ctx context.Context, ref string) (*models.Tag, error)
	CreateTag(ctx context.Context, tag *models.Tag) error

	CreateTransaction(ctx context.Context, txn *models.PointTransaction) error
	ListTransactions(ctx context.Context, owner models.Owner, cursor uint64, limit int) ([]models.PointTransaction, error)
}

// WithdrawalRepository 提现协议与提现申请
type WithdrawalRepository interface {
	FindContract(ctx context.Context, owner models.Owner) (*models.WithdrawalContract, error)
	LockContract(ctx context.Context, owner models.Owner) (*models.WithdrawalContract, error)
	LockContractByRecordID(ctx context.Context, recordID string) (*models.WithdrawalContract, error)
	SaveContract(ctx context.Context, c *models.WithdrawalContract) error

	CountPendingRequests(ctx context.Context, owner models.Owner) (int64, error)
	CreateWithdrawalRequests(ctx context.Context, reqs []*models.WithdrawalRequest) error
	LockWithdrawalRequest(ctx context.Context, id uint64) (*models.WithdrawalRequest, error)
	SaveWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error
	ListWithdrawalRequests(ctx context.Context, owner models.Owner, cursor uint64, limit int) ([]models.WithdrawalRequest, error)
}

// AllocationRepository 积分分配任务与待认领积分
type AllocationRepository interface {
	CreateAllocation(ctx context.Context, a *models.PointAllocation) error
	FindAllocation(ctx context.Context, id uint64) (*models.PointAllocation, error)
	// TransitionAllocation 条件更新状态，返回是否抢到
	TransitionAllocation(ctx context.Context, id uint64, from, to models.AllocationStatus) (bool, error)
	SaveAllocation(ctx context.Context, a *models.PointAllocation) error

	CreatePendingGrant(ctx context.Context, g *models.PendingPointGrant) error
	FindUnclaimedGrants(ctx context.Context, match GrantMatch) ([]models.PendingPointGrant, error)
	LockPendingGrant(ctx context.Context, id uint64) (*models.PendingPointGrant, error)
	SavePendingGrant(ctx context.Context, g *models.PendingPointGrant) error
	ListClaimedGrants(ctx context.Context, userID uint64) ([]models.PendingPointGrant, error)
}

// AccountRepository 账号与第三方绑定
type AccountRepository interface {
	FindAccount(ctx context.Context, id uint64) (*models.Users, error)
	FindAccountByUsername(ctx context.Context, username string) (*models.Users, error)
	FindOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)
	// FindAccountsByBindings 按外部 id 查询已绑定账号，key 为外部 id
	FindAccountsByBindings(ctx context.Context, platform string, externalIDs []string) (map[string]*models.Users, error)
	// FindAccountsByUsernames key 为用户名
	FindAccountsByUsernames(ctx context.Context, usernames []string) (map[string]*models.Users, error)
	ListAccountsAfter(ctx context.Context, afterID uint64, limit int) ([]models.Users, error)
}

// Repository 业务层依赖的全部存储能力，Transaction 内回调拿到的是绑定同一事务的实例
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	PointRepository
	WithdrawalRepository
	AllocationRepository
	AccountRepository
}

// GrantMatch 认领待领取积分的匹配条件，空值不参与匹配
type GrantMatch struct {
	Bindings []models.UserBinding
	Login    string
	Email    string
}

func (m GrantMatch) Empty() bool {
	if m.Login != "" || m.Email != "" {
		return false
	}
	for _, b := range m.Bindings {
		if b.Platform != "" && b.ExternalID != "" {
			return false
		}
	}
	return true
}
