package service

import (
	"Orbit/dao"
	"Orbit/models"
	"Orbit/pkg/log"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type ClaimResult struct {
	ClaimedCount int   `json:"claimed_count"`
	TotalAmount  int64 `json:"total_amount"`
}

func (r *ClaimResult) add(o ClaimResult) {
	r.ClaimedCount += o.ClaimedCount
	r.TotalAmount += o.TotalAmount
}

type RollbackResult struct {
	RolledBack   int      `json:"rolled_back"`
	TotalAmount  int64    `json:"total_amount"`
	FailedGrants []uint64 `json:"failed_grants"`
}

type ClaimService struct {
	Repo   dao.Repository
	Ledger *PointService
	now    func() time.Time
}

var _ IClaimService = (*ClaimService)(nil)

type IClaimService interface {
	ClaimPendingPoints(ctx context.Context, account *models.Users) (ClaimResult, error)
	ClaimForAccount(ctx context.Context, userID uint64) (ClaimResult, error)
	RollbackClaims(ctx context.Context, userID uint64) (RollbackResult, error)
	RetriggerClaims(ctx context.Context, batchSize int) (ClaimResult, error)
	ForEachAccountBatch(ctx context.Context, batchSize int, fn func(accounts []models.Users) error) error
}

func NewClaimService(repo dao.Repository, ledger *PointService) *ClaimService {
	return &ClaimService{Repo: repo, Ledger: ledger, now: time.Now}
}

// MatchFor 账号可认领的匹配条件，空白的标识不参与匹配
func MatchFor(account *models.Users) dao.GrantMatch {
	match := dao.GrantMatch{
		Login: strings.TrimSpace(account.Username),
		Email: strings.ToLower(strings.TrimSpace(account.Email)),
	}
	for _, b := range account.Bindings {
		b.Platform = strings.TrimSpace(b.Platform)
		b.ExternalID = strings.TrimSpace(b.ExternalID)
		if b.Platform != "" && b.ExternalID != "" {
			match.Bindings = append(match.Bindings, b)
		}
	}
	return match
}

// ClaimPendingPoints 认领发给该账号外部身份的待领取积分，可重复调用
func (c *ClaimService) ClaimPendingPoints(ctx context.Context, account *models.Users) (ClaimResult, error) {
	var result ClaimResult

	match := MatchFor(account)
	if match.Empty() {
		return result, nil
	}
	grants, err := c.Repo.FindUnclaimedGrants(ctx, match)
	if err != nil {
		return result, fmt.Errorf("find unclaimed grants: %w", err)
	}

	owner := models.UserOwner(account.ID)
	for _, g := range grants {
		claimed, err := c.claimOne(ctx, g.ID, account.ID)
		if err != nil {
			log.L.Error("claim pending grant failed",
				zap.Uint64("grant_id", g.ID),
				zap.Uint64("user_id", account.ID),
				zap.Error(err),
			)
			continue
		}
		if claimed == nil {
			continue
		}
		result.ClaimedCount++
		result.TotalAmount += claimed.Amount
		claimedGrantsTotal.Inc()
	}

	if result.ClaimedCount > 0 {
		c.Ledger.Invalidate(ctx, owner)
		log.L.Info("pending grants claimed",
			zap.Uint64("user_id", account.ID),
			zap.Int("count", result.ClaimedCount),
			zap.Int64("amount", result.TotalAmount),
		)
	}
	return result, nil
}

// claimOne 已被认领时返回 nil, nil
func (c *ClaimService) claimOne(ctx context.Context, grantID, userID uint64) (*models.PendingPointGrant, error) {
	var claimed *models.PendingPointGrant
	err := c.Repo.Transaction(ctx, func(tx dao.Repository) error {
		g, err := tx.LockPendingGrant(ctx, grantID)
		if err != nil {
			return err
		}
		if g.IsClaimed {
			return nil
		}
		if _, err := c.Ledger.GrantTx(ctx, tx, GrantInput{
			Owner:       models.UserOwner(userID),
			Amount:      g.Amount,
			Description: g.Reason,
			Tags:        g.Tags.Data(),
		}); err != nil {
			return err
		}

		now := c.now()
		g.IsClaimed = true
		g.ClaimedBy = &userID
		g.ClaimedAt = &now
		if err := tx.SavePendingGrant(ctx, g); err != nil {
			return err
		}
		claimed = g
		return nil
	})
	return claimed, err
}

func (c *ClaimService) ClaimForAccount(ctx context.Context, userID uint64) (ClaimResult, error) {
	account, err := c.Repo.FindAccount(ctx, userID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("find account %d: %w", userID, err)
	}
	return c.ClaimPendingPoints(ctx, account)
}

// RollbackClaims 撤销用户已认领的积分：重新扣回并恢复为待认领
func (c *ClaimService) RollbackClaims(ctx context.Context, userID uint64) (RollbackResult, error) {
	result := RollbackResult{FailedGrants: []uint64{}}

	grants, err := c.Repo.ListClaimedGrants(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("list claimed grants: %w", err)
	}

	owner := models.UserOwner(userID)
	for _, g := range grants {
		amount, err := c.rollbackOne(ctx, g.ID, userID)
		if err != nil {
			result.FailedGrants = append(result.FailedGrants, g.ID)
			log.L.Error("rollback claimed grant failed",
				zap.Uint64("grant_id", g.ID),
				zap.Uint64("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		if amount > 0 {
			result.RolledBack++
			result.TotalAmount += amount
		}
	}

	if result.RolledBack > 0 {
		c.Ledger.Invalidate(ctx, owner)
	}
	return result, nil
}

func (c *ClaimService) rollbackOne(ctx context.Context, grantID, userID uint64) (int64, error) {
	var amount int64
	err := c.Repo.Transaction(ctx, func(tx dao.Repository) error {
		g, err := tx.LockPendingGrant(ctx, grantID)
		if err != nil {
			return err
		}
		if !g.IsClaimed || g.ClaimedBy == nil || *g.ClaimedBy != userID {
			return nil
		}

		in := SpendInput{
			Owner:       models.UserOwner(userID),
			Amount:      g.Amount,
			Description: fmt.Sprintf("rollback pending grant #%d", g.ID),
			Kind:        models.KindRollback,
		}
		if tags := g.Tags.Data(); len(tags) > 0 {
			in.PriorityTag = tags[0]
		}
		if _, err := c.Ledger.SpendTx(ctx, tx, in); err != nil {
			return err
		}

		g.IsClaimed = false
		g.ClaimedBy = nil
		g.ClaimedAt = nil
		if err := tx.SavePendingGrant(ctx, g); err != nil {
			return err
		}
		amount = g.Amount
		return nil
	})
	return amount, err
}

// ForEachAccountBatch 按 id 升序分批遍历所有账号
func (c *ClaimService) ForEachAccountBatch(ctx context.Context, batchSize int, fn func(accounts []models.Users) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	var afterID uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		accounts, err := c.Repo.ListAccountsAfter(ctx, afterID, batchSize)
		if err != nil {
			return fmt.Errorf("list accounts after %d: %w", afterID, err)
		}
		if len(accounts) == 0 {
			return nil
		}
		if err := fn(accounts); err != nil {
			return err
		}
		afterID = accounts[len(accounts)-1].ID
		if len(accounts) < batchSize {
			return nil
		}
	}
}

// RetriggerClaims 为已有账号补跑认领，用于注册事件丢失或新分配产生的待领取积分
func (c *ClaimService) RetriggerClaims(ctx context.Context, batchSize int) (ClaimResult, error) {
	var total ClaimResult
	err := c.ForEachAccountBatch(ctx, batchSize, func(accounts []models.Users) error {
		for i := range accounts {
			res, err := c.ClaimPendingPoints(ctx, &accounts[i])
			if err != nil {
				log.L.Error("retrigger claim failed", zap.Uint64("user_id", accounts[i].ID), zap.Error(err))
				continue
			}
			total.add(res)
		}
		return nil
	})
	return total, err
}
