package service

import (
	"Orbit/config"
	"Orbit/dao"
	"Orbit/models"
	"Orbit/pkg/esign"
	"Orbit/pkg/log"
	"Orbit/pkg/snowflake"
	"Orbit/types"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContractSigner 电子签平台
type ContractSigner interface {
	SignWithdrawalContract(ctx context.Context, recordID string, party esign.Party) error
}

type WithdrawalService struct {
	Repo   dao.Repository
	Ledger *PointService
	Signer ContractSigner
	Conf   *config.Withdrawal
	now    func() time.Time
}

var _ IWithdrawalService = (*WithdrawalService)(nil)

type IWithdrawalService interface {
	EnsureContractSigned(ctx context.Context, owner models.Owner) error
	RequestContractSignature(ctx context.Context, owner models.Owner, party esign.Party, items []models.WithdrawalItem) (*models.WithdrawalContract, error)
	HandleContractCallback(ctx context.Context, recordID string, status models.ContractStatus) error
	CreateWithdrawalRequest(ctx context.Context, owner models.Owner, sourceID uint64, amount int64) (*models.WithdrawalRequest, error)
	CreateBatchWithdrawalRequests(ctx context.Context, owner models.Owner, items []models.WithdrawalItem) ([]*models.WithdrawalRequest, error)
	Approve(ctx context.Context, requestID, processor uint64) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, requestID, processor uint64, reason string) (*models.WithdrawalRequest, error)
	Cancel(ctx context.Context, requestID uint64, owner models.Owner) (*models.WithdrawalRequest, error)
	ListWithdrawalRequests(ctx context.Context, owner models.Owner, cursor uint64, limit int) (*types.ListWithdrawalResp, error)
}

func NewWithdrawalService(repo dao.Repository, ledger *PointService, signer ContractSigner, conf *config.Withdrawal) *WithdrawalService {
	return &WithdrawalService{
		Repo:   repo,
		Ledger: ledger,
		Signer: signer,
		Conf:   conf,
		now:    time.Now,
	}
}

func (w *WithdrawalService) EnsureContractSigned(ctx context.Context, owner models.Owner) error {
	return ensureSigned(ctx, w.Repo, owner)
}

func ensureSigned(ctx context.Context, r dao.Repository, owner models.Owner) error {
	c, err := r.FindContract(ctx, owner)
	if err != nil {
		return fmt.Errorf("find withdrawal contract: %w", err)
	}
	if c == nil || c.Status != models.ContractSigned {
		return ErrContractNotSigned
	}
	return nil
}

// RequestContractSignature 生成新的签署流水号并暂存提现明细，签署成功的回调会据此创建提现申请
func (w *WithdrawalService) RequestContractSignature(ctx context.Context, owner models.Owner, party esign.Party, items []models.WithdrawalItem) (*models.WithdrawalContract, error) {
	if !owner.Valid() {
		return nil, invalidOperation("unknown owner %s", owner)
	}

	var contract *models.WithdrawalContract
	err := w.Repo.Transaction(ctx, func(tx dao.Repository) error {
		c, err := tx.LockContract(ctx, owner)
		if err != nil {
			return err
		}
		if c != nil && c.Status == models.ContractSigned {
			return withdrawalError("contract of %s already signed", owner)
		}
		if c == nil {
			c = &models.WithdrawalContract{Owner: owner}
		}
		c.RecordID = uuid.NewString()
		c.Status = models.ContractPending
		c.PendingItems = datatypes.NewJSONType(positiveItems(items))
		contract = c
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	if err := w.Signer.SignWithdrawalContract(ctx, contract.RecordID, party); err != nil {
		log.L.Error("request contract signature failed",
			zap.String("owner", owner.String()),
			zap.String("record_id", contract.RecordID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("request contract signature: %w", err)
	}
	return contract, nil
}

// HandleContractCallback 签署结果回调。首次签署成功时创建暂存的提现申请，重复回调不产生任何效果
func (w *WithdrawalService) HandleContractCallback(ctx context.Context, recordID string, status models.ContractStatus) error {
	if status != models.ContractSigned && status != models.ContractFailed {
		return invalidOperation("unexpected contract status %q", status)
	}

	var (
		owner   models.Owner
		stashed []models.WithdrawalItem
	)
	err := w.Repo.Transaction(ctx, func(tx dao.Repository) error {
		c, err := tx.LockContractByRecordID(ctx, recordID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return withdrawalError("unknown contract record %s", recordID)
		}
		if err != nil {
			return err
		}
		if c.Status == models.ContractSigned || c.Status == status {
			return nil
		}

		owner = c.Owner
		c.Status = status
		if status == models.ContractSigned {
			now := w.now()
			c.SignedAt = &now
			stashed = c.PendingItems.Data()
			c.PendingItems = datatypes.NewJSONType([]models.WithdrawalItem{})
		}
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return err
	}

	if len(stashed) == 0 {
		return nil
	}
	// 协议已经签署成功，这里失败不回滚签署状态，用户可重新发起提现
	if _, err := w.CreateBatchWithdrawalRequests(ctx, owner, stashed); err != nil {
		log.L.Error("create stashed withdrawal requests failed",
			zap.String("owner", owner.String()),
			zap.String("record_id", recordID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (w *WithdrawalService) CreateWithdrawalRequest(ctx context.Context, owner models.Owner, sourceID uint64, amount int64) (*models.WithdrawalRequest, error) {
	if amount <= 0 {
		return nil, invalidOperation("amount must be positive, got %d", amount)
	}
	reqs, err := w.CreateBatchWithdrawalRequests(ctx, owner, []models.WithdrawalItem{{SourceID: sourceID, Amount: amount}})
	if err != nil {
		return nil, err
	}
	return reqs[0], nil
}

// CreateBatchWithdrawalRequests 批量创建提现申请，任意一条校验失败则全部不创建
func (w *WithdrawalService) CreateBatchWithdrawalRequests(ctx context.Context, owner models.Owner, items []models.WithdrawalItem) ([]*models.WithdrawalRequest, error) {
	items = positiveItems(items)
	if len(items) == 0 {
		return nil, withdrawalError("no withdrawal item with a positive amount")
	}

	var reqs []*models.WithdrawalRequest
	err := w.Repo.Transaction(ctx, func(tx dao.Repository) error {
		if err := ensureSigned(ctx, tx, owner); err != nil {
			return err
		}

		pending, err := tx.CountPendingRequests(ctx, owner)
		if err != nil {
			return err
		}
		if limit := int64(w.Conf.MaxPendingRequests); pending+int64(len(items)) > limit {
			return withdrawalError("quota exceeded: %d pending, at most %d", pending, limit)
		}

		now := w.now()
		requested := make(map[uint64]int64, len(items))
		reqs = make([]*models.WithdrawalRequest, 0, len(items))
		for _, item := range items {
			src, err := tx.LockSource(ctx, item.SourceID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return withdrawalError("point source %d not found", item.SourceID)
			}
			if err != nil {
				return err
			}
			if src.Owner != owner {
				return withdrawalError("point source %d does not belong to %s", src.ID, owner)
			}
			if !src.Withdrawable() {
				return withdrawalError("point source %d is not withdrawable", src.ID)
			}

			remaining := src.RemainingAmount
			if !src.Active(now) {
				remaining = 0
			}
			requested[src.ID] += item.Amount
			if requested[src.ID] > remaining {
				return withdrawalError("amount %d exceeds remaining %d of point source %d", requested[src.ID], remaining, src.ID)
			}

			reqs = append(reqs, &models.WithdrawalRequest{
				SerialNo: snowflake.GenID(),
				Owner:    owner,
				SourceID: src.ID,
				Amount:   item.Amount,
				Status:   models.WithdrawalPending,
			})
		}
		return tx.CreateWithdrawalRequests(ctx, reqs)
	})
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func positiveItems(items []models.WithdrawalItem) []models.WithdrawalItem {
	out := make([]models.WithdrawalItem, 0, len(items))
	for _, item := range items {
		if item.Amount > 0 {
			out = append(out, item)
		}
	}
	return out
}

// Approve 审核通过，从申请对应的积分桶扣减
func (w *WithdrawalService) Approve(ctx context.Context, requestID, processor uint64) (*models.WithdrawalRequest, error) {
	req, err := w.process(ctx, requestID, func(tx dao.Repository, req *models.WithdrawalRequest) error {
		txn, err := w.Ledger.SpendTx(ctx, tx, SpendInput{
			Owner:       req.Owner,
			Amount:      req.Amount,
			Description: fmt.Sprintf("withdrawal %d", req.SerialNo),
			Kind:        models.KindWithdraw,
			SourceIDs:   []uint64{req.SourceID},
		})
		if err != nil {
			return err
		}
		req.Status = models.WithdrawalCompleted
		req.ProcessedBy = &processor
		req.TransactionID = &txn.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.Ledger.Invalidate(ctx, req.Owner)
	return req, nil
}

func (w *WithdrawalService) Reject(ctx context.Context, requestID, processor uint64, reason string) (*models.WithdrawalRequest, error) {
	return w.process(ctx, requestID, func(_ dao.Repository, req *models.WithdrawalRequest) error {
		req.Status = models.WithdrawalRejected
		req.ProcessedBy = &processor
		req.Reason = reason
		return nil
	})
}

func (w *WithdrawalService) Cancel(ctx context.Context, requestID uint64, owner models.Owner) (*models.WithdrawalRequest, error) {
	return w.process(ctx, requestID, func(_ dao.Repository, req *models.WithdrawalRequest) error {
		if req.Owner != owner {
			return withdrawalError("permission denied")
		}
		req.Status = models.WithdrawalCancelled
		return nil
	})
}

// process 锁定一条待处理申请并执行状态流转
func (w *WithdrawalService) process(ctx context.Context, requestID uint64, fn func(tx dao.Repository, req *models.WithdrawalRequest) error) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := w.Repo.Transaction(ctx, func(tx dao.Repository) error {
		var err error
		req, err = tx.LockWithdrawalRequest(ctx, requestID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return withdrawalError("request %d not found", requestID)
		}
		if err != nil {
			return err
		}
		if req.Terminal() {
			return withdrawalError("request %d already %s", requestID, req.Status)
		}
		if err := fn(tx, req); err != nil {
			return err
		}
		now := w.now()
		req.ProcessedAt = &now
		return tx.SaveWithdrawalRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (w *WithdrawalService) ListWithdrawalRequests(ctx context.Context, owner models.Owner, cursor uint64, limit int) (*types.ListWithdrawalResp, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := w.Repo.ListWithdrawalRequests(ctx, owner, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	resp := &types.ListWithdrawalResp{Items: make([]types.WithdrawalRequestItem, 0, len(rows))}
	if len(rows) > limit {
		resp.HasMore = true
		rows = rows[:limit]
		resp.NextCursor = rows[len(rows)-1].ID
	}
	for i := range rows {
		resp.Items = append(resp.Items, types.NewWithdrawalRequestItem(&rows[i]))
	}
	return resp, nil
}
