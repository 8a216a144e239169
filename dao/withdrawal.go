package dao

import (
	"Orbit/models"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Withdrawal struct {
	Repo[models.WithdrawalRequest]
}

func NewWithdrawal(db *gorm.DB) *Withdrawal {
	return &Withdrawal{Repo: NewRepo[models.WithdrawalRequest](db)}
}

// FindContract 查询归属方的提现协议，不存在返回 nil
func (w *Withdrawal) FindContract(ctx context.Context, owner models.Owner) (*models.WithdrawalContract, error) {
	var c models.WithdrawalContract
	err := w.Db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner.Kind, owner.ID).
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (w *Withdrawal) LockContract(ctx context.Context, owner models.Owner) (*models.WithdrawalContract, error) {
	var c models.WithdrawalContract
	err := w.Db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_type = ? AND owner_id = ?", owner.Kind, owner.ID).
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (w *Withdrawal) LockContractByRecordID(ctx context.Context, recordID string) (*models.WithdrawalContract, error) {
	var c models.WithdrawalContract
	err := w.Db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("record_id = ?", recordID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (w *Withdrawal) SaveContract(ctx context.Context, c *models.WithdrawalContract) error {
	return w.Db.WithContext(ctx).Save(c).Error
}

func (w *Withdrawal) CountPendingRequests(ctx context.Context, owner models.Owner) (int64, error) {
	var count int64
	err := w.Db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("owner_type = ? AND owner_id = ? AND status = ?", owner.Kind, owner.ID, models.WithdrawalPending).
		Count(&count).Error
	return count, err
}

func (w *Withdrawal) CreateWithdrawalRequests(ctx context.Context, reqs []*models.WithdrawalRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	return w.Db.WithContext(ctx).Create(&reqs).Error
}

func (w *Withdrawal) LockWithdrawalRequest(ctx context.Context, id uint64) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := w.Db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (w *Withdrawal) SaveWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error {
	return w.Save(ctx, req)
}

func (w *Withdrawal) ListWithdrawalRequests(ctx context.Context, owner models.Owner, cursor uint64, limit int) ([]models.WithdrawalRequest, error) {
	var reqs []models.WithdrawalRequest
	query := w.Db.WithContext(ctx).Where("owner_type = ? AND owner_id = ?", owner.Kind, owner.ID)
	if cursor > 0 {
		query = query.Where("id < ?", cursor)
	}
	err := query.Order("id DESC").Limit(limit).Find(&reqs).Error
	return reqs, err
}
