package dao

import (
	"Orbit/models"
	"context"

	"gorm.io/gorm"
)

type Allocation struct {
	Repo[models.PointAllocation]
}

func NewAllocation(db *gorm.DB) *Allocation {
	return &Allocation{Repo: NewRepo[models.PointAllocation](db)}
}

func (a *Allocation) CreateAllocation(ctx context.Context, alloc *models.PointAllocation) error {
	return a.Create(ctx, alloc)
}

func (a *Allocation) FindAllocation(ctx context.Context, id uint64) (*models.PointAllocation, error) {
	return a.FindById(ctx, id)
}

// TransitionAllocation 只有当前状态为 from 时才会更新，多个执行者只有一个能成功
func (a *Allocation) TransitionAllocation(ctx context.Context, id uint64, from, to models.AllocationStatus) (bool, error) {
	result := a.Db.WithContext(ctx).Model(&models.PointAllocation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (a *Allocation) SaveAllocation(ctx context.Context, alloc *models.PointAllocation) error {
	return a.Save(ctx, alloc)
}
