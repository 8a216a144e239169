package dao

import (
	"Orbit/models"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Point struct {
	Repo[models.PointSource]
}

func NewPoint(db *gorm.DB) *Point {
	return &Point{
		Repo: NewRepo[models.PointSource](db),
	}
}

// CreateSource 新建积分桶并关联已存在的标签
func (p *Point) CreateSource(ctx context.Context, src *models.PointSource) error {
	return p.Db.WithContext(ctx).Omit("Tags.*").Create(src).Error
}

func (p *Point) FindSource(ctx context.Context, id uint64) (*models.PointSource, error) {
	var src models.PointSource
	err := p.Db.WithContext(ctx).Preload("Tags").First(&src, id).Error
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (p *Point) LockSource(ctx context.Context, id uint64) (*models.PointSource, error) {
	var src models.PointSource
	err := p.Db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Tags").
		First(&src, id).Error
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (p *Point) LockEligibleSources(ctx context.Context, owner models.Owner, now time.Time) ([]*models.PointSource, error) {
	var sources []*models.PointSource
	err := p.activeQuery(ctx, owner, now).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Find(&sources).Error
	return sources, err
}

// ListActiveSources 不加锁，仅用于展示余额
func (p *Point) ListActiveSources(ctx context.Context, owner models.Owner, now time.Time) ([]*models.PointSource, error) {
	var sources []*models.PointSource
	err := p.activeQuery(ctx, owner, now).Find(&sources).Error
	return sources, err
}

func (p *Point) activeQuery(ctx context.Context, owner models.Owner, now time.Time) *gorm.DB {
	return p.Db.WithContext(ctx).
		Preload("Tags").
		Where("owner_type = ? AND owner_id = ? AND remaining_amount > 0", owner.Kind, owner.ID).
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Order("created_at ASC, id ASC")
}

// DeductSource 扣减积分桶余额，条件更新保证不会扣成负数
func (p *Point) DeductSource(ctx context.Context, id uint64, amount int64) error {
	result := p.Db.WithContext(ctx).Model(&models.PointSource{}).
		Where("id = ? AND remaining_amount >= ?", id, amount).
		Update("remaining_amount", gorm.Expr("remaining_amount - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleSource
	}
	return nil
}

// FindTagByRef 先按 slug 再按名称查找标签，不存在返回 nil
func (p *Point) FindTagByRef(ctx context.Context, ref string) (*models.Tag, error) {
	var tag models.Tag
	err := p.Db.WithContext(ctx).
		Where("slug = ? OR name = ?", models.Slugify(ref), ref).
		Order("id ASC").
		Limit(1).
		Find(&tag).Error
	if err != nil {
		return nil, err
	}
	if tag.ID == 0 {
		return nil, nil
	}
	return &tag, nil
}

func (p *Point) CreateTag(ctx context.Context, tag *models.Tag) error {
	return p.Db.WithContext(ctx).Create(tag).Error
}

func (p *Point) CreateTransaction(ctx context.Context, txn *models.PointTransaction) error {
	return p.Db.WithContext(ctx).Create(txn).Error
}

// ListTransactions 游标分页查询流水
func (p *Point) ListTransactions(ctx context.Context, owner models.Owner, cursor uint64, limit int) ([]models.PointTransaction, error) {
	var txns []models.PointTransaction
	query := p.Db.WithContext(ctx).
		Preload("Sources").
		Where("owner_type = ? AND owner_id = ?", owner.Kind, owner.ID)

	if cursor > 0 {
		query = query.Where("id < ?", cursor)
	}

	err := query.Order("id DESC").Limit(limit).Find(&txns).Error
	return txns, err
}
