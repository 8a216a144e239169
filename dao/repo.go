package dao

import (
	"context"

	"gorm.io/gorm"
)

// Repo 通用的单表 DAO，业务 DAO 通过内嵌复用
type Repo[T any] struct {
	Db *gorm.DB
}

func NewRepo[T any](db *gorm.DB) Repo[T] {
	return Repo[T]{Db: db}
}

// FindById 主键查询
func (r *Repo[T]) FindById(ctx context.Context, id uint64) (*T, error) {
	var item T
	if err := r.Db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repo[T]) Create(ctx context.Context, item *T) error {
	return r.Db.WithContext(ctx).Create(item).Error
}

func (r *Repo[T]) Save(ctx context.Context, item *T) error {
	return r.Db.WithContext(ctx).Save(item).Error
}
