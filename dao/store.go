package dao

import (
	"context"

	"gorm.io/gorm"
)

// Store 组合各 DAO，实现 Repository
type Store struct {
	db *gorm.DB

	*Point
	*Withdrawal
	*Allocation
	*PendingGrant
	*Users
}

var _ Repository = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Point:        NewPoint(db),
		Withdrawal:   NewWithdrawal(db),
		Allocation:   NewAllocation(db),
		PendingGrant: NewPendingGrant(db),
		Users:        NewUsers(db),
	}
}

// Transaction 开启事务，回调内的所有读写都走同一个 tx
func (s *Store) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
