package models

import (
	"strings"
	"time"
)

// Tag 积分标签，决定积分桶能否提现、能否充值以及默认扣减顺序
type Tag struct {
	ID            uint64    `gorm:"primaryKey;column:id"`
	Name          string    `gorm:"column:name;size:64;index"`
	Slug          string    `gorm:"column:slug;size:64;uniqueIndex"`
	IsDefault     bool      `gorm:"column:is_default;default:false"`
	Withdrawable  bool      `gorm:"column:withdrawable;default:false"`
	AllowRecharge bool      `gorm:"column:allow_recharge;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Tag) TableName() string {
	return "point_tags"
}

// Slugify 标签名转 slug：小写，空白与下划线替换为 -
func Slugify(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(name)), func(r rune) bool {
		return r == ' ' || r == '_' || r == '\t' || r == '-'
	})
	return strings.Join(fields, "-")
}

// PointSource 积分桶。remaining_amount 只减不增，按创建时间先进先出消耗
type PointSource struct {
	ID              uint64     `gorm:"primaryKey;column:id"`
	Owner           Owner      `gorm:"embedded"`
	InitialAmount   int64      `gorm:"column:initial_amount"`
	RemainingAmount int64      `gorm:"column:remaining_amount;index"`
	AllowRecharge   bool       `gorm:"column:allow_recharge;default:false"`
	Description     string     `gorm:"column:description;size:255"`
	ExpiresAt       *time.Time `gorm:"column:expires_at"`
	Tags            []Tag      `gorm:"many2many:point_source_tags;joinForeignKey:SourceID;joinReferences:TagID"`
	CreatedAt       time.Time  `gorm:"column:created_at;index"`
}

func (PointSource) TableName() string {
	return "point_sources"
}

func (s *PointSource) Active(now time.Time) bool {
	return s.RemainingAmount > 0 && (s.ExpiresAt == nil || s.ExpiresAt.After(now))
}

func (s *PointSource) Withdrawable() bool {
	for _, t := range s.Tags {
		if t.Withdrawable {
			return true
		}
	}
	return false
}

func (s *PointSource) Rechargeable() bool {
	if s.AllowRecharge {
		return true
	}
	for _, t := range s.Tags {
		if t.AllowRecharge {
			return true
		}
	}
	return false
}

// HasTag 按名称或 slug 匹配
func (s *PointSource) HasTag(ref string) bool {
	slug := Slugify(ref)
	for _, t := range s.Tags {
		if t.Name == ref || t.Slug == slug {
			return true
		}
	}
	return false
}

func (s *PointSource) HasDefaultTag() bool {
	for _, t := range s.Tags {
		if t.IsDefault {
			return true
		}
	}
	return false
}

func (s *PointSource) TagSlugs() []string {
	slugs := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		slugs = append(slugs, t.Slug)
	}
	return slugs
}

// 积分流水类型
type TransactionKind string

const (
	KindEarn     TransactionKind = "EARN"
	KindSpend    TransactionKind = "SPEND"
	KindWithdraw TransactionKind = "WITHDRAW"
	KindRollback TransactionKind = "ROLLBACK"
)

// PointTransaction 积分流水，创建后不可修改
type PointTransaction struct {
	ID          uint64              `gorm:"primaryKey;column:id"`
	Owner       Owner               `gorm:"embedded"`
	Amount      int64               `gorm:"column:amount"` // 变动数额（正负）
	Kind        TransactionKind     `gorm:"column:kind;size:16;index"`
	Description string              `gorm:"column:description;size:255"`
	Sources     []TransactionSource `gorm:"foreignKey:TransactionID"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime;index"`
}

func (PointTransaction) TableName() string {
	return "point_transactions"
}

// TransactionSource 一笔支出实际扣减的积分桶及数额
type TransactionSource struct {
	ID            uint64 `gorm:"primaryKey;column:id"`
	TransactionID uint64 `gorm:"column:transaction_id;index"`
	SourceID      uint64 `gorm:"column:source_id;index"`
	Amount        int64  `gorm:"column:amount"`
}

func (TransactionSource) TableName() string {
	return "point_transaction_sources"
}

func (t *PointTransaction) SourceIDs() []uint64 {
	ids := make([]uint64, 0, len(t.Sources))
	for _, s := range t.Sources {
		ids = append(ids, s.SourceID)
	}
	return ids
}

// Balance 余额概览
type Balance struct {
	Total        int64 `json:"total"`
	Withdrawable int64 `json:"withdrawable"`
}
