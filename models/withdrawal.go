package models

import (
	"time"

	"gorm.io/datatypes"
)

type ContractStatus string

const (
	ContractPending ContractStatus = "pending"
	ContractSigned  ContractStatus = "signed"
	ContractFailed  ContractStatus = "failed"
)

// WithdrawalItem 一次提现申请的明细：从哪个积分桶提多少
type WithdrawalItem struct {
	SourceID uint64 `json:"source_id"`
	Amount   int64  `json:"amount"`
}

// WithdrawalContract 提现协议签署记录，每个归属方一份
type WithdrawalContract struct {
	ID       uint64         `gorm:"primaryKey;column:id"`
	Owner    Owner          `gorm:"embedded"`
	RecordID string         `gorm:"column:record_id;size:64;uniqueIndex"` // 电子签平台流水号
	Status   ContractStatus `gorm:"column:status;size:16"`
	// PendingItems 签署完成前暂存的提现申请，签署成功后自动创建
	PendingItems datatypes.JSONType[[]WithdrawalItem] `gorm:"column:pending_items"`
	SignedAt     *time.Time                           `gorm:"column:signed_at"`
	CreatedAt    time.Time                            `gorm:"column:created_at"`
	UpdatedAt    time.Time                            `gorm:"column:updated_at"`
}

func (WithdrawalContract) TableName() string {
	return "withdrawal_contracts"
}

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalCancelled WithdrawalStatus = "CANCELLED"
)

// WithdrawalRequest 提现申请，终态不可再变更
type WithdrawalRequest struct {
	ID            uint64           `gorm:"primaryKey;column:id"`
	SerialNo      int64            `gorm:"column:serial_no;uniqueIndex"`
	Owner         Owner            `gorm:"embedded"`
	SourceID      uint64           `gorm:"column:source_id;index"`
	Amount        int64            `gorm:"column:amount"`
	Status        WithdrawalStatus `gorm:"column:status;size:16;index"`
	Reason        string           `gorm:"column:reason;size:255"`
	ProcessedBy   *uint64          `gorm:"column:processed_by"`
	ProcessedAt   *time.Time       `gorm:"column:processed_at"`
	TransactionID *uint64          `gorm:"column:transaction_id"`
	CreatedAt     time.Time        `gorm:"column:created_at"`
	UpdatedAt     time.Time        `gorm:"column:updated_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

func (r *WithdrawalRequest) Terminal() bool {
	return r.Status != WithdrawalPending
}
