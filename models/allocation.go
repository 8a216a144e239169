package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AllocationStatus string

const (
	AllocationPending   AllocationStatus = "pending"
	AllocationExecuting AllocationStatus = "executing"
	AllocationCompleted AllocationStatus = "completed"
	AllocationFailed    AllocationStatus = "failed"
)

// SetOp 标签集合运算
type SetOp string

const (
	SetAnd SetOp = "AND"
	SetOr  SetOp = "OR"
	SetNot SetOp = "NOT"
	SetXor SetOp = "XOR"
)

func (op SetOp) Valid() bool {
	switch op {
	case SetAnd, SetOr, SetNot, SetXor:
		return true
	}
	return false
}

// TagScope 标签表达式：一组 slug + 集合运算
type TagScope struct {
	Slugs []string `json:"slugs"`
	Op    SetOp    `json:"op"`
}

func (s TagScope) Empty() bool {
	return len(s.Slugs) == 0
}

// AllocationItem 分配结果快照中的单个接收方，贡献分已转为普通数值
type AllocationItem struct {
	Platform          string  `json:"platform"`
	ActorID           string  `json:"actor_id"`
	ActorLogin        string  `json:"actor_login"`
	ContributionScore float64 `json:"contribution_score"`
	UserID            *uint64 `json:"user_id,omitempty"`
	Key               string  `json:"key"`
	CalculatedPoints  int64   `json:"calculated_points"`
	AdjustedPoints    int64   `json:"adjusted_points"`
	Overridden        bool    `json:"overridden"`
}

// PointAllocation 按贡献度发放积分的任务
type PointAllocation struct {
	ID              uint64                               `gorm:"primaryKey;column:id"`
	InitiatorID     uint64                               `gorm:"column:initiator_id;index"`
	SourceID        uint64                               `gorm:"column:source_id"` // 提供标签的积分桶
	TotalAmount     int64                                `gorm:"column:total_amount"`
	ProjectScope    datatypes.JSONType[TagScope]         `gorm:"column:project_scope"`
	UserScope       datatypes.JSONType[TagScope]         `gorm:"column:user_scope"`
	StartMonth      string                               `gorm:"column:start_month;size:7"`
	EndMonth        string                               `gorm:"column:end_month;size:7"`
	AdjustmentRatio decimal.NullDecimal                  `gorm:"column:adjustment_ratio;type:decimal(10,4)"`
	Overrides       datatypes.JSONType[map[string]int64] `gorm:"column:overrides"`
	Status          AllocationStatus                     `gorm:"column:status;size:16;index"`
	Snapshot        datatypes.JSONType[[]AllocationItem] `gorm:"column:snapshot"`
	SuccessCount    int                                  `gorm:"column:success_count"`
	PendingCount    int                                  `gorm:"column:pending_count"`
	FailedCount     int                                  `gorm:"column:failed_count"`
	TotalPoints     int64                                `gorm:"column:total_points"`
	Error           string                               `gorm:"column:error;size:512"`
	ExecutedAt      *time.Time                           `gorm:"column:executed_at"`
	CreatedAt       time.Time                            `gorm:"column:created_at"`
	UpdatedAt       time.Time                            `gorm:"column:updated_at"`
}

func (PointAllocation) TableName() string {
	return "point_allocations"
}

// PendingPointGrant 发给尚未注册账号的积分，注册后按外部身份认领
type PendingPointGrant struct {
	ID            uint64                       `gorm:"primaryKey;column:id"`
	AllocationID  uint64                       `gorm:"column:allocation_id;index"`
	Platform      string                       `gorm:"column:platform;size:32;index:idx_external,priority:1"`
	ExternalID    string                       `gorm:"column:external_id;size:64;index:idx_external,priority:2"`
	ExternalLogin string                       `gorm:"column:external_login;size:128;index"`
	Email         string                       `gorm:"column:email;size:255;index"`
	Amount        int64                        `gorm:"column:amount"`
	Tags          datatypes.JSONType[[]string] `gorm:"column:tags"`
	Reason        string                       `gorm:"column:reason;size:255"`
	IsClaimed     bool                         `gorm:"column:is_claimed;default:false;index"`
	ClaimedBy     *uint64                      `gorm:"column:claimed_by;index"`
	ClaimedAt     *time.Time                   `gorm:"column:claimed_at"`
	CreatedAt     time.Time                    `gorm:"column:created_at"`
}

func (PendingPointGrant) TableName() string {
	return "pending_point_grants"
}
