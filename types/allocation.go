package types

import (
	"Orbit/models"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CreateAllocationReq 创建积分分配任务
type CreateAllocationReq struct {
	SourceID        uint64           `json:"source_id" binding:"required"`
	TotalAmount     int64            `json:"total_amount"`
	ProjectTags     []string         `json:"project_tags"`
	ProjectOp       string           `json:"project_op"`
	UserTags        []string         `json:"user_tags"`
	UserOp          string           `json:"user_op"`
	StartMonth      string           `json:"start_month" binding:"required"`
	EndMonth        string           `json:"end_month" binding:"required"`
	AdjustmentRatio *decimal.Decimal `json:"adjustment_ratio"`
	Overrides       map[string]int64 `json:"overrides"`
	// 使用组织积分桶出资时填写，默认发起人自己
	OwnerType string `json:"owner_type"`
	OwnerID   uint64 `json:"owner_id"`
}

// UnmarshalJSON 兼容旧字段：amount -> total_amount，projects -> project_tags
func (r *CreateAllocationReq) UnmarshalJSON(data []byte) error {
	type canonical CreateAllocationReq
	var aux struct {
		canonical
		Amount   *int64   `json:"amount"`
		Projects []string `json:"projects"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = CreateAllocationReq(aux.canonical)
	if r.TotalAmount == 0 && aux.Amount != nil {
		r.TotalAmount = *aux.Amount
	}
	if len(r.ProjectTags) == 0 && len(aux.Projects) > 0 {
		r.ProjectTags = aux.Projects
	}
	return nil
}

func (r *CreateAllocationReq) ProjectScope() models.TagScope {
	return models.TagScope{Slugs: r.ProjectTags, Op: models.SetOp(r.ProjectOp)}
}

func (r *CreateAllocationReq) UserScope() models.TagScope {
	return models.TagScope{Slugs: r.UserTags, Op: models.SetOp(r.UserOp)}
}

type AllocationPreviewItem struct {
	Platform         string  `json:"platform"`
	ActorID          string  `json:"actor_id"`
	ActorLogin       string  `json:"actor_login"`
	Score            string  `json:"contribution_score"` // 保留原始精度
	UserID           *uint64 `json:"user_id,omitempty"`
	Key              string  `json:"key"`
	CalculatedPoints int64   `json:"calculated_points"`
	AdjustedPoints   int64   `json:"adjusted_points"`
	Overridden       bool    `json:"overridden"`
}

type AllocationPreviewResp struct {
	AllocationID uint64                  `json:"allocation_id"`
	TotalAmount  int64                   `json:"total_amount"`
	TotalPoints  int64                   `json:"total_points"`
	Registered   int                     `json:"registered"`
	Unregistered int                     `json:"unregistered"`
	Items        []AllocationPreviewItem `json:"items"`
}

type AllocationResp struct {
	ID              uint64                  `json:"id"`
	InitiatorID     uint64                  `json:"initiator_id"`
	SourceID        uint64                  `json:"source_id"`
	TotalAmount     int64                   `json:"total_amount"`
	ProjectScope    models.TagScope         `json:"project_scope"`
	UserScope       models.TagScope         `json:"user_scope"`
	StartMonth      string                  `json:"start_month"`
	EndMonth        string                  `json:"end_month"`
	AdjustmentRatio *string                 `json:"adjustment_ratio,omitempty"`
	Overrides       map[string]int64        `json:"overrides,omitempty"`
	Status          string                  `json:"status"`
	SuccessCount    int                     `json:"success_count"`
	PendingCount    int                     `json:"pending_count"`
	FailedCount     int                     `json:"failed_count"`
	TotalPoints     int64                   `json:"total_points"`
	Error           string                  `json:"error,omitempty"`
	Snapshot        []models.AllocationItem `json:"snapshot,omitempty"`
	CreatedAt       string                  `json:"created_at"`
	ExecutedAt      string                  `json:"executed_at,omitempty"`
}

func NewAllocationResp(a *models.PointAllocation) *AllocationResp {
	resp := &AllocationResp{
		ID:           a.ID,
		InitiatorID:  a.InitiatorID,
		SourceID:     a.SourceID,
		TotalAmount:  a.TotalAmount,
		ProjectScope: a.ProjectScope.Data(),
		UserScope:    a.UserScope.Data(),
		StartMonth:   a.StartMonth,
		EndMonth:     a.EndMonth,
		Overrides:    a.Overrides.Data(),
		Status:       string(a.Status),
		SuccessCount: a.SuccessCount,
		PendingCount: a.PendingCount,
		FailedCount:  a.FailedCount,
		TotalPoints:  a.TotalPoints,
		Error:        a.Error,
		Snapshot:     a.Snapshot.Data(),
		CreatedAt:    a.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if a.AdjustmentRatio.Valid {
		ratio := a.AdjustmentRatio.Decimal.String()
		resp.AdjustmentRatio = &ratio
	}
	if a.ExecutedAt != nil {
		resp.ExecutedAt = a.ExecutedAt.Format("2006-01-02 15:04:05")
	}
	return resp
}

type ClaimResp struct {
	ClaimedCount int   `json:"claimed_count"`
	TotalAmount  int64 `json:"total_amount"`
}
