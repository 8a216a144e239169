package types

import (
	"Orbit/models"
	"strconv"
)

type WithdrawalItemReq struct {
	SourceID uint64 `json:"source_id" binding:"required"`
	Amount   int64  `json:"amount"`
}

// CreateWithdrawalReq 协议未签署时会先发起签署，签署成功后自动创建
type CreateWithdrawalReq struct {
	Items  []WithdrawalItemReq `json:"items" binding:"required,min=1"`
	Name   string              `json:"name"`
	Email  string              `json:"email"`
	Mobile string              `json:"mobile"`
}

type CreateWithdrawalResp struct {
	// ContractRecordID 非空表示已发起协议签署，申请将在签署完成后创建
	ContractRecordID string                  `json:"contract_record_id,omitempty"`
	Requests         []WithdrawalRequestItem `json:"requests"`
}

type ContractCallbackReq struct {
	RecordID string `json:"record_id" binding:"required"`
	Status   string `json:"status" binding:"required"`
}

type RejectWithdrawalReq struct {
	Reason string `json:"reason" binding:"required"`
}

type WithdrawalRequestItem struct {
	ID            uint64 `json:"id"`
	PublicNo      string `json:"public_no"` // 对外展示的单号
	SerialNo      string `json:"serial_no"`
	SourceID      uint64 `json:"source_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	TransactionID uint64 `json:"transaction_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	ProcessedAt   string `json:"processed_at,omitempty"`
}

func NewWithdrawalRequestItem(r *models.WithdrawalRequest) WithdrawalRequestItem {
	item := WithdrawalRequestItem{
		ID:        r.ID,
		SerialNo:  strconv.FormatInt(r.SerialNo, 10),
		SourceID:  r.SourceID,
		Amount:    r.Amount,
		Status:    string(r.Status),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if r.TransactionID != nil {
		item.TransactionID = *r.TransactionID
	}
	if r.ProcessedAt != nil {
		item.ProcessedAt = r.ProcessedAt.Format("2006-01-02 15:04:05")
	}
	return item
}

type ListWithdrawalResp struct {
	Items      []WithdrawalRequestItem `json:"items"`
	NextCursor uint64                  `json:"next_cursor"`
	HasMore    bool                    `json:"has_more"`
}
