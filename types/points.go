package types

// PointRecord 每一条流水的细节
type PointRecord struct {
	ID          uint64   `json:"id"`          // 流水唯一ID
	Amount      int64    `json:"amount"`      // 变动数值（如 +10, -50）
	Kind        string   `json:"kind"`        // EARN / SPEND / WITHDRAW / ROLLBACK
	Description string   `json:"description"` // 详细描述
	OrderType   string   `json:"order_type"`  // INCOME(收入), EXPENSE(支出)
	SourceIDs   []uint64 `json:"source_ids"`  // 涉及的积分桶
	CreatedAt   string   `json:"created_at"`
}

// ListPointsRecord 流水列表包装
type ListPointsRecord struct {
	Records    []PointRecord `json:"records"`
	NextCursor uint64        `json:"next_cursor"` // 游标：用于下一页请求
	HasMore    bool          `json:"has_more"`
}

// PointsAccountResp 账户概览
type PointsAccountResp struct {
	Balance      int64 `json:"balance"`      // 当前可用余额
	Withdrawable int64 `json:"withdrawable"` // 其中可提现部分
}

// UserPointsResponse 用户点击“我的积分”后的总返回
type UserPointsResponse struct {
	Account PointsAccountResp `json:"account"`
	History ListPointsRecord  `json:"history"`
}

type ListPointsRecordReq struct {
	Cursor uint64 `form:"cursor"`
	Limit  int    `form:"limit"`
}

// GrantPointsReq 管理员发放积分
type GrantPointsReq struct {
	OwnerType   string   `json:"owner_type"` // user / organization，默认 user
	OwnerID     uint64   `json:"owner_id" binding:"required"`
	Amount      int64    `json:"amount" binding:"required,gt=0"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	ExpiresAt   string   `json:"expires_at"` // RFC3339，可选
}

type GrantPointsResp struct {
	SourceID uint64 `json:"source_id"`
}

// ConsumePointsReq 消费积分
type ConsumePointsReq struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"` // 前端传正数
	Description string `json:"description"`
	PriorityTag string `json:"priority_tag"` // 优先扣减的标签
}

type ConsumePointsResp struct {
	TransactionID uint64 `json:"transaction_id"`
	Balance       int64  `json:"balance"`
}
