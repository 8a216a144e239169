package handler

import (
	"Orbit/config"
	"Orbit/middleware"
	"Orbit/models"
	"Orbit/pkg/context"
	"Orbit/pkg/esign"
	"Orbit/pkg/log"
	"Orbit/pkg/response"
	"Orbit/pkg/utils"
	"Orbit/service"
	"Orbit/types"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const webhookSecretHeader = "X-Webhook-Secret"

type Withdrawal struct {
	Config            *config.Config
	WithdrawalService service.IWithdrawalService
	Esign             *esign.Client
}

func (w *Withdrawal) RegisterRouter(r gin.IRouter) {
	// 电子签平台回调，不走用户鉴权
	r.POST("/v1/withdrawals/contract/callback", context.Wrap(w.ContractCallback))

	g := r.Group("/v1/withdrawals")
	g.Use(middleware.Auth(w.Config.Jwt))
	g.POST("", context.Wrap(w.Create))
	g.GET("", context.Wrap(w.List))
	g.POST("/:id/cancel", context.Wrap(w.Cancel))

	admin := g.Group("", middleware.AdminOnly(w.Config.App))
	admin.POST("/:id/approve", context.Wrap(w.Approve))
	admin.POST("/:id/reject", context.Wrap(w.Reject))
}

// Create 未签协议时先发起签署并暂存申请，签署回调成功后再落库
func (w *Withdrawal) Create(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	var req types.CreateWithdrawalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return response.NewError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request.Context()
	owner := models.UserOwner(uid)
	items := make([]models.WithdrawalItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.WithdrawalItem{SourceID: it.SourceID, Amount: it.Amount})
	}

	err = w.WithdrawalService.EnsureContractSigned(ctx, owner)
	if errors.Is(err, service.ErrContractNotSigned) {
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
			return response.NewError(http.StatusBadRequest, "首次提现需要填写签署人姓名和邮箱")
		}
		contract, err := w.WithdrawalService.RequestContractSignature(ctx, owner, esign.Party{
			Name:   strings.TrimSpace(req.Name),
			Email:  strings.TrimSpace(req.Email),
			Mobile: strings.TrimSpace(req.Mobile),
		}, items)
		if err != nil {
			return bizError(err)
		}
		response.Success(c, types.CreateWithdrawalResp{
			ContractRecordID: contract.RecordID,
			Requests:         []types.WithdrawalRequestItem{},
		})
		return nil
	}
	if err != nil {
		return err
	}

	reqs, err := w.WithdrawalService.CreateBatchWithdrawalRequests(ctx, owner, items)
	if err != nil {
		return bizError(err)
	}
	resp := types.CreateWithdrawalResp{Requests: make([]types.WithdrawalRequestItem, 0, len(reqs))}
	for _, r := range reqs {
		resp.Requests = append(resp.Requests, w.item(r))
	}
	response.Success(c, resp)
	return nil
}

func (w *Withdrawal) List(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	var req types.ListPointsRecordReq
	if err := c.ShouldBindQuery(&req); err != nil {
		return response.NewError(http.StatusBadRequest, err.Error())
	}

	resp, err := w.WithdrawalService.ListWithdrawalRequests(c.Request.Context(), models.UserOwner(uid), req.Cursor, req.Limit)
	if err != nil {
		return err
	}
	for i := range resp.Items {
		resp.Items[i].PublicNo = utils.GenHashID(w.Config.App.HashSalt, resp.Items[i].ID)
	}
	response.Success(c, resp)
	return nil
}

func (w *Withdrawal) Cancel(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	r, err := w.WithdrawalService.Cancel(c.Request.Context(), id, models.UserOwner(uid))
	if err != nil {
		return bizError(err)
	}
	response.Success(c, w.item(r))
	return nil
}

func (w *Withdrawal) Approve(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	r, err := w.WithdrawalService.Approve(c.Request.Context(), id, uid)
	if err != nil {
		return bizError(err)
	}
	log.L.Info("withdrawal approved", zap.Uint64("request_id", id), zap.Uint64("processor", uid))
	response.Success(c, w.item(r))
	return nil
}

func (w *Withdrawal) Reject(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req types.RejectWithdrawalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return response.NewError(http.StatusBadRequest, err.Error())
	}

	r, err := w.WithdrawalService.Reject(c.Request.Context(), id, uid, req.Reason)
	if err != nil {
		return bizError(err)
	}
	response.Success(c, w.item(r))
	return nil
}

func (w *Withdrawal) ContractCallback(c *gin.Context) error {
	if !w.Esign.VerifyWebhook(c.GetHeader(webhookSecretHeader)) {
		return response.NewError(http.StatusUnauthorized, "签名校验失败")
	}
	var req types.ContractCallbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return response.NewError(http.StatusBadRequest, err.Error())
	}

	err := w.WithdrawalService.HandleContractCallback(c.Request.Context(), req.RecordID, models.ContractStatus(req.Status))
	if err != nil {
		return bizError(err)
	}
	response.Success(c, nil)
	return nil
}

func (w *Withdrawal) item(r *models.WithdrawalRequest) types.WithdrawalRequestItem {
	it := types.NewWithdrawalRequestItem(r)
	it.PublicNo = utils.GenHashID(w.Config.App.HashSalt, r.ID)
	return it
}
