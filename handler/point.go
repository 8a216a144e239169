package handler

import (
	"Orbit/config"
	"Orbit/middleware"
	"Orbit/models"
	"Orbit/pkg/context"
	"Orbit/pkg/response"
	"Orbit/service"
	"Orbit/types"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Point struct {
	Config       *config.Config
	PointService service.IPointService
	ClaimService service.IClaimService
}

func (p *Point) RegisterRouter(r gin.IRouter) {
	pointGroup := r.Group("/v1/points")
	pointGroup.Use(middleware.Auth(p.Config.Jwt))
	pointGroup.GET("/balance", context.Wrap(p.Balance))
	pointGroup.GET("/records", context.Wrap(p.GetRecords))
	pointGroup.GET("/overview", context.Wrap(p.Overview))
	pointGroup.POST("/consume", context.Wrap(p.Consume))
	pointGroup.POST("/claim", context.Wrap(p.Claim))

	admin := pointGroup.Group("/admin", middleware.AdminOnly(p.Config.App))
	admin.POST("/grant", context.Wrap(p.Grant))
}

func (p *Point) Balance(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}

	b, err := p.PointService.Balance(c.Request.Context(), models.UserOwner(uid))
	if err != nil {
		return err
	}
	response.Success(c, types.PointsAccountResp{Balance: b.Total, Withdrawable: b.Withdrawable})
	return nil
}

func (p *Point) GetRecords(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	var req types.ListPointsRecordReq
	if err := c.ShouldBindQuery(&req); err != nil {
		return response.NewError(http.StatusBadRequest, err.Error())
	}

	resp, err := p.PointService.ListPointRecords(c.Request.Context(), models.UserOwner(uid), req.Cursor, req.Limit)
	if err != nil {
		return err
	}
	response.Success(c, resp)
	return nil
}

// Overview 我的积分页：余额 + 第一页流水
func (p *Point) Overview(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	ctx := c.Request.Context()
	owner := models.UserOwner(uid)

	b, err := p.PointService.Balance(ctx, owner)
	if err != nil {
		return err
	}
	history, err := p.PointService.ListPointRecords(ctx, owner, 0, 0)
	if err != nil {
		return err
	}
	response.Success(c, types.UserPointsResponse{
		Account: types.PointsAccountResp{Balance: b.Total, Withdrawable: b.Withdrawable},
		History: *history,
	})
	return nil
}

func (p *Point) Consume(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	var req types.ConsumePointsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return response.NewError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request.Context()
	owner := models.UserOwner(uid)
	txn, err := p.PointService.Spend(ctx, service.SpendInput{
		Owner:       owner,
		Amount:      req.Amount,
		Description: req.Description,
		PriorityTag: req.PriorityTag,
	})
	if err != nil {
		return bizError(err)
	}
	b, err := p.PointService.Balance(ctx, owner)
	if err != nil {
		return err
	}
	response.Success(c, types.ConsumePointsResp{TransactionID: txn.ID, Balance: b.Total})
	return nil
}

// Claim 认领注册前别人分配给自己的积分
func (p *Point) Claim(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}

	res, err := p.ClaimService.ClaimForAccount(c.Request.Context(), uid)
	if err != nil {
		return bizError(err)
	}
	response.Success(c, types.ClaimResp{ClaimedCount: res.ClaimedCount, TotalAmount: res.TotalAmount})
	return nil
}

func (p *Point) Grant(c *gin.Context) error {
	var req types.GrantPointsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return response.NewError(http.StatusBadRequest, err.Error())
	}
	kind, ok := models.ParseOwnerKind(req.OwnerType)
	if !ok {
		return response.NewError(http.StatusBadRequest, "owner_type 只能是 user 或 organization")
	}

	in := service.GrantInput{
		Owner:       models.Owner{Kind: kind, ID: req.OwnerID},
		Amount:      req.Amount,
		Description: req.Description,
		Tags:        req.Tags,
	}
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return response.NewError(http.StatusBadRequest, "expires_at 格式错误")
		}
		in.ExpiresAt = &t
	}

	src, err := p.PointService.Grant(c.Request.Context(), in)
	if err != nil {
		return bizError(err)
	}
	response.Success(c, types.GrantPointsResp{SourceID: src.ID})
	return nil
}
