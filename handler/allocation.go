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

	"github.com/gin-gonic/gin"
)

type Allocation struct {
	Config            *config.Config
	AllocationService service.IAllocationService
}

func (a *Allocation) RegisterRouter(r gin.IRouter) {
	g := r.Group("/v1/allocations")
	g.Use(middleware.Auth(a.Config.Jwt), middleware.AdminOnly(a.Config.App))
	g.POST("", context.Wrap(a.Create))
	g.GET("/:id", context.Wrap(a.Detail))
	g.GET("/:id/preview", context.Wrap(a.Preview))
	g.POST("/:id/execute", context.Wrap(a.Execute))
}

func (a *Allocation) Create(c *gin.Context) error {
	uid, err := context.GetUserID(c)
	if err != nil {
		return response.NewError(http.StatusUnauthorized, err.Error())
	}
	var req types.CreateAllocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return response.NewError(http.StatusBadRequest, err.Error())
	}

	in := service.CreateAllocationInput{
		InitiatorID:     uid,
		SourceID:        req.SourceID,
		TotalAmount:     req.TotalAmount,
		ProjectScope:    req.ProjectScope(),
		UserScope:       req.UserScope(),
		StartMonth:      req.StartMonth,
		EndMonth:        req.EndMonth,
		AdjustmentRatio: req.AdjustmentRatio,
		Overrides:       req.Overrides,
	}
	if req.OwnerID != 0 {
		kind, ok := models.ParseOwnerKind(req.OwnerType)
		if !ok {
			return response.NewError(http.StatusBadRequest, "owner_type 只能是 user 或 organization")
		}
		in.FundingOwner = &models.Owner{Kind: kind, ID: req.OwnerID}
	}

	alloc, err := a.AllocationService.Create(c.Request.Context(), in)
	if err != nil {
		return bizError(err)
	}
	response.Success(c, types.NewAllocationResp(alloc))
	return nil
}

func (a *Allocation) Detail(c *gin.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	alloc, err := a.AllocationService.Find(c.Request.Context(), id)
	if err != nil {
		return bizError(err)
	}
	response.Success(c, types.NewAllocationResp(alloc))
	return nil
}

func (a *Allocation) Preview(c *gin.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request.Context()
	alloc, err := a.AllocationService.Find(ctx, id)
	if err != nil {
		return bizError(err)
	}

	recipients, err := a.AllocationService.Preview(ctx, alloc)
	if err != nil {
		return bizError(err)
	}
	resp := types.AllocationPreviewResp{
		AllocationID: alloc.ID,
		TotalAmount:  alloc.TotalAmount,
		Items:        make([]types.AllocationPreviewItem, 0, len(recipients)),
	}
	for _, r := range recipients {
		item := types.AllocationPreviewItem{
			Platform:         r.Platform,
			ActorID:          r.ActorID,
			ActorLogin:       r.ActorLogin,
			Score:            r.Score.String(),
			Key:              r.Key,
			CalculatedPoints: r.CalculatedPoints,
			AdjustedPoints:   r.AdjustedPoints,
			Overridden:       r.Overridden,
		}
		if r.Account != nil {
			uid := r.Account.ID
			item.UserID = &uid
			resp.Registered++
		} else {
			resp.Unregistered++
		}
		resp.TotalPoints += r.AdjustedPoints
		resp.Items = append(resp.Items, item)
	}
	response.Success(c, resp)
	return nil
}

func (a *Allocation) Execute(c *gin.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	alloc, err := a.AllocationService.Execute(c.Request.Context(), id)
	if err != nil {
		return bizError(err)
	}
	response.Success(c, types.NewAllocationResp(alloc))
	return nil
}
