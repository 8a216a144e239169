package handler

import (
	"Orbit/pkg/response"
	"Orbit/service"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	CodeInsufficientPoints = 4001
	CodeContractNotSigned  = 4002
	CodeWithdrawal         = 4003
	CodeAllocationState    = 4004
)

// bizError 把 service 层的错误翻译成前端可识别的业务码，未知错误原样返回交给 Wrap 处理
func bizError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidOperation):
		return response.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInsufficientPoints):
		return response.NewError(CodeInsufficientPoints, "积分余额不足")
	case errors.Is(err, service.ErrContractNotSigned):
		return response.NewError(CodeContractNotSigned, "请先签署提现协议")
	case errors.Is(err, service.ErrWithdrawal):
		return response.NewError(CodeWithdrawal, err.Error())
	case errors.Is(err, service.ErrAllocationState):
		return response.NewError(CodeAllocationState, err.Error())
	}
	return err
}

func paramID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, response.NewError(http.StatusBadRequest, "无效的 id")
	}
	return id, nil
}
