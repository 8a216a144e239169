package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperation 参数或调用方式错误，不应重试
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInsufficientPoints 余额不足，不会部分扣减
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrContractNotSigned 提现协议未签署
	ErrContractNotSigned = errors.New("withdrawal contract not signed")
	// ErrWithdrawal 提现状态流转、额度、权限等错误
	ErrWithdrawal = errors.New("withdrawal error")
	// ErrLedgerInconsistent 余额校验通过却扣不够，说明存在并发问题
	ErrLedgerInconsistent = errors.New("ledger inconsistent")
	// ErrAllocationState 分配任务状态不允许当前操作
	ErrAllocationState = errors.New("allocation state error")
)

func invalidOperation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

func withdrawalError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrWithdrawal, fmt.Sprintf(format, args...))
}
