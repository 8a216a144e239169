package server

import (
	"Orbit/handler"
)

type Handlers struct {
	Points     *handler.Point
	Withdrawal *handler.Withdrawal
	Allocation *handler.Allocation
}
