package main

import (
	"Orbit/service"
)

// Commands 命令行子命令依赖，不启动 http 服务
type Commands struct {
	PointService *service.PointService
	ClaimService *service.ClaimService
}
