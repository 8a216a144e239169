package config

import (
	"fmt"
	"time"
)

// Redis Redis配置信息
type Redis struct {
	Address   string `json:"address" yaml:"address"`
	Port      int    `json:"port" yaml:"port"`
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"password" yaml:"password"`
	Database  int    `json:"database" yaml:"database"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms"`
}

func (r *Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Address, r.Port)
}

// Timeout 读写超时，余额缓存只是加速，超时后直接回源
func (r *Redis) Timeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}
