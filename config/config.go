package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置信息
type Config struct {
	App          *App                `json:"app" yaml:"app"`
	Redis        *Redis              `json:"redis" yaml:"redis"`
	MySQL        *MySQL              `json:"mysql" yaml:"mysql"`
	Jwt          *Jwt                `json:"jwt" yaml:"jwt"`
	Server       *Server             `json:"server" yaml:"server"`
	RocketMQ     *RocketMQConfig     `json:"rocketmq" yaml:"rocketmq"`
	Points       *Points             `json:"points" yaml:"points"`
	Withdrawal   *Withdrawal         `json:"withdrawal" yaml:"withdrawal"`
	Contribution *ContributionConfig `json:"contribution" yaml:"contribution"`
	Labels       *LabelsConfig       `json:"labels" yaml:"labels"`
	Esign        *EsignConfig        `json:"esign" yaml:"esign"`
}

type Server struct {
	Http int `json:"http" yaml:"http"`
}

func New(filename string) *Config {

	content, err := os.ReadFile(filename)
	if err != nil {
		panic(err)
	}

	var conf Config
	if err := yaml.Unmarshal(content, &conf); err != nil {
		panic(fmt.Sprintf("解析 %s 读取错误: %v", filename, err))
	}
	conf.applyDefaults()

	return &conf
}

func (c *Config) applyDefaults() {
	if c.App == nil {
		c.App = &App{}
	}
	if c.Redis == nil {
		c.Redis = &Redis{Address: "127.0.0.1", Port: 6379}
	}
	if c.MySQL == nil {
		c.MySQL = &MySQL{}
	}
	if c.Jwt == nil {
		c.Jwt = &Jwt{}
	}
	if c.Server == nil {
		c.Server = &Server{Http: 8080}
	}
	if c.Points == nil {
		c.Points = &Points{}
	}
	if c.Points.BalanceCacheTTL <= 0 {
		c.Points.BalanceCacheTTL = 60
	}
	if c.Withdrawal == nil {
		c.Withdrawal = &Withdrawal{}
	}
	if c.Withdrawal.MaxPendingRequests <= 0 {
		c.Withdrawal.MaxPendingRequests = 10
	}
	if c.Contribution == nil {
		c.Contribution = &ContributionConfig{}
	}
	if c.Labels == nil {
		c.Labels = &LabelsConfig{}
	}
	if c.Esign == nil {
		c.Esign = &EsignConfig{}
	}
	if c.RocketMQ == nil {
		c.RocketMQ = &RocketMQConfig{}
	}
	if c.RocketMQ.Topics.AccountRegistered == "" {
		c.RocketMQ.Topics.AccountRegistered = "account-registered"
	}
	if c.RocketMQ.Topics.ClaimRetrigger == "" {
		c.RocketMQ.Topics.ClaimRetrigger = "points-claim-retrigger"
	}
}

// Debug 调试模式
func (c *Config) Debug() bool {
	return c.App.Debug
}
