package config

import "time"

type Points struct {
	// BalanceCacheTTL 余额缓存秒数
	BalanceCacheTTL int `json:"balance_cache_ttl" yaml:"balance_cache_ttl"`
	// RetriggerCron 认领补偿任务的 cron 表达式，为空则不启用
	RetriggerCron string `json:"retrigger_cron" yaml:"retrigger_cron"`
	// RetriggerBatch 每批处理的账号数量
	RetriggerBatch int `json:"retrigger_batch" yaml:"retrigger_batch"`
}

func (p *Points) CacheTTL() time.Duration {
	return time.Duration(p.BalanceCacheTTL) * time.Second
}

type Withdrawal struct {
	MaxPendingRequests int `json:"max_pending_requests" yaml:"max_pending_requests"`
}

type ContributionConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Token     string `json:"token" yaml:"token"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type LabelsConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type EsignConfig struct {
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	AppID         string `json:"app_id" yaml:"app_id"`
	AppSecret     string `json:"app_secret" yaml:"app_secret"`
	TemplateID    string `json:"template_id" yaml:"template_id"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
	TimeoutMs     int    `json:"timeout_ms" yaml:"timeout_ms"`
}

func ProvidePointsConfig(cfg *Config) *Points {
	return cfg.Points
}

func ProvideWithdrawalConfig(cfg *Config) *Withdrawal {
	return cfg.Withdrawal
}

func ProvideContributionConfig(cfg *Config) *ContributionConfig {
	return cfg.Contribution
}

func ProvideLabelsConfig(cfg *Config) *LabelsConfig {
	return cfg.Labels
}

func ProvideEsignConfig(cfg *Config) *EsignConfig {
	return cfg.Esign
}
