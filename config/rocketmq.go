package config

type RocketMQConfig struct {
	NameServer []string `yaml:"nameserver"`

	Producer Producer `yaml:"producer"`

	Consumer Consumer `yaml:"consumer"`

	Topics Topics `yaml:"topics"`
}

type Producer struct {
	Group string `yaml:"group"`
	Retry int    `yaml:"retry"`
}

type Consumer struct {
	Group string `yaml:"group"`
}

type Topics struct {
	// AccountRegistered 账号注册事件，触发待领取积分的认领
	AccountRegistered string `yaml:"account_registered"`
	// ClaimRetrigger 批量重新触发认领
	ClaimRetrigger string `yaml:"claim_retrigger"`
}

func ProvideRocketMQConfig(cfg *Config) *RocketMQConfig {
	return cfg.RocketMQ
}
