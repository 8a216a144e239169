package config

import "time"

type App struct {
	Env   string `json:"env" yaml:"env"`
	Debug bool   `json:"debug" yaml:"debug"`
	// AdminIDs 可以审核提现、执行积分分配的用户
	AdminIDs []uint64 `json:"admin_ids" yaml:"admin_ids"`
	// HashSalt 对外展示的提现单号混淆盐
	HashSalt string `json:"hash_salt" yaml:"hash_salt"`
}

func (a *App) IsAdmin(uid uint64) bool {
	for _, id := range a.AdminIDs {
		if id == uid {
			return true
		}
	}
	return false
}

type Jwt struct {
	Secret    string `json:"secret" yaml:"secret"`
	ExpireSec int    `json:"expire_sec" yaml:"expire_sec"`
}

func (j *Jwt) Expire() time.Duration {
	if j.ExpireSec <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(j.ExpireSec) * time.Second
}
