package models

import "time"

type Users struct {
	ID        uint64        `gorm:"primaryKey;column:id"`
	Username  string        `gorm:"column:username;size:64;uniqueIndex"`
	Nickname  string        `gorm:"column:nickname;size:64"`
	Email     string        `gorm:"column:email;size:255;index"`
	Bindings  []UserBinding `gorm:"foreignKey:UserID"`
	CreatedAt time.Time     `gorm:"column:created_at"`
	UpdatedAt time.Time     `gorm:"column:updated_at"`
}

func (Users) TableName() string {
	return "users"
}

// UserBinding 第三方身份绑定（github / gitee 等）
type UserBinding struct {
	ID         uint64    `gorm:"primaryKey;column:id"`
	UserID     uint64    `gorm:"column:user_id;index"`
	Platform   string    `gorm:"column:platform;size:32;uniqueIndex:uk_platform_external,priority:1"`
	ExternalID string    `gorm:"column:external_id;size:64;uniqueIndex:uk_platform_external,priority:2"`
	Login      string    `gorm:"column:login;size:128"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (UserBinding) TableName() string {
	return "user_bindings"
}

type Organization struct {
	ID        uint64    `gorm:"primaryKey;column:id"`
	Name      string    `gorm:"column:name;size:128"`
	Slug      string    `gorm:"column:slug;size:128;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Organization) TableName() string {
	return "organizations"
}
