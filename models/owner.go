package models

import "fmt"

type OwnerKind string

const (
	OwnerUser         OwnerKind = "user"
	OwnerOrganization OwnerKind = "organization"
)

// Owner 积分的归属方，用户或组织
type Owner struct {
	Kind OwnerKind `gorm:"column:owner_type;size:16;index:idx_owner,priority:1" json:"kind"`
	ID   uint64    `gorm:"column:owner_id;index:idx_owner,priority:2" json:"id"`
}

func UserOwner(id uint64) Owner {
	return Owner{Kind: OwnerUser, ID: id}
}

func OrganizationOwner(id uint64) Owner {
	return Owner{Kind: OwnerOrganization, ID: id}
}

func (o Owner) Valid() bool {
	return (o.Kind == OwnerUser || o.Kind == OwnerOrganization) && o.ID > 0
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%d", o.Kind, o.ID)
}

// ParseOwnerKind 兼容 "org" 的旧写法
func ParseOwnerKind(s string) (OwnerKind, bool) {
	switch s {
	case "", "user":
		return OwnerUser, true
	case "org", "organization":
		return OwnerOrganization, true
	}
	return "", false
}
