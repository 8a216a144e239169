package dao

import (
	"Orbit/models"
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PendingGrant struct {
	Repo[models.PendingPointGrant]
}

func NewPendingGrant(db *gorm.DB) *PendingGrant {
	return &PendingGrant{Repo: NewRepo[models.PendingPointGrant](db)}
}

func (p *PendingGrant) CreatePendingGrant(ctx context.Context, g *models.PendingPointGrant) error {
	return p.Create(ctx, g)
}

// FindUnclaimedGrants 查询可被认领的记录。空字符串条件直接跳过，避免空邮箱匹配到空邮箱
func (p *PendingGrant) FindUnclaimedGrants(ctx context.Context, match GrantMatch) ([]models.PendingPointGrant, error) {
	conds := make([]string, 0, len(match.Bindings)+2)
	args := make([]any, 0, len(match.Bindings)*2+2)

	for _, b := range match.Bindings {
		if b.Platform == "" || b.ExternalID == "" {
			continue
		}
		conds = append(conds, "(platform = ? AND external_id = ?)")
		args = append(args, b.Platform, b.ExternalID)
	}
	if match.Login != "" {
		conds = append(conds, "external_login = ?")
		args = append(args, match.Login)
	}
	if match.Email != "" {
		conds = append(conds, "email = ?")
		args = append(args, match.Email)
	}
	if len(conds) == 0 {
		return nil, nil
	}

	var grants []models.PendingPointGrant
	err := p.Db.WithContext(ctx).
		Where("is_claimed = ?", false).
		Where("("+strings.Join(conds, " OR ")+")", args...).
		Order("id ASC").
		Find(&grants).Error
	return grants, err
}

func (p *PendingGrant) LockPendingGrant(ctx context.Context, id uint64) (*models.PendingPointGrant, error) {
	var g models.PendingPointGrant
	err := p.Db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&g, id).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (p *PendingGrant) SavePendingGrant(ctx context.Context, g *models.PendingPointGrant) error {
	return p.Save(ctx, g)
}

func (p *PendingGrant) ListClaimedGrants(ctx context.Context, userID uint64) ([]models.PendingPointGrant, error) {
	var grants []models.PendingPointGrant
	err := p.Db.WithContext(ctx).
		Where("is_claimed = ? AND claimed_by = ?", true, userID).
		Order("id ASC").
		Find(&grants).Error
	return grants, err
}
