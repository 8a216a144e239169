package dao

import (
	"Orbit/models"
	"context"

	"gorm.io/gorm"
)

type Users struct {
	Repo[models.Users]
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{
		Repo: NewRepo[models.Users](db),
	}
}

func (u *Users) FindAccount(ctx context.Context, id uint64) (*models.Users, error) {
	var user models.Users
	err := u.Db.WithContext(ctx).Preload("Bindings").First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *Users) FindAccountByUsername(ctx context.Context, username string) (*models.Users, error) {
	var user models.Users
	err := u.Db.WithContext(ctx).Preload("Bindings").Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *Users) FindOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	err := u.Db.WithContext(ctx).Where("slug = ?", slug).First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (u *Users) FindAccountsByBindings(ctx context.Context, platform string, externalIDs []string) (map[string]*models.Users, error) {
	result := make(map[string]*models.Users)
	if len(externalIDs) == 0 {
		return result, nil
	}

	var bindings []models.UserBinding
	err := u.Db.WithContext(ctx).
		Where("platform = ? AND external_id IN ?", platform, externalIDs).
		Find(&bindings).Error
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return result, nil
	}

	userIDs := make([]uint64, 0, len(bindings))
	for _, b := range bindings {
		userIDs = append(userIDs, b.UserID)
	}
	var users []models.Users
	if err := u.Db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint64]*models.Users, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	for _, b := range bindings {
		if user, ok := byID[b.UserID]; ok {
			result[b.ExternalID] = user
		}
	}
	return result, nil
}

func (u *Users) FindAccountsByUsernames(ctx context.Context, usernames []string) (map[string]*models.Users, error) {
	result := make(map[string]*models.Users)
	if len(usernames) == 0 {
		return result, nil
	}
	var users []models.Users
	if err := u.Db.WithContext(ctx).Where("username IN ?", usernames).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		result[users[i].Username] = &users[i]
	}
	return result, nil
}

// ListAccountsAfter 按 id 升序分批遍历账号
func (u *Users) ListAccountsAfter(ctx context.Context, afterID uint64, limit int) ([]models.Users, error) {
	var users []models.Users
	err := u.Db.WithContext(ctx).
		Preload("Bindings").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
