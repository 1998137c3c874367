package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imweb_order_sync/internal/model"
)

// ==================== 仓储接口 ====================

// CredentialRepository OAuth 凭证仓储接口
type CredentialRepository interface {
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, provider string) (*model.Credential, error)
	// Save 按 provider 覆盖写入
	Save(ctx context.Context, cred *model.Credential) error
}

// ==================== 仓储实现 ====================

type credentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepository 创建凭证仓储
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) Get(ctx context.Context, provider string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepo) Save(ctx context.Context, cred *model.Credential) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(cred).Error
}
