package model

import "time"

// CredentialProviderImweb imweb OAuth 凭证
const CredentialProviderImweb = "imweb"

// Credential 第三方 OAuth 令牌
// 每个 Provider 一行，刷新后覆盖
type Credential struct {
	BaseModel
	Provider     string    `gorm:"size:32;uniqueIndex;not null" json:"provider"`
	AccessToken  string    `gorm:"type:text" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (Credential) TableName() string { return "credentials" }
