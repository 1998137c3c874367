package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"imweb_order_sync/internal/model"
	"imweb_order_sync/internal/repository"
	"imweb_order_sync/pkg/imweb"
	"imweb_order_sync/pkg/logger"
	"imweb_order_sync/pkg/net"
)

// TokenSkew 提前刷新的余量
const TokenSkew = 60 * time.Second

// 共享刷新的上限，与发起方的 ctx 无关
const refreshTimeout = 2 * time.Minute

// TokenConfig imweb OAuth 客户端配置
type TokenConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// SeedRefreshToken 库里没有凭证时使用的初始 refresh token
	SeedRefreshToken string
}

// TokenStatus 令牌状态 (不含令牌本身)
type TokenStatus struct {
	HasAccessToken  bool      `json:"has_access_token"`
	HasRefreshToken bool      `json:"has_refresh_token"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// TokenService imweb 访问令牌缓存
// 进程内只存在一份，通过注入共享；并发刷新合并为一次网络请求
type TokenService struct {
	cfg    TokenConfig
	client *net.Client
	repo   repository.CredentialRepository
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	group singleflight.Group
}

// NewTokenService 创建令牌服务，repo 可为 nil (不持久化)
func NewTokenService(cfg TokenConfig, client *net.Client, repo repository.CredentialRepository, log *zap.Logger) *TokenService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = imweb.DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenService{
		cfg:          cfg,
		client:       client,
		repo:         repo,
		logger:       log,
		now:          time.Now,
		refreshToken: cfg.SeedRefreshToken,
	}
}

// SetClock 替换时间源 (测试)
func (s *TokenService) SetClock(now func() time.Time) { s.now = now }

// Token 返回可用的访问令牌，必要时刷新
func (s *TokenService) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	// 刷新脱离发起方的取消，每个调用方只按自己的 ctx 放弃等待
	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		// 等锁期间可能已被其他调用方刷新
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(rctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			s.logger.Debug("复用并发刷新结果")
		}
		return res.Val.(string), nil
	}
}

// Invalidate 丢弃访问令牌，下次 Token 调用强制刷新
func (s *TokenService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.expiresAt = time.Time{}
}

// Seed 安装外部获取的 refresh token，并丢弃当前访问令牌
func (s *TokenService) Seed(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return &AuthError{Reason: "refresh token 为空"}
	}

	s.mu.Lock()
	old := s.refreshToken
	s.refreshToken = refreshToken
	s.accessToken = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	s.logger.Info("安装新的 refresh token",
		zap.String("old", logger.Mask(old)), zap.String("new", logger.Mask(refreshToken)))
	s.persist(ctx, "", refreshToken, time.Time{})
	return nil
}

// Reload 从凭证库重新加载，库中没有时回退到配置的初始 refresh token
func (s *TokenService) Reload(ctx context.Context) error {
	var cred *model.Credential
	if s.repo != nil {
		var err error
		cred, err = s.repo.Get(ctx, model.CredentialProviderImweb)
		if err != nil {
			return fmt.Errorf("加载凭证失败: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cred != nil && cred.RefreshToken != "" {
		s.refreshToken = cred.RefreshToken
		s.accessToken = cred.AccessToken
		s.expiresAt = cred.ExpiresAt
		s.logger.Info("已从凭证库加载令牌",
			zap.String("refresh_token", logger.Mask(cred.RefreshToken)),
			zap.Time("expires_at", cred.ExpiresAt))
		return nil
	}

	if s.cfg.SeedRefreshToken == "" {
		s.logger.Error("未配置 refresh token")
		return nil
	}
	s.refreshToken = s.cfg.SeedRefreshToken
	s.accessToken = ""
	s.expiresAt = time.Time{}
	s.logger.Info("使用配置的 refresh token 初始化",
		zap.String("refresh_token", logger.Mask(s.cfg.SeedRefreshToken)))
	return nil
}

// Status 当前令牌状态
func (s *TokenService) Status() TokenStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TokenStatus{
		HasAccessToken:  s.accessToken != "",
		HasRefreshToken: s.refreshToken != "",
		ExpiresAt:       s.expiresAt,
	}
}

// ==================== 内部 ====================

func (s *TokenService) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken != "" && s.now().Before(s.expiresAt.Add(-TokenSkew)) {
		return s.accessToken, true
	}
	return "", false
}

func (s *TokenService) refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		s.logger.Error("未配置 refresh token")
		return "", &AuthError{Reason: "未配置 refresh token"}
	}

	form := map[string]string{
		"grantType":    imweb.GrantTypeRefreshToken,
		"clientId":     s.cfg.ClientID,
		"clientSecret": s.cfg.ClientSecret,
		"redirectUri":  s.cfg.RedirectURI,
		"refreshToken": refreshToken,
	}
	s.logger.Debug("刷新访问令牌", zap.String("refresh_token", logger.Mask(refreshToken)))

	resp, err := s.client.Execute(ctx, "imweb.token", func(req *resty.Request) (*resty.Response, error) {
		return net.BuildFormRequest(req, form).Post(s.cfg.BaseURL + imweb.TokenPath)
	})
	if err != nil {
		var netErr *net.NetworkError
		if errors.As(err, &netErr) || ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("令牌刷新请求失败: %w", err)
	}

	if !resp.IsSuccess() {
		s.logger.Error("令牌刷新被拒绝", zap.Int("status", resp.StatusCode()), zap.String("body", net.Truncate(resp.String())))
		return "", &AuthError{
			Reason: fmt.Sprintf("刷新被拒绝 (HTTP %d)", resp.StatusCode()),
			Err:    &net.StatusError{StatusCode: resp.StatusCode(), Body: net.Truncate(resp.String())},
		}
	}

	var tr imweb.TokenResp
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", &AuthError{Reason: "令牌响应解析失败", Err: err}
	}
	if tr.StatusCode != 0 && tr.StatusCode != imweb.StatusOK {
		s.logger.Error("令牌刷新失败", zap.Int("status_code", tr.StatusCode), zap.String("body", net.Truncate(resp.String())))
		return "", &AuthError{Reason: fmt.Sprintf("envelope statusCode=%d", tr.StatusCode)}
	}
	if tr.Data.AccessToken == "" {
		s.logger.Error("响应缺少 accessToken", zap.String("body", net.Truncate(resp.String())))
		return "", &AuthError{Reason: "响应缺少 accessToken"}
	}

	newRefresh := tr.Data.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	expiresIn := time.Duration(tr.Data.ExpiresInSeconds()) * time.Second
	if expiresIn <= TokenSkew {
		// 只保留 refresh token，访问令牌不缓存
		s.mu.Lock()
		s.refreshToken = newRefresh
		s.accessToken = ""
		s.expiresAt = time.Time{}
		s.mu.Unlock()

		s.logger.Warn("访问令牌有效期过短",
			zap.Duration("expires_in", expiresIn), zap.Duration("skew", TokenSkew))
		s.persist(ctx, "", newRefresh, time.Time{})
		return "", &AuthError{Reason: fmt.Sprintf("访问令牌有效期过短 (%s)", expiresIn)}
	}
	expiresAt := s.now().Add(expiresIn)

	s.mu.Lock()
	s.accessToken = tr.Data.AccessToken
	s.refreshToken = newRefresh
	s.expiresAt = expiresAt
	s.mu.Unlock()

	s.logger.Info("访问令牌已刷新",
		zap.String("access_token", logger.Mask(tr.Data.AccessToken)),
		zap.String("refresh_token", logger.Mask(newRefresh)),
		zap.Time("expires_at", expiresAt))

	s.persist(ctx, tr.Data.AccessToken, newRefresh, expiresAt)
	return tr.Data.AccessToken, nil
}

// persist 持久化失败只记录日志，内存中的令牌照常使用
func (s *TokenService) persist(ctx context.Context, access, refresh string, expiresAt time.Time) {
	if s.repo == nil {
		return
	}
	err := s.repo.Save(ctx, &model.Credential{
		Provider:     model.CredentialProviderImweb,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		s.logger.Error("令牌持久化失败", zap.Error(err))
	}
}
