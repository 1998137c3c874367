package task

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TokenSource 令牌缓存 (service.TokenService)
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenTask 令牌保活
// 定期取一次令牌，临近过期时由令牌缓存自行刷新，避免 refresh token 长期不用失效
type TokenTask struct {
	tokens TokenSource
	cron   *cron.Cron
	spec   string
	logger *zap.Logger
}

func NewTokenTask(tokens TokenSource, spec string, log *zap.Logger) *TokenTask {
	if spec == "" {
		spec = "0 0/40 * * * *"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenTask{
		tokens: tokens,
		cron:   cron.New(cron.WithSeconds()), // 支持秒级控制
		spec:   spec,
		logger: log,
	}
}

// Start 启动定时任务
func (t *TokenTask) Start() error {
	if _, err := t.cron.AddFunc(t.spec, t.refreshJob); err != nil {
		return err
	}
	t.cron.Start()
	t.logger.Info("Token 保活任务已启动", zap.String("spec", t.spec))
	return nil
}

// Stop 停止任务
func (t *TokenTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
}

func (t *TokenTask) refreshJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := t.tokens.Token(ctx); err != nil {
		t.logger.Error("Token 保活失败", zap.Error(err))
		return
	}
	t.logger.Debug("Token 保活完成")
}
