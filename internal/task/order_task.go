package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/model"
)

// Runner 一轮同步/发送的执行者 (service.Pipeline)
type Runner interface {
	Run(ctx context.Context, trigger model.RunTrigger) (*dto.RunReport, error)
	DispatchOnly(ctx context.Context) (*dto.RunReport, error)
	SendRow(ctx context.Context, req dto.WebhookInviteRequest) (*dto.NotifyResult, error)
}

// ==================== OrderSyncTask 订单同步任务 ====================

// OrderSyncTask 定时 + 手动触发的订单同步
// 进程内同一时刻最多一轮，重叠的触发返回 ErrRunInProgress
type OrderSyncTask struct {
	runner  Runner
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	logger  *zap.Logger

	mu         sync.Mutex // 运行锁，只做 TryLock
	runOnStart bool
}

// NewOrderSyncTask 创建订单同步任务
func NewOrderSyncTask(runner Runner, spec string, timeout time.Duration, log *zap.Logger) *OrderSyncTask {
	if spec == "" {
		spec = "0 */10 * * * *"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderSyncTask{
		runner:     runner,
		cron:       cron.New(cron.WithSeconds()),
		spec:       spec,
		timeout:    timeout,
		logger:     log,
		runOnStart: true,
	}
}

// SetRunOnStart 启动时是否立即执行一轮
func (t *OrderSyncTask) SetRunOnStart(v bool) { t.runOnStart = v }

// Start 启动定时任务
func (t *OrderSyncTask) Start() error {
	if _, err := t.cron.AddFunc(t.spec, t.runScheduled); err != nil {
		return err
	}

	// 首次执行
	if t.runOnStart {
		go func() {
			t.logger.Info("执行首次订单同步")
			t.runScheduled()
		}()
	}

	t.cron.Start()
	t.logger.Info("订单同步任务已启动", zap.String("spec", t.spec))
	return nil
}

// Stop 停止任务，等待正在执行的一轮结束
func (t *OrderSyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.logger.Info("订单同步任务已停止")
}

func (t *OrderSyncTask) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	_, err := t.RunNow(ctx, model.RunTriggerScheduled)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		t.logger.Info("上一轮仍在执行，跳过本次调度")
	default:
		t.logger.Error("定时同步失败", zap.Error(err))
	}
}

// ==================== 手动触发 ====================

// RunNow 同步执行一轮
func (t *OrderSyncTask) RunNow(ctx context.Context, trigger model.RunTrigger) (*dto.RunReport, error) {
	if !t.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer t.mu.Unlock()
	return t.runner.Run(ctx, trigger)
}

// DispatchNow 只执行发送，与同步共用运行锁
func (t *OrderSyncTask) DispatchNow(ctx context.Context) (*dto.RunReport, error) {
	if !t.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer t.mu.Unlock()
	return t.runner.DispatchOnly(ctx)
}

// SendRowNow 单行发送，与整轮发送共用运行锁
func (t *OrderSyncTask) SendRowNow(ctx context.Context, req dto.WebhookInviteRequest) (*dto.NotifyResult, error) {
	if !t.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer t.mu.Unlock()
	return t.runner.SendRow(ctx, req)
}
