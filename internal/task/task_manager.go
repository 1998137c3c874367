package task

import (
	"time"

	"go.uber.org/zap"
)

// ==================== TaskManager 定时任务管理器 ====================

// TaskManager 统一管理订单同步与令牌保活任务
type TaskManager struct {
	orderTask      *OrderSyncTask
	orderScheduled bool
	tokenTask      *TokenTask
	retentionTask  *RetentionTask
	logger         *zap.Logger
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	// 订单同步
	OrderEnabled bool
	OrderSpec    string
	OrderTimeout time.Duration
	RunOnStart   bool

	// Token 保活，Spec 为空时不启动
	TokenSpec string

	// 运行记录清理，Spec 为空时不启动
	RetentionSpec string
	Retention     time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		OrderEnabled: true,
		OrderSpec:    "0 */10 * * * *",
		OrderTimeout: 10 * time.Minute,
		RunOnStart:   true,
		TokenSpec:    "0 0/40 * * * *",

		RetentionSpec: "0 30 4 * * *",
		Retention:     30 * 24 * time.Hour,
	}
}

// NewTaskManager 创建任务管理器
// 定时同步关闭时仍会创建订单任务，供手动触发共用运行锁; runs 为 nil 时不清理运行记录
func NewTaskManager(runner Runner, tokens TokenSource, runs RunPruner, cfg *TaskManagerConfig, log *zap.Logger) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	tm := &TaskManager{orderScheduled: cfg.OrderEnabled, logger: log}

	tm.orderTask = NewOrderSyncTask(runner, cfg.OrderSpec, cfg.OrderTimeout, log.Named("order_task"))
	tm.orderTask.SetRunOnStart(cfg.RunOnStart)

	if cfg.TokenSpec != "" && tokens != nil {
		tm.tokenTask = NewTokenTask(tokens, cfg.TokenSpec, log.Named("token_task"))
	}
	if cfg.RetentionSpec != "" && runs != nil {
		tm.retentionTask = NewRetentionTask(runs, cfg.RetentionSpec, cfg.Retention, log.Named("retention_task"))
	}
	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() error {
	tm.logger.Info("正在启动定时任务...")

	if tm.orderScheduled {
		if err := tm.orderTask.Start(); err != nil {
			return err
		}
	}
	if tm.tokenTask != nil {
		if err := tm.tokenTask.Start(); err != nil {
			return err
		}
	}
	if tm.retentionTask != nil {
		if err := tm.retentionTask.Start(); err != nil {
			return err
		}
	}

	tm.logger.Info("定时任务已全部启动")
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	if tm.orderScheduled {
		tm.orderTask.Stop()
	}
	if tm.tokenTask != nil {
		tm.tokenTask.Stop()
	}
	if tm.retentionTask != nil {
		tm.retentionTask.Stop()
	}
	tm.logger.Info("定时任务已全部停止")
}

// Orders 订单同步任务 (手动触发入口)
func (tm *TaskManager) Orders() *OrderSyncTask { return tm.orderTask }

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"order_schedule": tm.orderScheduled,
		"token":          tm.tokenTask != nil,
		"retention":      tm.retentionTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrRunInProgress TaskError = "sync run already in progress"
)
