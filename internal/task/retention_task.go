package task

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunPruner 运行记录仓储 (repository.SyncRunRepository)
type RunPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RetentionTask 运行记录清理任务
// 按固定周期删除超过保留期的 sync_runs 记录
type RetentionTask struct {
	runs      RunPruner
	cron      *cron.Cron
	spec      string
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewRetentionTask 创建清理任务，retention <= 0 时默认保留 30 天
func NewRetentionTask(runs RunPruner, spec string, retention time.Duration, log *zap.Logger) *RetentionTask {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RetentionTask{
		runs:      runs,
		cron:      cron.New(cron.WithSeconds()),
		spec:      spec,
		retention: retention,
		now:       time.Now,
		logger:    log,
	}
}

// Start 启动定时任务
func (t *RetentionTask) Start() error {
	if _, err := t.cron.AddFunc(t.spec, t.pruneJob); err != nil {
		return err
	}
	t.cron.Start()
	t.logger.Info("运行记录清理任务已启动",
		zap.String("spec", t.spec), zap.Duration("retention", t.retention))
	return nil
}

// Stop 停止任务
func (t *RetentionTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
}

func (t *RetentionTask) pruneJob() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	before := t.now().Add(-t.retention)
	n, err := t.runs.DeleteBefore(ctx, before)
	if err != nil {
		t.logger.Error("清理运行记录失败", zap.Error(err))
		return
	}
	if n > 0 {
		t.logger.Info("已清理过期运行记录", zap.Int64("deleted", n), zap.Time("before", before))
	}
}
