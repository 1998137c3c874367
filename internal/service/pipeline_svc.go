package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/model"
	"imweb_order_sync/internal/repository"
)

// AccessTokenSource 只需要取令牌的调用方
type AccessTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ==================== Pipeline ====================

// Pipeline 同步 + 发送的一次完整运行
// 同步失败即整轮失败；同步成功后发送失败只标记为降级
type Pipeline struct {
	tokens AccessTokenSource
	sync   *OrderSyncService
	notify *NotifyService // 未配置服务商时为 nil
	runs   repository.SyncRunRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewPipeline 创建流水线，notify 和 runs 可为 nil
func NewPipeline(tokens AccessTokenSource, sync *OrderSyncService, notify *NotifyService, runs repository.SyncRunRepository, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		tokens: tokens,
		sync:   sync,
		notify: notify,
		runs:   runs,
		logger: log,
		now:    time.Now,
	}
}

// Run 取令牌 -> 同步订单 -> 发送通知
func (p *Pipeline) Run(ctx context.Context, trigger model.RunTrigger) (*dto.RunReport, error) {
	report := p.start(trigger)
	log := p.logger.With(zap.String("run_id", report.RunID), zap.String("trigger", string(trigger)))
	log.Info("开始同步")

	if _, err := p.tokens.Token(ctx); err != nil {
		log.Error("获取访问令牌失败", zap.Error(err))
		p.finish(ctx, report, err)
		return report, err
	}

	syncReport, err := p.sync.Run(ctx)
	if err != nil {
		log.Error("订单同步失败", zap.Error(err))
		p.finish(ctx, report, err)
		return report, err
	}
	report.Sync = syncReport

	if p.notify != nil {
		dispatch, err := p.notify.Run(ctx)
		report.Dispatch = dispatch
		if err != nil {
			// 发送失败不影响同步结果
			report.Degraded = true
			report.NotifyError = err.Error()
			log.Error("自动发送 AlimTalk 失败", zap.Error(err))
		}
	}

	p.finish(ctx, report, nil)
	log.Info("同步结束", zap.Bool("degraded", report.Degraded))
	return report, nil
}

// DispatchOnly 只执行发送
func (p *Pipeline) DispatchOnly(ctx context.Context) (*dto.RunReport, error) {
	report := p.start(model.RunTriggerDispatch)
	if p.notify == nil {
		p.finish(ctx, report, ErrNotifyDisabled)
		return report, ErrNotifyDisabled
	}

	dispatch, err := p.notify.Run(ctx)
	report.Dispatch = dispatch
	p.finish(ctx, report, err)
	return report, err
}

// SendRow 外部触发的单行发送，不写运行记录
func (p *Pipeline) SendRow(ctx context.Context, req dto.WebhookInviteRequest) (*dto.NotifyResult, error) {
	if p.notify == nil {
		return nil, ErrNotifyDisabled
	}
	return p.notify.SendRow(ctx, req)
}

func (p *Pipeline) start(trigger model.RunTrigger) *dto.RunReport {
	return &dto.RunReport{
		RunID:     uuid.NewString(),
		Trigger:   string(trigger),
		StartedAt: p.now(),
	}
}

// finish 写运行记录，失败只记录日志
func (p *Pipeline) finish(ctx context.Context, report *dto.RunReport, runErr error) {
	report.FinishedAt = p.now()
	if p.runs == nil {
		return
	}

	run := &model.SyncRun{
		RunID:      report.RunID,
		Trigger:    model.RunTrigger(report.Trigger),
		Status:     model.RunStatusSuccess,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	switch {
	case runErr != nil:
		run.Status = model.RunStatusFailed
		run.ErrorMsg = runErr.Error()
	case report.Degraded:
		run.Status = model.RunStatusDegraded
		run.ErrorMsg = report.NotifyError
	}
	if s := report.Sync; s != nil {
		run.Fetched, run.Written, run.Skipped, run.Healed = s.Fetched, s.Written, s.Skipped, s.Healed
	}
	if d := report.Dispatch; d != nil {
		run.Attempted, run.Sent = d.Attempted, d.Sent
	}
	if raw, err := json.Marshal(report); err == nil {
		run.Report = datatypes.JSON(raw)
	}

	// 调用方取消时仍然写入
	if err := p.runs.Create(context.WithoutCancel(ctx), run); err != nil {
		p.logger.Error("运行记录写入失败", zap.String("run_id", report.RunID), zap.Error(err))
	}
}
