package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/model"
)

// ==================== 依赖接口 ====================

// Sender AlimTalk 发送服务商
// Send 的 error 表示请求本身失败；服务商拒绝时返回 Success=false 的结果
type Sender interface {
	Name() string
	Send(ctx context.Context, msg dto.NotifyMessage) (*dto.NotifyResult, error)
	// SendBatch 结果与 msgs 一一对应
	SendBatch(ctx context.Context, msgs []dto.NotifyMessage) ([]dto.NotifyResult, error)
}

// NotifyConfig 发送配置
type NotifyConfig struct {
	Policy model.DispatchPolicy
	// BatchSize >1 时按批调用 SendBatch，否则逐行 Send
	BatchSize int
}

// ==================== NotifyService ====================

// NotifyService 逐行发送 AlimTalk 并回写 C 列标记
type NotifyService struct {
	store  *SheetStore
	sender Sender
	cfg    NotifyConfig
	logger *zap.Logger
}

// NewNotifyService 创建通知服务
func NewNotifyService(store *SheetStore, sender Sender, cfg NotifyConfig, log *zap.Logger) *NotifyService {
	if cfg.Policy == "" {
		cfg.Policy = model.DispatchPolicyContinue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NotifyService{store: store, sender: sender, cfg: cfg, logger: log}
}

// Run 执行一轮发送
// abort 策略下遇到第一条失败即停止，已成功的标记照常写回，返回 DispatchError
func (s *NotifyService) Run(ctx context.Context) (*dto.DispatchReport, error) {
	rows, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	// 已发送的订单号
	notified := make(map[string]struct{})
	for _, r := range rows {
		if r.IsNotified() {
			notified[r.TrimmedOrderID()] = struct{}{}
		}
	}

	report := &dto.DispatchReport{}
	var (
		marks    []int
		abortErr error
	)
	if s.cfg.BatchSize > 1 {
		marks, abortErr = s.dispatchBatches(ctx, rows, notified, report)
	} else {
		marks, abortErr = s.dispatchRows(ctx, rows, notified, report)
	}

	if err := s.store.MarkNotified(ctx, marks); err != nil {
		if abortErr != nil {
			s.logger.Error("发送已中止", zap.Error(abortErr))
		}
		return report, err
	}

	s.logger.Info("AlimTalk 发送完成",
		zap.String("provider", s.sender.Name()),
		zap.Int("attempted", report.Attempted),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, abortErr
}

// SendRow 发送指定的一行，成功后写 C 列标记
// 已有标记的行返回 ErrAlreadyNotified，不会重复发送
func (s *NotifyService) SendRow(ctx context.Context, req dto.WebhookInviteRequest) (*dto.NotifyResult, error) {
	r, err := s.store.ReadRow(ctx, req.Row)
	if err != nil {
		return nil, err
	}
	if r.IsNotified() {
		s.logger.Info("跳过", zap.Int("row", req.Row), zap.String("reason", "已发送"))
		return nil, ErrAlreadyNotified
	}

	phone := model.DigitsOnly(req.Phone)
	if phone == "" {
		phone = r.PhoneDigits()
	}
	if phone == "" {
		return nil, ErrNoPhone
	}
	link := strings.TrimSpace(req.Link)
	if link == "" {
		link = r.Link
	}
	msg := dto.NotifyMessage{
		Row:     req.Row,
		OrderID: r.TrimmedOrderID(),
		Name:    r.BuyerName,
		Phone:   phone,
		Link:    link,
	}

	s.logger.Info("发送 AlimTalk", zap.Int("row", msg.Row), zap.String("order_id", msg.OrderID), zap.String("phone", msg.Phone))
	res, err := s.sender.Send(ctx, msg)
	if failure := sendFailure(res, err); failure != nil {
		s.logger.Error("发送失败", zap.Int("row", msg.Row), zap.String("order_id", msg.OrderID), zap.Error(failure))
		return res, &DispatchError{Row: msg.Row, OrderID: msg.OrderID, Err: failure}
	}

	if err := s.store.MarkNotified(ctx, []int{msg.Row}); err != nil {
		return res, err
	}
	return res, nil
}

// eligible 判断单行是否需要发送，不需要时返回原因
func (s *NotifyService) eligible(r model.SheetRow, notified map[string]struct{}) (dto.NotifyMessage, string) {
	if r.IsNotified() {
		return dto.NotifyMessage{}, "已发送"
	}
	id := r.TrimmedOrderID()
	if id == "" {
		return dto.NotifyMessage{}, "订单号为空"
	}
	if _, ok := notified[id]; ok {
		return dto.NotifyMessage{}, "同一订单已发送"
	}
	if r.StatusLabel != model.StatusLabelPaid {
		return dto.NotifyMessage{}, "状态不是" + model.StatusLabelPaid
	}
	phone := r.PhoneDigits()
	if phone == "" {
		return dto.NotifyMessage{}, "电话号码为空"
	}
	return dto.NotifyMessage{
		Row:     r.Row,
		OrderID: id,
		Name:    r.BuyerName,
		Phone:   phone,
		Link:    r.Link,
	}, ""
}

func (s *NotifyService) dispatchRows(ctx context.Context, rows []model.SheetRow, notified map[string]struct{}, report *dto.DispatchReport) ([]int, error) {
	var marks []int
	for _, r := range rows {
		msg, reason := s.eligible(r, notified)
		if reason != "" {
			report.Skipped++
			if reason == "电话号码为空" {
				s.logger.Warn("跳过", zap.Int("row", r.Row), zap.String("order_id", r.TrimmedOrderID()), zap.String("reason", reason))
			}
			continue
		}

		report.Attempted++
		s.logger.Info("发送 AlimTalk", zap.Int("row", msg.Row), zap.String("order_id", msg.OrderID), zap.String("phone", msg.Phone))
		res, err := s.sender.Send(ctx, msg)
		if failure := sendFailure(res, err); failure != nil {
			report.Failed++
			s.logger.Error("发送失败", zap.Int("row", msg.Row), zap.String("order_id", msg.OrderID), zap.Error(failure))
			if s.cfg.Policy == model.DispatchPolicyAbort || ctx.Err() != nil {
				return marks, &DispatchError{Row: msg.Row, OrderID: msg.OrderID, Err: failure}
			}
			continue
		}

		report.Sent++
		marks = append(marks, msg.Row)
		notified[msg.OrderID] = struct{}{}
	}
	return marks, nil
}

func (s *NotifyService) dispatchBatches(ctx context.Context, rows []model.SheetRow, notified map[string]struct{}, report *dto.DispatchReport) ([]int, error) {
	// 先收集候选行，同一订单只取第一行
	var pending []dto.NotifyMessage
	queued := make(map[string]struct{})
	for _, r := range rows {
		msg, reason := s.eligible(r, notified)
		if reason == "" {
			if _, dup := queued[msg.OrderID]; dup {
				reason = "同一订单已排队"
			}
		}
		if reason != "" {
			report.Skipped++
			continue
		}
		queued[msg.OrderID] = struct{}{}
		pending = append(pending, msg)
	}

	var marks []int
	for start := 0; start < len(pending); start += s.cfg.BatchSize {
		chunk := pending[start:min(start+s.cfg.BatchSize, len(pending))]
		report.Attempted += len(chunk)

		results, err := s.sender.SendBatch(ctx, chunk)
		if err == nil && len(results) != len(chunk) {
			err = fmt.Errorf("批量结果数量不符: got %d, want %d", len(results), len(chunk))
		}

		var firstErr *DispatchError
		for k, msg := range chunk {
			var res *dto.NotifyResult
			if err == nil {
				res = &results[k]
			}
			if failure := sendFailure(res, err); failure != nil {
				report.Failed++
				if firstErr == nil {
					firstErr = &DispatchError{Row: msg.Row, OrderID: msg.OrderID, Err: failure}
				}
				continue
			}
			report.Sent++
			marks = append(marks, msg.Row)
			notified[msg.OrderID] = struct{}{}
		}

		if firstErr != nil {
			s.logger.Error("批量发送存在失败", zap.Int("row", firstErr.Row), zap.Error(firstErr.Err))
			if s.cfg.Policy == model.DispatchPolicyAbort || ctx.Err() != nil {
				return marks, firstErr
			}
		}
	}
	return marks, nil
}

// ErrProviderRejected 服务商返回失败结果
var ErrProviderRejected = errors.New("服务商拒绝发送")

func sendFailure(res *dto.NotifyResult, err error) error {
	if err != nil {
		return err
	}
	if res == nil {
		return ErrProviderRejected
	}
	if !res.Success {
		return fmt.Errorf("%w: code=%s %s", ErrProviderRejected, res.Code, res.Message)
	}
	return nil
}
