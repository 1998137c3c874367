package service

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/pkg/alimtalk"
	"imweb_order_sync/pkg/net"
)

// DirectSendConfig DirectSend 配置
type DirectSendConfig struct {
	BaseURL    string
	Username   string
	APIKey     string
	PlusID     string
	TemplateNo string
}

// DirectSendSender DirectSend kakao_notice 发送实现
// 一次请求最多 100 个收件人，结果按整批判定
type DirectSendSender struct {
	cfg    DirectSendConfig
	client *net.Client
	logger *zap.Logger
}

// NewDirectSendSender 创建 DirectSend 发送器
func NewDirectSendSender(cfg DirectSendConfig, client *net.Client, log *zap.Logger) *DirectSendSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = alimtalk.DirectSendBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectSendSender{cfg: cfg, client: client, logger: log}
}

func (s *DirectSendSender) Name() string { return "directsend" }

func (s *DirectSendSender) Send(ctx context.Context, msg dto.NotifyMessage) (*dto.NotifyResult, error) {
	return s.post(ctx, []dto.NotifyMessage{msg})
}

// SendBatch 按 100 个一批发送
func (s *DirectSendSender) SendBatch(ctx context.Context, msgs []dto.NotifyMessage) ([]dto.NotifyResult, error) {
	results := make([]dto.NotifyResult, 0, len(msgs))
	for start := 0; start < len(msgs); start += alimtalk.DirectSendMaxReceivers {
		chunk := msgs[start:min(start+alimtalk.DirectSendMaxReceivers, len(msgs))]

		res, err := s.post(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			res = &dto.NotifyResult{Success: false, Message: err.Error()}
		}
		for range chunk {
			results = append(results, *res)
		}
	}
	return results, nil
}

func (s *DirectSendSender) post(ctx context.Context, msgs []dto.NotifyMessage) (*dto.NotifyResult, error) {
	body := alimtalk.DirectSendReq{
		Username:       s.cfg.Username,
		Key:            s.cfg.APIKey,
		KakaoPlusID:    s.cfg.PlusID,
		UserTemplateNo: s.cfg.TemplateNo,
	}
	for _, m := range msgs {
		body.Receiver = append(body.Receiver, alimtalk.DirectSendReceiver{
			Name:   m.Name,
			Mobile: m.Phone,
			Note1:  m.Link,
			Note2:  m.OrderID,
		})
	}

	resp, err := s.client.Execute(ctx, "directsend.kakao_notice", func(req *resty.Request) (*resty.Response, error) {
		return net.BuildJSONRequest(req, body).
			SetHeader("Cache-Control", "no-cache").
			Post(s.cfg.BaseURL + alimtalk.DirectSendNoticePath)
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &net.StatusError{StatusCode: resp.StatusCode(), Body: net.Truncate(resp.String())}
	}

	var dr alimtalk.DirectSendResp
	if err := json.Unmarshal(resp.Body(), &dr); err != nil {
		return &dto.NotifyResult{Success: false, Message: "响应解析失败", Raw: net.Truncate(resp.String())}, nil
	}
	res := &dto.NotifyResult{
		Success: dr.Success(),
		Code:    dr.Status.Value,
		Message: dr.Msg,
		Raw:     net.Truncate(resp.String()),
	}
	s.logger.Debug("DirectSend 响应", zap.Int("receivers", len(msgs)), zap.Bool("success", res.Success), zap.String("raw", res.Raw))
	return res, nil
}
