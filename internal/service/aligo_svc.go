package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/pkg/alimtalk"
	"imweb_order_sync/pkg/net"
)

// AligoConfig Aligo AlimTalk 配置
type AligoConfig struct {
	BaseURL   string
	APIKey    string
	UserID    string
	SenderKey string
	TplCode   string
	Sender    string
	Subject   string
	// Emtitle 强调型模板标题，可为空
	Emtitle string
	// Message 审核通过的模板原文，支持 #{name} #{link} #{order_no} 占位
	Message    string
	ButtonName string
	// ButtonURL B 列没有链接时使用
	ButtonURL string
	TestMode  bool
}

// AligoSender Aligo 发送实现
type AligoSender struct {
	cfg    AligoConfig
	client *net.Client
	logger *zap.Logger
}

// NewAligoSender 创建 Aligo 发送器
func NewAligoSender(cfg AligoConfig, client *net.Client, log *zap.Logger) *AligoSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = alimtalk.AligoBaseURL
	}
	if cfg.ButtonName == "" {
		cfg.ButtonName = "바로가기"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AligoSender{cfg: cfg, client: client, logger: log}
}

func (s *AligoSender) Name() string { return "aligo" }

// Send 单条发送
func (s *AligoSender) Send(ctx context.Context, msg dto.NotifyMessage) (*dto.NotifyResult, error) {
	form, err := s.buildForm(msg)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Aligo 请求", zap.Int("row", msg.Row), zap.String("tpl_code", s.cfg.TplCode))

	resp, err := s.client.Execute(ctx, "aligo.send", func(req *resty.Request) (*resty.Response, error) {
		return net.BuildFormRequest(req, form).Post(s.cfg.BaseURL + alimtalk.AligoSendPath)
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &net.StatusError{StatusCode: resp.StatusCode(), Body: net.Truncate(resp.String())}
	}

	var ar alimtalk.AligoResp
	if err := json.Unmarshal(resp.Body(), &ar); err != nil {
		return &dto.NotifyResult{Success: false, Message: "响应解析失败", Raw: net.Truncate(resp.String())}, nil
	}

	code := ar.ResultCode.Value
	if code == "" {
		code = ar.Code.Value
	}
	res := &dto.NotifyResult{
		Success: ar.Success(),
		Code:    code,
		Message: ar.Message,
		Raw:     net.Truncate(resp.String()),
	}
	s.logger.Debug("Aligo 响应", zap.Int("row", msg.Row), zap.Bool("success", res.Success), zap.String("raw", res.Raw))
	return res, nil
}

// SendBatch 逐条调用单发接口
func (s *AligoSender) SendBatch(ctx context.Context, msgs []dto.NotifyMessage) ([]dto.NotifyResult, error) {
	results := make([]dto.NotifyResult, 0, len(msgs))
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.Send(ctx, msg)
		if err != nil {
			results = append(results, dto.NotifyResult{Success: false, Message: err.Error()})
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

func (s *AligoSender) buildForm(msg dto.NotifyMessage) (map[string]string, error) {
	if msg.Phone == "" {
		return nil, errors.New("收件人号码为空")
	}
	form := map[string]string{
		"apikey":     s.cfg.APIKey,
		"userid":     s.cfg.UserID,
		"senderkey":  s.cfg.SenderKey,
		"tpl_code":   s.cfg.TplCode,
		"sender":     s.cfg.Sender,
		"receiver_1": msg.Phone,
		"subject_1":  s.cfg.Subject,
		"message_1":  RenderTemplate(s.cfg.Message, msg),
	}
	if msg.Name != "" {
		form["recvname_1"] = msg.Name
	}
	if s.cfg.Emtitle != "" {
		form["emtitle_1"] = s.cfg.Emtitle
	}

	link := msg.Link
	if link == "" {
		link = s.cfg.ButtonURL
	}
	if link != "" {
		btn, err := json.Marshal(alimtalk.NewWebLinkButton(s.cfg.ButtonName, link))
		if err != nil {
			return nil, fmt.Errorf("按钮序列化失败: %w", err)
		}
		form["button_1"] = string(btn)
	}
	if s.cfg.TestMode {
		form["testMode"] = "Y"
	}
	return form, nil
}

// RenderTemplate 替换模板占位符
func RenderTemplate(tpl string, msg dto.NotifyMessage) string {
	return strings.NewReplacer(
		"#{name}", msg.Name,
		"#{link}", msg.Link,
		"#{order_no}", msg.OrderID,
	).Replace(tpl)
}
