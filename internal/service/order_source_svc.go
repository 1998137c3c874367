package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"imweb_order_sync/internal/model"
	"imweb_order_sync/pkg/imweb"
	"imweb_order_sync/pkg/net"
)

// ==================== 依赖接口 ====================

// TokenProvider 访问令牌提供者
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// OrderSource 上游订单来源
type OrderSource interface {
	FetchPage(ctx context.Context, siteCode string, page, limit int) ([]model.Order, error)
}

// ==================== ImwebOrderSource ====================

// ImwebOrderSource imweb Open API 订单来源
type ImwebOrderSource struct {
	baseURL string
	client  *net.Client
	tokens  TokenProvider
	loc     *time.Location
	logger  *zap.Logger
}

// NewImwebOrderSource 创建订单来源
func NewImwebOrderSource(baseURL string, client *net.Client, tokens TokenProvider, loc *time.Location, log *zap.Logger) *ImwebOrderSource {
	if baseURL == "" {
		baseURL = imweb.DefaultBaseURL
	}
	if loc == nil {
		loc = KST
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ImwebOrderSource{
		baseURL: baseURL,
		client:  client,
		tokens:  tokens,
		loc:     loc,
		logger:  log,
	}
}

// FetchPage 拉取一页订单
// 401/403 时丢弃令牌重新获取后再试一次，仍被拒绝返回 AuthError
func (s *ImwebOrderSource) FetchPage(ctx context.Context, siteCode string, page, limit int) ([]model.Order, error) {
	params := map[string]string{
		"siteCode": siteCode,
		"page":     strconv.Itoa(page),
		"limit":    strconv.Itoa(limit),
	}

	for attempt := 1; ; attempt++ {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Execute(ctx, "imweb.orders", func(req *resty.Request) (*resty.Response, error) {
			return net.BuildBearerRequest(req, token).
				SetQueryParams(params).
				Get(s.baseURL + imweb.OrdersPath)
		})
		if err != nil {
			var netErr *net.NetworkError
			if errors.As(err, &netErr) || ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("订单请求失败: %w", err)
		}

		s.logger.Debug("订单响应",
			zap.Int("status", resp.StatusCode()), zap.String("body", net.Truncate(resp.String())))

		if code := resp.StatusCode(); code == http.StatusUnauthorized || code == http.StatusForbidden {
			if attempt == 1 {
				s.logger.Warn("访问令牌被拒绝，重新获取后重试", zap.Int("status", code))
				s.tokens.Invalidate()
				continue
			}
			return nil, &AuthError{
				Reason: fmt.Sprintf("订单接口拒绝授权 (HTTP %d)", code),
				Err:    &net.StatusError{StatusCode: code, Body: net.Truncate(resp.String())},
			}
		}
		if !resp.IsSuccess() {
			return nil, &UpstreamError{StatusCode: resp.StatusCode(), Payload: resp.String()}
		}

		return s.decode(resp.Body())
	}
}

func (s *ImwebOrderSource) decode(body []byte) ([]model.Order, error) {
	var parsed imweb.OrdersResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("订单响应解析失败: %w", err)
	}
	if parsed.StatusCode != imweb.StatusOK {
		s.logger.Error("订单查询失败", zap.Int("status_code", parsed.StatusCode), zap.String("body", net.Truncate(string(body))))
		return nil, &UpstreamError{StatusCode: parsed.StatusCode, Payload: string(body)}
	}

	orders := make([]model.Order, 0, len(parsed.Data.List))
	for _, item := range parsed.Data.List {
		o := ToOrderModel(item, s.loc)
		if raw := item.FirstPayment().PaymentCompleteTime; raw != "" && o.PaymentCompletedAt == nil {
			s.logger.Warn("支付完成时间解析失败", zap.String("order_id", o.OrderID), zap.String("raw", raw))
		}
		orders = append(orders, o)
	}
	s.logger.Info("收到订单", zap.Int("count", len(orders)))
	return orders, nil
}
