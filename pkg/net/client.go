package net

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// 错误响应体在日志/错误中保留的最大长度
const maxBodyLen = 600

// Client 带重试的 HTTP 客户端 (imweb / Aligo / DirectSend 共用)
type Client struct {
	http    *resty.Client
	retrier *Retrier
}

// NewClient 创建客户端
// timeout: 单次调用超时，约束每一次阻塞请求而不是整轮同步
func NewClient(timeout time.Duration, retrier *Retrier) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "imweb-order-sync/1.0")

	return &Client{http: rc, retrier: retrier}
}

// WithPolicy 复制一个使用不同重试策略的客户端，底层连接池共用
func (c *Client) WithPolicy(policy RetryPolicy) *Client {
	return &Client{http: c.http, retrier: c.retrier.WithPolicy(policy)}
}

// Execute 执行请求 (自动处理瞬时故障重试)
// send 每次尝试都会拿到一个新的 *resty.Request，负责设置参数并发出请求
// 终止性状态码 (如 400/401/404) 原样返回响应，由调用方决定如何处理
func (c *Client) Execute(ctx context.Context, label string, send func(req *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	var out *resty.Response
	err := c.retrier.Do(ctx, label, func(ctx context.Context) error {
		resp, err := send(c.http.R().SetContext(ctx))
		if err != nil {
			return err
		}
		if IsTransientStatus(resp.StatusCode()) {
			return &StatusError{StatusCode: resp.StatusCode(), Body: Truncate(resp.String())}
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Truncate 截断过长的响应体
func Truncate(s string) string {
	if len(s) <= maxBodyLen {
		return s
	}
	return s[:maxBodyLen] + "..."
}
