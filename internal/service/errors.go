package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotifyDisabled 未配置通知服务商
	ErrNotifyDisabled = errors.New("未配置通知服务商")
	// ErrAlreadyNotified C 列已有发送标记
	ErrAlreadyNotified = errors.New("该行已发送")
	// ErrNoPhone 请求与表格中都没有电话号码
	ErrNoPhone = errors.New("电话号码为空")
)

// ==================== 业务错误 ====================

// AuthError 上游拒绝授权 (未配置 refresh token、刷新被拒、重新取令牌后仍 401/403)
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("授权失败: %s: %v", e.Reason, e.Err)
	}
	return "授权失败: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError 上游返回的 envelope statusCode 不是成功值
// Payload 保留完整响应体
type UpstreamError struct {
	StatusCode int
	Payload    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("上游返回失败 statusCode=%d: %s", e.StatusCode, e.Payload)
}

// StoreError 表格读写失败
type StoreError struct {
	Op    string
	Range string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("表格%s失败 (%s): %v", e.Op, e.Range, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DispatchError 通知发送失败 (abort 策略下中止本轮)
type DispatchError struct {
	Row     int
	OrderID string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("第 %d 行 (订单 %s) 通知发送失败: %v", e.Row, e.OrderID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// 表格操作名
const (
	StoreOpRead   = "读取"
	StoreOpWrite  = "写入"
	StoreOpAppend = "追加"
)
