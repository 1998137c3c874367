package model

import "fmt"

// DispatchPolicy 单条通知发送失败后的处理方式
type DispatchPolicy string

const (
	// DispatchPolicyAbort 停止遍历，写回已成功的标记后返回错误
	DispatchPolicyAbort DispatchPolicy = "abort"
	// DispatchPolicyContinue 记录日志后继续处理后续行
	DispatchPolicyContinue DispatchPolicy = "continue"
)

// ParseDispatchPolicy 空串按 continue 处理
func ParseDispatchPolicy(s string) (DispatchPolicy, error) {
	switch DispatchPolicy(s) {
	case DispatchPolicyAbort:
		return DispatchPolicyAbort, nil
	case "", DispatchPolicyContinue:
		return DispatchPolicyContinue, nil
	}
	return "", fmt.Errorf("未知的发送失败策略: %q", s)
}

// NotifyProvider 通知服务商
type NotifyProvider string

const (
	NotifyProviderAligo      NotifyProvider = "aligo"
	NotifyProviderDirectSend NotifyProvider = "directsend"
)
