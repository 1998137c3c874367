package dto

import "time"

// ==================== 同步 / 发送报告 ====================

// SyncReport 一次订单同步的结果
type SyncReport struct {
	Fetched  int `json:"fetched"`
	Written  int `json:"written"`
	Skipped  int `json:"skipped"`
	Healed   int `json:"healed"`             // 已在存储表但漏记台账的订单
	StartRow int `json:"start_row,omitempty"` // 本次写入的起始行
}

// DispatchReport 一次通知发送的结果
type DispatchReport struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunReport 同步 + 发送的完整运行结果
type RunReport struct {
	RunID       string          `json:"run_id"`
	Trigger     string          `json:"trigger"`
	Sync        *SyncReport     `json:"sync,omitempty"`
	Dispatch    *DispatchReport `json:"dispatch,omitempty"`
	Degraded    bool            `json:"degraded"`
	NotifyError string          `json:"notify_error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// ==================== 通知消息 ====================

// NotifyMessage 单条通知
type NotifyMessage struct {
	Row     int    `json:"row"`
	OrderID string `json:"order_id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"` // 仅数字
	Link    string `json:"link"`  // B 列
}

// NotifyResult 服务商返回的单条结果
type NotifyResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

// ==================== 运行记录查询 ====================

// ListRunsRequest 运行记录列表请求
type ListRunsRequest struct {
	Limit int `form:"limit,default=20"`
}

// TokenReloadRequest 令牌重载请求，RefreshToken 为空时从凭证库重新加载
type TokenReloadRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// WebhookInviteRequest 外部触发的单行发送
// Phone、Link 为空时取表格中该行的 I、B 列
type WebhookInviteRequest struct {
	Row   int    `json:"row" binding:"required,min=2"`
	Phone string `json:"phone"`
	Link  string `json:"link"`
}
