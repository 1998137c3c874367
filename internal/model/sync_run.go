package model

import (
	"time"

	"gorm.io/datatypes"
)

// RunTrigger 运行的触发来源
type RunTrigger string

const (
	RunTriggerManual    RunTrigger = "manual"    // GET /orders
	RunTriggerScheduled RunTrigger = "scheduled" // 定时任务 / 外部调度器
	RunTriggerCLI       RunTrigger = "cli"
	RunTriggerDispatch  RunTrigger = "dispatch" // 仅发送通知
)

// RunStatus 运行结果
type RunStatus string

const (
	RunStatusSuccess  RunStatus = "success"
	RunStatusDegraded RunStatus = "degraded" // 同步成功，通知失败
	RunStatusFailed   RunStatus = "failed"
)

// SyncRun 一次同步/发送的运行记录
type SyncRun struct {
	BaseModel
	RunID      string     `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	Trigger    RunTrigger `gorm:"size:16;index" json:"trigger"`
	Status     RunStatus  `gorm:"size:16;index" json:"status"`
	Fetched    int        `json:"fetched"`
	Written    int        `json:"written"`
	Skipped    int        `json:"skipped"`
	Healed     int        `json:"healed"`
	Attempted  int        `json:"attempted"`
	Sent       int        `json:"sent"`
	ErrorMsg   string     `gorm:"type:text" json:"error_msg,omitempty"`
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`

	// 完整报告 (JSON)
	Report datatypes.JSON `json:"report,omitempty"`
}

func (SyncRun) TableName() string { return "sync_runs" }
