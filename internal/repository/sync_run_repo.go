package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"imweb_order_sync/internal/model"
)

// ==================== 仓储接口 ====================

// SyncRunRepository 运行记录仓储接口
type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	GetByRunID(ctx context.Context, runID string) (*model.SyncRun, error)
	// ListRecent 按开始时间倒序
	ListRecent(ctx context.Context, limit int) ([]model.SyncRun, error)

	// 统计查询
	GetStats(ctx context.Context, since time.Time) (*SyncRunStats, error)

	// DeleteBefore 物理删除 before 之前开始的记录，返回删除条数
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ==================== 统计结构 ====================

// SyncRunStats 运行统计
type SyncRunStats struct {
	TotalRuns     int64 `json:"total_runs"`
	SuccessCount  int64 `json:"success_count"`
	DegradedCount int64 `json:"degraded_count"`
	FailedCount   int64 `json:"failed_count"`
	TotalWritten  int64 `json:"total_written"`
	TotalSent     int64 `json:"total_sent"`
}

// ==================== 仓储实现 ====================

type syncRunRepo struct {
	db *gorm.DB
}

// NewSyncRunRepository 创建运行记录仓储
func NewSyncRunRepository(db *gorm.DB) SyncRunRepository {
	return &syncRunRepo{db: db}
}

func (r *syncRunRepo) Create(ctx context.Context, run *model.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *syncRunRepo) GetByRunID(ctx context.Context, runID string) (*model.SyncRun, error) {
	var run model.SyncRun
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *syncRunRepo) ListRecent(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var runs []model.SyncRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (r *syncRunRepo) GetStats(ctx context.Context, since time.Time) (*SyncRunStats, error) {
	var stats SyncRunStats

	query := r.db.WithContext(ctx).Model(&model.SyncRun{})
	if !since.IsZero() {
		query = query.Where("started_at >= ?", since)
	}

	err := query.Select(`
		COUNT(*) as total_runs,
		COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) as success_count,
		COALESCE(SUM(CASE WHEN status = 'degraded' THEN 1 ELSE 0 END), 0) as degraded_count,
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed_count,
		COALESCE(SUM(written), 0) as total_written,
		COALESCE(SUM(sent), 0) as total_sent
	`).Scan(&stats).Error

	return &stats, err
}

func (r *syncRunRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("started_at < ?", before).
		Delete(&model.SyncRun{})
	return result.RowsAffected, result.Error
}
