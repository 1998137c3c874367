package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"imweb_order_sync/internal/api/dto"
	"imweb_order_sync/internal/model"
)

// DefaultPageLimit 每次拉取的订单数
const DefaultPageLimit = 100

// OrderSyncConfig 同步配置
type OrderSyncConfig struct {
	SiteCode  string
	PageLimit int
	Location  *time.Location
}

// ==================== OrderSyncService ====================

// OrderSyncService 订单 -> 表格同步
// 台账先于存储表检查，写入存储表成功后再追加台账
type OrderSyncService struct {
	source OrderSource
	index  *SheetIndex
	store  *SheetStore
	cfg    OrderSyncConfig
	logger *zap.Logger
}

// NewOrderSyncService 创建同步服务
func NewOrderSyncService(source OrderSource, index *SheetIndex, store *SheetStore, cfg OrderSyncConfig, log *zap.Logger) *OrderSyncService {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	if cfg.Location == nil {
		cfg.Location = KST
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderSyncService{
		source: source,
		index:  index,
		store:  store,
		cfg:    cfg,
		logger: log,
	}
}

// Run 执行一轮同步
// 任一步失败立即返回；存储表写入成功但台账追加失败时，下一轮会按 D 列补记台账
func (s *OrderSyncService) Run(ctx context.Context) (*dto.SyncReport, error) {
	// 1. 台账
	ledger, err := s.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("已有订单号", zap.Int("count", len(ledger)))

	// 2. 拉取订单 (仅第一页)
	orders, err := s.source.FetchPage(ctx, s.cfg.SiteCode, 1, s.cfg.PageLimit)
	if err != nil {
		return nil, err
	}
	report := &dto.SyncReport{Fetched: len(orders)}

	// 3. 过滤
	batch := s.selectNew(orders, ledger)
	if len(batch) == 0 {
		report.Skipped = report.Fetched
		s.logger.Info("没有新订单 (重复或状态不满足)", zap.Int("fetched", report.Fetched))
		return report, nil
	}

	// 4. 按 D 列复核，已经在存储表里的只补台账
	rows, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	inStore := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if id := r.TrimmedOrderID(); id != "" {
			inStore[id] = struct{}{}
		}
	}

	var (
		toWrite   []model.SheetRow
		ledgerIDs []string
	)
	for _, o := range batch {
		ledgerIDs = append(ledgerIDs, o.OrderID)
		if _, ok := inStore[o.OrderID]; ok {
			report.Healed++
			s.logger.Warn("订单已在存储表但不在台账，补记台账", zap.String("order_id", o.OrderID))
			continue
		}
		toWrite = append(toWrite, BuildSheetRow(o, s.cfg.Location))
	}

	// 5. 一次写入存储表，再一次追加台账
	if len(toWrite) > 0 {
		report.StartRow = FirstFreeRow(rows)
		if _, err := s.store.WriteRows(ctx, report.StartRow, toWrite); err != nil {
			return nil, err
		}
		report.Written = len(toWrite)
	}
	if err := s.index.Append(ctx, ledgerIDs); err != nil {
		return nil, err
	}

	report.Skipped = report.Fetched - report.Written - report.Healed
	s.logger.Info("订单同步完成",
		zap.Int("fetched", report.Fetched),
		zap.Int("written", report.Written),
		zap.Int("healed", report.Healed),
		zap.Int("start_row", report.StartRow))
	return report, nil
}

// selectNew 状态白名单 + 台账去重，ledger 随接受的订单同步更新 (同页重复也会被过滤)
func (s *OrderSyncService) selectNew(orders []model.Order, ledger map[string]struct{}) []model.Order {
	var batch []model.Order
	for _, o := range orders {
		if !o.Syncable() {
			continue
		}
		if o.OrderID == "" {
			continue
		}
		if _, seen := ledger[o.OrderID]; seen {
			continue
		}
		ledger[o.OrderID] = struct{}{}
		batch = append(batch, o)
	}
	return batch
}
