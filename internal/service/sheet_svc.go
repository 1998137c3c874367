package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"imweb_order_sync/internal/model"
	"imweb_order_sync/pkg/gsheet"
)

// 默认工作表
const (
	DefaultStoreTab  = "통합시트"
	DefaultLedgerTab = "주문번호"

	storeFirstCol = "A"
	storeLastCol  = "O"
	notifiedCol   = "C"
	ledgerCol     = "A"
)

// ==================== SheetIndex 台账 ====================

// SheetIndex 已写入订单号台账 (A 列，每个写入的订单一行)
type SheetIndex struct {
	values gsheet.Values
	tab    string
	logger *zap.Logger
}

// NewSheetIndex 创建台账
func NewSheetIndex(values gsheet.Values, tab string, log *zap.Logger) *SheetIndex {
	if tab == "" {
		tab = DefaultLedgerTab
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SheetIndex{values: values, tab: tab, logger: log}
}

// Load 读取全部订单号 (去空白，忽略空单元格)
func (i *SheetIndex) Load(ctx context.Context) (map[string]struct{}, error) {
	rng := gsheet.CellRange(i.tab, ledgerCol, model.FirstDataRow, ledgerCol, 0)
	rows, err := i.values.Get(ctx, rng)
	if err != nil {
		return nil, &StoreError{Op: StoreOpRead, Range: rng, Err: err}
	}

	set := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if id := strings.TrimSpace(row[0]); id != "" {
			set[id] = struct{}{}
		}
	}
	i.logger.Debug("加载台账", zap.Int("count", len(set)))
	return set, nil
}

// Append 一次追加多个订单号
func (i *SheetIndex) Append(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rng := gsheet.CellRange(i.tab, ledgerCol, 0, ledgerCol, 0)
	values := make([][]interface{}, len(ids))
	for k, id := range ids {
		values[k] = []interface{}{id}
	}
	if err := i.values.Append(ctx, rng, values); err != nil {
		return &StoreError{Op: StoreOpAppend, Range: rng, Err: err}
	}
	i.logger.Info("台账追加", zap.Int("count", len(ids)))
	return nil
}

// ==================== SheetStore 存储表 ====================

// SheetStore 订单存储表 (A..O 列，第 1 行为表头)
type SheetStore struct {
	values gsheet.Values
	tab    string
	logger *zap.Logger
}

// NewSheetStore 创建存储表
func NewSheetStore(values gsheet.Values, tab string, log *zap.Logger) *SheetStore {
	if tab == "" {
		tab = DefaultStoreTab
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SheetStore{values: values, tab: tab, logger: log}
}

// ReadAll 读取第 2 行起的全部行，Row 为表格中的实际行号
func (s *SheetStore) ReadAll(ctx context.Context) ([]model.SheetRow, error) {
	rng := gsheet.CellRange(s.tab, storeFirstCol, model.FirstDataRow, storeLastCol, 0)
	rows, err := s.values.Get(ctx, rng)
	if err != nil {
		return nil, &StoreError{Op: StoreOpRead, Range: rng, Err: err}
	}

	out := make([]model.SheetRow, len(rows))
	for k, cells := range rows {
		out[k] = model.SheetRowFromCells(model.FirstDataRow+k, cells)
	}
	return out, nil
}

// ReadRow 读取单行，空行返回只有行号的 SheetRow
func (s *SheetStore) ReadRow(ctx context.Context, row int) (model.SheetRow, error) {
	rng := gsheet.CellRange(s.tab, storeFirstCol, row, storeLastCol, row)
	rows, err := s.values.Get(ctx, rng)
	if err != nil {
		return model.SheetRow{Row: row}, &StoreError{Op: StoreOpRead, Range: rng, Err: err}
	}
	if len(rows) == 0 {
		return model.SheetRow{Row: row}, nil
	}
	return model.SheetRowFromCells(row, rows[0]), nil
}

// WriteRows 从 startRow 开始一次写入连续多行
func (s *SheetStore) WriteRows(ctx context.Context, startRow int, rows []model.SheetRow) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	endRow := startRow + len(rows) - 1
	rng := gsheet.CellRange(s.tab, storeFirstCol, startRow, storeLastCol, endRow)

	values := make([][]interface{}, len(rows))
	for k, r := range rows {
		values[k] = r.Cells()
	}
	if err := s.values.Update(ctx, rng, values); err != nil {
		return rng, &StoreError{Op: StoreOpWrite, Range: rng, Err: err}
	}
	s.logger.Info("存储表写入", zap.Int("count", len(rows)), zap.String("range", rng))
	return rng, nil
}

// MarkNotified 一次批量把多行的 C 列写为 "o"
func (s *SheetStore) MarkNotified(ctx context.Context, rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	data := make([]gsheet.RangeValues, len(rows))
	for k, row := range rows {
		data[k] = gsheet.RangeValues{
			Range:  gsheet.CellRange(s.tab, notifiedCol, row, "", 0),
			Values: [][]interface{}{{model.NotifiedMark}},
		}
	}
	if err := s.values.BatchUpdate(ctx, data); err != nil {
		return &StoreError{Op: StoreOpWrite, Range: gsheet.CellRange(s.tab, notifiedCol, 0, notifiedCol, 0), Err: err}
	}
	s.logger.Info("C 列标记已发送", zap.Int("count", len(rows)))
	return nil
}

// FirstFreeRow 第一个 D 列为空的行；没有空行时为最后一行的下一行
func FirstFreeRow(rows []model.SheetRow) int {
	for _, r := range rows {
		if r.TrimmedOrderID() == "" {
			return r.Row
		}
	}
	return model.FirstDataRow + len(rows)
}
