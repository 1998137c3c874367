package gsheet

import (
	"context"
	"fmt"
	"sync"
)

// Op Memory 后端的调用类型，用于故障注入和计数
type Op string

const (
	OpGet         Op = "get"
	OpUpdate      Op = "update"
	OpAppend      Op = "append"
	OpBatchUpdate Op = "batchUpdate"
)

// Memory 进程内的表格后端
// 本地演练 (SHEET_BACKEND=memory) 和测试使用，行为贴近 Sheets API:
// 读取时去掉行尾空单元格与末尾空行，写入时 nil 单元格保持原值
type Memory struct {
	mu     sync.Mutex
	tabs   map[string][][]string
	faults map[Op]error
	calls  map[Op]int
}

// NewMemory 创建空表格
func NewMemory() *Memory {
	return &Memory{
		tabs:   make(map[string][][]string),
		faults: make(map[Op]error),
		calls:  make(map[Op]int),
	}
}

// SetRows 从第 startRow 行开始覆盖写入一个工作表 (测试准备数据)
func (m *Memory) SetRows(tab string, startRow int, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range rows {
		for j, v := range row {
			m.set(tab, startRow+i, j+1, v)
		}
	}
}

// Rows 返回工作表从第 1 行起的完整内容副本
func (m *Memory) Rows(tab string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	grid := m.tabs[tab]
	out := make([][]string, len(grid))
	for i, row := range grid {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// Cell 读取单个单元格，越界返回空串
func (m *Memory) Cell(tab string, row, col int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(tab, row, col)
}

// SetFault 让后续的 op 调用返回 err，传 nil 清除
func (m *Memory) SetFault(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// Calls op 被调用的次数 (包括注入失败的调用)
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Memory) Get(ctx context.Context, rng string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpGet); err != nil {
		return nil, err
	}

	r, err := ParseA1(rng)
	if err != nil {
		return nil, err
	}

	grid := m.tabs[r.Tab]
	first := max(r.StartRow, 1)
	last := len(grid)
	if r.EndRow != 0 && r.EndRow < last {
		last = r.EndRow
	}

	var out [][]string
	for row := first; row <= last; row++ {
		var cells []string
		for col := r.StartCol; col <= r.EndCol; col++ {
			cells = append(cells, m.get(r.Tab, row, col))
		}
		out = append(out, trimTrailing(cells))
	}
	// 末尾空行不返回
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpUpdate); err != nil {
		return err
	}
	return m.write(rng, rows)
}

func (m *Memory) Append(ctx context.Context, rng string, rows [][]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpAppend); err != nil {
		return err
	}

	r, err := ParseA1(rng)
	if err != nil {
		return err
	}

	// 追加到区域列内最后一个非空行之后
	next := max(r.StartRow, 1)
	for row := len(m.tabs[r.Tab]); row >= 1; row-- {
		if m.rowHasValue(r.Tab, row, r.StartCol, r.EndCol) {
			next = max(next, row+1)
			break
		}
	}
	for i, row := range rows {
		for j, v := range row {
			if v != nil {
				m.set(r.Tab, next+i, r.StartCol+j, fmt.Sprint(v))
			}
		}
	}
	return nil
}

func (m *Memory) BatchUpdate(ctx context.Context, data []RangeValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpBatchUpdate); err != nil {
		return err
	}
	// 先校验全部区域，保证要么全部写入要么全部不写
	for _, d := range data {
		if _, err := ParseA1(d.Range); err != nil {
			return err
		}
	}
	for _, d := range data {
		if err := m.write(d.Range, d.Values); err != nil {
			return err
		}
	}
	return nil
}

// ==================== 内部 ====================

func (m *Memory) enter(ctx context.Context, op Op) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.faults[op]
}

func (m *Memory) write(rng string, rows [][]interface{}) error {
	r, err := ParseA1(rng)
	if err != nil {
		return err
	}
	start := max(r.StartRow, 1)
	for i, row := range rows {
		if r.EndRow != 0 && start+i > r.EndRow {
			return fmt.Errorf("写入行数超出区域 %s", rng)
		}
		for j, v := range row {
			if r.StartCol+j > r.EndCol {
				return fmt.Errorf("写入列数超出区域 %s", rng)
			}
			if v == nil {
				continue
			}
			m.set(r.Tab, start+i, r.StartCol+j, fmt.Sprint(v))
		}
	}
	return nil
}

func (m *Memory) get(tab string, row, col int) string {
	grid := m.tabs[tab]
	if row < 1 || row > len(grid) {
		return ""
	}
	cells := grid[row-1]
	if col < 1 || col > len(cells) {
		return ""
	}
	return cells[col-1]
}

func (m *Memory) set(tab string, row, col int, v string) {
	grid := m.tabs[tab]
	for len(grid) < row {
		grid = append(grid, nil)
	}
	cells := grid[row-1]
	for len(cells) < col {
		cells = append(cells, "")
	}
	cells[col-1] = v
	grid[row-1] = cells
	m.tabs[tab] = grid
}

func (m *Memory) rowHasValue(tab string, row, fromCol, toCol int) bool {
	for col := fromCol; col <= toCol; col++ {
		if m.get(tab, row, col) != "" {
			return true
		}
	}
	return false
}

func trimTrailing(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	if n == 0 {
		return []string{}
	}
	return cells[:n]
}
