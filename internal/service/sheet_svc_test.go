package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imweb_order_sync/internal/model"
	"imweb_order_sync/pkg/gsheet"
)

func TestSheetIndex_LoadTrimsAndSkipsEmpty(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testLedgerTab, 2, [][]string{{" 1001 "}, {""}, {"1002"}})
	idx := NewSheetIndex(mem, testLedgerTab, nil)

	set, err := idx.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, "1001")
	assert.Contains(t, set, "1002")
	assert.NotContains(t, set, "주문번호", "表头不应计入台账")
}

func TestSheetIndex_AppendOneCall(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testLedgerTab, 2, [][]string{{"1001"}})
	idx := NewSheetIndex(mem, testLedgerTab, nil)

	require.NoError(t, idx.Append(context.Background(), []string{"1002", "1003"}))
	assert.Equal(t, 1, mem.Calls(gsheet.OpAppend))
	assert.Equal(t, "1002", mem.Cell(testLedgerTab, 3, 1))
	assert.Equal(t, "1003", mem.Cell(testLedgerTab, 4, 1))

	// 空列表不调用
	require.NoError(t, idx.Append(context.Background(), nil))
	assert.Equal(t, 1, mem.Calls(gsheet.OpAppend))
}

func TestSheetIndex_ReadFailureIsStoreError(t *testing.T) {
	mem := newTestSheets()
	mem.SetFault(gsheet.OpGet, errors.New("quota"))
	idx := NewSheetIndex(mem, testLedgerTab, nil)

	_, err := idx.Load(context.Background())
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr), "err = %v", err)
	assert.Equal(t, StoreOpRead, storeErr.Op)
}

func TestSheetStore_ReadAllRowNumbers(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("https://a", "o", "1001", model.StatusLabelPaid, "김", "010-1"),
		{},
		storeRow("", "", "1003", model.StatusLabelPaid, "이", "010-3"),
	})
	store := NewSheetStore(mem, testStoreTab, nil)

	rows, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[0].Row)
	assert.True(t, rows[0].IsNotified())
	assert.Equal(t, "https://a", rows[0].Link)
	assert.Equal(t, 3, rows[1].Row)
	assert.Equal(t, "", rows[1].OrderID)
	assert.Equal(t, 4, rows[2].Row)
	assert.Equal(t, "1003", rows[2].OrderID)
}

func TestSheetStore_WriteRowsKeepsManualColumns(t *testing.T) {
	mem := newTestSheets()
	// 第 2 行只有人工填写的 A/B 列
	mem.SetRows(testStoreTab, 2, [][]string{{"메모", "https://keep"}})
	store := NewSheetStore(mem, testStoreTab, nil)

	rows := []model.SheetRow{
		{OrderID: "1001", StatusLabel: model.StatusLabelPaid, BuyerName: "김"},
		{OrderID: "1002", StatusLabel: model.StatusLabelPaid, BuyerName: "이"},
	}
	rng, err := store.WriteRows(context.Background(), 2, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Calls(gsheet.OpUpdate))

	r, err := gsheet.ParseA1(rng)
	require.NoError(t, err)
	assert.Equal(t, 2, r.StartRow)
	assert.Equal(t, 3, r.EndRow)

	assert.Equal(t, "메모", mem.Cell(testStoreTab, 2, 1))
	assert.Equal(t, "https://keep", mem.Cell(testStoreTab, 2, 2))
	assert.Equal(t, "1001", mem.Cell(testStoreTab, 2, 4))
	assert.Equal(t, "1002", mem.Cell(testStoreTab, 3, 4))
	assert.Equal(t, "이", mem.Cell(testStoreTab, 3, 7))
}

func TestSheetStore_MarkNotifiedSingleBatch(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("l", "", "1", "", "", ""),
		storeRow("l", "", "2", "", "", ""),
		storeRow("l", "", "3", "", "", ""),
	})
	store := NewSheetStore(mem, testStoreTab, nil)

	require.NoError(t, store.MarkNotified(context.Background(), []int{2, 4}))
	assert.Equal(t, 1, mem.Calls(gsheet.OpBatchUpdate))
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 2, 3))
	assert.Equal(t, "", mem.Cell(testStoreTab, 3, 3))
	assert.Equal(t, model.NotifiedMark, mem.Cell(testStoreTab, 4, 3))
}

func TestFirstFreeRow(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want int
	}{
		{"空表", nil, 2},
		{"无空行", []string{"1", "2"}, 4},
		{"中间空行", []string{"1", "", "3"}, 3},
		{"空白视为空", []string{"1", "  "}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]model.SheetRow, len(tt.ids))
			for i, id := range tt.ids {
				rows[i] = model.SheetRow{Row: model.FirstDataRow + i, OrderID: id}
			}
			if got := FirstFreeRow(rows); got != tt.want {
				t.Errorf("FirstFreeRow = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSheetStore_ReadRow(t *testing.T) {
	mem := newTestSheets()
	mem.SetRows(testStoreTab, 2, [][]string{
		storeRow("https://l/2", "o", "100", model.StatusLabelPaid, "a", "010-1"),
	})
	store := NewSheetStore(mem, testStoreTab, nil)

	r, err := store.ReadRow(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Row)
	assert.Equal(t, "100", r.OrderID)
	assert.True(t, r.IsNotified())

	empty, err := store.ReadRow(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, model.SheetRow{Row: 9}, empty)

	mem.SetFault(gsheet.OpGet, errors.New("quota"))
	_, err = store.ReadRow(context.Background(), 2)
	var storeErr *StoreError
	assert.ErrorAs(t, err, &storeErr)
}
