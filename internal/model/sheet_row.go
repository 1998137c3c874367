package model

import (
	"strings"
	"unicode"
)

// ==================== 表格行 ====================

const (
	// NotifiedMark C 列已发送标记
	NotifiedMark = "o"
	// StatusLabelPaid E 列状态标签，写入的行固定为此值
	StatusLabelPaid = "결제완료"

	// SheetColumns A..O
	SheetColumns = 15
	// FirstDataRow 第 1 行为表头
	FirstDataRow = 2
)

// 单元格下标 (A 列为 0)
const (
	ColLink = iota + 1
	ColNotified
	ColOrderID
	ColStatusLabel
	ColProductName
	ColBuyerName
	ColBuyerEmail
	ColBuyerPhone
	ColTotalPrice
	ColStartDate
	ColEndDate
)

// SheetRow 存储表中的一行
// A、M、N、O 列由人工维护，系统从不写入
type SheetRow struct {
	Row          int
	Link         string // B
	NotifiedFlag string // C
	OrderID      string // D
	StatusLabel  string // E
	ProductName  string // F
	BuyerName    string // G
	BuyerEmail   string // H
	BuyerPhone   string // I
	TotalPrice   string // J
	StartDate    string // K
	EndDate      string // L
}

// SheetRowFromCells 从读取到的单元格还原 (cells[0] 为 A 列)
// 缺少的尾部单元格按空串处理
func SheetRowFromCells(row int, cells []string) SheetRow {
	at := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return SheetRow{
		Row:          row,
		Link:         at(ColLink),
		NotifiedFlag: at(ColNotified),
		OrderID:      at(ColOrderID),
		StatusLabel:  at(ColStatusLabel),
		ProductName:  at(ColProductName),
		BuyerName:    at(ColBuyerName),
		BuyerEmail:   at(ColBuyerEmail),
		BuyerPhone:   at(ColBuyerPhone),
		TotalPrice:   at(ColTotalPrice),
		StartDate:    at(ColStartDate),
		EndDate:      at(ColEndDate),
	}
}

// Cells 写入新订单行用的 A..O 单元格
// A、B、C、M、N、O 为 nil，写入时保持原值 (人工填写的 B 列链接不会被覆盖)
func (r SheetRow) Cells() []interface{} {
	cells := make([]interface{}, SheetColumns)
	cells[ColOrderID] = r.OrderID
	cells[ColStatusLabel] = r.StatusLabel
	cells[ColProductName] = r.ProductName
	cells[ColBuyerName] = r.BuyerName
	cells[ColBuyerEmail] = r.BuyerEmail
	cells[ColBuyerPhone] = r.BuyerPhone
	cells[ColTotalPrice] = r.TotalPrice
	cells[ColStartDate] = r.StartDate
	cells[ColEndDate] = r.EndDate
	return cells
}

// IsNotified C 列是否为 "o" (忽略大小写与首尾空白)
func (r SheetRow) IsNotified() bool {
	return IsNotifiedFlag(r.NotifiedFlag)
}

// TrimmedOrderID 去掉首尾空白的订单号
func (r SheetRow) TrimmedOrderID() string {
	return strings.TrimSpace(r.OrderID)
}

// PhoneDigits I 列中的数字
func (r SheetRow) PhoneDigits() string {
	return DigitsOnly(r.BuyerPhone)
}

// IsNotifiedFlag 判断标记值
func IsNotifiedFlag(flag string) bool {
	return strings.ToLower(strings.TrimSpace(flag)) == NotifiedMark
}

// DigitsOnly 只保留 0-9
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if ch < unicode.MaxASCII && unicode.IsDigit(ch) {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
