package gsheet

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// A1Range 解析后的 A1 区域
// 列号、行号从 1 开始；0 表示该方向不设上限 (如 "A2:O" 的 EndRow)
type A1Range struct {
	Tab      string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseA1 解析 "tab!A2:O"、"'my tab'!A:A"、"tab!C5" 形式的区域
func ParseA1(s string) (A1Range, error) {
	var r A1Range

	bang := strings.LastIndex(s, "!")
	if bang < 0 {
		return r, fmt.Errorf("区域缺少工作表名: %q", s)
	}
	r.Tab = unquoteTab(s[:bang])
	if r.Tab == "" {
		return r, fmt.Errorf("工作表名为空: %q", s)
	}

	cells := s[bang+1:]
	start, end, hasEnd := strings.Cut(cells, ":")

	var err error
	if r.StartCol, r.StartRow, err = parseCell(start); err != nil {
		return r, fmt.Errorf("解析 %q: %w", s, err)
	}
	if r.StartCol == 0 {
		return r, fmt.Errorf("解析 %q: 起始单元格缺少列", s)
	}

	if !hasEnd {
		// 单个单元格
		r.EndCol, r.EndRow = r.StartCol, r.StartRow
		return r, nil
	}
	if r.EndCol, r.EndRow, err = parseCell(end); err != nil {
		return r, fmt.Errorf("解析 %q: %w", s, err)
	}
	if r.EndCol == 0 {
		r.EndCol = r.StartCol
	}
	if r.EndCol < r.StartCol || (r.EndRow != 0 && r.EndRow < r.StartRow) {
		return r, fmt.Errorf("区域方向错误: %q", s)
	}
	return r, nil
}

// String 还原为 A1 表示
func (r A1Range) String() string {
	start := ColumnLetter(r.StartCol) + rowPart(r.StartRow)
	if r.EndCol == r.StartCol && r.EndRow == r.StartRow && r.StartRow != 0 {
		return quoteTab(r.Tab) + "!" + start
	}
	return quoteTab(r.Tab) + "!" + start + ":" + ColumnLetter(r.EndCol) + rowPart(r.EndRow)
}

// CellRange 拼接区域字符串，endRow 为 0 时不限行
func CellRange(tab, startCol string, startRow int, endCol string, endRow int) string {
	b := quoteTab(tab) + "!" + startCol + rowPart(startRow)
	if endCol == "" {
		return b
	}
	return b + ":" + endCol + rowPart(endRow)
}

// ColumnIndex "A" -> 1, "O" -> 15, "AA" -> 27
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("列名为空")
	}
	n := 0
	for _, ch := range strings.ToUpper(letters) {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("非法列名: %q", letters)
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n, nil
}

// ColumnLetter 1 -> "A", 27 -> "AA"
func ColumnLetter(idx int) string {
	if idx <= 0 {
		return ""
	}
	var buf []byte
	for idx > 0 {
		idx--
		buf = append([]byte{byte('A' + idx%26)}, buf...)
		idx /= 26
	}
	return string(buf)
}

func parseCell(cell string) (col, row int, err error) {
	cell = strings.TrimSpace(cell)
	i := 0
	for i < len(cell) && unicode.IsLetter(rune(cell[i])) {
		i++
	}
	if i > 0 {
		if col, err = ColumnIndex(cell[:i]); err != nil {
			return 0, 0, err
		}
	}
	if i < len(cell) {
		if row, err = strconv.Atoi(cell[i:]); err != nil || row <= 0 {
			return 0, 0, fmt.Errorf("非法行号: %q", cell)
		}
	}
	if col == 0 && row == 0 {
		return 0, 0, fmt.Errorf("空单元格引用")
	}
	return col, row, nil
}

func rowPart(row int) string {
	if row <= 0 {
		return ""
	}
	return strconv.Itoa(row)
}

func quoteTab(tab string) string {
	for _, ch := range tab {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' {
			return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
		}
	}
	return tab
}

func unquoteTab(tab string) string {
	if len(tab) >= 2 && tab[0] == '\'' && tab[len(tab)-1] == '\'' {
		return strings.ReplaceAll(tab[1:len(tab)-1], "''", "'")
	}
	return tab
}
