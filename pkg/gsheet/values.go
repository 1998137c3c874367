package gsheet

import "context"

// ValueInputOption 写入时按用户输入解析 (日期、数字会被表格识别)
const ValueInputOption = "USER_ENTERED"

// RangeValues 批量写入中的一段
type RangeValues struct {
	Range  string
	Values [][]interface{}
}

// Values 表格读写的最小接口，Google Sheets 后端与内存后端都实现它
// 写入时 nil 单元格表示保持原值不变
type Values interface {
	Get(ctx context.Context, rng string) ([][]string, error)
	Update(ctx context.Context, rng string, rows [][]interface{}) error
	Append(ctx context.Context, rng string, rows [][]interface{}) error
	BatchUpdate(ctx context.Context, data []RangeValues) error
}
