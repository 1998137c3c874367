package service

import (
	"strings"
	"time"

	"imweb_order_sync/internal/model"
	"imweb_order_sync/pkg/imweb"
)

// SheetDateLayout K/L 列日期格式
const SheetDateLayout = "2006.01.02"

// KST 默认时区
var KST = time.FixedZone("KST", 9*60*60)

// 商品名中的期限关键字，按顺序匹配第一个
var termKeywords = []struct {
	keyword string
	months  int
}{
	{"6개월", 6},
	{"12개월", 12},
	{"24개월", 24},
}

// 支付完成时间可能的格式，无时区的按配置时区解释
var paymentTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ToOrderModel imweb 订单 DTO -> Order
// 缺失的嵌套字段取零值；无法解析的支付时间视为缺失
func ToOrderModel(dto imweb.Order, loc *time.Location) model.Order {
	section := dto.FirstSection()
	payment := dto.FirstPayment()

	return model.Order{
		OrderID:            strings.TrimSpace(dto.OrderNo.String()),
		Status:             model.ParseOrderStatus(section.OrderSectionStatus),
		PaymentStatus:      payment.PaymentStatus,
		PaymentCompletedAt: ParsePaymentTime(payment.PaymentCompleteTime, loc),
		ProductName:        dto.FirstProductName(),
		BuyerName:          dto.OrdererName,
		BuyerEmail:         dto.OrdererEmail,
		BuyerPhone:         dto.OrdererCall,
		TotalPrice:         dto.TotalPrice.String(),
	}
}

// ParsePaymentTime 解析失败或为空时返回 nil
func ParsePaymentTime(raw string, loc *time.Location) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if loc == nil {
		loc = KST
	}
	for _, layout := range paymentTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t
		}
	}
	return nil
}

// BuildSheetRow 由订单生成待写入的存储行
// 仅确认购买的订单计算起止日期: 起始 = 支付完成日, 结束 = 起始 + N 个月 - 1 天
func BuildSheetRow(o model.Order, loc *time.Location) model.SheetRow {
	if loc == nil {
		loc = KST
	}
	row := model.SheetRow{
		OrderID:     o.OrderID,
		StatusLabel: model.StatusLabelPaid,
		ProductName: o.ProductName,
		BuyerName:   o.BuyerName,
		BuyerEmail:  o.BuyerEmail,
		BuyerPhone:  o.BuyerPhone,
		TotalPrice:  o.TotalPrice,
	}

	if o.Status != model.OrderStatusPurchaseConfirmed || o.PaymentCompletedAt == nil {
		return row
	}

	start := o.PaymentCompletedAt.In(loc)
	row.StartDate = start.Format(SheetDateLayout)
	if months := TermMonths(o.ProductName); months > 0 {
		row.EndDate = AddMonthsClamped(start, months).AddDate(0, 0, -1).Format(SheetDateLayout)
	}
	return row
}

// TermMonths 从商品名识别期限，未识别返回 0
func TermMonths(productName string) int {
	for _, k := range termKeywords {
		if strings.Contains(productName, k.keyword) {
			return k.months
		}
	}
	return 0
}

// AddMonthsClamped 加 n 个月，日期超出目标月末时取月末 (1/31 + 1 个月 = 2/28)
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
