package model

import (
	"strings"
	"time"
)

// ==================== 订单状态常量 ====================

// OrderStatus 归一化后的订单状态
type OrderStatus string

const (
	OrderStatusPendingPayment    OrderStatus = "PendingPayment"    // 商品准备中 (需确认已支付)
	OrderStatusShippingReady     OrderStatus = "ShippingReady"     // 待发货
	OrderStatusShipping          OrderStatus = "Shipping"          // 配送中
	OrderStatusShippingComplete  OrderStatus = "ShippingComplete"  // 已送达
	OrderStatusPurchaseConfirmed OrderStatus = "PurchaseConfirmed" // 已确认购买
	OrderStatusCancelled         OrderStatus = "Cancelled"         // 取消/退货
	OrderStatusOther             OrderStatus = "Other"
)

// imweb orderSectionStatus 原始值
const (
	ImwebStatusProductPreparation   = "PRODUCT_PREPARATION"
	ImwebStatusWaitingPayment       = "WAITING_PAYMENT"
	ImwebStatusShippingReady        = "SHIPPING_READY"
	ImwebStatusShipping             = "SHIPPING"
	ImwebStatusShippingComplete     = "SHIPPING_COMPLETE"
	ImwebStatusPurchaseConfirmation = "PURCHASE_CONFIRMATION"
)

// PaymentStatusComplete payments[0].paymentStatus 已完成支付
const PaymentStatusComplete = "PAYMENT_COMPLETE"

// ParseOrderStatus imweb 状态 -> OrderStatus
func ParseOrderStatus(raw string) OrderStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case ImwebStatusProductPreparation, ImwebStatusWaitingPayment:
		return OrderStatusPendingPayment
	case ImwebStatusShippingReady:
		return OrderStatusShippingReady
	case ImwebStatusShipping:
		return OrderStatusShipping
	case ImwebStatusShippingComplete:
		return OrderStatusShippingComplete
	case ImwebStatusPurchaseConfirmation:
		return OrderStatusPurchaseConfirmed
	}
	if strings.HasPrefix(s, "CANCEL") || strings.HasPrefix(s, "RETURN") {
		return OrderStatusCancelled
	}
	return OrderStatusOther
}

// ==================== Order ====================

// Order 上游订单 (只读，不落库)
type Order struct {
	OrderID            string
	Status             OrderStatus
	PaymentStatus      string
	PaymentCompletedAt *time.Time
	ProductName        string
	BuyerName          string
	BuyerEmail         string
	BuyerPhone         string
	TotalPrice         string
}

// PaymentConfirmed 是否已完成支付
func (o Order) PaymentConfirmed() bool {
	return o.PaymentStatus == PaymentStatusComplete
}

// Syncable 是否属于需要写入表格的状态
// 商品准备中的订单必须已完成支付
func (o Order) Syncable() bool {
	switch o.Status {
	case OrderStatusPendingPayment:
		return o.PaymentConfirmed()
	case OrderStatusShippingReady, OrderStatusShipping, OrderStatusShippingComplete, OrderStatusPurchaseConfirmed:
		return true
	}
	return false
}
