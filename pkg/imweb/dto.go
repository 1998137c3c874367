package imweb

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ==========================================
// DTO: 用于接收 imweb Open API 返回的原始 JSON 数据
// ==========================================

const (
	DefaultBaseURL = "https://openapi.imweb.me"

	TokenPath  = "/oauth2/token"
	OrdersPath = "/orders"

	GrantTypeRefreshToken = "refresh_token"

	// Envelope 中表示成功的 statusCode
	StatusOK = 200
)

// FlexString 兼容字符串、数字、null 的字段 (orderNo、totalPrice 等)
// 数字按 JSON 原文保存
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexInt 兼容数字和数字字符串 (expiresIn)
type FlexInt struct {
	Value int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = FlexInt{}
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// 无法解析时按缺省处理
		*f = FlexInt{}
		return nil
	}
	*f = FlexInt{Value: n, Valid: true}
	return nil
}

// ==================== OAuth ====================

// TokenResp 刷新令牌响应
// POST /oauth2/token
type TokenResp struct {
	StatusCode int       `json:"statusCode"`
	Data       TokenData `json:"data"`
}

type TokenData struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    FlexInt `json:"expiresIn"`
	// 部分环境返回下划线风格
	ExpiresInSnake FlexInt `json:"expires_in"`
}

// ExpiresInSeconds 有效期秒数，缺省 3600
func (d TokenData) ExpiresInSeconds() int {
	if d.ExpiresIn.Valid {
		return d.ExpiresIn.Value
	}
	if d.ExpiresInSnake.Valid {
		return d.ExpiresInSnake.Value
	}
	return 3600
}

// ==================== 订单 ====================

// OrdersResp 订单列表响应
// GET /orders?siteCode=&page=&limit=
type OrdersResp struct {
	StatusCode int        `json:"statusCode"`
	Data       OrdersData `json:"data"`
}

type OrdersData struct {
	TotalCount  int     `json:"totalCount"`
	TotalPage   int     `json:"totalPage"`
	CurrentPage int     `json:"currentPage"`
	List        []Order `json:"list"`
}

type Order struct {
	OrderNo      FlexString `json:"orderNo"`
	OrdererName  string     `json:"ordererName"`
	OrdererEmail string     `json:"ordererEmail"`
	OrdererCall  string     `json:"ordererCall"`
	TotalPrice   FlexString `json:"totalPrice"`
	Sections     []Section  `json:"sections"`
	Payments     []Payment  `json:"payments"`
}

type Section struct {
	OrderSectionStatus string        `json:"orderSectionStatus"`
	SectionItems       []SectionItem `json:"sectionItems"`
}

type SectionItem struct {
	ProductInfo ProductInfo `json:"productInfo"`
}

type ProductInfo struct {
	ProdName string `json:"prodName"`
}

type Payment struct {
	PaymentStatus       string `json:"paymentStatus"`
	PaymentCompleteTime string `json:"paymentCompleteTime"`
}

// FirstSection 第一个 section，不存在时返回零值
func (o Order) FirstSection() Section {
	if len(o.Sections) == 0 {
		return Section{}
	}
	return o.Sections[0]
}

// FirstPayment 第一笔支付，不存在时返回零值
func (o Order) FirstPayment() Payment {
	if len(o.Payments) == 0 {
		return Payment{}
	}
	return o.Payments[0]
}

// FirstProductName sections[0].sectionItems[0].productInfo.prodName
func (o Order) FirstProductName() string {
	sec := o.FirstSection()
	if len(sec.SectionItems) == 0 {
		return ""
	}
	return sec.SectionItems[0].ProductInfo.ProdName
}
