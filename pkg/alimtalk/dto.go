package alimtalk

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ==========================================
// DTO: AlimTalk 发送服务商 (Aligo / DirectSend) 的请求与响应
// ==========================================

const (
	AligoBaseURL  = "https://kakaoapi.aligo.in"
	AligoSendPath = "/akv10/alimtalk/send/"

	DirectSendBaseURL    = "https://directsend.co.kr"
	DirectSendNoticePath = "/index.php/api_v2/kakao_notice"

	// DirectSend 单次请求的最大收件人数
	DirectSendMaxReceivers = 100
)

// Code 结果码，兼容字符串和数字两种返回
type Code struct {
	Value  string
	Number bool
}

func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = Code{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code{Value: s}
		return nil
	}
	*c = Code{Value: string(b), Number: true}
	return nil
}

// empty 空串、null、数字 0 视为未设置
func (c Code) empty() bool {
	if c.Value == "" {
		return true
	}
	if c.Number {
		f, err := strconv.ParseFloat(c.Value, 64)
		return err == nil && f == 0
	}
	return false
}

// ==================== Aligo ====================

// AligoResp 发送结果
// POST /akv10/alimtalk/send/ (form)
type AligoResp struct {
	ResultCode Code   `json:"result_code"`
	Code       Code   `json:"code"`
	Result     Code   `json:"result"`
	Message    string `json:"message"`
}

// Success 依次取 result_code、code、result 中第一个有值的字段，等于 "1" 为成功
func (r AligoResp) Success() bool {
	for _, c := range []Code{r.ResultCode, r.Code, r.Result} {
		if !c.empty() {
			return c.Value == "1"
		}
	}
	return false
}

// AligoButtons button_1 字段的 JSON 结构
type AligoButtons struct {
	Button []AligoButton `json:"button"`
}

type AligoButton struct {
	Name         string `json:"name"`
	LinkType     string `json:"linkType"`
	LinkTypeName string `json:"linkTypeName"`
	LinkM        string `json:"linkM,omitempty"`
	LinkP        string `json:"linkP,omitempty"`
}

// NewWebLinkButton 网页链接 (WL) 按钮，PC 和移动端使用同一链接
func NewWebLinkButton(name, link string) AligoButtons {
	return AligoButtons{Button: []AligoButton{{
		Name:         name,
		LinkType:     "WL",
		LinkTypeName: "웹링크",
		LinkM:        link,
		LinkP:        link,
	}}}
}

// ==================== DirectSend ====================

// DirectSendReq AlimTalk 发送请求
// POST /index.php/api_v2/kakao_notice (JSON)
type DirectSendReq struct {
	Username       string               `json:"username"`
	Key            string               `json:"key"`
	KakaoPlusID    string               `json:"kakao_plus_id"`
	UserTemplateNo string               `json:"user_template_no"`
	Receiver       []DirectSendReceiver `json:"receiver"`
}

type DirectSendReceiver struct {
	Name   string `json:"name,omitempty"`
	Mobile string `json:"mobile"`
	Note1  string `json:"note1,omitempty"`
	Note2  string `json:"note2,omitempty"`
	Note3  string `json:"note3,omitempty"`
	Note4  string `json:"note4,omitempty"`
	Note5  string `json:"note5,omitempty"`
}

type DirectSendResp struct {
	Status Code            `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// Success status 为 "1"，或数字 0 (接口文档中的成功码)
func (r DirectSendResp) Success() bool {
	if r.Status.Value == "1" {
		return true
	}
	return r.Status.Number && r.Status.empty()
}
