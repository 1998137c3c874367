package net

import (
	"github.com/go-resty/resty/v2"
)

// BuildBearerRequest 通用鉴权请求构建器
// 适用方：OrderSource 等所有需要 Bearer Token 的上游调用
// 职责：统一封装鉴权头 (Authorization) 和标准头 (Accept)
func BuildBearerRequest(req *resty.Request, accessToken string) *resty.Request {
	return req.
		SetHeader("Accept", "application/json").
		SetAuthToken(accessToken)
}

// BuildFormRequest 构建 application/x-www-form-urlencoded 请求
func BuildFormRequest(req *resty.Request, data map[string]string) *resty.Request {
	return req.
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(data)
}

// BuildJSONRequest 构建 JSON 请求
func BuildJSONRequest(req *resty.Request, body interface{}) *resty.Request {
	return req.
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(body)
}
