package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdnet "net"
	"net/http"
	"net/url"
	"syscall"
)

// ==================== 错误定义 ====================

// StatusError 上游返回的 HTTP 状态错误
type StatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NetworkError 瞬时故障重试耗尽
type NetworkError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("[%s] 重试 %d 次后仍失败: %v", e.Label, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode 最后一次失败的 HTTP 状态码，连接层错误返回 0
func (e *NetworkError) StatusCode() int {
	var se *StatusError
	if errors.As(e.Err, &se) {
		return se.StatusCode
	}
	return 0
}

// ==================== 故障分类 ====================

// 可重试的 HTTP 状态码
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransientStatus 429/500/502/503/504 视为瞬时故障
func IsTransientStatus(code int) bool {
	return transientStatus[code]
}

// IsTransient 判断错误是否值得重试
// 状态错误按状态码分类，连接层错误一律重试，其他（解析失败、4xx 等）为终止性错误
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return IsTransientStatus(se.StatusCode)
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne stdnet.Error
	if errors.As(err, &ne) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
