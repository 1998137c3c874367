package net

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== 测试辅助 ====================

// instantTimer 立即触发的计时器，记录每次等待时长
type instantTimer struct {
	c      chan time.Time
	delays *[]time.Duration
}

func (t *instantTimer) Start(d time.Duration) {
	*t.delays = append(*t.delays, d)
	t.c <- time.Now()
}
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func newTestRetrier(policy RetryPolicy) (*Retrier, *[]time.Duration) {
	delays := &[]time.Duration{}
	r := NewRetrier(policy, nil)
	r.SetTimerFactory(func() backoff.Timer {
		return &instantTimer{c: make(chan time.Time, 1), delays: delays}
	})
	r.SetJitter(func(time.Duration) time.Duration { return 0 })
	return r, delays
}

// ==================== 重试上限 ====================

func TestRetrier_TransientExhaustsMaxAttempts(t *testing.T) {
	r, _ := newTestRetrier(RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), "always-503", func(ctx context.Context) error {
		calls++
		return &StatusError{StatusCode: 503}
	})

	assert.Equal(t, 5, calls)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr), "err = %v, want *NetworkError", err)
	assert.Equal(t, 5, netErr.Attempts)
	assert.Equal(t, 503, netErr.StatusCode())
	assert.Equal(t, "always-503", netErr.Label)
}

func TestRetrier_TerminalStatusSingleCall(t *testing.T) {
	r, delays := newTestRetrier(DefaultPolicy())

	calls := 0
	err := r.Do(context.Background(), "404", func(ctx context.Context) error {
		calls++
		return &StatusError{StatusCode: 404, Body: "not found"}
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)

	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.StatusCode)
}

func TestRetrier_DelaySchedule(t *testing.T) {
	r, delays := newTestRetrier(RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond})

	_ = r.Do(context.Background(), "schedule", func(ctx context.Context) error {
		return &StatusError{StatusCode: 500}
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	assert.Equal(t, want, *delays)
}

func TestRetrier_JitterIsAdditive(t *testing.T) {
	r, delays := newTestRetrier(RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxJitter: 400 * time.Millisecond})
	r.SetJitter(func(max time.Duration) time.Duration { return max / 4 })

	_ = r.Do(context.Background(), "jitter", func(ctx context.Context) error {
		return &StatusError{StatusCode: 429}
	})

	assert.Equal(t, []time.Duration{200 * time.Millisecond, 300 * time.Millisecond}, *delays)
}

func TestRetrier_SucceedsAfterTransient(t *testing.T) {
	r, _ := newTestRetrier(DefaultPolicy())

	calls := 0
	err := r.Do(context.Background(), "flaky", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection reset")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_ContextCanceledStops(t *testing.T) {
	r, _ := newTestRetrier(DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Do(ctx, "cancel", func(ctx context.Context) error {
		calls++
		cancel()
		return &StatusError{StatusCode: 503}
	})

	assert.Equal(t, 1, calls)
	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr))
}

func TestRetrier_SingleAttemptPolicy(t *testing.T) {
	r, _ := newTestRetrier(RetryPolicy{MaxAttempts: 1})

	calls := 0
	err := r.Do(context.Background(), "once", func(ctx context.Context) error {
		calls++
		return &StatusError{StatusCode: 502}
	})

	assert.Equal(t, 1, calls)
	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr))
}

// ==================== 故障分类 ====================

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &StatusError{StatusCode: 429}, true},
		{"500", &StatusError{StatusCode: 500}, true},
		{"502", &StatusError{StatusCode: 502}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"504", &StatusError{StatusCode: 504}, true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"401", &StatusError{StatusCode: 401}, false},
		{"404", &StatusError{StatusCode: 404}, false},
		{"501", &StatusError{StatusCode: 501}, false},
		{"wrapped 503", fmt.Errorf("sheet: %w", &StatusError{StatusCode: 503}), true},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("dial tcp")}, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("json: cannot unmarshal"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
