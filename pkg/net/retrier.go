package net

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ==================== 重试策略 ====================

// RetryPolicy 有界指数退避策略
// 第 n 次失败后的等待时间 = BaseDelay × 2^(n-1) + [0, MaxJitter) 随机抖动
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// DefaultPolicy 默认策略 (5 次, 0.6s 起步, 0.4s 抖动)
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   600 * time.Millisecond,
		MaxJitter:   400 * time.Millisecond,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	return p
}

// ==================== Retrier ====================

// Retrier 所有出站调用共用的重试执行器
// 调用之间无共享状态，可以并发使用
type Retrier struct {
	policy   RetryPolicy
	logger   *zap.Logger
	newTimer func() backoff.Timer
	jitter   func(max time.Duration) time.Duration
}

// NewRetrier 创建重试执行器
func NewRetrier(policy RetryPolicy, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		policy: policy.normalized(),
		logger: logger,
		jitter: randomJitter,
	}
}

// WithPolicy 复制一个使用不同策略的执行器 (不同调用点的次数/基数不同)
func (r *Retrier) WithPolicy(policy RetryPolicy) *Retrier {
	cp := *r
	cp.policy = policy.normalized()
	return &cp
}

// SetTimerFactory 替换等待用的计时器，测试中用来跳过真实休眠
func (r *Retrier) SetTimerFactory(f func() backoff.Timer) { r.newTimer = f }

// SetJitter 替换抖动函数
func (r *Retrier) SetJitter(f func(max time.Duration) time.Duration) { r.jitter = f }

// Do 执行 op，瞬时故障按策略重试，终止性错误立即返回
// 重试耗尽时返回 *NetworkError；调用方 ctx 取消时返回 ctx 的错误
func (r *Retrier) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			if attempts > 1 {
				r.logger.Info("重试后成功", zap.String("label", label), zap.Int("attempt", attempts))
			} else {
				r.logger.Debug("调用成功", zap.String("label", label), zap.Int("attempt", attempts))
			}
			return nil
		}

		if ctx.Err() != nil || !IsTransient(err) {
			r.logger.Warn("终止性失败，不再重试",
				zap.String("label", label), zap.Int("attempt", attempts), zap.Error(err))
			return backoff.Permanent(err)
		}

		r.logger.Warn("瞬时失败",
			zap.String("label", label), zap.Int("attempt", attempts),
			zap.Int("max_attempts", r.policy.MaxAttempts), zap.Error(err))
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&expJitterBackOff{
			base:      r.policy.BaseDelay,
			maxJitter: r.policy.MaxJitter,
			jitter:    r.jitter,
		}, uint64(r.policy.MaxAttempts-1)),
		ctx,
	)

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, b, nil, timer)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	if IsTransient(err) {
		r.logger.Error("重试耗尽", zap.String("label", label), zap.Int("attempts", attempts), zap.Error(err))
		return &NetworkError{Label: label, Attempts: attempts, Err: err}
	}
	return err
}

// ==================== 退避实现 ====================

// expJitterBackOff base × 2^(n-1) + jitter
type expJitterBackOff struct {
	base      time.Duration
	maxJitter time.Duration
	jitter    func(max time.Duration) time.Duration
	attempt   int
}

func (b *expJitterBackOff) NextBackOff() time.Duration {
	b.attempt++
	delay := b.base << (b.attempt - 1)
	if b.jitter != nil && b.maxJitter > 0 {
		delay += b.jitter(b.maxJitter)
	}
	return delay
}

func (b *expJitterBackOff) Reset() { b.attempt = 0 }

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
