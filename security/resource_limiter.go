// Package security 提供VM安全性和资源限制相关功能
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExecutionTimeout 合约执行超过时间限制
var ErrExecutionTimeout = errors.New("execution time limit exceeded")

// ResourceLimiter 用于限制合约执行的资源使用
type ResourceLimiter struct {
	maxExecutionTime time.Duration
}

// ResourceMonitor 监控一次调用的资源使用情况
type ResourceMonitor struct {
	limiter  *ResourceLimiter
	function string
	start    time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewResourceLimiter 创建资源限制器，maxExecutionTime 为 0 表示不限制
func NewResourceLimiter(maxExecutionTime time.Duration) *ResourceLimiter {
	return &ResourceLimiter{maxExecutionTime: maxExecutionTime}
}

// MaxExecutionTime 返回单次调用的时间限制
func (r *ResourceLimiter) MaxExecutionTime() time.Duration {
	return r.maxExecutionTime
}

// StartMonitoring 开始监控资源使用。调用方必须用返回的 context 执行合约，
// 超时后 wasm 执行会被中断。
func (r *ResourceLimiter) StartMonitoring(ctx context.Context, function string) (context.Context, *ResourceMonitor) {
	m := &ResourceMonitor{
		limiter:  r,
		function: function,
		start:    time.Now(),
	}
	if r.maxExecutionTime > 0 {
		m.ctx, m.cancel = context.WithTimeoutCause(ctx, r.maxExecutionTime, ErrExecutionTimeout)
	} else {
		m.ctx, m.cancel = context.WithCancel(ctx)
	}
	return m.ctx, m
}

// Stop 停止监控，超时返回 ErrExecutionTimeout。
// 调用方自己的 context 到期不算超时。
func (m *ResourceMonitor) Stop() error {
	defer m.cancel()
	elapsed := time.Since(m.start)
	if errors.Is(context.Cause(m.ctx), ErrExecutionTimeout) {
		slog.Warn("contract execution timed out", "function", m.function, "elapsed", elapsed, "limit", m.limiter.maxExecutionTime)
		return fmt.Errorf("%s ran for %s: %w", m.function, elapsed, ErrExecutionTimeout)
	}
	slog.Debug("contract execution finished", "function", m.function, "elapsed", elapsed)
	return nil
}
