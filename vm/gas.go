package vm

import (
	"fmt"

	"github.com/govm-net/helloworld/core"
)

// 每次调用的 gas 价格
const (
	// InitBaseCost 初始化合约的固定费用
	InitBaseCost int64 = 100
	// InvokeBaseCost 调用入口函数的固定费用
	InvokeBaseCost int64 = 100
	// ByteCost 参数、返回值和状态每字节的费用
	ByteCost int64 = 1
)

// GasMeter 记录一次调用的 gas 消耗
type GasMeter struct {
	gas  int64
	used int64
}

// NewGasMeter 创建 gas 计量器
func NewGasMeter(limit int64) *GasMeter {
	return &GasMeter{gas: limit}
}

// Remaining 获取剩余gas
func (g *GasMeter) Remaining() int64 {
	return g.gas
}

// Used 获取已使用的gas
func (g *GasMeter) Used() int64 {
	return g.used
}

// Consume 消耗gas，不足时返回 core.ErrOutOfGas 且不扣除
func (g *GasMeter) Consume(amount int64) error {
	if amount <= 0 {
		return nil
	}
	if g.gas < amount {
		return fmt.Errorf("gas=%d, need=%d: %w", g.gas, amount, core.ErrOutOfGas)
	}
	g.gas -= amount
	g.used += amount
	return nil
}

// ConsumeBytes 按字节数消耗gas
func (g *GasMeter) ConsumeBytes(n int) error {
	return g.Consume(int64(n) * ByteCost)
}
