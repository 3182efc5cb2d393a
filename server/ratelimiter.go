package server

import "dungeonarena/config"

// TokenBucket 每连接的漏桶令牌：每个被接受的 INPUT 消耗一个令牌，
// 每 RefillTicks 个 Tick 补充 RefillAmount 个，最多 Capacity 个。令牌耗尽时输入被静默丢弃。
type TokenBucket struct {
	cfg     config.RateLimit
	tokens  int
	elapsed int
}

// NewTokenBucket 初始为满桶
func NewTokenBucket(cfg config.RateLimit) *TokenBucket {
	b := &TokenBucket{}
	b.Reconfigure(cfg)
	b.tokens = b.cfg.Capacity
	return b
}

// Allow 尝试消耗一个令牌
func (b *TokenBucket) Allow() bool {
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Tick 推进一个 Tick，按固定间隔补充令牌
func (b *TokenBucket) Tick() {
	b.elapsed++
	if b.elapsed < b.cfg.RefillTicks {
		return
	}
	b.elapsed = 0
	b.tokens += b.cfg.RefillAmount
	if b.tokens > b.cfg.Capacity {
		b.tokens = b.cfg.Capacity
	}
}

func (b *TokenBucket) Tokens() int { return b.tokens }

// Reconfigure 热更新参数；非法值回退到最小合法值，现有令牌按新容量截断
func (b *TokenBucket) Reconfigure(cfg config.RateLimit) {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTicks < 1 {
		cfg.RefillTicks = 1
	}
	if cfg.RefillAmount < 0 {
		cfg.RefillAmount = 0
	}
	b.cfg = cfg
	if b.tokens > cfg.Capacity {
		b.tokens = cfg.Capacity
	}
}
