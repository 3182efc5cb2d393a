package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dungeonarena/config"
)

func TestTokenBucketBounds(t *testing.T) {
	b := NewTokenBucket(config.RateLimit{Capacity: 3, RefillTicks: 2, RefillAmount: 1})
	assert.Equal(t, 3, b.Tokens())

	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow())
	}
	assert.False(t, b.Allow())
	assert.Zero(t, b.Tokens())

	b.Tick()
	assert.Zero(t, b.Tokens(), "refill happens every second tick")
	b.Tick()
	assert.Equal(t, 1, b.Tokens())

	for i := 0; i < 100; i++ {
		b.Tick()
		assert.LessOrEqual(t, b.Tokens(), 3)
		assert.GreaterOrEqual(t, b.Tokens(), 0)
	}
	assert.Equal(t, 3, b.Tokens())
}

func TestTokenBucketFloodNeverGoesNegative(t *testing.T) {
	b := NewTokenBucket(config.RateLimit{Capacity: 5, RefillTicks: 1, RefillAmount: 2})
	allowed := 0
	for tick := 0; tick < 50; tick++ {
		for i := 0; i < 10; i++ {
			if b.Allow() {
				allowed++
			}
		}
		assert.GreaterOrEqual(t, b.Tokens(), 0)
		b.Tick()
	}
	// 初始满桶 5 个，之后每 Tick 补 2 个
	assert.Equal(t, 5+49*2, allowed)
}

func TestTokenBucketReconfigure(t *testing.T) {
	b := NewTokenBucket(config.RateLimit{Capacity: 10, RefillTicks: 1, RefillAmount: 1})
	b.Reconfigure(config.RateLimit{Capacity: 2, RefillTicks: 0, RefillAmount: -1})
	assert.Equal(t, 2, b.Tokens())
	b.Allow()
	b.Allow()
	b.Tick()
	assert.Zero(t, b.Tokens())
}
