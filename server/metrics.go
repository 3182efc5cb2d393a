package server

import (
	"sync/atomic"
)

// Metrics 记录服务运行期的关键指标（用于监控与调试）；所有字段原子读写
type Metrics struct {
	TickCount   int64 // 统计的 Tick 次数
	TotalTickNs int64 // Tick 累计耗时（纳秒）

	InputsAccepted int64 // 被接受并应用的输入
	RateLimited    int64 // 令牌耗尽被静默丢弃的输入
	MalformedLines int64 // 解析失败被跳过的行
	LineOverflow   int64 // 行缓冲溢出丢弃的字节
	SendDropped    int64 // 发送队列满被丢弃的消息

	HandshakesOK     int64
	HandshakesFailed int64
	SessionsOpened   int64
	SessionsRefused  int64 // FULL

	ClosedBye       int64
	ClosedRemote    int64
	ClosedTimeout   int64
	ClosedHandshake int64
	ClosedError     int64
	ClosedShutdown  int64

	BulletsFired   int64
	WallsDestroyed int64
	EnemiesKilled  int64
	PlayerKills    int64
	PlayerDeaths   int64
	PickupsTaken   int64
}

func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

func inc(p *int64)          { atomic.AddInt64(p, 1) }
func add(p *int64, n int64) { atomic.AddInt64(p, n) }

// IncClosed 按断开原因计数
func (m *Metrics) IncClosed(reason CloseReason) {
	switch reason {
	case ReasonBye:
		inc(&m.ClosedBye)
	case ReasonClosed:
		inc(&m.ClosedRemote)
	case ReasonTimeout:
		inc(&m.ClosedTimeout)
	case ReasonHandshake:
		inc(&m.ClosedHandshake)
	case ReasonShutdown:
		inc(&m.ClosedShutdown)
	default:
		inc(&m.ClosedError)
	}
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
		"inputs_accepted":   atomic.LoadInt64(&m.InputsAccepted),
		"rate_limited":      atomic.LoadInt64(&m.RateLimited),
		"malformed_lines":   atomic.LoadInt64(&m.MalformedLines),
		"line_overflow":     atomic.LoadInt64(&m.LineOverflow),
		"send_dropped":      atomic.LoadInt64(&m.SendDropped),
		"handshakes_ok":     atomic.LoadInt64(&m.HandshakesOK),
		"handshakes_failed": atomic.LoadInt64(&m.HandshakesFailed),
		"sessions_opened":   atomic.LoadInt64(&m.SessionsOpened),
		"sessions_refused":  atomic.LoadInt64(&m.SessionsRefused),
		"closed": map[string]int64{
			"bye":       atomic.LoadInt64(&m.ClosedBye),
			"closed":    atomic.LoadInt64(&m.ClosedRemote),
			"timeout":   atomic.LoadInt64(&m.ClosedTimeout),
			"handshake": atomic.LoadInt64(&m.ClosedHandshake),
			"error":     atomic.LoadInt64(&m.ClosedError),
			"shutdown":  atomic.LoadInt64(&m.ClosedShutdown),
		},
		"bullets_fired":   atomic.LoadInt64(&m.BulletsFired),
		"walls_destroyed": atomic.LoadInt64(&m.WallsDestroyed),
		"enemies_killed":  atomic.LoadInt64(&m.EnemiesKilled),
		"player_kills":    atomic.LoadInt64(&m.PlayerKills),
		"player_deaths":   atomic.LoadInt64(&m.PlayerDeaths),
		"pickups_taken":   atomic.LoadInt64(&m.PickupsTaken),
	}
}
