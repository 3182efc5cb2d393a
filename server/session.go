package server

import (
	"net"
	"time"

	"dungeonarena/config"
	"dungeonarena/protocol"
	"dungeonarena/wsframe"
)

// Transport 连接使用的传输方式
type Transport int

const (
	TransportRaw Transport = iota
	TransportWS
)

func (t Transport) String() string {
	if t == TransportWS {
		return "ws"
	}
	return "raw"
}

// CloseReason 会话结束原因（日志与指标）
type CloseReason string

const (
	ReasonBye       CloseReason = "bye"
	ReasonClosed    CloseReason = "closed"
	ReasonTimeout   CloseReason = "timeout"
	ReasonHandshake CloseReason = "handshake"
	ReasonError     CloseReason = "error"
	ReasonShutdown  CloseReason = "shutdown"
)

// Session 单个连接的服务端状态。Slot 为 -1 表示尚未分配槽位（WebSocket 握手中）。
// 只在 Tick 循环协程中访问。
type Session struct {
	ConnID    uint64
	Slot      int
	Transport Transport
	Addr      string

	conn   *ClientConn
	codec  *wsframe.ServerCodec
	lines  *protocol.LineBuffer
	bucket *TokenBucket

	bucketVersion uint64

	acceptedAt time.Time
	lastActive time.Time
	joined     bool
}

func newSession(id uint64, t Transport, nc net.Conn, rl config.RateLimit, now time.Time) *Session {
	s := &Session{
		ConnID:     id,
		Slot:       -1,
		Transport:  t,
		Addr:       nc.RemoteAddr().String(),
		conn:       NewClientConn(nc),
		lines:      protocol.NewLineBuffer(protocol.DefaultLineBufferSize),
		bucket:     NewTokenBucket(rl),
		acceptedAt: now,
		lastActive: now,
	}
	if t == TransportWS {
		s.codec = wsframe.NewServerCodec()
	}
	return s
}

// Open 原始连接立即可用；WebSocket 需握手完成
func (s *Session) Open() bool {
	return s.codec == nil || s.codec.Handshaken()
}

// Send 按传输方式封帧后入队
func (s *Session) Send(payload []byte) bool {
	if s.codec != nil {
		if !s.Open() {
			return false
		}
		payload = s.codec.Encode(nil, payload)
	}
	return s.conn.Enqueue(payload)
}

// sendFramed 发送已按本会话传输方式封好帧的数据（广播复用同一缓冲）
func (s *Session) sendFramed(raw, framed []byte) bool {
	if s.Transport == TransportWS {
		return s.conn.Enqueue(framed)
	}
	return s.conn.Enqueue(raw)
}
