package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

const (
	sendQueueSize = 256
	readChunkSize = 4096
	writeTimeout  = 5 * time.Second
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	nc   net.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClientConn(nc net.Conn) *ClientConn {
	c := &ClientConn{
		nc:   nc,
		send: make(chan []byte, sendQueueSize),
	}
	go c.writePump()
	return c
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃），返回是否入队
func (c *ClientConn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃新消息（防止阻塞 Tick）
		return false
	}
}

// Close 关闭发送队列；写协程发完已入队的数据后关闭底层连接
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump 独立协程，负责从 send 队列写出到连接
func (c *ClientConn) writePump() {
	defer c.nc.Close()
	for msg := range c.send {
		_ = c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := c.nc.Write(msg); err != nil {
			// 写失败后直接关闭连接，读协程会随之报告断开
			c.nc.Close()
			for range c.send {
			}
			return
		}
	}
}

type eventKind int

const (
	evAccept eventKind = iota
	evData
	evClosed
)

// netEvent 网络协程投递给 Tick 循环的事件；世界状态只在循环中修改
type netEvent struct {
	kind      eventKind
	transport Transport
	conn      net.Conn
	id        uint64
	data      []byte
	err       error
}

// acceptLoop 接受连接并交给 Tick 循环登记
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, t Transport) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			Log.Warnf("accept %s: %v", t, err)
			continue
		}
		select {
		case s.events <- netEvent{kind: evAccept, transport: t, conn: nc}:
		case <-ctx.Done():
			nc.Close()
			return
		}
	}
}

// readLoop 读取连接数据；读到的字节原样交给 Tick 循环，由循环负责解帧与解析
func (s *Server) readLoop(ctx context.Context, id uint64, nc net.Conn) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case s.events <- netEvent{kind: evData, id: id, data: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case s.events <- netEvent{kind: evClosed, id: id, err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}
