// Package client 实现联网客户端：连接（原始 TCP 或 WebSocket）、本地预测与远端实体平滑。
// 渲染与键盘输入不在本包内，调用方按固定渲染频率驱动 Poll / Advance。
package client

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dungeonarena/protocol"
)

const (
	DefaultRawPort = 5555
	DefaultWSPort  = 5556

	dialTimeout = 3 * time.Second
)

var ErrNotConnected = errors.New("client: not connected")

type Transport int

const (
	TransportRaw Transport = iota
	TransportWS
)

// NormalizeAddr 补全默认端口，并把 localhost 规范为 127.0.0.1
func NormalizeAddr(addr string, t Transport) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		port = strconv.Itoa(DefaultRawPort)
		if t == TransportWS {
			port = strconv.Itoa(DefaultWSPort)
		}
	}
	if host == "" || host == "localhost" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// Conn 客户端连接。读协程只负责收字节，Poll 在渲染循环中非阻塞取出完整消息。
type Conn struct {
	transport Transport
	raw       net.Conn
	ws        *websocket.Conn
	log       *zap.SugaredLogger

	chunks chan []byte
	done   chan struct{}
	err    error
	lines  *protocol.LineBuffer

	wmu       sync.Mutex
	closeOnce sync.Once
}

// Dial 建立连接；失败时调用方应退回单机模式
func Dial(ctx context.Context, addr string, t Transport, log *zap.SugaredLogger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	addr = NormalizeAddr(addr, t)
	c := &Conn{
		transport: t,
		log:       log,
		chunks:    make(chan []byte, 64),
		done:      make(chan struct{}),
		lines:     protocol.NewLineBuffer(protocol.DefaultLineBufferSize),
	}
	switch t {
	case TransportWS:
		d := websocket.Dialer{HandshakeTimeout: dialTimeout}
		ws, _, err := d.DialContext(ctx, "ws://"+addr+"/", nil)
		if err != nil {
			return nil, err
		}
		c.ws = ws
	default:
		d := net.Dialer{Timeout: dialTimeout}
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		c.raw = nc
	}
	log.Infof("connected to %s", addr)
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.chunks)
	if c.ws != nil {
		for {
			_, payload, err := c.ws.ReadMessage()
			if err != nil {
				c.err = err
				return
			}
			if !c.deliver(payload) {
				return
			}
		}
	}
	buf := make([]byte, 4096)
	for {
		n, err := c.raw.Read(buf)
		if n > 0 && !c.deliver(append([]byte(nil), buf[:n]...)) {
			return
		}
		if err != nil {
			c.err = err
			return
		}
	}
}

func (c *Conn) deliver(b []byte) bool {
	select {
	case c.chunks <- b:
		return true
	case <-c.done:
		return false
	}
}

// Poll 非阻塞地取出目前已到达的全部完整消息；解析失败的行被跳过。
// 连接已断开时返回已解析的消息与断开原因。
func (c *Conn) Poll() ([]protocol.Message, error) {
	var out []protocol.Message
	var closed bool
	for !closed {
		select {
		case b, ok := <-c.chunks:
			if !ok {
				closed = true
				break
			}
			if dropped := c.lines.Write(b); dropped > 0 {
				c.log.Warnf("receive buffer overflow, dropped %d bytes", dropped)
			}
		default:
			out = c.drainLines(out)
			return out, nil
		}
	}
	out = c.drainLines(out)
	err := c.err
	if err == nil {
		err = ErrNotConnected
	}
	return out, err
}

func (c *Conn) drainLines(out []protocol.Message) []protocol.Message {
	for {
		line, ok := c.lines.Next()
		if !ok {
			return out
		}
		msg, err := protocol.Parse(line)
		if err != nil {
			if !errors.Is(err, protocol.ErrEmpty) {
				c.log.Debugf("skip line %q: %v", line, err)
			}
			continue
		}
		out = append(out, msg)
	}
}

// Send 发送一条消息
func (c *Conn) Send(m protocol.Message) error {
	b := protocol.Encode(m)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.ws != nil {
		_ = c.ws.SetWriteDeadline(time.Now().Add(dialTimeout))
		return c.ws.WriteMessage(websocket.TextMessage, b)
	}
	_ = c.raw.SetWriteDeadline(time.Now().Add(dialTimeout))
	_, err := c.raw.Write(b)
	return err
}

// Close 尽力发送 BYE 后关闭连接
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.Send(protocol.Bye{})
		close(c.done)
		if c.ws != nil {
			err = c.ws.Close()
		} else {
			err = c.raw.Close()
		}
	})
	return err
}
