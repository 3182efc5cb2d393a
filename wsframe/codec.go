package wsframe

// State 连接握手进度
type State int

const (
	StateAwaitingHeaders State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeaders:
		return "AWAITING_HEADERS"
	case StateOpen:
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// maxHeaderBytes 握手请求头上限
const maxHeaderBytes = 8 * 1024

// ServerCodec 单连接的服务端状态机：AWAITING_HEADERS → OPEN。
// 不做任何 IO，由调用方把读到的字节喂进来，再把返回的 reply 原样写回。
type ServerCodec struct {
	state      State
	handshaken bool
	buf        []byte
	maxPayload int
}

func NewServerCodec() *ServerCodec {
	return &ServerCodec{maxPayload: DefaultMaxPayload}
}

func (c *ServerCodec) State() State { return c.state }

// Handshaken 握手是否已经完成；之后即使因帧错误关闭也保持 true
func (c *ServerCodec) Handshaken() bool { return c.handshaken }

// Feed 处理一段入站字节。
// reply：需原样写回对端的字节（握手响应、pong、close 回应）；
// data：本次解出的全部文本负载（按到达顺序拼接）。
// 返回错误后状态机进入 CLOSED，调用方应关闭连接。
func (c *ServerCodec) Feed(p []byte) (reply []byte, data []byte, err error) {
	if c.state == StateClosed {
		return nil, nil, ErrClosed
	}
	c.buf = append(c.buf, p...)

	if c.state == StateAwaitingHeaders {
		end := HeaderEnd(c.buf)
		if end < 0 {
			if len(c.buf) > maxHeaderBytes {
				return c.fail(nil, nil, ErrHeaderTooLarge)
			}
			return nil, nil, nil
		}
		key, kerr := ExtractKey(c.buf[:end])
		if kerr != nil {
			return c.fail(nil, nil, kerr)
		}
		reply = HandshakeResponse(AcceptKey(key))
		c.buf = append(c.buf[:0], c.buf[end:]...)
		c.state = StateOpen
		c.handshaken = true
	}

	off := 0
	for {
		f, n, derr := DecodeFrame(c.buf[off:], c.maxPayload)
		if derr != nil {
			return c.fail(reply, data, derr)
		}
		if n == 0 {
			break
		}
		off += n
		if !f.Masked {
			return c.fail(reply, data, ErrUnmasked)
		}
		switch f.Opcode {
		case OpText, OpBinary:
			if !f.Fin {
				return c.fail(reply, data, ErrFragmented)
			}
			data = append(data, f.Payload...)
		case OpContinuation:
			return c.fail(reply, data, ErrFragmented)
		case OpPing:
			reply = AppendFrame(reply, OpPong, f.Payload)
		case OpPong:
		case OpClose:
			reply = AppendFrame(reply, OpClose, nil)
			return c.fail(reply, data, ErrClosed)
		default:
			return c.fail(reply, data, ErrBadOpcode)
		}
	}
	if off > 0 {
		c.buf = append(c.buf[:0], c.buf[off:]...)
	}
	return reply, data, nil
}

func (c *ServerCodec) fail(reply, data []byte, err error) ([]byte, []byte, error) {
	c.state = StateClosed
	c.buf = nil
	return reply, data, err
}

// Encode 出站负载封装为单个文本帧
func (c *ServerCodec) Encode(dst, payload []byte) []byte {
	return AppendText(dst, payload)
}
