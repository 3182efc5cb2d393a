package wsframe

import (
	"encoding/binary"
	"errors"
)

// 帧操作码（RFC 6455 5.2）
const (
	OpContinuation byte = 0x0
	OpText         byte = 0x1
	OpBinary       byte = 0x2
	OpClose        byte = 0x8
	OpPing         byte = 0x9
	OpPong         byte = 0xA
)

// DefaultMaxPayload 单帧负载上限
const DefaultMaxPayload = 64 * 1024

var (
	ErrFrameTooLarge = errors.New("wsframe: frame exceeds payload limit")
	ErrFragmented    = errors.New("wsframe: fragmented frames not supported")
	ErrUnmasked      = errors.New("wsframe: client frame not masked")
	ErrBadOpcode     = errors.New("wsframe: unsupported opcode")
	ErrClosed        = errors.New("wsframe: connection closed")
)

// Frame 为解码后的一帧，Payload 指向输入缓冲区（已原地去掩码）
type Frame struct {
	Fin     bool
	Opcode  byte
	Masked  bool
	Payload []byte
}

// AppendFrame 追加一个 FIN=1 的服务端帧（不加掩码）
// 长度编码：<126 直接 7 位；<=0xFFFF 用 126 + 16 位大端；否则 127 + 64 位（高 4 字节为 0）
func AppendFrame(dst []byte, opcode byte, payload []byte) []byte {
	dst = append(dst, 0x80|opcode)
	n := len(payload)
	switch {
	case n < 126:
		dst = append(dst, byte(n))
	case n <= 0xFFFF:
		dst = append(dst, 126, byte(n>>8), byte(n))
	default:
		dst = append(dst, 127, 0, 0, 0, 0, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	return append(dst, payload...)
}

// AppendText 追加一个文本帧（opcode+FIN = 0x81）
func AppendText(dst []byte, payload []byte) []byte {
	return AppendFrame(dst, OpText, payload)
}

// AppendMasked 追加一个带掩码的帧（客户端方向），主要用于测试与自写客户端
func AppendMasked(dst []byte, opcode byte, payload []byte, key [4]byte) []byte {
	dst = append(dst, 0x80|opcode)
	n := len(payload)
	switch {
	case n < 126:
		dst = append(dst, 0x80|byte(n))
	case n <= 0xFFFF:
		dst = append(dst, 0x80|126, byte(n>>8), byte(n))
	default:
		dst = append(dst, 0x80|127, 0, 0, 0, 0, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	dst = append(dst, key[:]...)
	for i, b := range payload {
		dst = append(dst, b^key[i&3])
	}
	return dst
}

// DecodeFrame 从 buf 头部解析一帧。数据不足时返回 consumed == 0 且 err == nil。
// 带掩码的负载会在 buf 中原地异或还原。
func DecodeFrame(buf []byte, maxPayload int) (f Frame, consumed int, err error) {
	if len(buf) < 2 {
		return Frame{}, 0, nil
	}
	f.Fin = buf[0]&0x80 != 0
	f.Opcode = buf[0] & 0x0F
	f.Masked = buf[1]&0x80 != 0

	offset := 2
	var n uint64
	switch plen := buf[1] & 0x7F; plen {
	case 126:
		if len(buf) < offset+2 {
			return Frame{}, 0, nil
		}
		n = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return Frame{}, 0, nil
		}
		n = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
	default:
		n = uint64(plen)
	}
	if maxPayload > 0 && n > uint64(maxPayload) {
		return Frame{}, 0, ErrFrameTooLarge
	}

	var key [4]byte
	if f.Masked {
		if len(buf) < offset+4 {
			return Frame{}, 0, nil
		}
		copy(key[:], buf[offset:offset+4])
		offset += 4
	}
	end := offset + int(n)
	if len(buf) < end {
		return Frame{}, 0, nil
	}
	f.Payload = buf[offset:end]
	if f.Masked {
		for i := range f.Payload {
			f.Payload[i] ^= key[i&3]
		}
	}
	return f, end, nil
}
