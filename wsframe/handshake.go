package wsframe

import (
	"bytes"
	"errors"
	"strings"
)

// acceptGUID RFC 6455 规定的固定 GUID
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var (
	ErrMissingKey     = errors.New("wsframe: missing Sec-WebSocket-Key")
	ErrInvalidKey     = errors.New("wsframe: invalid Sec-WebSocket-Key")
	ErrHeaderTooLarge = errors.New("wsframe: handshake header too large")
)

// AcceptKey 计算 Sec-WebSocket-Accept：Base64(SHA1(key + GUID))
func AcceptKey(key string) string {
	sum := sha1Sum([]byte(key + acceptGUID))
	return base64Encode(sum[:])
}

// HeaderEnd 返回空行之后的偏移（兼容 \r\n\r\n 与 \n\n），未找到返回 -1
func HeaderEnd(buf []byte) int {
	end := -1
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		end = i + 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 && (end < 0 || i+2 < end) {
		end = i + 2
	}
	return end
}

// ExtractKey 逐行扫描请求头，忽略大小写与行首空白，取出 Sec-WebSocket-Key
func ExtractKey(header []byte) (string, error) {
	for _, line := range strings.Split(string(header), "\n") {
		line = strings.TrimLeft(strings.TrimRight(line, "\r"), " \t")
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Sec-WebSocket-Key") {
			continue
		}
		value = strings.TrimSpace(value)
		if !validKey(value) {
			return "", ErrInvalidKey
		}
		return value, nil
	}
	return "", ErrMissingKey
}

// validKey 客户端 key 为 16 字节随机数的 Base64，固定 24 字符
func validKey(key string) bool {
	if len(key) != 24 || !strings.HasSuffix(key, "==") {
		return false
	}
	for i := 0; i < 22; i++ {
		if !isBase64Char(key[i]) {
			return false
		}
	}
	return true
}

// HandshakeResponse 生成 101 Switching Protocols 响应
func HandshakeResponse(accept string) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: ")
	b.WriteString(accept)
	b.WriteString("\r\n\r\n")
	return b.Bytes()
}
