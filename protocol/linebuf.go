package protocol

import "bytes"

// DefaultLineBufferSize 与原始客户端的滚动缓冲区一致
const DefaultLineBufferSize = 8192

// LineBuffer 累积流式字节并按 '\n' 切分完整行。
// 超出容量时丢弃最旧的字节（被截断的行随后会因解析失败被跳过）。
type LineBuffer struct {
	buf []byte
	max int
}

func NewLineBuffer(max int) *LineBuffer {
	if max <= 0 {
		max = DefaultLineBufferSize
	}
	return &LineBuffer{max: max}
}

// Write 追加数据，返回因溢出被丢弃的字节数
func (b *LineBuffer) Write(p []byte) (dropped int) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		return over
	}
	return 0
}

// Next 弹出下一整行（去掉 "\n" 与可选 "\r"）
func (b *LineBuffer) Next() (string, bool) {
	i := bytes.IndexByte(b.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := string(bytes.TrimRight(b.buf[:i], "\r"))
	b.buf = append(b.buf[:0], b.buf[i+1:]...)
	return line, true
}

// Buffered 尚未成行的字节数
func (b *LineBuffer) Buffered() int { return len(b.buf) }

// Reset 清空缓冲
func (b *LineBuffer) Reset() { b.buf = b.buf[:0] }
