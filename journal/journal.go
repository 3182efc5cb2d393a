// Package journal 将广播快照与会话事件写入压缩日志，用于离线排查与回放。
// 快照帧写入 zstd 流，事件以 JSONL 写入 snappy 流。
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/sugawarayuuta/sonnet"
)

const (
	EventsFile = "events.jsonl.sz"
	FramesFile = "frames.bin.zst"

	frameHeaderLen = 8 + 4
)

var ErrClosed = errors.New("journal: closed")

// Event 一条会话或世界事件
type Event struct {
	Tick       int64          `json:"tick"`
	CapturedAt string         `json:"captured_at"`
	Type       string         `json:"type"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Writer 并发安全；Tick 循环写帧，其他协程也可写事件
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	closed      bool
}

// Open 在 root 下按启动时间创建一个新的日志目录
func Open(root string, clock func() time.Time) (*Writer, error) {
	if root == "" {
		return nil, fmt.Errorf("journal root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	dir := filepath.Join(root, "session-"+clock().UTC().Format("20060102T150405.000Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	eventFile, err := os.Create(filepath.Join(dir, EventsFile))
	if err != nil {
		return nil, err
	}
	frameFile, err := os.Create(filepath.Join(dir, FramesFile))
	if err != nil {
		eventFile.Close()
		return nil, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, err
	}
	return &Writer{
		dir:         dir,
		now:         clock,
		eventFile:   eventFile,
		eventStream: snappy.NewBufferedWriter(eventFile),
		frameFile:   frameFile,
		frameStream: frameStream,
	}, nil
}

func (w *Writer) Dir() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// AppendEvent 写入一行事件并立即 flush
func (w *Writer) AppendEvent(tick int64, typ string, fields map[string]any) error {
	if w == nil {
		return nil
	}
	rec := Event{Tick: tick, CapturedAt: w.now().UTC().Format(time.RFC3339Nano), Type: typ, Fields: fields}
	line, err := sonnet.Marshal(rec)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendFrame 写入一帧快照：tick(8B BE) + 长度(4B BE) + 原始协议字节
func (w *Writer) AppendFrame(tick int64, payload []byte) error {
	if w == nil {
		return nil
	}
	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(tick))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(payload)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.frameStream.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.frameStream.Write(payload)
	return err
}

// Close 依次关闭所有流，返回第一个错误
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(w.eventStream.Close())
	keep(w.eventFile.Close())
	keep(w.frameStream.Close())
	keep(w.frameFile.Close())
	return firstErr
}
