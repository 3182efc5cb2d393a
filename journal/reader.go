package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/sugawarayuuta/sonnet"
)

// Frame 回读的一帧快照
type Frame struct {
	Tick    int64
	Payload []byte
}

// ReadFrames 顺序读出目录中的全部快照帧
func ReadFrames(dir string) ([]Frame, error) {
	f, err := os.Open(filepath.Join(dir, FramesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Frame
	var hdr [frameHeaderLen]byte
	for {
		if _, err := io.ReadFull(dec, hdr[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("frame header: %w", err)
		}
		n := binary.BigEndian.Uint32(hdr[8:12])
		payload := make([]byte, n)
		if _, err := io.ReadFull(dec, payload); err != nil {
			return out, fmt.Errorf("frame payload: %w", err)
		}
		out = append(out, Frame{Tick: int64(binary.BigEndian.Uint64(hdr[0:8])), Payload: payload})
	}
}

// ReadEvents 读出全部事件行
func ReadEvents(dir string) ([]Event, error) {
	f, err := os.Open(filepath.Join(dir, EventsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(snappy.NewReader(f))
	for sc.Scan() {
		var ev Event
		if err := sonnet.Unmarshal(sc.Bytes(), &ev); err != nil {
			return out, fmt.Errorf("event line: %w", err)
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}
