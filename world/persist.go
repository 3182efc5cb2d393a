package world

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/sugawarayuuta/sonnet"
)

// stateFile 持久化格式：只保存与初始地图的差异和墙体损伤
type stateFile struct {
	SavedAt string        `json:"saved_at"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Tiles   []tileRecord  `json:"tiles"`
	Damage  []damageEntry `json:"damage"`
}

type tileRecord struct {
	WX int    `json:"wx"`
	WY int    `json:"wy"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
	Ch string `json:"ch"`
}

type damageEntry struct {
	WX   int   `json:"wx"`
	WY   int   `json:"wy"`
	X    int   `json:"x"`
	Y    int   `json:"y"`
	Hits uint8 `json:"hits"`
}

// MarshalState 序列化地块差异（sonnet JSON + snappy 压缩）
func (w *World) MarshalState(now time.Time) ([]byte, error) {
	st := stateFile{SavedAt: now.UTC().Format(time.RFC3339Nano), Width: w.Width, Height: w.Height}
	for _, ch := range w.Overrides() {
		st.Tiles = append(st.Tiles, tileRecord{WX: ch.Cell.X, WY: ch.Cell.Y, X: ch.Pos.X, Y: ch.Pos.Y, Ch: string(ch.Ch)})
	}
	for wy := 0; wy < w.Height; wy++ {
		for wx := 0; wx < w.Width; wx++ {
			m := &w.maps[wy*w.Width+wx]
			for y := 0; y < MapHeight; y++ {
				for x := 0; x < MapWidth; x++ {
					if h := m.Damage[y][x]; h > 0 {
						st.Damage = append(st.Damage, damageEntry{WX: wx, WY: wy, X: x, Y: y, Hits: h})
					}
				}
			}
		}
	}
	raw, err := sonnet.Marshal(st)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// UnmarshalState 恢复地块差异；尺寸不一致时拒绝恢复
func (w *World) UnmarshalState(data []byte) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	var st stateFile
	if err := sonnet.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("parse state: %w", err)
	}
	if st.Width != w.Width || st.Height != w.Height {
		return fmt.Errorf("%w: state %dx%d, world %dx%d", ErrBadDimensions, st.Width, st.Height, w.Width, w.Height)
	}
	for _, t := range st.Tiles {
		if len(t.Ch) == 1 {
			w.ApplyTile(Cell{t.WX, t.WY}, Pos{t.X, t.Y}, t.Ch[0])
		}
	}
	for _, d := range st.Damage {
		m := w.Map(Cell{d.WX, d.WY})
		p := Pos{d.X, d.Y}
		if m == nil || !p.InBounds() || d.Hits >= WallBreakHits {
			continue
		}
		m.Damage[p.Y][p.X] = d.Hits
	}
	return nil
}

// SaveState 原子写入状态文件
func (w *World) SaveState(path string, now time.Time) error {
	data, err := w.MarshalState(now)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadState 读取状态文件；文件不存在不算错误
func (w *World) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return w.UnmarshalState(data)
}
