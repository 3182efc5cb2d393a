package world

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
)

// MapFileName 地图文件命名：x<worldX>-y<worldY>.txt
func MapFileName(c Cell) string { return fmt.Sprintf("x%d-y%d.txt", c.X, c.Y) }

// Load 从目录加载整张世界网格。缺失的地图文件生成默认的带墙房间。
func Load(dir string, width, height, maxPlayers int, rng *rand.Rand) (*World, error) {
	w, err := alloc(width, height, maxPlayers, rng)
	if err != nil {
		return nil, err
	}
	for wy := 0; wy < height; wy++ {
		for wx := 0; wx < width; wx++ {
			c := Cell{wx, wy}
			m := w.Map(c)
			f, err := os.Open(filepath.Join(dir, MapFileName(c)))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					m.fillRoom()
					continue
				}
				return nil, fmt.Errorf("open map %v: %w", c, err)
			}
			err = m.readFrom(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read map %v: %w", c, err)
			}
		}
	}
	w.finalize()
	return w, nil
}

// readFrom 逐行读取地图：短行和缺失行补墙，未知字符当作地板
func (m *Map) readFrom(r io.Reader) error {
	sc := bufio.NewScanner(r)
	y := 0
	for ; y < MapHeight && sc.Scan(); y++ {
		line := sc.Bytes()
		for x := 0; x < MapWidth; x++ {
			c := TileWall
			if x < len(line) {
				c = line[x]
				if !validTile(c) {
					c = TileFloor
				}
			}
			m.Tiles[y][x] = c
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	for ; y < MapHeight; y++ {
		for x := 0; x < MapWidth; x++ {
			m.Tiles[y][x] = TileWall
		}
	}
	return nil
}
