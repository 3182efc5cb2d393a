package world

// NearestSpawn 按世界格曼哈顿距离选出离 from 最近的出生点
func (w *World) NearestSpawn(from Cell) (Cell, Pos, bool) {
	best := -1
	var bc Cell
	var bp Pos
	for wy := 0; wy < w.Height; wy++ {
		for wx := 0; wx < w.Width; wx++ {
			m := &w.maps[wy*w.Width+wx]
			if !m.HasSpawn {
				continue
			}
			d := abs(wx-from.X) + abs(wy-from.Y)
			if best >= 0 && d >= best {
				continue
			}
			if sp, ok := m.spawnTile(); ok {
				best, bc, bp = d, Cell{wx, wy}, sp
			}
		}
	}
	return bc, bp, best >= 0
}

// RespawnPoint 以最近出生点为中心逐圈向外搜索第一个开放且无人无敌人的格子。
// 找不到时退回出生点本身；整个世界没有出生点时退回中心地图中央。
func (w *World) RespawnPoint(from Cell, except int) (Cell, Pos) {
	c, s, ok := w.NearestSpawn(from)
	if !ok {
		return w.Center(), Pos{MapWidth / 2, MapHeight / 2}
	}
	maxR := MapWidth
	if MapHeight > maxR {
		maxR = MapHeight
	}
	for r := 0; r <= maxR; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if abs(dx) != r && abs(dy) != r {
					continue
				}
				p := s.Add(dx, dy)
				if !p.InBounds() || !w.IsOpen(c, p) {
					continue
				}
				if w.PlayerAt(c, p, except) >= 0 || w.EnemyAt(c, p) >= 0 {
					continue
				}
				return c, p
			}
		}
	}
	return c, s
}

func (m *Map) spawnTile() (Pos, bool) {
	for y := 0; y < MapHeight; y++ {
		for x := 0; x < MapWidth; x++ {
			if m.Tiles[y][x] == TileSpawn {
				return Pos{x, y}, true
			}
		}
	}
	return Pos{}, false
}
