package world

import (
	"errors"
	"fmt"
	"math/rand"
)

var ErrBadDimensions = errors.New("world: invalid dimensions")

// World 服务端唯一的权威状态聚合；只允许在 Tick 循环所在协程中读写
type World struct {
	Width, Height int

	maps    []Map
	Players []Player
	Bullets [MaxBullets]Bullet

	changes []TileChange
	rng     *rand.Rand
}

// New 创建全部为默认房间的世界
func New(width, height, maxPlayers int, rng *rand.Rand) (*World, error) {
	w, err := alloc(width, height, maxPlayers, rng)
	if err != nil {
		return nil, err
	}
	for i := range w.maps {
		w.maps[i].fillRoom()
	}
	w.finalize()
	return w, nil
}

func alloc(width, height, maxPlayers int, rng *rand.Rand) (*World, error) {
	if width <= 0 || height <= 0 || maxPlayers <= 0 {
		return nil, fmt.Errorf("%w: %dx%d players=%d", ErrBadDimensions, width, height, maxPlayers)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &World{
		Width:   width,
		Height:  height,
		maps:    make([]Map, width*height),
		Players: make([]Player, maxPlayers),
		rng:     rng,
	}, nil
}

// finalize 打通相邻地图的边门，保证存在出生点，并记录初始地块
func (w *World) finalize() {
	midX, midY := MapWidth/2, MapHeight/2
	anySpawn := false
	for wy := 0; wy < w.Height; wy++ {
		for wx := 0; wx < w.Width; wx++ {
			m := &w.maps[wy*w.Width+wx]
			if wx > 0 {
				m.Tiles[midY][0] = TileFloor
			}
			if wx < w.Width-1 {
				m.Tiles[midY][MapWidth-1] = TileFloor
			}
			if wy > 0 {
				m.Tiles[0][midX] = TileFloor
			}
			if wy < w.Height-1 {
				m.Tiles[MapHeight-1][midX] = TileFloor
			}
			m.scanSpawn()
			anySpawn = anySpawn || m.HasSpawn
		}
	}
	if !anySpawn {
		m := w.Map(w.Center())
		m.Tiles[midY][midX] = TileSpawn
		m.HasSpawn = true
	}
	for i := range w.maps {
		w.maps[i].pristine = w.maps[i].Tiles
	}
}

// Center 世界中心格
func (w *World) Center() Cell { return Cell{w.Width / 2, w.Height / 2} }

func (w *World) Rand() *rand.Rand { return w.rng }

func (w *World) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < w.Width && c.Y >= 0 && c.Y < w.Height
}

// Map 返回世界格对应的地图，越界返回 nil
func (w *World) Map(c Cell) *Map {
	if !w.InBounds(c) {
		return nil
	}
	return &w.maps[c.Y*w.Width+c.X]
}

// Tile 越界一律视为墙
func (w *World) Tile(c Cell, p Pos) byte {
	m := w.Map(c)
	if m == nil || !p.InBounds() {
		return TileWall
	}
	return m.Tiles[p.Y][p.X]
}

func (w *World) IsOpen(c Cell, p Pos) bool { return w.Tile(c, p) != TileWall }

// SetTile 修改地块并记录待广播的变化
func (w *World) SetTile(c Cell, p Pos, ch byte) {
	m := w.Map(c)
	if m == nil || !p.InBounds() || m.Tiles[p.Y][p.X] == ch {
		return
	}
	m.Tiles[p.Y][p.X] = ch
	w.changes = append(w.changes, TileChange{Cell: c, Pos: p, Ch: ch})
}

// ApplyTile 修改地块但不记录（客户端应用服务端 TILE 时使用）
func (w *World) ApplyTile(c Cell, p Pos, ch byte) {
	m := w.Map(c)
	if m == nil || !p.InBounds() || !validTile(ch) {
		return
	}
	m.Tiles[p.Y][p.X] = ch
}

// DrainChanges 取出并清空本 Tick 的地块变化
func (w *World) DrainChanges() []TileChange {
	out := w.changes
	w.changes = nil
	return out
}

// Overrides 返回所有与初始地图不同的地块（新加入玩家的初始快照）
func (w *World) Overrides() []TileChange {
	var out []TileChange
	for wy := 0; wy < w.Height; wy++ {
		for wx := 0; wx < w.Width; wx++ {
			m := &w.maps[wy*w.Width+wx]
			for y := 0; y < MapHeight; y++ {
				for x := 0; x < MapWidth; x++ {
					if m.Tiles[y][x] != m.pristine[y][x] {
						out = append(out, TileChange{Cell: Cell{wx, wy}, Pos: Pos{x, y}, Ch: m.Tiles[y][x]})
					}
				}
			}
		}
	}
	return out
}

// EnemyAt 返回该格存活敌人的池下标，没有则 -1
func (w *World) EnemyAt(c Cell, p Pos) int {
	m := w.Map(c)
	if m == nil {
		return -1
	}
	for i := range m.Enemies {
		if m.Enemies[i].Active && m.Enemies[i].Pos == p {
			return i
		}
	}
	return -1
}

// PlayerAt 返回站在该格的活跃玩家槽位（忽略 except），没有则 -1
func (w *World) PlayerAt(c Cell, p Pos, except int) int {
	for i := range w.Players {
		pl := &w.Players[i]
		if i != except && pl.Active && pl.Cell == c && pl.Pos == p {
			return i
		}
	}
	return -1
}

// Occupied 该世界格内是否有活跃玩家
func (w *World) Occupied(c Cell) bool {
	for i := range w.Players {
		if w.Players[i].Active && w.Players[i].Cell == c {
			return true
		}
	}
	return false
}

// OccupiedCells 当前有玩家的世界格集合
func (w *World) OccupiedCells() map[Cell]bool {
	out := make(map[Cell]bool)
	for i := range w.Players {
		if w.Players[i].Active {
			out[w.Players[i].Cell] = true
		}
	}
	return out
}

// Blocked 服务端移动碰撞：墙、敌人、其他玩家
func (w *World) Blocked(c Cell, p Pos, self int) bool {
	return !w.IsOpen(c, p) || w.EnemyAt(c, p) >= 0 || w.PlayerAt(c, p, self) >= 0
}

// DamageWall 对墙造成一次伤害；第 WallBreakHits 次命中时变为地板并返回 true
func (w *World) DamageWall(c Cell, p Pos) bool {
	m := w.Map(c)
	if m == nil || !p.InBounds() || m.Tiles[p.Y][p.X] != TileWall {
		return false
	}
	m.Damage[p.Y][p.X]++
	if m.Damage[p.Y][p.X] < WallBreakHits {
		return false
	}
	m.Damage[p.Y][p.X] = 0
	w.SetTile(c, p, TileFloor)
	return true
}

// SpawnEnemies 在非出生点地图的随机空地上补充敌人，返回新生成数量
func (w *World) SpawnEnemies(c Cell, n int) int {
	m := w.Map(c)
	if m == nil || m.HasSpawn || n <= 0 {
		return 0
	}
	var free []Pos
	for y := 0; y < MapHeight; y++ {
		for x := 0; x < MapWidth; x++ {
			p := Pos{x, y}
			if m.Tiles[y][x] == TileFloor && w.EnemyAt(c, p) < 0 && w.PlayerAt(c, p, -1) < 0 {
				free = append(free, p)
			}
		}
	}
	w.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	spawned := 0
	for i := range m.Enemies {
		if spawned >= n || spawned >= len(free) {
			break
		}
		if m.Enemies[i].Active {
			continue
		}
		m.Enemies[i] = Enemy{Pos: free[spawned], HP: EnemyHP, Active: true}
		spawned++
	}
	return spawned
}

// PopulateAll 为所有非出生点地图生成初始敌人
func (w *World) PopulateAll(perMap int) int {
	total := 0
	for wy := 0; wy < w.Height; wy++ {
		for wx := 0; wx < w.Width; wx++ {
			total += w.SpawnEnemies(Cell{wx, wy}, perMap)
		}
	}
	return total
}

// FireBullet 占用一个空闲子弹槽位，池满返回 -1
func (w *World) FireBullet(owner int, c Cell, p Pos, dir Direction) int {
	if dir == DirNone {
		return -1
	}
	for i := range w.Bullets {
		if !w.Bullets[i].Active {
			w.Bullets[i] = Bullet{Owner: owner, Cell: c, Pos: p, Dir: dir, Active: true}
			return i
		}
	}
	return -1
}

// ActiveBullets 当前活跃子弹数
func (w *World) ActiveBullets() int {
	n := 0
	for i := range w.Bullets {
		if w.Bullets[i].Active {
			n++
		}
	}
	return n
}
