package world

type Enemy struct {
	Pos    Pos
	HP     int
	Active bool
}

// Bullet 子弹池中的一个槽位
type Bullet struct {
	Owner  int
	Cell   Cell
	Pos    Pos
	Dir    Direction
	Active bool
}

// Player 槽位中的玩家实体（服务端权威状态）
type Player struct {
	Active bool
	Cell   Cell
	Pos    Pos
	Facing Direction
	Color  int

	HP              int
	InvincibleTicks int
	SuperTicks      int
	ShootCooldown   int
	Score           int
}

// Map 一个世界格的地图
type Map struct {
	Tiles    [MapHeight][MapWidth]byte
	Damage   [MapHeight][MapWidth]uint8
	Enemies  [MaxEnemiesPerMap]Enemy
	HasSpawn bool

	pristine [MapHeight][MapWidth]byte
}

// ActiveEnemies 当前存活的敌人数
func (m *Map) ActiveEnemies() int {
	n := 0
	for i := range m.Enemies {
		if m.Enemies[i].Active {
			n++
		}
	}
	return n
}

func (m *Map) fillRoom() {
	for y := 0; y < MapHeight; y++ {
		for x := 0; x < MapWidth; x++ {
			if y == 0 || y == MapHeight-1 || x == 0 || x == MapWidth-1 {
				m.Tiles[y][x] = TileWall
			} else {
				m.Tiles[y][x] = TileFloor
			}
		}
	}
}

func (m *Map) scanSpawn() {
	m.HasSpawn = false
	for y := 0; y < MapHeight; y++ {
		for x := 0; x < MapWidth; x++ {
			if m.Tiles[y][x] == TileSpawn {
				m.HasSpawn = true
				return
			}
		}
	}
}
