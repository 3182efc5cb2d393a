// Package world 维护服务端权威的世界状态：多地图网格、墙体损伤、敌人池、子弹池与玩家槽位。
// 客户端复用同一套地图与移动规则进行本地预测。
package world

const (
	MapWidth  = 40
	MapHeight = 18

	MaxHP            = 3
	WallBreakHits    = 4
	MaxEnemiesPerMap = 5
	EnemyHP          = 2
	MaxBullets       = 128
)

// 地图字符
const (
	TileFloor  byte = '.'
	TileWall   byte = '#'
	TilePickup byte = 'X'
	TileGoal   byte = 'W'
	TileSpawn  byte = 'S'
	TileStart  byte = '@'
)

// Cell 世界网格坐标 (worldX, worldY)
type Cell struct{ X, Y int }

// Pos 地图内的格子坐标
type Pos struct{ X, Y int }

func (p Pos) InBounds() bool {
	return p.X >= 0 && p.X < MapWidth && p.Y >= 0 && p.Y < MapHeight
}

func (p Pos) Add(dx, dy int) Pos { return Pos{p.X + dx, p.Y + dy} }

// TileChange 一次需要广播的地块变化
type TileChange struct {
	Cell Cell
	Pos  Pos
	Ch   byte
}

func validTile(c byte) bool {
	switch c {
	case TileFloor, TileWall, TilePickup, TileGoal, TileSpawn, TileStart:
		return true
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
