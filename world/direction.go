package world

// Direction 朝向（子弹飞行方向取自玩家最近一次移动意图）
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

// Delta 返回单步位移
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	}
	return 0, 0
}

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	}
	return "none"
}

// FacingFor 由移动意图推导朝向；水平分量优先。无移动时保持 cur。
func FacingFor(dx, dy int, cur Direction) Direction {
	switch {
	case dx < 0:
		return DirLeft
	case dx > 0:
		return DirRight
	case dy < 0:
		return DirUp
	case dy > 0:
		return DirDown
	}
	return cur
}
