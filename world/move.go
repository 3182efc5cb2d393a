package world

// ResolveMove 计算一次单步移动的结果。
// 先处理跨世界格：沿 X 跨越时保留 Y，沿 Y 跨越时保留 X，一次输入最多跨越一个轴；
// 然后交给 blocked 做碰撞判定。服务端与客户端预测共用此函数。
func (w *World) ResolveMove(c Cell, p Pos, dx, dy int, blocked func(Cell, Pos) bool) (Cell, Pos, bool) {
	dx, dy = clampUnit(dx), clampUnit(dy)
	if dx == 0 && dy == 0 {
		return c, p, false
	}
	nc, np := c, p.Add(dx, dy)
	switch {
	case dx != 0 && (np.X < 0 || np.X >= MapWidth):
		if np.X < 0 {
			nc.X--
			np.X = MapWidth - 1
		} else {
			nc.X++
			np.X = 0
		}
		np.Y = p.Y
	case dy != 0 && (np.Y < 0 || np.Y >= MapHeight):
		if np.Y < 0 {
			nc.Y--
			np.Y = MapHeight - 1
		} else {
			nc.Y++
			np.Y = 0
		}
		np.X = p.X
	}
	if !w.InBounds(nc) {
		return c, p, false
	}
	if blocked == nil {
		blocked = func(c Cell, p Pos) bool { return !w.IsOpen(c, p) }
	}
	if blocked(nc, np) {
		return c, p, false
	}
	return nc, np, true
}

func clampUnit(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
