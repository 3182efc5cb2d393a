package client

import "dungeonarena/world"

const (
	// InterpolationTicks 目标变化后的这段渲染 Tick 内，显示位置每 Tick 向目标走一格
	InterpolationTicks = 4
	// ExtrapolationTicks 超过插值窗口但未超过该值时，沿最近移动方向最多外推一格
	ExtrapolationTicks = 10
	// SnapDistance 显示位置与目标相距超过该格数时直接跳到目标（重生、传送）
	SnapDistance = 3
)

// Track 远端实体的平滑状态：上一次与当前的服务端位置，以及目标变化时的渲染 Tick
type Track struct {
	Cell      world.Cell
	Prev      world.Pos
	Target    world.Pos
	Display   world.Pos
	ChangedAt int64
}

func newTrack(c world.Cell, p world.Pos, now int64) *Track {
	return &Track{Cell: c, Prev: p, Target: p, Display: p, ChangedAt: now}
}

// Observe 记录新的服务端位置。换地图时立即跳转。
func (t *Track) Observe(c world.Cell, p world.Pos, now int64) {
	if c != t.Cell {
		*t = *newTrack(c, p, now)
		return
	}
	if p == t.Target {
		return
	}
	t.Prev, t.Target, t.ChangedAt = t.Target, p, now
	if manhattan(t.Display, t.Target) > SnapDistance {
		t.Display = t.Target
	}
}

// Step 推进一个渲染 Tick。open 用于判断外推的格子是否可走。
func (t *Track) Step(now int64, open func(world.Cell, world.Pos) bool) {
	since := now - t.ChangedAt
	switch {
	case since <= InterpolationTicks:
		t.Display = stepToward(t.Display, t.Target)
	case since <= ExtrapolationTicks:
		goal := t.Target
		dx, dy := sign(t.Target.X-t.Prev.X), sign(t.Target.Y-t.Prev.Y)
		if dx != 0 || dy != 0 {
			ahead := t.Target.Add(dx, dy)
			if ahead.InBounds() && (open == nil || open(t.Cell, ahead)) {
				goal = ahead
			}
		}
		t.Display = stepToward(t.Display, goal)
	default:
		t.Display = t.Target
	}
}

// stepToward 每次只沿一个轴移动一格，先 X 后 Y，不会越过目标
func stepToward(from, to world.Pos) world.Pos {
	switch {
	case from.X != to.X:
		from.X += sign(to.X - from.X)
	case from.Y != to.Y:
		from.Y += sign(to.Y - from.Y)
	}
	return from
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

func manhattan(a, b world.Pos) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
