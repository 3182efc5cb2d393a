package server

import (
	"math/rand"
	"time"

	"dungeonarena/protocol"
	"dungeonarena/world"
)

const (
	shootCooldown   = 300 * time.Millisecond
	invincibleAfter = 3 * time.Second
	superDuration   = 5 * time.Second

	enemyKillScore  = 1
	playerKillScore = 10
)

// Simulation 每 Tick 的权威更新规则。只在 Tick 循环中调用。
type Simulation struct {
	w       *world.World
	metrics *Metrics
	rng     *rand.Rand

	cooldownTicks   int
	invincibleTicks int
	superTicks      int
}

func NewSimulation(w *world.World, tickRate int, m *Metrics, rng *rand.Rand) *Simulation {
	if tickRate <= 0 {
		tickRate = 20
	}
	if m == nil {
		m = &Metrics{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ticks := func(d time.Duration) int {
		n := int(d * time.Duration(tickRate) / time.Second)
		if n < 1 {
			return 1
		}
		return n
	}
	return &Simulation{
		w:               w,
		metrics:         m,
		rng:             rng,
		cooldownTicks:   ticks(shootCooldown),
		invincibleTicks: ticks(invincibleAfter),
		superTicks:      ticks(superDuration),
	}
}

// Spawn 将玩家放到最近出生点附近
func (sim *Simulation) Spawn(slot int) {
	p := &sim.w.Players[slot]
	c, pos := sim.w.RespawnPoint(sim.w.Center(), slot)
	*p = world.Player{
		Active: true,
		Cell:   c,
		Pos:    pos,
		Facing: world.DirRight,
		Color:  slot,
		HP:     world.MaxHP,
	}
}

// Despawn 清空槽位，该玩家发射的子弹随之失效
func (sim *Simulation) Despawn(slot int) {
	sim.w.Players[slot] = world.Player{}
	for i := range sim.w.Bullets {
		if sim.w.Bullets[i].Owner == slot {
			sim.w.Bullets[i].Active = false
		}
	}
}

// ApplyInput 处理一个 INPUT：先移动（含跨图与碰撞），再按需开火
func (sim *Simulation) ApplyInput(slot int, in protocol.Input) {
	w := sim.w
	p := &w.Players[slot]
	if !p.Active {
		return
	}
	p.Facing = world.FacingFor(in.DX, in.DY, p.Facing)
	if in.DX != 0 || in.DY != 0 {
		blocked := func(c world.Cell, pos world.Pos) bool { return w.Blocked(c, pos, slot) }
		if c, pos, ok := w.ResolveMove(p.Cell, p.Pos, in.DX, in.DY, blocked); ok {
			p.Cell, p.Pos = c, pos
		}
	}
	if in.Shoot && (p.SuperTicks > 0 || p.ShootCooldown == 0) {
		if w.FireBullet(slot, p.Cell, p.Pos, p.Facing) >= 0 {
			inc(&sim.metrics.BulletsFired)
			if p.SuperTicks == 0 {
				p.ShootCooldown = sim.cooldownTicks
			}
		}
	}
}

// StepBullets 子弹前进一格；命中优先级：敌人 → 玩家 → 墙
func (sim *Simulation) StepBullets() {
	w := sim.w
	for i := range w.Bullets {
		b := &w.Bullets[i]
		if !b.Active {
			continue
		}
		dx, dy := b.Dir.Delta()
		next := b.Pos.Add(dx, dy)
		if !next.InBounds() {
			b.Active = false
			continue
		}
		if e := w.EnemyAt(b.Cell, next); e >= 0 {
			b.Active = false
			sim.hitEnemy(b.Owner, b.Cell, e)
			continue
		}
		if v := w.PlayerAt(b.Cell, next, b.Owner); v >= 0 {
			b.Active = false
			sim.hitPlayer(b.Owner, v)
			continue
		}
		if w.Tile(b.Cell, next) == world.TileWall {
			b.Active = false
			if w.DamageWall(b.Cell, next) {
				inc(&sim.metrics.WallsDestroyed)
			}
			continue
		}
		b.Pos = next
	}
}

func (sim *Simulation) hitEnemy(shooter int, c world.Cell, idx int) {
	e := &sim.w.Map(c).Enemies[idx]
	e.HP--
	if e.HP > 0 {
		return
	}
	e.Active = false
	inc(&sim.metrics.EnemiesKilled)
	if sh := sim.player(shooter); sh != nil {
		sh.Score += enemyKillScore
	}
}

func (sim *Simulation) hitPlayer(shooter, victim int) {
	v := &sim.w.Players[victim]
	if v.InvincibleTicks > 0 {
		return
	}
	v.HP--
	v.InvincibleTicks = sim.invincibleTicks
	if v.HP > 0 {
		return
	}
	inc(&sim.metrics.PlayerKills)
	if sh := sim.player(shooter); sh != nil {
		sh.Score += playerKillScore
	}
	sim.respawn(victim)
}

func (sim *Simulation) player(slot int) *world.Player {
	if slot < 0 || slot >= len(sim.w.Players) || !sim.w.Players[slot].Active {
		return nil
	}
	return &sim.w.Players[slot]
}

// respawn 死亡后回到出生点附近，生命回满并获得短暂无敌
func (sim *Simulation) respawn(slot int) {
	p := &sim.w.Players[slot]
	inc(&sim.metrics.PlayerDeaths)
	p.Cell, p.Pos = sim.w.RespawnPoint(p.Cell, slot)
	p.HP = world.MaxHP
	p.InvincibleTicks = sim.invincibleTicks
	p.SuperTicks = 0
}

// StepEnemies 有玩家的地图中，每个敌人随机朝一个正交方向走一步
func (sim *Simulation) StepEnemies(occupied map[world.Cell]bool) {
	w := sim.w
	for wy := 0; wy < w.Height; wy++ {
		for wx := 0; wx < w.Width; wx++ {
			c := world.Cell{X: wx, Y: wy}
			if !occupied[c] {
				continue
			}
			m := w.Map(c)
			for i := range m.Enemies {
				e := &m.Enemies[i]
				if !e.Active {
					continue
				}
				dx, dy := world.Direction(sim.rng.Intn(4) + 1).Delta()
				next := e.Pos.Add(dx, dy)
				if next.InBounds() && w.IsOpen(c, next) && w.EnemyAt(c, next) < 0 {
					e.Pos = next
				}
			}
		}
	}
}

// ContactDamage 与敌人同格的玩家掉血（出生点地图内与无敌期间除外）
func (sim *Simulation) ContactDamage() {
	w := sim.w
	for i := range w.Players {
		p := &w.Players[i]
		if !p.Active || p.InvincibleTicks > 0 || w.Map(p.Cell).HasSpawn {
			continue
		}
		if w.EnemyAt(p.Cell, p.Pos) < 0 {
			continue
		}
		p.HP--
		p.InvincibleTicks = sim.invincibleTicks
		if p.HP <= 0 {
			sim.respawn(i)
		}
	}
}

// Pickups 踩到 X：生命回满、超级模式、无敌，地块变为地板
func (sim *Simulation) Pickups() {
	w := sim.w
	for i := range w.Players {
		p := &w.Players[i]
		if !p.Active || w.Tile(p.Cell, p.Pos) != world.TilePickup {
			continue
		}
		p.HP = world.MaxHP
		p.SuperTicks = sim.superTicks
		p.InvincibleTicks = sim.invincibleTicks
		w.SetTile(p.Cell, p.Pos, world.TileFloor)
		inc(&sim.metrics.PickupsTaken)
	}
}

// DecrementTimers 递减无敌、超级与射击冷却计时
func (sim *Simulation) DecrementTimers() {
	for i := range sim.w.Players {
		p := &sim.w.Players[i]
		if !p.Active {
			continue
		}
		if p.InvincibleTicks > 0 {
			p.InvincibleTicks--
		}
		if p.SuperTicks > 0 {
			p.SuperTicks--
		}
		if p.ShootCooldown > 0 {
			p.ShootCooldown--
		}
	}
}
