package client

import (
	"sort"
	"time"

	"dungeonarena/protocol"
	"dungeonarena/world"
)

// 渲染频率约 60 FPS 时的换算：服务端子弹每 100ms 前进一格，射击冷却 300ms
const (
	BulletStepTicks    = 6
	PredictedBulletTTL = 30
	ShootCooldownTicks = 18

	matchRadius = 2
)

// State 本地会话状态机
type State int

const (
	StateConnecting State = iota
	StateAwaitingReady
	StatePlaying
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingReady:
		return "awaiting_ready"
	case StatePlaying:
		return "playing"
	}
	return "offline"
}

// Self 本地玩家：位置为预测值，其他字段以服务端为准
type Self struct {
	Cell            world.Cell
	Pos             world.Pos
	Facing          world.Direction
	Color           int
	HP              int
	InvincibleTicks int
	SuperTicks      int
	Score           int
}

type remotePlayer struct {
	track *Track
	info  protocol.Player
}

type bulletTrack struct {
	track *Track
	owner int
}

type enemyTrack struct {
	track *Track
	hp    int
}

type predictedBullet struct {
	cell world.Cell
	pos  world.Pos
	dir  world.Direction
	born int64
}

// EntityView 渲染用的只读视图
type EntityView struct {
	ID        int
	Cell      world.Cell
	Pos       world.Pos
	Color     int
	HP        int
	Owner     int
	Predicted bool
}

// Predictor 客户端预测与平滑。非并发安全，只在渲染循环中调用。
type Predictor struct {
	world *world.World
	now   func() time.Time

	state   State
	offline string
	selfID  int
	self    Self
	hasSelf bool

	players   map[int]*remotePlayer
	bullets   []*bulletTrack
	enemies   []*enemyTrack
	predicted []*predictedBullet

	pendingBullets []protocol.Bullet
	pendingEnemies []protocol.Enemy
	baseBullets    []*bulletTrack
	baseEnemies    []*enemyTrack
	baseBulletPos  []world.Pos
	baseEnemyPos   []world.Pos
	confirmed      int
	batchOpen      bool
	dirty          bool

	serverTick int64
	renderTick int64
	cooldown   int
	rtt        time.Duration
}

// NewPredictor w 为本地地图副本（与服务端相同的地图文件），TILE 更新会写入其中
func NewPredictor(w *world.World) *Predictor {
	return &Predictor{
		world:   w,
		now:     time.Now,
		selfID:  -1,
		players: make(map[int]*remotePlayer),
	}
}

func (p *Predictor) State() State          { return p.state }
func (p *Predictor) SelfID() int           { return p.selfID }
func (p *Predictor) ServerTick() int64     { return p.serverTick }
func (p *Predictor) RenderTick() int64     { return p.renderTick }
func (p *Predictor) RTT() time.Duration    { return p.rtt }
func (p *Predictor) OfflineReason() string { return p.offline }

// Self 本地玩家视图；尚未收到自己的 PLAYER 时返回 false
func (p *Predictor) Self() (Self, bool) { return p.self, p.hasSelf }

// Fail 连接失败或断开，进入离线状态
func (p *Predictor) Fail(reason string) {
	p.state = StateOffline
	p.offline = reason
}

// ApplyAll 按顺序应用一批消息，结束时提交已收到的快照部分
func (p *Predictor) ApplyAll(msgs []protocol.Message) {
	for _, m := range msgs {
		p.Apply(m)
	}
	p.commitBatch()
}

// Apply 应用一条服务端消息
func (p *Predictor) Apply(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.You:
		if p.state == StateConnecting {
			p.selfID = m.ID
			p.state = StateAwaitingReady
		}
	case protocol.Ready:
		if p.state == StateAwaitingReady {
			p.state = StatePlaying
		}
	case protocol.Full:
		p.Fail("server full")
	case protocol.Bye:
		p.Fail("server closed the session")
	case protocol.Tick:
		p.commitBatch()
		p.beginBatch()
		p.serverTick = m.N
	case protocol.Tile:
		p.world.ApplyTile(world.Cell{X: m.WorldX, Y: m.WorldY}, world.Pos{X: m.X, Y: m.Y}, m.Ch)
	case protocol.Player:
		p.applyPlayer(m)
	case protocol.Bullet:
		if m.Active {
			p.pendingBullets = append(p.pendingBullets, m)
			p.dirty = true
		}
	case protocol.Enemy:
		p.pendingEnemies = append(p.pendingEnemies, m)
		p.dirty = true
	case protocol.Pong:
		if rtt := p.now().UnixMilli() - m.Timestamp; rtt >= 0 {
			p.rtt = time.Duration(rtt) * time.Millisecond
		}
	}
}

// Flush 用当前快照已收到的子弹与敌人更新轨迹。ApplyAll 会自动调用；
// 逐条 Apply 时由调用方在一轮消息之后调用，否则要等下一个 TICK。
func (p *Predictor) Flush() { p.commitBatch() }

func (p *Predictor) applyPlayer(m protocol.Player) {
	c, pos := world.Cell{X: m.WorldX, Y: m.WorldY}, world.Pos{X: m.X, Y: m.Y}
	if m.ID == p.selfID {
		if !m.Active {
			p.hasSelf = false
			return
		}
		// 服务端权威：直接覆盖本地预测
		p.self = Self{
			Cell: c, Pos: pos, Facing: p.self.Facing, Color: m.Color,
			HP: m.HP, InvincibleTicks: m.InvincibleTicks, SuperTicks: m.SuperTicks, Score: m.Score,
		}
		if !p.hasSelf {
			p.self.Facing = world.DirRight
		}
		p.hasSelf = true
		return
	}
	if !m.Active {
		delete(p.players, m.ID)
		return
	}
	rp, ok := p.players[m.ID]
	if !ok {
		rp = &remotePlayer{track: newTrack(c, pos, p.renderTick)}
		p.players[m.ID] = rp
	} else {
		rp.track.Observe(c, pos, p.renderTick)
	}
	rp.info = m
}

// beginBatch 新快照开始：记下上一快照的轨迹及其位置作为匹配基准
func (p *Predictor) beginBatch() {
	p.baseBullets = append(p.baseBullets[:0], p.bullets...)
	p.baseBulletPos = p.baseBulletPos[:0]
	for _, b := range p.bullets {
		p.baseBulletPos = append(p.baseBulletPos, b.track.Target)
	}
	p.baseEnemies = append(p.baseEnemies[:0], p.enemies...)
	p.baseEnemyPos = p.baseEnemyPos[:0]
	for _, e := range p.enemies {
		p.baseEnemyPos = append(p.baseEnemyPos, e.track.Target)
	}
	p.pendingBullets = p.pendingBullets[:0]
	p.pendingEnemies = p.pendingEnemies[:0]
	p.confirmed = 0
	p.batchOpen = true
	p.dirty = true
}

// commitBatch 用本快照目前已收到的子弹与敌人重建轨迹列表。
// 快照中实体没有 id，按同一地图内最近距离匹配上一快照的轨迹；
// 同一快照分多次到达时可重复调用，匹配基准不变，结果一致。
func (p *Predictor) commitBatch() {
	if !p.batchOpen || !p.dirty {
		return
	}
	p.dirty = false

	for _, b := range p.pendingBullets[p.confirmed:] {
		if b.Owner == p.selfID && p.selfID >= 0 {
			p.confirmPredicted(world.Cell{X: b.WorldX, Y: b.WorldY}, world.Pos{X: b.X, Y: b.Y})
		}
	}
	p.confirmed = len(p.pendingBullets)

	p.bullets = make([]*bulletTrack, 0, len(p.pendingBullets))
	used := make([]bool, len(p.baseBullets))
	for _, b := range p.pendingBullets {
		c, pos := world.Cell{X: b.WorldX, Y: b.WorldY}, world.Pos{X: b.X, Y: b.Y}
		best, bestD := -1, 0
		for i, t := range p.baseBullets {
			if used[i] || t.owner != b.Owner || t.track.Cell != c {
				continue
			}
			d := manhattan(p.baseBulletPos[i], pos)
			if d <= matchRadius && (best < 0 || d < bestD) {
				best, bestD = i, d
			}
		}
		if best >= 0 {
			used[best] = true
			t := p.baseBullets[best]
			t.track.Observe(c, pos, p.renderTick)
			p.bullets = append(p.bullets, t)
			continue
		}
		p.bullets = append(p.bullets, &bulletTrack{track: newTrack(c, pos, p.renderTick), owner: b.Owner})
	}

	p.enemies = make([]*enemyTrack, 0, len(p.pendingEnemies))
	usedE := make([]bool, len(p.baseEnemies))
	for _, e := range p.pendingEnemies {
		c, pos := world.Cell{X: e.WorldX, Y: e.WorldY}, world.Pos{X: e.X, Y: e.Y}
		best, bestD := -1, 0
		for i, t := range p.baseEnemies {
			if usedE[i] || t.track.Cell != c {
				continue
			}
			d := manhattan(p.baseEnemyPos[i], pos)
			if d <= 1 && (best < 0 || d < bestD) {
				best, bestD = i, d
			}
		}
		if best >= 0 {
			usedE[best] = true
			t := p.baseEnemies[best]
			t.track.Observe(c, pos, p.renderTick)
			t.hp = e.HP
			p.enemies = append(p.enemies, t)
			continue
		}
		p.enemies = append(p.enemies, &enemyTrack{track: newTrack(c, pos, p.renderTick), hp: e.HP})
	}
}

// confirmPredicted 服务端子弹与本地预测子弹在同一射线上且相距不远时，视为同一颗
func (p *Predictor) confirmPredicted(c world.Cell, pos world.Pos) {
	for i, pb := range p.predicted {
		if pb.cell != c || manhattan(pb.pos, pos) > matchRadius {
			continue
		}
		dx, dy := pb.dir.Delta()
		if (dx != 0 && pos.Y != pb.pos.Y) || (dy != 0 && pos.X != pb.pos.X) {
			continue
		}
		p.predicted = append(p.predicted[:i], p.predicted[i+1:]...)
		return
	}
}

// Input 本地输入：PLAYING 之前忽略。移动立即在本地生效（乐观预测），
// 开火在冷却允许时生成预测子弹。返回需要发送给服务端的 INPUT。
func (p *Predictor) Input(dx, dy int, shoot bool) (protocol.Input, bool) {
	if p.state != StatePlaying || !p.hasSelf {
		return protocol.Input{}, false
	}
	s := &p.self
	s.Facing = world.FacingFor(dx, dy, s.Facing)
	if dx != 0 || dy != 0 {
		if c, pos, ok := p.world.ResolveMove(s.Cell, s.Pos, dx, dy, p.blocked); ok {
			s.Cell, s.Pos = c, pos
		}
	}
	if shoot && (s.SuperTicks > 0 || p.cooldown == 0) {
		p.predicted = append(p.predicted, &predictedBullet{cell: s.Cell, pos: s.Pos, dir: s.Facing, born: p.renderTick})
		if s.SuperTicks == 0 {
			p.cooldown = ShootCooldownTicks
		}
	}
	return protocol.Input{DX: clampUnit(dx), DY: clampUnit(dy), Shoot: shoot}, true
}

// blocked 本地碰撞：墙、远端玩家、敌人（按当前显示位置与目标位置判断）
func (p *Predictor) blocked(c world.Cell, pos world.Pos) bool {
	if !p.world.IsOpen(c, pos) {
		return true
	}
	for _, rp := range p.players {
		if rp.track.Cell == c && (rp.track.Target == pos || rp.track.Display == pos) {
			return true
		}
	}
	for _, e := range p.enemies {
		if e.track.Cell == c && e.track.Target == pos {
			return true
		}
	}
	return false
}

// Ping 生成带本地毫秒时间戳的 PING
func (p *Predictor) Ping() protocol.Ping {
	return protocol.Ping{Timestamp: p.now().UnixMilli()}
}

// Advance 推进一个渲染 Tick：平滑远端实体、推进预测子弹、递减本地冷却
func (p *Predictor) Advance() {
	p.renderTick++
	now := p.renderTick
	open := p.world.IsOpen
	for _, rp := range p.players {
		rp.track.Step(now, open)
	}
	for _, b := range p.bullets {
		b.track.Step(now, open)
	}
	for _, e := range p.enemies {
		e.track.Step(now, open)
	}
	if p.cooldown > 0 {
		p.cooldown--
	}

	kept := p.predicted[:0]
	for _, pb := range p.predicted {
		age := now - pb.born
		if age > PredictedBulletTTL {
			continue
		}
		if age > 0 && age%BulletStepTicks == 0 {
			dx, dy := pb.dir.Delta()
			next := pb.pos.Add(dx, dy)
			if !next.InBounds() || !p.world.IsOpen(pb.cell, next) {
				continue
			}
			pb.pos = next
		}
		kept = append(kept, pb)
	}
	for i := len(kept); i < len(p.predicted); i++ {
		p.predicted[i] = nil
	}
	p.predicted = kept
}

// Players 远端玩家的平滑显示位置，按 id 排序
func (p *Predictor) Players() []EntityView {
	out := make([]EntityView, 0, len(p.players))
	for id, rp := range p.players {
		out = append(out, EntityView{ID: id, Cell: rp.track.Cell, Pos: rp.track.Display, Color: rp.info.Color, HP: rp.info.HP, Owner: protocol.NoOwner})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Bullets 服务端子弹（平滑后）加上尚未确认的预测子弹
func (p *Predictor) Bullets() []EntityView {
	out := make([]EntityView, 0, len(p.bullets)+len(p.predicted))
	for i, b := range p.bullets {
		out = append(out, EntityView{ID: i, Cell: b.track.Cell, Pos: b.track.Display, Owner: b.owner})
	}
	for i, pb := range p.predicted {
		out = append(out, EntityView{ID: len(p.bullets) + i, Cell: pb.cell, Pos: pb.pos, Owner: p.selfID, Predicted: true})
	}
	return out
}

func (p *Predictor) Enemies() []EntityView {
	out := make([]EntityView, 0, len(p.enemies))
	for i, e := range p.enemies {
		out = append(out, EntityView{ID: i, Cell: e.track.Cell, Pos: e.track.Display, HP: e.hp, Owner: protocol.NoOwner})
	}
	return out
}

var loadingFrames = []byte{'|', '/', '-', '\\'}

// LoadingFrame READY 之前显示的加载动画帧
func (p *Predictor) LoadingFrame() byte {
	return loadingFrames[(p.renderTick/8)%int64(len(loadingFrames))]
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
