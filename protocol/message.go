// Package protocol 定义客户端与服务端共用的行文本协议。
// 每条消息一行，以 '\n' 结尾，字段以空格分隔。
package protocol

import "strconv"

// NoOwner 表示 BULLET 行未携带 ownerId
const NoOwner = -1

// Message 所有协议消息的公共接口
type Message interface {
	// AppendTo 将消息编码为一行（含换行符）追加到 dst
	AppendTo(dst []byte) []byte
}

type You struct{ ID int }

type Tick struct{ N int64 }

// Player 玩家快照行；非活跃槽位也会下发（Active=false），以便客户端清理
type Player struct {
	ID, WorldX, WorldY, X, Y, Color int
	Active                          bool
	HP, InvincibleTicks, SuperTicks int
	Score                           int
}

type Tile struct {
	WorldX, WorldY, X, Y int
	Ch                   byte
}

type Bullet struct {
	WorldX, WorldY, X, Y int
	Active               bool
	Owner                int
}

type Enemy struct {
	WorldX, WorldY, X, Y, HP int
}

type Ready struct{}

type Full struct{}

// Input 客户端意图：dx/dy ∈ {-1,0,1}，Shoot 表示本次请求开火
type Input struct {
	DX, DY int
	Shoot  bool
}

type Ping struct{ Timestamp int64 }

type Pong struct{ Timestamp int64 }

type Bye struct{}

func appendInts(dst []byte, tag string, vals ...int) []byte {
	dst = append(dst, tag...)
	for _, v := range vals {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(v), 10)
	}
	return append(dst, '\n')
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (m You) AppendTo(dst []byte) []byte { return appendInts(dst, "YOU", m.ID) }

func (m Tick) AppendTo(dst []byte) []byte {
	dst = append(dst, "TICK "...)
	dst = strconv.AppendInt(dst, m.N, 10)
	return append(dst, '\n')
}

func (m Player) AppendTo(dst []byte) []byte {
	return appendInts(dst, "PLAYER", m.ID, m.WorldX, m.WorldY, m.X, m.Y, m.Color, b2i(m.Active),
		m.HP, m.InvincibleTicks, m.SuperTicks, m.Score)
}

func (m Tile) AppendTo(dst []byte) []byte {
	dst = appendInts(dst, "TILE", m.WorldX, m.WorldY, m.X, m.Y)
	dst[len(dst)-1] = ' '
	return append(dst, m.Ch, '\n')
}

func (m Bullet) AppendTo(dst []byte) []byte {
	if m.Owner == NoOwner {
		return appendInts(dst, "BULLET", m.WorldX, m.WorldY, m.X, m.Y, b2i(m.Active))
	}
	return appendInts(dst, "BULLET", m.WorldX, m.WorldY, m.X, m.Y, b2i(m.Active), m.Owner)
}

func (m Enemy) AppendTo(dst []byte) []byte {
	return appendInts(dst, "ENEMY", m.WorldX, m.WorldY, m.X, m.Y, m.HP)
}

func (Ready) AppendTo(dst []byte) []byte { return append(dst, "READY\n"...) }

func (Full) AppendTo(dst []byte) []byte { return append(dst, "FULL\n"...) }

func (m Input) AppendTo(dst []byte) []byte { return appendInts(dst, "INPUT", m.DX, m.DY, b2i(m.Shoot)) }

func (m Ping) AppendTo(dst []byte) []byte {
	dst = append(dst, "PING "...)
	dst = strconv.AppendInt(dst, m.Timestamp, 10)
	return append(dst, '\n')
}

func (m Pong) AppendTo(dst []byte) []byte {
	dst = append(dst, "PONG "...)
	dst = strconv.AppendInt(dst, m.Timestamp, 10)
	return append(dst, '\n')
}

func (Bye) AppendTo(dst []byte) []byte { return append(dst, "BYE\n"...) }

// Encode 单条消息编码为独立字节切片
func Encode(m Message) []byte {
	return m.AppendTo(nil)
}
