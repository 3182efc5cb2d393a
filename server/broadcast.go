package server

import (
	"dungeonarena/protocol"
	"dungeonarena/world"
	"dungeonarena/wsframe"
)

func tileLine(dst []byte, ch world.TileChange) []byte {
	return protocol.Tile{WorldX: ch.Cell.X, WorldY: ch.Cell.Y, X: ch.Pos.X, Y: ch.Pos.Y, Ch: ch.Ch}.AppendTo(dst)
}

// buildSnapshot 序列化本 Tick 的快照：地块变化、TICK、全部槽位的 PLAYER、
// 活跃子弹，以及有玩家的地图中的敌人
func (s *Server) buildSnapshot(changes []world.TileChange, occupied map[world.Cell]bool) []byte {
	w := s.world
	buf := make([]byte, 0, 64*(len(changes)+len(w.Players)+8))
	for _, ch := range changes {
		buf = tileLine(buf, ch)
	}
	buf = protocol.Tick{N: s.tick}.AppendTo(buf)
	for i := range w.Players {
		p := &w.Players[i]
		buf = protocol.Player{
			ID: i, WorldX: p.Cell.X, WorldY: p.Cell.Y, X: p.Pos.X, Y: p.Pos.Y, Color: p.Color, Active: p.Active,
			HP: p.HP, InvincibleTicks: p.InvincibleTicks, SuperTicks: p.SuperTicks, Score: p.Score,
		}.AppendTo(buf)
	}
	for i := range w.Bullets {
		b := &w.Bullets[i]
		if !b.Active {
			continue
		}
		buf = protocol.Bullet{WorldX: b.Cell.X, WorldY: b.Cell.Y, X: b.Pos.X, Y: b.Pos.Y, Active: true, Owner: b.Owner}.AppendTo(buf)
	}
	for wy := 0; wy < w.Height; wy++ {
		for wx := 0; wx < w.Width; wx++ {
			c := world.Cell{X: wx, Y: wy}
			if !occupied[c] {
				continue
			}
			for _, e := range w.Map(c).Enemies {
				if e.Active {
					buf = protocol.Enemy{WorldX: wx, WorldY: wy, X: e.Pos.X, Y: e.Pos.Y, HP: e.HP}.AppendTo(buf)
				}
			}
		}
	}
	return buf
}

// broadcast 同一份字节扇出给所有已加入的会话；WebSocket 会话共享同一个封好的帧
func (s *Server) broadcast(occupied map[world.Cell]bool) {
	changes := s.world.DrainChanges()
	raw := s.buildSnapshot(changes, occupied)
	var framed []byte
	for _, sess := range s.sessions.Active() {
		if !sess.joined {
			continue
		}
		if sess.Transport == TransportWS && framed == nil {
			framed = wsframe.AppendText(nil, raw)
		}
		if !sess.sendFramed(raw, framed) {
			inc(&s.metrics.SendDropped)
		}
	}
	for _, ch := range changes {
		s.journalEvent("tile", map[string]any{"wx": ch.Cell.X, "wy": ch.Cell.Y, "x": ch.Pos.X, "y": ch.Pos.Y, "ch": string(ch.Ch)})
	}
	if s.journal != nil {
		if err := s.journal.AppendFrame(s.tick, raw); err != nil {
			Log.Warnf("journal frame: %v", err)
		}
	}
}

func (s *Server) journalEvent(typ string, fields map[string]any) {
	if s.journal == nil {
		return
	}
	if err := s.journal.AppendEvent(s.tick, typ, fields); err != nil {
		Log.Warnf("journal event %s: %v", typ, err)
	}
}
