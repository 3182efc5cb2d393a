package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"dungeonarena/protocol"
	"dungeonarena/world"
	"dungeonarena/wsframe"
)

// Run Tick 循环：处理网络事件，按固定频率推进世界并广播。
// 世界状态与会话表只在此协程中读写。
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()
	s.readyOnce.Do(func() { close(s.ready) })
	Log.Infof("tick loop started: %d TPS, %d slots", s.cfg.TickRate, s.cfg.MaxPlayers)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		case <-s.persistReq:
			if err := s.saveState(); err != nil {
				Log.Errorf("save state: %v", err)
			}
		case <-ticker.C:
			// 核心循环：处理输入 → 更新世界 → 广播结果
			start := time.Now()
			s.step()
			s.metrics.AddTick(time.Since(start).Nanoseconds())
		}
	}
}

func (s *Server) handleEvent(ctx context.Context, ev netEvent) {
	switch ev.kind {
	case evAccept:
		s.accept(ctx, ev.conn, ev.transport)
	case evData:
		sess := s.sessions.Lookup(ev.id)
		if sess == nil {
			return
		}
		s.receive(sess, ev.data)
	case evClosed:
		sess := s.sessions.Lookup(ev.id)
		if sess == nil {
			return
		}
		reason := ReasonClosed
		if ev.err != nil && !errors.Is(ev.err, io.EOF) && !errors.Is(ev.err, net.ErrClosed) {
			reason = ReasonError
			Log.Debugf("read cid=%d: %v", sess.ConnID, ev.err)
		}
		s.disconnect(sess, reason)
	}
}

// accept 登记新连接。原始连接立即分配槽位；WebSocket 先进入握手状态。
func (s *Server) accept(ctx context.Context, nc net.Conn, t Transport) {
	_, rl, _ := s.tunables.Snapshot()
	sess := newSession(s.sessions.NextConnID(), t, nc, rl, s.now())
	s.sessions.Add(sess)
	go s.readLoop(ctx, sess.ConnID, nc)
	if t == TransportRaw {
		s.join(sess)
	}
}

// receive 处理入站字节：WebSocket 解帧（可能完成握手），再放入行缓冲等待 Tick 消费
func (s *Server) receive(sess *Session, data []byte) {
	if sess.codec != nil {
		wasOpen := sess.Open()
		reply, payload, err := sess.codec.Feed(data)
		if len(reply) > 0 {
			sess.conn.Enqueue(reply)
		}
		if !wasOpen && sess.Open() {
			inc(&s.metrics.HandshakesOK)
			if !s.join(sess) {
				return
			}
		}
		if err != nil {
			switch {
			case !wasOpen:
				inc(&s.metrics.HandshakesFailed)
				Log.Warnf("handshake failed cid=%d addr=%s: %v", sess.ConnID, sess.Addr, err)
				s.disconnect(sess, ReasonHandshake)
			case errors.Is(err, wsframe.ErrClosed):
				s.disconnect(sess, ReasonClosed)
			default:
				Log.Warnf("ws frame cid=%d: %v", sess.ConnID, err)
				s.disconnect(sess, ReasonError)
			}
			return
		}
		data = payload
	}
	if len(data) == 0 {
		return
	}
	if dropped := sess.lines.Write(data); dropped > 0 {
		add(&s.metrics.LineOverflow, int64(dropped))
	}
}

// join 分配槽位并发送初始快照：YOU、全部差异地块、READY。满员时发送 FULL 并关闭。
func (s *Server) join(sess *Session) bool {
	if !s.sessions.Assign(sess) {
		inc(&s.metrics.SessionsRefused)
		Log.Infof("refused cid=%d addr=%s: server full", sess.ConnID, sess.Addr)
		sess.Send(protocol.Encode(protocol.Full{}))
		s.sessions.Release(sess)
		sess.conn.Close()
		return false
	}
	s.sim.Spawn(sess.Slot)
	sess.joined = true
	sess.lastActive = s.now()
	inc(&s.metrics.SessionsOpened)

	p := &s.world.Players[sess.Slot]
	buf := protocol.You{ID: sess.Slot}.AppendTo(nil)
	for _, ch := range s.world.Overrides() {
		buf = tileLine(buf, ch)
	}
	buf = protocol.Ready{}.AppendTo(buf)
	sess.Send(buf)

	Log.Infof("connect slot=%d cid=%d transport=%s addr=%s color=%d spawn=(%d,%d)/(%d,%d)",
		sess.Slot, sess.ConnID, sess.Transport, sess.Addr, p.Color, p.Cell.X, p.Cell.Y, p.Pos.X, p.Pos.Y)
	s.journalEvent("connect", map[string]any{
		"slot": sess.Slot, "cid": sess.ConnID, "transport": sess.Transport.String(), "addr": sess.Addr,
	})
	return true
}

// disconnect 结束会话并释放槽位；超时与停机时先向对端发送 BYE
func (s *Server) disconnect(sess *Session, reason CloseReason) {
	if s.sessions.Lookup(sess.ConnID) == nil {
		return
	}
	s.metrics.IncClosed(reason)
	if reason == ReasonTimeout || reason == ReasonShutdown {
		sess.Send(protocol.Encode(protocol.Bye{}))
	}
	s.sessions.Release(sess)
	sess.conn.Close()
	if sess.Slot >= 0 && sess.joined {
		s.sim.Despawn(sess.Slot)
		Log.Infof("disconnect slot=%d cid=%d reason=%s", sess.Slot, sess.ConnID, reason)
		s.journalEvent("disconnect", map[string]any{"slot": sess.Slot, "cid": sess.ConnID, "reason": string(reason)})
	} else {
		Log.Debugf("dropped pending cid=%d reason=%s", sess.ConnID, reason)
	}
}

// step 一个完整 Tick：输入 → 子弹 → 敌人 → 接触伤害 → 拾取 → 计时器 → 广播 → 超时检查
func (s *Server) step() {
	s.tick++
	maxInputs, rl, version := s.tunables.Snapshot()
	for _, sess := range s.sessions.Active() {
		if sess.bucketVersion != version {
			sess.bucket.Reconfigure(rl)
			sess.bucketVersion = version
		}
		s.processInput(sess, maxInputs)
	}

	occupied := s.world.OccupiedCells()
	if s.tick%2 == 0 {
		s.sim.StepBullets()
	}
	if s.tick%3 == 0 {
		s.sim.StepEnemies(occupied)
	}
	s.sim.ContactDamage()
	s.sim.Pickups()
	s.sim.DecrementTimers()
	for _, sess := range s.sessions.Active() {
		sess.bucket.Tick()
	}

	occupied = s.world.OccupiedCells()
	s.repopulate(occupied)
	s.broadcast(occupied)
	s.expire()
	s.publishView()
}

// repopulate 敌人被清空的地图在玩家离开后重新生成敌人
func (s *Server) repopulate(occupied map[world.Cell]bool) {
	for c := range s.lastOccupied {
		if occupied[c] {
			continue
		}
		if m := s.world.Map(c); m != nil && m.ActiveEnemies() == 0 {
			if n := s.world.SpawnEnemies(c, s.cfg.EnemiesPerMap); n > 0 {
				Log.Debugf("repopulated map (%d,%d) with %d enemies", c.X, c.Y, n)
			}
		}
	}
	s.lastOccupied = occupied
}

// expire 空闲超时与握手超时
func (s *Server) expire() {
	now := s.now()
	for _, sess := range s.sessions.All() {
		switch {
		case !sess.Open() && now.Sub(sess.acceptedAt) > s.handshakeLimit:
			inc(&s.metrics.HandshakesFailed)
			Log.Warnf("handshake timeout cid=%d addr=%s", sess.ConnID, sess.Addr)
			s.disconnect(sess, ReasonHandshake)
		case now.Sub(sess.lastActive) > s.cfg.IdleTimeout:
			Log.Infof("idle timeout slot=%d cid=%d", sess.Slot, sess.ConnID)
			s.disconnect(sess, ReasonTimeout)
		}
	}
}

// shutdown 通知所有会话并关闭连接
func (s *Server) shutdown() {
	for _, sess := range s.sessions.All() {
		s.disconnect(sess, ReasonShutdown)
	}
	if err := s.saveState(); err != nil {
		Log.Errorf("save state: %v", err)
	}
	Log.Infof("tick loop stopped at tick %d", s.tick)
}
