package server

import (
	"errors"

	"dungeonarena/protocol"
)

// processInput 消费会话行缓冲中的入站行。
// 每 Tick 最多应用 maxInputs 个 INPUT，剩余行留到下一 Tick；
// 令牌耗尽的 INPUT 被静默丢弃，不占用本 Tick 的名额。
func (s *Server) processInput(sess *Session, maxInputs int) {
	applied := 0
	for applied < maxInputs {
		line, ok := sess.lines.Next()
		if !ok {
			return
		}
		msg, err := protocol.Parse(line)
		if err != nil {
			if !errors.Is(err, protocol.ErrEmpty) {
				inc(&s.metrics.MalformedLines)
				Log.Debugf("skip line slot=%d: %v", sess.Slot, err)
			}
			continue
		}
		switch m := msg.(type) {
		case protocol.Input:
			if !sess.bucket.Allow() {
				inc(&s.metrics.RateLimited)
				continue
			}
			s.sim.ApplyInput(sess.Slot, m)
			sess.lastActive = s.now()
			inc(&s.metrics.InputsAccepted)
			applied++
		case protocol.Ping:
			sess.Send(protocol.Encode(protocol.Pong{Timestamp: m.Timestamp}))
		case protocol.Bye:
			s.disconnect(sess, ReasonBye)
			return
		default:
			// 服务端下行消息出现在上行方向，忽略
			inc(&s.metrics.MalformedLines)
		}
	}
}
