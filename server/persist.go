package server

import (
	"context"
	"time"
)

// saveState 请求由 Tick 循环序列化世界差异后写盘
func (s *Server) saveState() error {
	if s.cfg.StatePath == "" {
		return nil
	}
	return s.world.SaveState(s.cfg.StatePath, s.now())
}

// statePersister 周期性保存世界状态。保存动作通过 persistReq 交给 Tick 循环执行，
// 以保证只在拥有世界的协程中读取世界。
func (s *Server) statePersister(ctx context.Context) {
	if s.cfg.StatePath == "" || s.cfg.StateInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.StateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case s.persistReq <- struct{}{}:
			default:
			}
		}
	}
}
