package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/matryer/way"

	"dungeonarena/config"
)

// Tunables 可在运行期通过 /admin/config 热更新的参数；Tick 开始时读取
type Tunables struct {
	mu               sync.RWMutex
	maxInputsPerTick int
	rateLimit        config.RateLimit
	version          uint64
}

func NewTunables(cfg *config.Config) *Tunables {
	return &Tunables{maxInputsPerTick: cfg.MaxInputsPerTick, rateLimit: cfg.RateLimit}
}

// Snapshot 返回当前值及版本号（版本变化时 Tick 循环重配令牌桶）
func (t *Tunables) Snapshot() (maxInputs int, rl config.RateLimit, version uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxInputsPerTick, t.rateLimit, t.version
}

type tunablesPatch struct {
	MaxInputsPerTick *int `json:"maxInputsPerTick,omitempty"`
	RateCapacity     *int `json:"rateCapacity,omitempty"`
	RateRefillTicks  *int `json:"rateRefillTicks,omitempty"`
	RateRefillAmount *int `json:"rateRefillAmount,omitempty"`
}

func (t *Tunables) apply(p tunablesPatch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.MaxInputsPerTick != nil && *p.MaxInputsPerTick > 0 {
		t.maxInputsPerTick = *p.MaxInputsPerTick
	}
	if p.RateCapacity != nil && *p.RateCapacity > 0 {
		t.rateLimit.Capacity = *p.RateCapacity
	}
	if p.RateRefillTicks != nil && *p.RateRefillTicks > 0 {
		t.rateLimit.RefillTicks = *p.RateRefillTicks
	}
	if p.RateRefillAmount != nil && *p.RateRefillAmount >= 0 {
		t.rateLimit.RefillAmount = *p.RateRefillAmount
	}
	t.version++
}

// SessionInfo /sessions 输出的单个会话
type SessionInfo struct {
	Slot      int    `json:"slot"`
	ConnID    uint64 `json:"connId"`
	Transport string `json:"transport"`
	Addr      string `json:"addr"`
	WorldX    int    `json:"wx"`
	WorldY    int    `json:"wy"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	HP        int    `json:"hp"`
	Score     int    `json:"score"`
	Tokens    int    `json:"tokens"`
}

// AdminHandler 管理与监控接口
func (s *Server) AdminHandler() http.Handler {
	r := way.NewRouter()
	r.HandleFunc(http.MethodGet, "/admin/config", s.handleGetConfig)
	r.HandleFunc(http.MethodPost, "/admin/config", s.handlePostConfig)
	r.HandleFunc(http.MethodGet, "/metrics", s.handleMetrics)
	r.HandleFunc(http.MethodGet, "/sessions", s.handleSessions)
	r.HandleFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	maxInputs, rl, _ := s.tunables.Snapshot()
	writeJSON(w, map[string]any{
		"maxInputsPerTick": maxInputs,
		"rateLimit":        rl,
		"tickRate":         s.cfg.TickRate,
		"maxPlayers":       s.cfg.MaxPlayers,
	})
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var body tunablesPatch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.tunables.apply(body)
	maxInputs, rl, _ := s.tunables.Snapshot()
	Log.Infof("config updated: maxInputsPerTick=%d rate=[cap=%d every=%d +%d]",
		maxInputs, rl.Capacity, rl.RefillTicks, rl.RefillAmount)
	writeJSON(w, map[string]any{"ok": true})
}

// handleMetrics GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.viewMu.RLock()
	players := len(s.view)
	s.viewMu.RUnlock()
	writeJSON(w, map[string]any{
		"players": players,
		"metrics": s.metrics.Snapshot(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.viewMu.RLock()
	out := append([]SessionInfo(nil), s.view...)
	s.viewMu.RUnlock()
	writeJSON(w, out)
}

// publishView 由 Tick 循环调用，复制一份会话视图供 HTTP 协程读取
func (s *Server) publishView() {
	view := make([]SessionInfo, 0, s.sessions.Capacity())
	for _, sess := range s.sessions.Active() {
		p := &s.world.Players[sess.Slot]
		view = append(view, SessionInfo{
			Slot: sess.Slot, ConnID: sess.ConnID, Transport: sess.Transport.String(), Addr: sess.Addr,
			WorldX: p.Cell.X, WorldY: p.Cell.Y, X: p.Pos.X, Y: p.Pos.Y,
			HP: p.HP, Score: p.Score, Tokens: sess.bucket.Tokens(),
		})
	}
	s.viewMu.Lock()
	s.view = view
	s.viewMu.Unlock()
}
