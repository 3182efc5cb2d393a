package server

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"dungeonarena/config"
	"dungeonarena/journal"
	"dungeonarena/world"
)

// Server 权威服务端：单个 Tick 循环协程独占世界状态与会话表，网络协程只投递事件
type Server struct {
	cfg      *config.Config
	world    *world.World
	sessions *SessionManager
	sim      *Simulation
	metrics  *Metrics
	tunables *Tunables
	journal  *journal.Writer

	now        func() time.Time
	events     chan netEvent
	persistReq chan struct{}
	tick       int64

	handshakeLimit time.Duration
	lastOccupied   map[world.Cell]bool

	viewMu sync.RWMutex
	view   []SessionInfo

	readyOnce sync.Once
	ready     chan struct{}
}

type Option func(*Server)

// WithClock 替换时间源（测试用）
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithJournal 每个广播快照与会话事件写入日志
func WithJournal(j *journal.Writer) Option {
	return func(s *Server) { s.journal = j }
}

// WithRand 替换敌人游走使用的随机源
func WithRand(rng *rand.Rand) Option {
	return func(s *Server) {
		if rng != nil {
			s.sim.rng = rng
		}
	}
}

// New 创建服务端；世界由调用方加载（含敌人生成与状态恢复）
func New(cfg *config.Config, w *world.World, opts ...Option) (*Server, error) {
	if cfg == nil || w == nil {
		return nil, fmt.Errorf("server: config and world are required")
	}
	if len(w.Players) != cfg.MaxPlayers {
		return nil, fmt.Errorf("server: world has %d player slots, config wants %d", len(w.Players), cfg.MaxPlayers)
	}
	s := &Server{
		cfg:            cfg,
		world:          w,
		sessions:       NewSessionManager(cfg.MaxPlayers),
		metrics:        &Metrics{},
		tunables:       NewTunables(cfg),
		now:            time.Now,
		events:         make(chan netEvent, 1024),
		persistReq:     make(chan struct{}, 1),
		handshakeLimit: cfg.HandshakeTimeout,
		lastOccupied:   map[world.Cell]bool{},
		ready:          make(chan struct{}),
	}
	s.sim = NewSimulation(w, cfg.TickRate, s.metrics, w.Rand())
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Metrics() *Metrics      { return s.metrics }
func (s *Server) Tunables() *Tunables    { return s.tunables }
func (s *Server) World() *world.World    { return s.world }
func (s *Server) Config() *config.Config { return s.cfg }

// Ready 在 Tick 循环开始运行后关闭
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Serve 在给定监听器上接受连接并运行 Tick 循环，直到 ctx 取消。
// 任一监听器可为 nil。
func (s *Server) Serve(ctx context.Context, rawLn, wsLn net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, l := range []struct {
		ln net.Listener
		t  Transport
	}{{rawLn, TransportRaw}, {wsLn, TransportWS}} {
		if l.ln == nil {
			continue
		}
		Log.Infof("listening %s on %s", l.t, l.ln.Addr())
		wg.Add(1)
		go func(ln net.Listener, t Transport) {
			defer wg.Done()
			s.acceptLoop(ctx, ln, t)
		}(l.ln, l.t)
	}
	go s.statePersister(ctx)
	go func() {
		<-ctx.Done()
		if rawLn != nil {
			rawLn.Close()
		}
		if wsLn != nil {
			wsLn.Close()
		}
	}()

	err := s.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// ListenAndServe 按配置监听两个端口
func (s *Server) ListenAndServe(ctx context.Context) error {
	var rawLn, wsLn net.Listener
	var err error
	if s.cfg.RawAddr != "" {
		if rawLn, err = net.Listen("tcp", s.cfg.RawAddr); err != nil {
			return fmt.Errorf("listen raw %s: %w", s.cfg.RawAddr, err)
		}
	}
	if s.cfg.WSAddr != "" {
		if wsLn, err = net.Listen("tcp", s.cfg.WSAddr); err != nil {
			if rawLn != nil {
				rawLn.Close()
			}
			return fmt.Errorf("listen ws %s: %w", s.cfg.WSAddr, err)
		}
	}
	return s.Serve(ctx, rawLn, wsLn)
}
