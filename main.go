package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dungeonarena/client"
	"dungeonarena/config"
	"dungeonarena/journal"
	"dungeonarena/server"
	"dungeonarena/world"
)

// DungeonArena 入口：默认启动权威服务端（原始 TCP + WebSocket + 管理 HTTP），
// -bot 模式下作为无界面客户端连接到服务端
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	var (
		botAddr     string
		botWS       bool
		botDuration time.Duration
	)
	flag.StringVar(&cfg.RawAddr, "addr", cfg.RawAddr, "raw TCP listen address, empty disables")
	flag.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "WebSocket listen address, empty disables")
	flag.StringVar(&cfg.AdminAddr, "admin", cfg.AdminAddr, "admin HTTP address, empty disables")
	flag.StringVar(&cfg.MapDir, "maps", cfg.MapDir, "directory of x<wx>-y<wy>.txt map files")
	flag.IntVar(&cfg.TickRate, "tps", cfg.TickRate, "simulation ticks per second")
	flag.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "session slots")
	flag.StringVar(&cfg.StatePath, "state", cfg.StatePath, "world state file, empty disables persistence")
	flag.StringVar(&cfg.JournalDir, "journal", cfg.JournalDir, "snapshot journal directory, empty disables")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug, info, warn or error")
	flag.StringVar(&cfg.Logging.Path, "log", cfg.Logging.Path, "log file, empty logs to stdout only")
	flag.StringVar(&botAddr, "bot", "", "run a headless bot against host[:port] instead of a server")
	flag.BoolVar(&botWS, "ws", false, "bot uses the WebSocket transport")
	flag.DurationVar(&botDuration, "bot-duration", 0, "stop the bot after this long, 0 runs until interrupted")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := server.InitLogger(cfg.Logging); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if botAddr != "" {
		runBot(ctx, cfg, botAddr, botWS, botDuration)
		return
	}
	if err := runServer(ctx, cfg); err != nil {
		server.Log.Errorf("server: %v", err)
		server.SyncLogger()
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	w, err := world.Load(cfg.MapDir, cfg.WorldWidth, cfg.WorldHeight, cfg.MaxPlayers, rng)
	if err != nil {
		return err
	}
	if cfg.StatePath != "" {
		if err := w.LoadState(cfg.StatePath); err != nil {
			return fmt.Errorf("load state: %w", err)
		}
	}
	n := w.PopulateAll(cfg.EnemiesPerMap)
	server.Log.Infof("world %dx%d loaded from %s, %d enemies", cfg.WorldWidth, cfg.WorldHeight, cfg.MapDir, n)

	var opts []server.Option
	if cfg.JournalDir != "" {
		j, err := journal.Open(cfg.JournalDir, nil)
		if err != nil {
			return err
		}
		defer j.Close()
		server.Log.Infof("journal at %s", j.Dir())
		opts = append(opts, server.WithJournal(j))
	}
	opts = append(opts, server.WithRand(rng))
	s, err := server.New(cfg, w, opts...)
	if err != nil {
		return err
	}

	if cfg.AdminAddr != "" {
		admin := &http.Server{Addr: cfg.AdminAddr, Handler: s.AdminHandler()}
		go func() {
			server.Log.Infof("admin listening on %s", cfg.AdminAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				server.Log.Errorf("admin listen: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = admin.Shutdown(sctx)
		}()
	}

	err = s.ListenAndServe(ctx)
	server.Log.Info("Shutting down...")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runBot(ctx context.Context, cfg *config.Config, addr string, ws bool, d time.Duration) {
	opts := client.BotOptions{Duration: d, Seed: time.Now().UnixNano()}
	// 本地副本与服务端读取同一组地图文件；目录不存在时各地图退化为空白房间
	w, err := world.Load(cfg.MapDir, cfg.WorldWidth, cfg.WorldHeight, 1, nil)
	if err != nil {
		server.Log.Warnf("bot local world: %v", err)
	} else {
		opts.World = w
	}
	if ws {
		opts.Transport = client.TransportWS
	}
	stats, err := client.RunBot(ctx, addr, opts, server.Log)
	if err != nil && !errors.Is(err, context.Canceled) {
		server.Log.Errorf("bot: %v", err)
	}
	server.Log.Infof("bot done: id=%d state=%s ticks=%d inputs=%d predicted=%d messages=%d rtt=%s %s",
		stats.SelfID, stats.FinalState, stats.ServerTicks, stats.InputsSent, stats.Predicted, stats.Messages, stats.LastRTT, stats.OfflineCause)
}
