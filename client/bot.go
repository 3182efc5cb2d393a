package client

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"dungeonarena/config"
	"dungeonarena/world"
)

// BotOptions 压测机器人参数
type BotOptions struct {
	Transport    Transport
	RenderRate   int           // 渲染循环频率
	InputEvery   int           // 每隔多少个渲染 Tick 发送一次随机输入
	PingInterval time.Duration // PING 间隔，RTT 取最近一次
	Duration     time.Duration // 0 表示直到 ctx 取消
	Seed         int64
	World        *world.World // 本地地图副本；nil 时按默认世界尺寸生成空白房间
}

// BotStats 机器人运行结果
type BotStats struct {
	SelfID       int
	Messages     int
	InputsSent   int
	Predicted    int // 本地预测实际移动了位置的输入数
	ServerTicks  int64
	LastRTT      time.Duration
	FinalState   State
	OfflineCause string
}

func (o *BotOptions) defaults() {
	if o.RenderRate <= 0 {
		o.RenderRate = 60
	}
	if o.InputEvery <= 0 {
		o.InputEvery = 6
	}
	if o.PingInterval <= 0 {
		o.PingInterval = time.Second
	}
}

// RunBot 以固定渲染频率驱动一个无界面客户端：收消息、随机走动开火、定期 PING。
func RunBot(ctx context.Context, addr string, opts BotOptions, log *zap.SugaredLogger) (BotStats, error) {
	opts.defaults()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	w := opts.World
	if w == nil {
		var err error
		if w, err = DefaultLocalWorld(); err != nil {
			return BotStats{}, err
		}
	}
	pred := NewPredictor(w)
	conn, err := Dial(ctx, addr, opts.Transport, log)
	if err != nil {
		return BotStats{FinalState: StateOffline, OfflineCause: err.Error()}, err
	}
	defer conn.Close()

	rng := rand.New(rand.NewSource(opts.Seed))
	stats := BotStats{SelfID: -1}
	ticker := time.NewTicker(time.Second / time.Duration(opts.RenderRate))
	defer ticker.Stop()
	lastPing := time.Time{}

	finish := func(err error) (BotStats, error) {
		stats.SelfID = pred.SelfID()
		stats.ServerTicks = pred.ServerTick()
		stats.LastRTT = pred.RTT()
		stats.FinalState = pred.State()
		stats.OfflineCause = pred.OfflineReason()
		return stats, err
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && opts.Duration > 0 {
				return finish(nil)
			}
			return finish(ctx.Err())
		case now := <-ticker.C:
			msgs, perr := conn.Poll()
			stats.Messages += len(msgs)
			pred.ApplyAll(msgs)
			if perr != nil {
				if pred.State() != StateOffline {
					pred.Fail(perr.Error())
				}
				log.Infof("bot disconnected: %s", pred.OfflineReason())
				return finish(nil)
			}
			if pred.State() == StateOffline {
				log.Infof("bot offline: %s", pred.OfflineReason())
				return finish(nil)
			}

			if pred.RenderTick()%int64(opts.InputEvery) == 0 {
				dx, dy := randomStep(rng)
				before, _ := pred.Self()
				if in, ok := pred.Input(dx, dy, rng.Intn(4) == 0); ok {
					if err := conn.Send(in); err != nil {
						return finish(err)
					}
					stats.InputsSent++
					if after, _ := pred.Self(); after.Cell != before.Cell || after.Pos != before.Pos {
						stats.Predicted++
					}
				}
			}
			if now.Sub(lastPing) >= opts.PingInterval {
				lastPing = now
				if err := conn.Send(pred.Ping()); err != nil {
					return finish(err)
				}
			}
			pred.Advance()
		}
	}
}

// DefaultLocalWorld 没有地图文件时的本地副本：尺寸与服务端默认配置一致，
// 墙体变化由服务端 TILE 更新补齐
func DefaultLocalWorld() (*world.World, error) {
	d := config.Default()
	return world.New(d.WorldWidth, d.WorldHeight, 1, nil)
}

func randomStep(rng *rand.Rand) (int, int) {
	switch rng.Intn(5) {
	case 0:
		return 1, 0
	case 1:
		return -1, 0
	case 2:
		return 0, 1
	case 3:
		return 0, -1
	}
	return 0, 0
}

