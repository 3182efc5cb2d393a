package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonarena/config"
	"dungeonarena/journal"
	"dungeonarena/protocol"
	"dungeonarena/world"
	"dungeonarena/wsframe"
)

type testServer struct {
	once    sync.Once
	srv     *Server
	rawAddr string
	wsAddr  string
	done    chan error
	cancel  context.CancelFunc
}

// writeSpawnRoom 生成一张出生点位于 (5,5) 的单地图世界
func writeSpawnRoom(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	rows := make([]string, world.MapHeight)
	for y := range rows {
		row := []byte(strings.Repeat(".", world.MapWidth))
		if y == 0 || y == world.MapHeight-1 {
			row = []byte(strings.Repeat("#", world.MapWidth))
		}
		row[0], row[world.MapWidth-1] = '#', '#'
		if y == 5 {
			row[5] = 'S'
		}
		rows[y] = string(row)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x0-y0.txt"), []byte(strings.Join(rows, "\n")), 0o644))
	return dir
}

func startServer(t *testing.T, mutate func(*config.Config), opts ...Option) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.WorldWidth, cfg.WorldHeight = 1, 1
	cfg.MaxPlayers = 2
	cfg.TickRate = 100
	cfg.EnemiesPerMap = 0
	cfg.MapDir = writeSpawnRoom(t)
	if mutate != nil {
		mutate(cfg)
	}
	w, err := world.Load(cfg.MapDir, cfg.WorldWidth, cfg.WorldHeight, cfg.MaxPlayers, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	srv, err := New(cfg, w, opts...)
	require.NoError(t, err)

	rawLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	wsLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{srv: srv, rawAddr: rawLn.Addr().String(), wsAddr: wsLn.Addr().String(), done: make(chan error, 1), cancel: cancel}
	go func() { ts.done <- srv.Serve(ctx, rawLn, wsLn) }()
	<-srv.Ready()
	t.Cleanup(ts.stop)
	return ts
}

func (ts *testServer) stop() {
	ts.once.Do(func() {
		ts.cancel()
		select {
		case <-ts.done:
		case <-time.After(5 * time.Second):
		}
	})
}

type lineClient struct {
	t  *testing.T
	nc net.Conn
	r  *bufio.Reader
}

func dialRaw(t *testing.T, addr string) *lineClient {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	return &lineClient{t: t, nc: nc, r: bufio.NewReader(nc)}
}

func (c *lineClient) send(line string) {
	_, err := c.nc.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

// until 读取消息直到 pred 返回 true；超时或连接关闭则失败
func (c *lineClient) until(pred func(protocol.Message) bool) protocol.Message {
	c.t.Helper()
	require.NoError(c.t, c.nc.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		line, err := c.r.ReadString('\n')
		require.NoError(c.t, err)
		msg, err := protocol.Parse(line)
		if err != nil {
			continue
		}
		if pred(msg) {
			return msg
		}
	}
}

func (c *lineClient) handshake() int {
	c.t.Helper()
	you := c.until(func(m protocol.Message) bool { _, ok := m.(protocol.You); return ok }).(protocol.You)
	c.until(func(m protocol.Message) bool { _, ok := m.(protocol.Ready); return ok })
	return you.ID
}

func TestRawMoveIsBroadcast(t *testing.T) {
	ts := startServer(t, nil)
	c := dialRaw(t, ts.rawAddr)
	require.Equal(t, 0, c.handshake())

	start := c.until(func(m protocol.Message) bool { p, ok := m.(protocol.Player); return ok && p.ID == 0 }).(protocol.Player)
	require.Equal(t, [2]int{5, 5}, [2]int{start.X, start.Y})
	assert.True(t, start.Active)
	assert.Equal(t, world.MaxHP, start.HP)

	c.send("INPUT 1 0 0")
	moved := c.until(func(m protocol.Message) bool {
		p, ok := m.(protocol.Player)
		return ok && p.ID == 0 && p.X != 5
	}).(protocol.Player)
	assert.Equal(t, 6, moved.X)
	assert.Equal(t, 5, moved.Y)
}

func TestTwoPlayersNeverShareATile(t *testing.T) {
	ts := startServer(t, nil)
	a := dialRaw(t, ts.rawAddr)
	require.Equal(t, 0, a.handshake())
	b := dialRaw(t, ts.rawAddr)
	require.Equal(t, 1, b.handshake())

	// B 在 (4,4)，试图走到 A 所在的 (5,5)
	for _, in := range []string{"INPUT 1 0 0", "INPUT 0 1 0", "INPUT 0 1 0", "INPUT -1 0 0"} {
		b.send(in)
	}
	a.send("INPUT 0 -1 0")

	for snapshots := 0; snapshots < 30; snapshots++ {
		a.until(func(m protocol.Message) bool { _, ok := m.(protocol.Tick); return ok })
		var ps []protocol.Player
		for len(ps) < 2 {
			m := a.until(func(m protocol.Message) bool { _, ok := m.(protocol.Player); return ok })
			ps = append(ps, m.(protocol.Player))
		}
		if ps[0].Active && ps[1].Active {
			require.False(t, ps[0].WorldX == ps[1].WorldX && ps[0].WorldY == ps[1].WorldY &&
				ps[0].X == ps[1].X && ps[0].Y == ps[1].Y, "players overlap: %+v %+v", ps[0], ps[1])
		}
	}
}

func TestFullWhenSlotsExhausted(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.MaxPlayers = 1 })
	a := dialRaw(t, ts.rawAddr)
	a.handshake()

	b := dialRaw(t, ts.rawAddr)
	require.NoError(t, b.nc.SetReadDeadline(time.Now().Add(3*time.Second)))
	line, err := b.r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "FULL\n", line)
	_, err = b.r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(1), atomic.LoadInt64(&ts.srv.Metrics().SessionsRefused))
}

func TestPingPongAndBye(t *testing.T) {
	ts := startServer(t, nil)
	c := dialRaw(t, ts.rawAddr)
	c.handshake()

	c.send("garbage here")
	c.send("PING 12345")
	pong := c.until(func(m protocol.Message) bool { _, ok := m.(protocol.Pong); return ok }).(protocol.Pong)
	assert.Equal(t, int64(12345), pong.Timestamp)

	c.send("BYE")
	require.NoError(t, c.nc.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err := io.Copy(io.Discard, c.r)
	assert.NoError(t, err, "server closes the connection cleanly")
	assert.GreaterOrEqual(t, atomic.LoadInt64(&ts.srv.Metrics().MalformedLines), int64(1))
}

func TestSlotIsReusedAfterDisconnect(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.MaxPlayers = 1 })
	a := dialRaw(t, ts.rawAddr)
	a.handshake()
	a.send("BYE")
	require.NoError(t, a.nc.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _ = io.Copy(io.Discard, a.r)

	b := dialRaw(t, ts.rawAddr)
	assert.Equal(t, 0, b.handshake())
}

func TestIdleTimeoutSendsBye(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.IdleTimeout = 100 * time.Millisecond })
	c := dialRaw(t, ts.rawAddr)
	c.handshake()

	require.NoError(t, c.nc.SetReadDeadline(time.Now().Add(3*time.Second)))
	var last string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			break
		}
		last = line
	}
	assert.Equal(t, "BYE\n", last)
	assert.Equal(t, int64(1), atomic.LoadInt64(&ts.srv.Metrics().ClosedTimeout))
}

func TestWebSocketClient(t *testing.T) {
	ts := startServer(t, nil)
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ts.wsAddr+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	lines := protocol.NewLineBuffer(0)
	next := func(pred func(protocol.Message) bool) protocol.Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		for {
			for {
				line, ok := lines.Next()
				if !ok {
					break
				}
				if msg, err := protocol.Parse(line); err == nil && pred(msg) {
					return msg
				}
			}
			typ, payload, err := conn.ReadMessage()
			require.NoError(t, err)
			require.Equal(t, websocket.TextMessage, typ)
			lines.Write(payload)
		}
	}

	you := next(func(m protocol.Message) bool { _, ok := m.(protocol.You); return ok }).(protocol.You)
	assert.Equal(t, 0, you.ID)
	next(func(m protocol.Message) bool { _, ok := m.(protocol.Ready); return ok })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("INPUT 1 0 0\n")))
	moved := next(func(m protocol.Message) bool {
		p, ok := m.(protocol.Player)
		return ok && p.ID == 0 && p.X == 6
	}).(protocol.Player)
	assert.Equal(t, 5, moved.Y)

	require.NoError(t, conn.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("PING 7\n")))
	pong := next(func(m protocol.Message) bool { _, ok := m.(protocol.Pong); return ok }).(protocol.Pong)
	assert.Equal(t, int64(7), pong.Timestamp)
	assert.Equal(t, int64(1), atomic.LoadInt64(&ts.srv.Metrics().HandshakesOK))
}

func TestWebSocketHandshakeFailures(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.HandshakeTimeout = 100 * time.Millisecond })

	bad, err := net.Dial("tcp", ts.wsAddr)
	require.NoError(t, err)
	defer bad.Close()
	_, err = fmt.Fprint(bad, "GET / HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\n\r\n")
	require.NoError(t, err)
	require.NoError(t, bad.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, err := io.Copy(io.Discard, bad)
	assert.NoError(t, err)
	assert.Zero(t, n, "no response to a request without a key")

	silent, err := net.Dial("tcp", ts.wsAddr)
	require.NoError(t, err)
	defer silent.Close()
	require.NoError(t, silent.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.Copy(io.Discard, silent)
	assert.NoError(t, err, "stalled handshake is closed by the tick loop")
	assert.Equal(t, int64(2), atomic.LoadInt64(&ts.srv.Metrics().HandshakesFailed))

	// 握手中的连接不占用槽位
	c := dialRaw(t, ts.rawAddr)
	assert.Equal(t, 0, c.handshake())
}

func TestFrameErrorAfterHandshakeIsNotAHandshakeFailure(t *testing.T) {
	ts := startServer(t, nil)
	nc, err := net.Dial("tcp", ts.wsAddr)
	require.NoError(t, err)
	defer nc.Close()

	req := "GET / HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	// 未加掩码的客户端帧与握手请求在同一次写入中到达
	_, err = nc.Write(append([]byte(req), wsframe.AppendText(nil, []byte("PING 1\n"))...))
	require.NoError(t, err)
	require.NoError(t, nc.SetReadDeadline(time.Now().Add(3*time.Second)))
	resp, err := io.ReadAll(nc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(resp), "HTTP/1.1 101 Switching Protocols"))

	m := ts.srv.Metrics()
	assert.Equal(t, int64(1), atomic.LoadInt64(&m.HandshakesOK))
	assert.Zero(t, atomic.LoadInt64(&m.HandshakesFailed))
	assert.Equal(t, int64(1), atomic.LoadInt64(&m.ClosedError))
	assert.Zero(t, atomic.LoadInt64(&m.ClosedHandshake))
}

func TestPingDoesNotKeepSessionAlive(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.IdleTimeout = 200 * time.Millisecond })
	c := dialRaw(t, ts.rawAddr)
	c.handshake()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tk := time.NewTicker(20 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
				if _, err := c.nc.Write([]byte("PING 1\n")); err != nil {
					return
				}
			}
		}
	}()

	require.NoError(t, c.nc.SetReadDeadline(time.Now().Add(3*time.Second)))
	var last string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			break
		}
		last = line
	}
	assert.Equal(t, "BYE\n", last)
	assert.Equal(t, int64(1), atomic.LoadInt64(&ts.srv.Metrics().ClosedTimeout))
}

func TestJoinSnapshotIncludesTileOverrides(t *testing.T) {
	// 在服务启动前修改的地块同样算作差异
	ts2 := startServerWithWorld(t, func(w *world.World) {
		w.SetTile(world.Cell{}, world.Pos{X: 0, Y: 3}, world.TileFloor)
		w.DrainChanges()
	})
	c := dialRaw(t, ts2.rawAddr)
	c.until(func(m protocol.Message) bool { _, ok := m.(protocol.You); return ok })
	tile := c.until(func(m protocol.Message) bool { _, ok := m.(protocol.Tile); return ok }).(protocol.Tile)
	assert.Equal(t, protocol.Tile{X: 0, Y: 3, Ch: '.'}, tile)
	c.until(func(m protocol.Message) bool { _, ok := m.(protocol.Ready); return ok })
}

func startServerWithWorld(t *testing.T, prep func(*world.World), opts ...Option) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.WorldWidth, cfg.WorldHeight = 1, 1
	cfg.MaxPlayers = 2
	cfg.TickRate = 100
	cfg.EnemiesPerMap = 0
	cfg.StatePath = filepath.Join(t.TempDir(), "world.state")
	w, err := world.Load(writeSpawnRoom(t), 1, 1, cfg.MaxPlayers, nil)
	require.NoError(t, err)
	prep(w)
	srv, err := New(cfg, w, opts...)
	require.NoError(t, err)
	rawLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{srv: srv, rawAddr: rawLn.Addr().String(), done: make(chan error, 1), cancel: cancel}
	go func() { ts.done <- srv.Serve(ctx, rawLn, nil) }()
	<-srv.Ready()
	t.Cleanup(ts.stop)
	return ts
}

func TestShutdownPersistsStateAndJournal(t *testing.T) {
	j, err := journal.Open(t.TempDir(), nil)
	require.NoError(t, err)
	ts := startServerWithWorld(t, func(w *world.World) {
		w.SetTile(world.Cell{}, world.Pos{X: 0, Y: 4}, world.TileFloor)
	}, WithJournal(j))

	c := dialRaw(t, ts.rawAddr)
	c.handshake()
	c.until(func(m protocol.Message) bool { tk, ok := m.(protocol.Tick); return ok && tk.N > 3 })

	ts.stop()
	require.NoError(t, j.Close())
	line, err := c.r.ReadString('\n')
	for err == nil && line != "BYE\n" {
		line, err = c.r.ReadString('\n')
	}
	assert.Equal(t, "BYE\n", line)

	fresh, err := world.New(1, 1, 2, nil)
	require.NoError(t, err)
	require.NoError(t, fresh.LoadState(ts.srv.Config().StatePath))
	assert.Equal(t, world.TileFloor, fresh.Tile(world.Cell{}, world.Pos{X: 0, Y: 4}))

	frames, err := journal.ReadFrames(j.Dir())
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	assert.True(t, strings.HasPrefix(string(frames[0].Payload), "TILE 0 0 0 4 .\nTICK 1\n"))
	events, err := journal.ReadEvents(j.Dir())
	require.NoError(t, err)
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, "tile")
	assert.Contains(t, types, "connect")
}

func TestAdminHandler(t *testing.T) {
	ts := startServer(t, nil)
	h := ts.srv.AdminHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{"maxInputsPerTick":3,"rateCapacity":4}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	maxInputs, rl, version := ts.srv.Tunables().Snapshot()
	assert.Equal(t, 3, maxInputs)
	assert.Equal(t, 4, rl.Capacity)
	assert.Equal(t, uint64(1), version)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "tick_count")

	c := dialRaw(t, ts.rawAddr)
	c.handshake()
	c.until(func(m protocol.Message) bool { _, ok := m.(protocol.Tick); return ok })
	c.until(func(m protocol.Message) bool { _, ok := m.(protocol.Tick); return ok })
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Contains(t, rec.Body.String(), `"slot":0`)
}
