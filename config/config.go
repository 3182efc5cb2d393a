// Package config 汇总服务端运行参数：环境变量覆盖默认值，main 再用命令行参数覆盖。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRawAddr   = ":5555"
	DefaultWSAddr    = ":5556"
	DefaultAdminAddr = ":8080"
	DefaultMapDir    = "maps"

	DefaultWorldWidth  = 9
	DefaultWorldHeight = 9
	DefaultMaxPlayers  = 16
	DefaultTickRate    = 20

	// DefaultIdleTimeout 无任何入站数据超过该时长即断开
	DefaultIdleTimeout      = 180 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second

	DefaultRateCapacity     = 10
	DefaultRateRefillTicks  = 2
	DefaultRateRefillAmount = 1
	DefaultMaxInputsPerTick = 1

	DefaultEnemiesPerMap = 4
	DefaultStateInterval = 30 * time.Second

	DefaultLogLevel      = "info"
	DefaultLogPath       = "dungeon.log"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 7
)

const envPrefix = "DUNGEON_"

// Config 服务端全部可调参数
type Config struct {
	RawAddr   string
	WSAddr    string
	AdminAddr string
	MapDir    string

	WorldWidth  int
	WorldHeight int
	MaxPlayers  int
	TickRate    int

	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration

	RateLimit        RateLimit
	MaxInputsPerTick int
	EnemiesPerMap    int

	StatePath     string
	StateInterval time.Duration
	JournalDir    string

	Logging LoggingConfig
}

// RateLimit 令牌桶参数：每 RefillTicks 个 Tick 补充 RefillAmount 个令牌，上限 Capacity
type RateLimit struct {
	Capacity     int `json:"capacity"`
	RefillTicks  int `json:"refillTicks"`
	RefillAmount int `json:"refillAmount"`
}

type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Console    bool
}

// Default 返回全部默认值
func Default() *Config {
	return &Config{
		RawAddr:          DefaultRawAddr,
		WSAddr:           DefaultWSAddr,
		AdminAddr:        DefaultAdminAddr,
		MapDir:           DefaultMapDir,
		WorldWidth:       DefaultWorldWidth,
		WorldHeight:      DefaultWorldHeight,
		MaxPlayers:       DefaultMaxPlayers,
		TickRate:         DefaultTickRate,
		IdleTimeout:      DefaultIdleTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		RateLimit: RateLimit{
			Capacity:     DefaultRateCapacity,
			RefillTicks:  DefaultRateRefillTicks,
			RefillAmount: DefaultRateRefillAmount,
		},
		MaxInputsPerTick: DefaultMaxInputsPerTick,
		EnemiesPerMap:    DefaultEnemiesPerMap,
		StateInterval:    DefaultStateInterval,
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Path:       DefaultLogPath,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
	}
}

// Load 读取 DUNGEON_* 环境变量覆盖默认值，所有非法取值汇总为一个错误返回
func Load() (*Config, error) {
	cfg := Default()
	l := loader{}

	l.str("RAW_ADDR", &cfg.RawAddr)
	l.str("WS_ADDR", &cfg.WSAddr)
	l.str("ADMIN_ADDR", &cfg.AdminAddr)
	l.str("MAP_DIR", &cfg.MapDir)
	l.positive("WORLD_WIDTH", &cfg.WorldWidth)
	l.positive("WORLD_HEIGHT", &cfg.WorldHeight)
	l.positive("MAX_PLAYERS", &cfg.MaxPlayers)
	l.positive("TICK_RATE", &cfg.TickRate)
	l.duration("IDLE_TIMEOUT", &cfg.IdleTimeout)
	l.duration("HANDSHAKE_TIMEOUT", &cfg.HandshakeTimeout)
	l.positive("RATE_CAPACITY", &cfg.RateLimit.Capacity)
	l.positive("RATE_REFILL_TICKS", &cfg.RateLimit.RefillTicks)
	l.positive("RATE_REFILL_AMOUNT", &cfg.RateLimit.RefillAmount)
	l.positive("MAX_INPUTS_PER_TICK", &cfg.MaxInputsPerTick)
	l.nonNegative("ENEMIES_PER_MAP", &cfg.EnemiesPerMap)
	l.str("STATE_PATH", &cfg.StatePath)
	l.duration("STATE_INTERVAL", &cfg.StateInterval)
	l.str("JOURNAL_DIR", &cfg.JournalDir)

	l.str("LOG_LEVEL", &cfg.Logging.Level)
	l.str("LOG_PATH", &cfg.Logging.Path)
	l.positive("LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB)
	l.nonNegative("LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups)
	l.nonNegative("LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays)
	l.boolean("LOG_COMPRESS", &cfg.Logging.Compress)
	l.boolean("LOG_CONSOLE", &cfg.Logging.Console)

	if err := cfg.Validate(); err != nil {
		l.problems = append(l.problems, err.Error())
	}
	if len(l.problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(l.problems, "; "))
	}
	return cfg, nil
}

// Validate 检查跨字段约束（命令行覆盖之后 main 会再次调用）
func (c *Config) Validate() error {
	var problems []string
	if c.RawAddr == "" && c.WSAddr == "" {
		problems = append(problems, "at least one of raw or websocket address must be set")
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		problems = append(problems, fmt.Sprintf("tick rate must be in (0,1000], got %d", c.TickRate))
	}
	if c.WorldWidth <= 0 || c.WorldHeight <= 0 {
		problems = append(problems, fmt.Sprintf("world must be at least 1x1, got %dx%d", c.WorldWidth, c.WorldHeight))
	}
	if c.MaxPlayers <= 0 {
		problems = append(problems, fmt.Sprintf("max players must be positive, got %d", c.MaxPlayers))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log level must be debug|info|warn|error, got %q", c.Logging.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// TickInterval 单个 Tick 的时长
func (c *Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / DefaultTickRate
	}
	return time.Second / time.Duration(c.TickRate)
}

// TicksFor 把时长换算成 Tick 数（至少 1）
func (c *Config) TicksFor(d time.Duration) int {
	n := int(d / c.TickInterval())
	if n < 1 {
		return 1
	}
	return n
}

type loader struct {
	problems []string
}

func (l *loader) lookup(name string) (string, string, bool) {
	key := envPrefix + name
	raw := strings.TrimSpace(os.Getenv(key))
	return key, raw, raw != ""
}

func (l *loader) str(name string, dst *string) {
	if _, raw, ok := l.lookup(name); ok {
		*dst = raw
	}
}

func (l *loader) positive(name string, dst *int) {
	l.integer(name, dst, 1, "a positive integer")
}

func (l *loader) nonNegative(name string, dst *int) {
	l.integer(name, dst, 0, "a non-negative integer")
}

func (l *loader) integer(name string, dst *int, min int, what string) {
	key, raw, ok := l.lookup(name)
	if !ok {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		l.problems = append(l.problems, fmt.Sprintf("%s must be %s, got %q", key, what, raw))
		return
	}
	*dst = v
}

func (l *loader) duration(name string, dst *time.Duration) {
	key, raw, ok := l.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		l.problems = append(l.problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = d
}

func (l *loader) boolean(name string, dst *bool) {
	key, raw, ok := l.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("%s must be a boolean, got %q", key, raw))
		return
	}
	*dst = b
}
