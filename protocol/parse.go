package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmpty     = errors.New("protocol: empty line")
	ErrUnknown   = errors.New("protocol: unknown message")
	ErrMalformed = errors.New("protocol: malformed message")
)

// Parse 解析一行（不含或含结尾换行均可）。
// 解析失败返回错误，调用方应跳过该行继续处理下一行。
// 多于所需的字段被忽略；可选字段缺失时取默认值。
func Parse(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmpty
	}
	tag, args := fields[0], fields[1:]
	switch tag {
	case "YOU":
		v, err := ints(tag, args, 1, 1)
		if err != nil {
			return nil, err
		}
		return You{ID: v[0]}, nil
	case "TICK":
		n, err := int64Arg(tag, args)
		if err != nil {
			return nil, err
		}
		return Tick{N: n}, nil
	case "PLAYER":
		v, err := ints(tag, args, 7, 11)
		if err != nil {
			return nil, err
		}
		return Player{
			ID: v[0], WorldX: v[1], WorldY: v[2], X: v[3], Y: v[4], Color: v[5], Active: v[6] != 0,
			HP: v[7], InvincibleTicks: v[8], SuperTicks: v[9], Score: v[10],
		}, nil
	case "TILE":
		if len(args) < 5 || len(args[4]) != 1 {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, tag)
		}
		v, err := ints(tag, args[:4], 4, 4)
		if err != nil {
			return nil, err
		}
		return Tile{WorldX: v[0], WorldY: v[1], X: v[2], Y: v[3], Ch: args[4][0]}, nil
	case "BULLET":
		v, err := ints(tag, args, 5, 6)
		if err != nil {
			return nil, err
		}
		owner := NoOwner
		if len(args) >= 6 {
			owner = v[5]
		}
		return Bullet{WorldX: v[0], WorldY: v[1], X: v[2], Y: v[3], Active: v[4] != 0, Owner: owner}, nil
	case "ENEMY":
		v, err := ints(tag, args, 5, 5)
		if err != nil {
			return nil, err
		}
		return Enemy{WorldX: v[0], WorldY: v[1], X: v[2], Y: v[3], HP: v[4]}, nil
	case "READY":
		return Ready{}, nil
	case "FULL":
		return Full{}, nil
	case "INPUT":
		v, err := ints(tag, args, 2, 3)
		if err != nil {
			return nil, err
		}
		return Input{DX: v[0], DY: v[1], Shoot: v[2] != 0}, nil
	case "PING":
		ts, err := int64Arg(tag, args)
		if err != nil {
			return nil, err
		}
		return Ping{Timestamp: ts}, nil
	case "PONG":
		ts, err := int64Arg(tag, args)
		if err != nil {
			return nil, err
		}
		return Pong{Timestamp: ts}, nil
	case "BYE":
		return Bye{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, tag)
	}
}

// ints 解析至少 min 个、至多 max 个整数字段；返回切片长度恒为 max，缺失位置为 0
func ints(tag string, args []string, min, max int) ([]int, error) {
	if len(args) < min {
		return nil, fmt.Errorf("%w: %s needs %d fields, got %d", ErrMalformed, tag, min, len(args))
	}
	out := make([]int, max)
	for i := 0; i < max && i < len(args); i++ {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %d: %v", ErrMalformed, tag, i, err)
		}
		out[i] = v
	}
	return out, nil
}

func int64Arg(tag string, args []string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%w: %s needs 1 field", ErrMalformed, tag)
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return v, nil
}
