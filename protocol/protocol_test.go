package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLines(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{You{ID: 3}, "YOU 3\n"},
		{Tick{N: 42}, "TICK 42\n"},
		{Player{ID: 1, WorldX: 4, WorldY: 4, X: 20, Y: 9, Color: 1, Active: true, HP: 3}, "PLAYER 1 4 4 20 9 1 1 3 0 0 0\n"},
		{Tile{WorldX: 0, WorldY: 1, X: 2, Y: 3, Ch: '.'}, "TILE 0 1 2 3 .\n"},
		{Bullet{WorldX: 1, WorldY: 1, X: 5, Y: 6, Active: true, Owner: 2}, "BULLET 1 1 5 6 1 2\n"},
		{Bullet{WorldX: 1, WorldY: 1, X: 5, Y: 6, Active: true, Owner: NoOwner}, "BULLET 1 1 5 6 1\n"},
		{Enemy{WorldX: 2, WorldY: 2, X: 7, Y: 8, HP: 2}, "ENEMY 2 2 7 8 2\n"},
		{Ready{}, "READY\n"},
		{Full{}, "FULL\n"},
		{Input{DX: -1, DY: 0, Shoot: true}, "INPUT -1 0 1\n"},
		{Ping{Timestamp: 99}, "PING 99\n"},
		{Bye{}, "BYE\n"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, string(Encode(c.msg)))
		back, err := Parse(c.want)
		require.NoError(t, err, c.want)
		assert.Equal(t, c.msg, back, c.want)
	}
}

func TestParsePlayerOptionalFields(t *testing.T) {
	m, err := Parse("PLAYER 0 4 4 10 5 0 1")
	require.NoError(t, err)
	p := m.(Player)
	assert.True(t, p.Active)
	assert.Equal(t, 10, p.X)
	assert.Zero(t, p.HP)

	m, err = Parse("PLAYER 0 4 4 10 5 0 0 2 7")
	require.NoError(t, err)
	p = m.(Player)
	assert.False(t, p.Active)
	assert.Equal(t, 2, p.HP)
	assert.Equal(t, 7, p.InvincibleTicks)
}

func TestParseTolerance(t *testing.T) {
	m, err := Parse("INPUT 1 0")
	require.NoError(t, err)
	assert.Equal(t, Input{DX: 1}, m)

	m, err = Parse("  ENEMY 1 2 3 4 2 extra junk\r\n")
	require.NoError(t, err)
	assert.Equal(t, Enemy{WorldX: 1, WorldY: 2, X: 3, Y: 4, HP: 2}, m)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse("HELLO 1")
	assert.ErrorIs(t, err, ErrUnknown)
	_, err = Parse("PLAYER 1 2")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Parse("INPUT x 0")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Parse("TILE 0 0 1 1 ab")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLineBufferSplitsAcrossWrites(t *testing.T) {
	b := NewLineBuffer(64)
	b.Write([]byte("TICK 1\nPLA"))
	line, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, "TICK 1", line)
	_, ok = b.Next()
	assert.False(t, ok)

	b.Write([]byte("YER 0 0 0 1 1 0 1\r\n"))
	line, ok = b.Next()
	require.True(t, ok)
	assert.Equal(t, "PLAYER 0 0 0 1 1 0 1", line)
	assert.Zero(t, b.Buffered())
}

func TestLineBufferDropsOldest(t *testing.T) {
	b := NewLineBuffer(16)
	dropped := b.Write([]byte(strings.Repeat("x", 20) + "\nREADY\n"))
	assert.Equal(t, 11, dropped)

	// 被截断的残行仍会出现，解析失败后被跳过
	line, ok := b.Next()
	require.True(t, ok)
	_, err := Parse(line)
	assert.Error(t, err)

	line, ok = b.Next()
	require.True(t, ok)
	assert.Equal(t, "READY", line)
}
