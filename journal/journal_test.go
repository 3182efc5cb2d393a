package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRoundTrip(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	w, err := Open(t.TempDir(), clock)
	require.NoError(t, err)

	require.NoError(t, w.AppendEvent(0, "connect", map[string]any{"slot": 1, "addr": "127.0.0.1:4000"}))
	require.NoError(t, w.AppendFrame(1, []byte("TICK 1\nPLAYER 0 4 4 20 9 0 1\n")))
	require.NoError(t, w.AppendFrame(2, []byte("TICK 2\n")))
	require.NoError(t, w.AppendEvent(2, "disconnect", map[string]any{"reason": "bye"}))
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.AppendFrame(3, nil), ErrClosed)

	frames, err := ReadFrames(w.Dir())
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(1), frames[0].Tick)
	assert.Equal(t, "TICK 2\n", string(frames[1].Payload))

	events, err := ReadEvents(w.Dir())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "connect", events[0].Type)
	assert.Equal(t, "127.0.0.1:4000", events[0].Fields["addr"])
	assert.Equal(t, "bye", events[1].Fields["reason"])
	assert.Equal(t, "2024-05-01T12:00:00Z", events[1].CapturedAt)
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	assert.NoError(t, w.AppendEvent(1, "x", nil))
	assert.NoError(t, w.AppendFrame(1, []byte("x")))
	assert.NoError(t, w.Close())
	assert.Empty(t, w.Dir())
}
