package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mpchat/client/internal/sched"
)

func newTestQueue() (*Queue, *sched.Manual) {
	clock := sched.NewManual(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewQueue(clock, DefaultConfig()), clock
}

func TestPost_DismissedAfterDwell(t *testing.T) {
	q, clock := newTestQueue()

	n := q.Post("hello", Info)
	require.Equal(t, DefaultDwell, n.Dwell)
	require.NotEmpty(t, n.ID)

	clock.Advance(4999 * time.Millisecond)
	_, ok := q.Current()
	require.True(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = q.Current()
	require.False(t, ok)
}

func TestPost_ReplacesAndRestartsDwell(t *testing.T) {
	q, clock := newTestQueue()

	q.Post("first", Info)
	clock.Advance(4 * time.Second)
	q.Post("second", Error)
	require.Equal(t, 1, clock.Pending())

	clock.Advance(4 * time.Second)
	cur, ok := q.Current()
	require.True(t, ok)
	require.Equal(t, "second", cur.Text)
	require.Equal(t, Error, cur.Severity)

	clock.Advance(time.Second)
	_, ok = q.Current()
	require.False(t, ok)
}

func TestPostShort(t *testing.T) {
	q, clock := newTestQueue()

	n := q.PostShort("Connected to chat server", Success)
	require.Equal(t, DefaultShortDwell, n.Dwell)

	clock.Advance(DefaultShortDwell)
	_, ok := q.Current()
	require.False(t, ok)
}

func TestDismiss_ResetsBadge(t *testing.T) {
	q, clock := newTestQueue()

	q.Bump()
	q.Bump()
	require.Equal(t, "(2) MpChat", q.Title())

	q.Post("New message from Ann: hi", Info)
	q.Dismiss()
	require.Equal(t, 0, q.Badge())
	require.Equal(t, "MpChat", q.Title())
	require.Equal(t, 0, clock.Pending())
}

func TestNewQueue_ZeroConfigUsesDefaults(t *testing.T) {
	clock := sched.NewManual(time.Unix(0, 0))
	q := NewQueue(clock, Config{})

	require.Equal(t, DefaultDwell, q.Post("x", Info).Dwell)
	require.Equal(t, DefaultShortDwell, q.PostShort("y", Info).Dwell)
}
