package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual(epoch)
	var order []string

	m.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })
	m.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	m.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })

	m.Advance(250 * time.Millisecond)
	require.Equal(t, []string{"a", "b"}, order)
	require.Equal(t, epoch.Add(250*time.Millisecond), m.Now())

	m.Advance(50 * time.Millisecond)
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Zero(t, m.Pending())
}

func TestManualStop(t *testing.T) {
	m := NewManual(epoch)
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	m.Advance(2 * time.Second)
	require.False(t, fired)
}

func TestManualCallbackCanReschedule(t *testing.T) {
	m := NewManual(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			m.AfterFunc(time.Second, tick)
		}
	}
	m.AfterFunc(time.Second, tick)

	m.Advance(10 * time.Second)
	require.Equal(t, 3, count)
}

func TestSerializedPostsCallbacks(t *testing.T) {
	m := NewManual(epoch)
	var queue []func()
	s := Serialized(m, func(fn func()) { queue = append(queue, fn) })

	fired := 0
	s.AfterFunc(time.Second, func() { fired++ })
	m.Advance(time.Second)

	require.Zero(t, fired, "callback must wait for the event loop")
	require.Len(t, queue, 1)
	queue[0]()
	require.Equal(t, 1, fired)
}

func TestSerializedStopAfterFireDropsQueuedCallback(t *testing.T) {
	m := NewManual(epoch)
	var queue []func()
	s := Serialized(m, func(fn func()) { queue = append(queue, fn) })

	fired := false
	timer := s.AfterFunc(time.Second, func() { fired = true })
	m.Advance(time.Second)
	require.Len(t, queue, 1)

	// Superseded before the loop got to it.
	require.True(t, timer.Stop())
	queue[0]()
	require.False(t, fired)
}
