package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitQueue(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newWaitQueue("us-east-1")

	assert.True(t, q.push("a", now))
	assert.True(t, q.push("b", now.Add(time.Second)))
	assert.False(t, q.push("a", now.Add(2*time.Second)), "second push of the same id is a no-op")
	assert.True(t, q.push("c", now.Add(3*time.Second)))
	assert.Equal(t, 3, q.len())

	snap := q.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].PlayerID)
	assert.Equal(t, now, snap[0].EnqueuedAt)
	assert.Equal(t, "us-east-1", snap[0].Region)

	assert.True(t, q.remove("b"))
	assert.False(t, q.remove("b"))
	assert.False(t, q.contains("b"))

	removed := q.retain(map[string]struct{}{"c": {}})
	assert.Equal(t, []string{"a"}, removed)
	assert.Equal(t, 1, q.len())

	drained := q.drainAll()
	require.Len(t, drained, 1)
	assert.Equal(t, "c", drained[0].PlayerID)
	assert.Equal(t, 0, q.len())
	assert.True(t, q.push("c", now), "drained ids can be queued again")
}

func TestCooldowns(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCooldowns()

	c.add("late", "eu", now.Add(10*time.Second))
	c.add("early", "us", now.Add(2*time.Second))
	c.add("extended", "us", now.Add(time.Second))
	c.add("extended", "us", now.Add(20*time.Second))
	c.add("extended", "us", now.Add(5*time.Second))

	assert.True(t, c.active("early", now))
	assert.False(t, c.active("nobody", now))
	assert.Equal(t, 3, c.len())

	ready := c.popReady(now.Add(3 * time.Second))
	require.Len(t, ready, 1)
	assert.Equal(t, "early", ready[0].PlayerID)
	assert.Equal(t, "us", ready[0].Region)

	ready = c.popReady(now.Add(15 * time.Second))
	require.Len(t, ready, 1)
	assert.Equal(t, "late", ready[0].PlayerID)
	assert.True(t, c.active("extended", now.Add(15*time.Second)))

	ready = c.popReady(now.Add(20 * time.Second))
	require.Len(t, ready, 1)
	assert.Equal(t, "extended", ready[0].PlayerID)
	assert.Equal(t, 0, c.len())
}
