package mcp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBuffer_NextIDPerSession(t *testing.T) {
	b := NewEventBuffer(100)

	assert.Equal(t, int64(1), b.NextID("a"))
	assert.Equal(t, int64(2), b.NextID("a"))
	assert.Equal(t, int64(1), b.NextID("b"), "counters are per session")
}

func TestEventBuffer_Replay(t *testing.T) {
	b := NewEventBuffer(100)

	for i := 1; i <= 5; i++ {
		id := b.NextID("s")
		b.Buffer("s", id, SSEEventMessage, []byte(fmt.Sprintf("payload-%d", i)))
	}

	recs := b.After("s", 3)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(4), recs[0].ID)
	assert.Equal(t, "payload-4", string(recs[0].Payload))
	assert.Equal(t, int64(5), recs[1].ID)

	assert.Empty(t, b.After("s", 5), "nothing newer than the last event")
	assert.Empty(t, b.After("other", 0), "unknown session has no events")
}

func TestEventBuffer_RingDropsOldest(t *testing.T) {
	b := NewEventBuffer(3)

	for i := 1; i <= 5; i++ {
		id := b.NextID("s")
		b.Buffer("s", id, SSEEventMessage, []byte(fmt.Sprintf("%d", i)))
	}

	recs := b.After("s", 0)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(3), recs[0].ID)
	assert.Equal(t, int64(5), recs[2].ID)
}

func TestEventBuffer_EventTypeSurvivesReplay(t *testing.T) {
	b := NewEventBuffer(10)

	id := b.NextID("s")
	b.Buffer("s", id, SSEEventServerRequest, []byte("{}"))

	recs := b.After("s", 0)
	require.Len(t, recs, 1)
	assert.Equal(t, SSEEventServerRequest, recs[0].Event)
}

func TestEventBuffer_Drop(t *testing.T) {
	b := NewEventBuffer(10)

	id := b.NextID("s")
	b.Buffer("s", id, SSEEventMessage, []byte("x"))
	b.Drop("s")

	assert.Empty(t, b.After("s", 0))
	assert.Equal(t, int64(1), b.NextID("s"), "counter resets after drop")
}
