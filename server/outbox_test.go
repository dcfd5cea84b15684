package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxOrder(t *testing.T) {
	o := newOutbox(0)
	require.NoError(t, o.push("a"))
	require.NoError(t, o.push("b"))

	frames, ok := o.take()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, frames)
	assert.Equal(t, 0, o.len())
}

func TestOutboxLimit(t *testing.T) {
	o := newOutbox(2)
	require.NoError(t, o.push("a"))
	require.NoError(t, o.push("b"))
	assert.ErrorIs(t, o.push("c"), errOutboxFull)

	o.take()
	assert.NoError(t, o.push("c"))
}

func TestOutboxCloseFlushes(t *testing.T) {
	o := newOutbox(0)
	require.NoError(t, o.push("last"))
	o.close()

	assert.ErrorIs(t, o.push("late"), errOutboxClosed)

	frames, ok := o.take()
	require.True(t, ok)
	assert.Equal(t, []string{"last"}, frames)

	_, ok = o.take()
	assert.False(t, ok)
}

func TestOutboxAbortDrops(t *testing.T) {
	o := newOutbox(0)
	require.NoError(t, o.push("dropped"))
	o.abort()

	_, ok := o.take()
	assert.False(t, ok)
	assert.ErrorIs(t, o.push("late"), errOutboxClosed)
}

func TestOutboxTakeBlocksUntilPush(t *testing.T) {
	o := newOutbox(0)

	got := make(chan []string, 1)
	go func() {
		frames, _ := o.take()
		got <- frames
	}()

	select {
	case <-got:
		t.Fatal("take returned on an empty outbox")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, o.push("wake"))
	select {
	case frames := <-got:
		assert.Equal(t, []string{"wake"}, frames)
	case <-time.After(5 * time.Second):
		t.Fatal("take did not wake up")
	}
}
