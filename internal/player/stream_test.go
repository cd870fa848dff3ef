package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamLatestValueWins(t *testing.T) {
	s := NewStream[int]()
	ch := s.Subscribe()

	// No subscriber read in between: the stale value is replaced.
	s.Publish(1)
	s.Publish(2)
	s.Publish(3)

	assert.Equal(t, 3, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestStreamPrimesNewSubscribers(t *testing.T) {
	s := NewStream[string]()
	s.Publish("hello")

	ch := s.Subscribe()
	assert.Equal(t, "hello", <-ch)

	v, ok := s.Value()
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestStreamNoValueBeforeFirstPublish(t *testing.T) {
	s := NewStream[int]()

	_, ok := s.Value()
	assert.False(t, ok)

	ch := s.Subscribe()
	select {
	case v := <-ch:
		t.Fatalf("unexpected primed value %d", v)
	default:
	}
}

func TestStreamMultipleSubscribers(t *testing.T) {
	s := NewStream[int]()
	a := s.Subscribe()
	b := s.Subscribe()

	s.Publish(7)
	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-b)
}

func TestQueueDeliversInOrder(t *testing.T) {
	q := NewQueue[int]()
	ch := q.Subscribe()

	for i := 1; i <= 5; i++ {
		q.Publish(i)
	}
	for i := 1; i <= 5; i++ {
		assert.Equal(t, i, <-ch)
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue[int]()
	ch := q.Subscribe()

	for i := 0; i <= queueDepth; i++ {
		q.Publish(i)
	}

	// Event 0 was dropped to make room for the newest.
	assert.Equal(t, 1, <-ch)
}
