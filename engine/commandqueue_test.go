package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCommandQueueRoundsCapacityUpToPowerOfTwo(t *testing.T) {
	q := NewCommandQueue(5)
	// Capacity isn't exposed directly; infer it by filling until Push fails.
	pushed := 0
	for q.Push(Command{Kind: CmdPlay}) {
		pushed++
		require.Less(t, pushed, 100, "queue never reports full")
	}
	assert.Equal(t, 8, pushed)
}

func TestCommandQueuePopEmpty(t *testing.T) {
	q := NewCommandQueue(4)
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestCommandQueueFIFOOrder(t *testing.T) {
	q := NewCommandQueue(8)
	for i := 0; i < 8; i++ {
		ok := q.Push(Command{Kind: CmdSeek, Int64: int64(i)})
		require.True(t, ok)
	}
	for i := 0; i < 8; i++ {
		cmd, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, int64(i), cmd.Int64)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestCommandQueueOverflowIncrementsCounter(t *testing.T) {
	q := NewCommandQueue(1) // rounds up to 1
	assert.True(t, q.Push(Command{}))
	assert.False(t, q.Push(Command{}))
	assert.Equal(t, uint64(1), q.Overflows())
}

func TestCommandQueueDrainIntoBoundsWork(t *testing.T) {
	q := NewCommandQueue(64)
	for i := 0; i < 10; i++ {
		q.Push(Command{Kind: CmdPlay, Int: i})
	}
	var seen []int
	n := q.DrainInto(4, func(c Command) { seen = append(seen, c.Int) })
	assert.Equal(t, 4, n)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)

	n = q.DrainInto(100, func(c Command) { seen = append(seen, c.Int) })
	assert.Equal(t, 6, n)
}

// Pushing then popping the same sequence of commands (never exceeding
// capacity) always returns them in FIFO order with no loss, regardless of
// how the pushes/pops are interleaved in batches.
func TestCommandQueuePropertyFIFOWithinCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.SampledFrom([]int{2, 4, 8, 16}).Draw(t, "capacity")
		q := NewCommandQueue(capacity)

		n := rapid.IntRange(0, capacity).Draw(t, "n")
		want := make([]int, n)
		for i := range want {
			want[i] = rapid.Int().Draw(t, "value")
			ok := q.Push(Command{Kind: CmdSeek, Int: want[i]})
			require.True(t, ok)
		}

		got := make([]int, 0, n)
		for {
			cmd, ok := q.Pop()
			if !ok {
				break
			}
			got = append(got, cmd.Int)
		}
		assert.Equal(t, want, got)
	})
}
