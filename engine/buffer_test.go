package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStereoBufferSetLen(t *testing.T) {
	b := NewStereoBuffer(8)
	assert.Equal(t, 8, b.Capacity())
	assert.Equal(t, 0, b.Len())

	b.SetLen(4)
	assert.Equal(t, 4, b.Len())
	assert.Len(t, b.Frames(), 4)
}

func TestStereoBufferSetLenOutOfRangePanics(t *testing.T) {
	b := NewStereoBuffer(4)
	assert.Panics(t, func() { b.SetLen(5) })
	assert.Panics(t, func() { b.SetLen(-1) })
}

func TestStereoBufferClearOnlyTouchesLogicalRegion(t *testing.T) {
	b := NewStereoBuffer(4)
	b.SetLen(4)
	for i := 0; i < 4; i++ {
		b.SetFrame(i, StereoFrame{L: 1, R: 1})
	}
	b.SetLen(2)
	b.Clear()
	assert.Equal(t, StereoFrame{}, b.Frame(0))
	assert.Equal(t, StereoFrame{}, b.Frame(1))
	// Beyond the logical length, storage is untouched by Clear.
	b.SetLen(4)
	assert.Equal(t, StereoFrame{L: 1, R: 1}, b.Frame(2))
	assert.Equal(t, StereoFrame{L: 1, R: 1}, b.Frame(3))
}

func TestStereoBufferAddFrom(t *testing.T) {
	a := NewStereoBuffer(2)
	a.SetLen(2)
	a.SetFrame(0, StereoFrame{L: 1, R: 2})
	a.SetFrame(1, StereoFrame{L: 3, R: 4})

	b := NewStereoBuffer(2)
	b.SetLen(2)
	b.SetFrame(0, StereoFrame{L: 10, R: 20})
	b.SetFrame(1, StereoFrame{L: 30, R: 40})

	a.AddFrom(b)
	assert.Equal(t, StereoFrame{L: 11, R: 22}, a.Frame(0))
	assert.Equal(t, StereoFrame{L: 33, R: 44}, a.Frame(1))
}

func TestStereoBufferScale(t *testing.T) {
	b := NewStereoBuffer(1)
	b.SetLen(1)
	b.SetFrame(0, StereoFrame{L: 2, R: -2})
	b.Scale(0.5)
	assert.Equal(t, StereoFrame{L: 1, R: -1}, b.Frame(0))
}

func TestStereoBufferInterleaveRoundTrip(t *testing.T) {
	b := NewStereoBuffer(3)
	b.SetLen(3)
	for i := 0; i < 3; i++ {
		b.SetFrame(i, StereoFrame{L: float32(i), R: float32(i) * 2})
	}
	dst := make([]float32, 6)
	out := b.Interleaved(dst)
	require.Len(t, out, 6)
	assert.Equal(t, []float32{0, 0, 1, 2, 2, 4}, out)

	c := NewStereoBuffer(3)
	c.FillInterleaved(out, 3)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, b.Frames(), c.Frames())
}

func TestStereoFramePeak(t *testing.T) {
	f := StereoFrame{L: -0.5, R: 0.25}
	assert.InDelta(t, 0.5, f.Peak(), 1e-6)
}
