package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedAudioZeroValueIsInvalid(t *testing.T) {
	var h SharedAudio
	assert.False(t, h.Valid())
	assert.Nil(t, h.Stem(StemVocals))
	assert.Nil(t, h.Mono())
	h.Drop() // must not panic on a zero-value handle
}

func TestSharedStemAudioStemAccess(t *testing.T) {
	var stems [NumStems]*StereoBuffer
	for s := range stems {
		stems[s] = NewStereoBuffer(4)
	}
	h := NewSharedStemAudio(stems)
	require.True(t, h.Valid())
	assert.Same(t, stems[StemDrums], h.Stem(StemDrums))
	assert.Nil(t, h.Mono())
}

func TestSharedStereoAudioMonoAccess(t *testing.T) {
	buf := NewStereoBuffer(4)
	h := NewSharedStereoAudio(buf)
	assert.Same(t, buf, h.Mono())
	assert.Nil(t, h.Stem(StemBass))
}

func TestSharedAudioCloneIncrementsRefcount(t *testing.T) {
	buf := NewStereoBuffer(4)
	h := NewSharedStereoAudio(buf)
	clone := h.Clone()
	assert.Equal(t, int64(2), h.s.refcount)
	clone.Drop()
	assert.Equal(t, int64(1), h.s.refcount)
	h.Drop()
}

func TestCollectorSweepsEnqueuedStorage(t *testing.T) {
	c := NewCollector(10 * time.Millisecond)
	defer c.Stop()

	buf := NewStereoBuffer(4)
	h := NewSharedStereoAudio(buf)
	s := h.s
	c.enqueueBlocking(s)
	assert.Equal(t, int64(1), c.PendingCount())

	assert.Eventually(t, func() bool {
		return c.PendingCount() == 0
	}, 500*time.Millisecond, 5*time.Millisecond)
}

func TestCollectorPendingCountNeverNegative(t *testing.T) {
	c := NewCollector(time.Hour)
	defer c.Stop()
	assert.Equal(t, int64(0), c.PendingCount())
}
