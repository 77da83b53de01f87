package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlicerDefaultsDisabledOneBar(t *testing.T) {
	s := NewSlicer()
	assert.False(t, s.Enabled)
	assert.Equal(t, 1, s.BufferBars)
}

func TestSlicerSetBufferBarsOnlyAcceptsValidValues(t *testing.T) {
	s := NewSlicer()
	s.SetBufferBars(8)
	assert.Equal(t, 8, s.BufferBars)
	s.SetBufferBars(3) // not one of 1/4/8/16
	assert.Equal(t, 8, s.BufferBars)
}

func TestSlicerAdvanceMutedStepIsSilent(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 0)
	s.Sequence.Steps[0].Muted = true
	_, _, count, ok := s.Advance(0, 120, 48000)
	assert.False(t, ok)
	assert.Equal(t, 0, count)
}

func TestSlicerAdvanceEmptyStepIsSilent(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 0)
	// Step 0 has no HasSlice0/HasSlice1 set by default.
	_, _, count, ok := s.Advance(0, 120, 48000)
	assert.False(t, ok)
	assert.Equal(t, 0, count)
}

func TestSlicerAdvanceProgrammedStepPlaysSlices(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 0)
	s.Sequence.Steps[0].HasSlice0 = true
	s.Sequence.Steps[0].Slice0 = 2
	s.Sequence.Steps[0].Velocity0 = 0.8

	offsets, velocities, count, ok := s.Advance(0, 120, 48000)
	require.True(t, ok)
	require.Equal(t, 1, count)
	assert.Equal(t, 0.8, velocities[0])

	total := s.bufferLengthSamples(120, 48000)
	sliceLen := total / slicerSteps
	assert.Equal(t, 2*sliceLen, offsets[0])
}

func TestSlicerButtonActionQueuesStutterOverride(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 0)
	s.ButtonAction(5, false, 0)

	offsets, velocities, count, ok := s.Advance(0, 120, 48000)
	require.True(t, ok)
	require.Equal(t, 1, count)
	assert.Equal(t, 1.0, velocities[0])
	total := s.bufferLengthSamples(120, 48000)
	sliceLen := total / slicerSteps
	assert.Equal(t, uint64(5)*sliceLen, offsets[0])

	// The override is one-shot: the next Advance at the same step falls back
	// to the programmed (empty) pattern.
	_, _, count2, ok2 := s.Advance(1, 120, 48000)
	assert.False(t, ok2)
	assert.Equal(t, 0, count2)
}

func TestSlicerButtonActionShiftEditsPatternInPlace(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 0)
	s.ButtonAction(3, true, 0)

	st := s.Sequence.Steps[s.currentStep(0)]
	assert.True(t, st.HasSlice0)
	assert.Equal(t, 3, st.Slice0)
	assert.Equal(t, 1.0, st.Velocity0)
}

func TestSlicerResetQueueDiscardsPendingOverride(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 0)
	s.ButtonAction(1, false, 0)
	s.ResetQueue()
	_, _, count, ok := s.Advance(0, 120, 48000)
	assert.False(t, ok)
	assert.Equal(t, 0, count)
}

func TestSlicerSetEnabledReanchorsClock(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 1_000_000)
	assert.True(t, s.anchorSet)
	assert.Equal(t, uint64(1_000_000), s.anchorSample)
}

func TestSlicerAdvanceOffsetIncludesPhaseWithinStep(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 0)
	s.Sequence.Steps[0].HasSlice0 = true
	s.Sequence.Steps[0].Slice0 = 2

	total := s.bufferLengthSamples(120, 48000)
	sliceLen := total / slicerSteps

	offsets0, _, _, ok := s.Advance(0, 120, 48000)
	require.True(t, ok)
	assert.Equal(t, 2*sliceLen, offsets0[0])

	// 10 samples into the same step: the slice should have advanced by the
	// same 10 samples rather than staying frozen on its first sample.
	offsets10, _, _, ok := s.Advance(10, 120, 48000)
	require.True(t, ok)
	assert.Equal(t, 2*sliceLen+10, offsets10[0])
}

func TestSlicerAdvanceStepsAdvanceAcrossBuffer(t *testing.T) {
	s := NewSlicer()
	s.SetEnabled(true, 0)
	for i := range s.Sequence.Steps {
		s.Sequence.Steps[i].HasSlice0 = true
		s.Sequence.Steps[i].Slice0 = i
		s.Sequence.Steps[i].Velocity0 = 1.0
	}
	total := s.bufferLengthSamples(120, 48000)
	stepLen := total / slicerSteps

	_, _, _, ok := s.Advance(0, 120, 48000)
	require.True(t, ok)
	assert.Equal(t, 0, s.lastStep)

	_, _, _, ok = s.Advance(stepLen*5, 120, 48000)
	require.True(t, ok)
	assert.Equal(t, 5, s.lastStep)
}
