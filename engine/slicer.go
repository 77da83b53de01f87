package engine

/*------------------------------------------------------------------
 *
 * Purpose:	The 16-step slicer/step-sequencer (C11, §4.5): retriggers
 *		slice offsets in lock-step with the global beat clock,
 *		independently per stem per deck.
 *
 * Description:	Phase-locking "in lock-step with the global beat clock"
 *		(§1, §4.5) means step boundaries are derived from the
 *		engine's sample-accurate global clock (§4.7), not from the
 *		deck's own playhead — two decks running the same buffer
 *		length stay in lockstep even if their individual decks are
 *		independently seeking or looping.
 *
 *------------------------------------------------------------------*/

const slicerSteps = 16

// beatsPerBar is fixed at 4/4 time, matching the buffer-length-in-bars
// convention of §4.5 (1/4/8/16 bars of 4 beats each).
const beatsPerBar = 4

// SliceStep is one programmed step of a step sequence (§3 "Slicer
// preset"): a mute flag and up to two layered slice indices with their own
// velocities.
type SliceStep struct {
	Muted      bool
	Slice0     int
	Velocity0  float64
	HasSlice0  bool
	Slice1     int
	Velocity1  float64
	HasSlice1  bool
}

// StepSequence is the 16-step program for one stem (§3).
type StepSequence struct {
	Steps [slicerSteps]SliceStep
}

// SlicerPresets is the payload of SetSlicerPresets (§4.8): one optional step
// sequence per stem. A nil entry means "bypass the slicer for that stem"
// (the slicer is disabled rather than left running an empty pattern).
type SlicerPresets struct {
	Sequences [NumStems]*StepSequence
}

// stutterOverride is a queued one-shot slice substitution from a button
// press, applied for exactly one upcoming step (§4.5).
type stutterOverride struct {
	pending bool
	slice   int
}

// Slicer is one stem's slicer state on one deck.
type Slicer struct {
	Enabled         bool
	BufferBars      int // 1, 4, 8, or 16
	Sequence        StepSequence
	override        stutterOverride
	lastStep        int
	anchorSample    uint64
	anchorSet       bool
}

// NewSlicer returns a disabled slicer defaulting to a 1-bar buffer.
func NewSlicer() *Slicer {
	return &Slicer{BufferBars: 1}
}

// SetEnabled toggles the slicer. Enabling re-anchors the step clock to the
// current global sample so step 0 begins right away rather than wherever
// the bar happened to be.
func (s *Slicer) SetEnabled(enabled bool, globalClockSample uint64) {
	s.Enabled = enabled
	if enabled {
		s.anchorSample = globalClockSample
		s.anchorSet = true
	}
}

// SetBufferBars sets the buffer length in bars, clamped to the valid set.
func (s *Slicer) SetBufferBars(bars int) {
	switch bars {
	case 1, 4, 8, 16:
		s.BufferBars = bars
	}
}

// ButtonAction handles a slicer pad press. A plain press enqueues a
// one-shot stutter override for the next step; a shift-held press instead
// edits the stored pattern at the *current* step in place (§4.5).
func (s *Slicer) ButtonAction(button int, shiftHeld bool, globalClockSample uint64) {
	if shiftHeld {
		step := s.currentStep(globalClockSample)
		st := &s.Sequence.Steps[step]
		st.Muted = false
		st.Slice0 = button
		st.Velocity0 = 1.0
		st.HasSlice0 = true
		return
	}
	s.override = stutterOverride{pending: true, slice: button}
}

// ResetQueue discards any pending stutter override.
func (s *Slicer) ResetQueue() {
	s.override = stutterOverride{}
}

// bufferLengthSamples returns the total span, in source samples, that the
// 16 slices divide, given the global BPM.
func (s *Slicer) bufferLengthSamples(globalBPM float64, sampleRate int) uint64 {
	samplesPerBeat := float64(sampleRate) * 60.0 / globalBPM
	return uint64(float64(s.BufferBars) * beatsPerBar * samplesPerBeat)
}

// currentStep returns the step index (0..15) computed by the most recent
// Advance call; globalClockSample is not used.
func (s *Slicer) currentStep(globalClockSample uint64) int {
	return s.lastStep
}

// Advance computes the active step and its phase for the given block start,
// and returns the source-sample offsets (relative to the stem's track
// start) to read for this block for up to two layered slices, along with
// their velocities. ok is false when the step is muted or has no active
// slices (the stem's block should be silence, per §4.5 step 2).
func (s *Slicer) Advance(globalClockSample uint64, globalBPM float64, sampleRate int) (offsets [2]uint64, velocities [2]float64, count int, ok bool) {
	if !s.anchorSet {
		s.anchorSample = globalClockSample
		s.anchorSet = true
	}
	total := s.bufferLengthSamples(globalBPM, sampleRate)
	if total == 0 {
		return offsets, velocities, 0, false
	}
	elapsed := globalClockSample - s.anchorSample
	posInBuffer := elapsed % total
	stepLen := total / slicerSteps
	if stepLen == 0 {
		stepLen = 1
	}
	step := int(posInBuffer / stepLen)
	if step >= slicerSteps {
		step = slicerSteps - 1
	}
	s.lastStep = step

	// Phase within the current step (§4.5 step 1), in source samples: how
	// far playback has progressed since the step started. Added to every
	// slice offset below so the slice plays forward from its start rather
	// than holding its first sample for the whole step.
	phaseInStep := posInBuffer % stepLen

	sliceLen := total / slicerSteps

	if s.override.pending {
		idx := s.override.slice
		s.override.pending = false
		if idx < 0 || idx >= slicerSteps {
			return offsets, velocities, 0, false
		}
		offsets[0] = uint64(idx)*sliceLen + phaseInStep
		velocities[0] = 1.0
		return offsets, velocities, 1, true
	}

	st := &s.Sequence.Steps[step]
	if st.Muted {
		return offsets, velocities, 0, false
	}
	n := 0
	if st.HasSlice0 {
		offsets[n] = uint64(st.Slice0)*sliceLen + phaseInStep
		velocities[n] = st.Velocity0
		n++
	}
	if st.HasSlice1 {
		offsets[n] = uint64(st.Slice1)*sliceLen + phaseInStep
		velocities[n] = st.Velocity1
		n++
	}
	if n == 0 {
		return offsets, velocities, 0, false
	}
	return offsets, velocities, n, true
}

// CurrentStepAtomic is read by the UI (via a published copy, not directly)
// to show the active step in a step-sequencer widget; exposed here as a
// plain getter since the deck is responsible for publication cadence.
func (s *Slicer) CurrentStepAtomic() int { return s.lastStep }
