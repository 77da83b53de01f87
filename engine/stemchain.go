package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Stem chain (C6, §4.4): one multiband rack per stem role,
 *		plus the per-stem controls a deck layers on top of it —
 *		mute, solo, gain, and the linked-stem slot.
 *
 *------------------------------------------------------------------*/

// LinkedStemSlot holds a borrowed stem buffer from another track, already
// time-stretched to the host deck's duration (§4.4 "Linked stems"); its
// drop marker is the host's, and the audio itself is not shifted to it. Linking does not itself switch playback to the borrowed
// buffer; ToggleLinkedStem flips which buffer a deck reads, atomically at
// the next block boundary.
type LinkedStemSlot struct {
	Data     LinkedStemData
	Loaded   bool
	Active   bool // true once ToggleLinkedStem has selected the linked buffer
	HostLUFS float64
	HasHostLUFS bool
}

// LinearGain returns the gain to apply to the linked buffer so its measured
// loudness matches the host track it stands in for, using the host's LUFS
// as the normalisation target (§9 open question c).
func (s *LinkedStemSlot) LinearGain(cfg LoudnessConfig) float64 {
	if !s.Data.HasLUFS || !s.HasHostLUFS {
		return 1.0
	}
	target := LoudnessConfig{AutoGainEnabled: true, TargetLUFS: s.HostLUFS}
	return target.LinearGainFor(s.Data.LUFS)
}

// StemChain is one stem role's full processing chain within a deck: the
// multiband effect rack (§4.3) plus mute/solo/gain/link state (§4.4).
type StemChain struct {
	Role StemRole

	Rack *MultibandRack

	Muted  bool
	Soloed bool
	Gain   float64 // per-stem gain set directly on this chain

	// LufsGain is the loudness-normalisation multiplier computed by
	// SetLufsGain (§4.8), kept separate from Gain so the two knobs
	// compose instead of one overwriting the other.
	LufsGain float64

	Link LinkedStemSlot

	// KnobValues mirrors Rack.Macros[i].Value for the eight UI-facing
	// knobs bound to this chain's macros (§4.4: "the eight knob values
	// that are bound to the chain's macros"). Kept as a thin accessor
	// pair below rather than a separate field set, since the rack's
	// Macros array is already the single source of truth.
}

// NewStemChain builds a stem chain with a single-band pass-through rack,
// unity gain, and no link.
func NewStemChain(role StemRole, sampleRate, maxBlockSize int) *StemChain {
	return &StemChain{
		Role:     role,
		Rack:     NewMultibandRack(sampleRate, maxBlockSize),
		Gain:     1.0,
		LufsGain: 1.0,
	}
}

// SetKnob sets macro index i's base value (0..NumMacros-1), clamped to
// [0,1].
func (c *StemChain) SetKnob(i int, value float64) {
	if i < 0 || i >= NumMacros {
		return
	}
	c.Rack.Macros[i].Value = clampF(value, 0, 1)
}

// Knob returns macro index i's current base value.
func (c *StemChain) Knob(i int) float64 {
	if i < 0 || i >= NumMacros {
		return 0
	}
	return c.Rack.Macros[i].Value
}

// ActiveSource selects which shared buffer this chain should read from this
// block: the track's own stem, or the linked stem if one is loaded and
// active. toggling Link.Active only takes effect here, i.e. at the next
// call, which is exactly the "atomic at a block boundary" contract of
// §4.4.
func (c *StemChain) ActiveSource(trackStem *StereoBuffer) *StereoBuffer {
	if c.Link.Active && c.Link.Loaded {
		if b := c.Link.Data.Stretched.Mono(); b != nil {
			return b
		}
	}
	return trackStem
}

// SwapRack atomically replaces the chain's rack (used by SwapMultiband,
// §4.8, after the preset loader has built a new rack off-RT). The old
// rack's effect instances, if they wrap plugin resources, are left for the
// caller to dispose of off-RT; the RT thread only ever stores the pointer.
func (c *StemChain) SwapRack(r *MultibandRack) {
	c.Rack = r
}

// ProcessBlock runs the stem's multiband rack on buf, then applies gain.
// Mute/solo is the caller's responsibility (it depends on the sibling
// chains' solo state, per §4.4 step 4) and is therefore handled by the
// deck, not here.
func (c *StemChain) ProcessBlock(buf *StereoBuffer) {
	c.Rack.ProcessBlock(buf)
	gain := c.Gain * c.LufsGain
	if gain != 1.0 {
		buf.Scale(float32(gain))
	}
}
