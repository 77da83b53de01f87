package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Deck (C7, §4.4): playhead, loop, cue/hot-cue state machine,
 *		beat-snapping, linked stems, slicer hookup, and the
 *		per-block playback algorithm.
 *
 * Description:	The press/release state machine below follows CDJ-style
 *		hardware behaviour (§4.4): press semantics branch on whether
 *		the slot was empty, whether the deck was already playing,
 *		and release only acts when the press that preceded it started
 *		a preview. This mirrors the explicit state-field style the
 *		teacher uses for protocol state machines (ax25_pad2.go,
 *		hdlc_rec2.go): one event moves exactly one field at a time,
 *		no hidden control flow.
 *
 *------------------------------------------------------------------*/

// beatSnapToleranceMillis bounds how far a candidate position may be from
// the nearest grid beat and still snap to it (§4.4: "typical <= 100ms").
// Converted per-deck to beatTolSamples from the sample rate at construction.
const beatSnapToleranceMillis = 100.0

// Deck is one of the engine's four playback decks.
type Deck struct {
	index        int
	sampleRate   int
	maxBlockSize int

	Track   *PreparedTrack
	Chains  [NumStems]*StemChain
	Slicers [NumStems]*Slicer

	Playhead float64 // source-rate sample position, fractional
	Playing  bool

	LoopActive bool
	LoopStart  uint64
	LoopEnd    uint64

	// SlipActive toggles slip mode (ToggleSlip, §4.8): while on, a shadow
	// playhead (slipPlayhead) keeps advancing at the normal playback rate
	// underneath loop/cue/hot-cue excursions, so that ending a loop or
	// releasing a cue/hot-cue preview resumes where playback "would have
	// been" rather than where the excursion left off.
	SlipActive   bool
	slipPlayhead float64

	HotCues        [NumHotCues]HotCue
	HotCueSet      [NumHotCues]bool
	hotCuePreview  [NumHotCues]bool
	hotCueResumePos [NumHotCues]uint64

	CuePoint         uint64
	CueSet           bool
	cuePreviewActive bool
	cuePreResumePos  uint64

	Drop DropMarker
	Grid BeatGrid
	BPM  float64 // track tempo; 0 if unknown (no stretch applied)

	Shift bool

	Interp    InterpolationMethod
	stretcher *Stretcher

	Atomics *DeckAtomics

	beatTolSamples uint64

	stemScratch [NumStems]*StereoBuffer
}

// NewDeck builds an empty (unloaded) deck.
func NewDeck(index, sampleRate, maxBlockSize int) *Deck {
	d := &Deck{
		index:        index,
		sampleRate:   sampleRate,
		maxBlockSize: maxBlockSize,
		Interp:       InterpCubic,
		stretcher:    NewStretcher(InterpCubic),
		Atomics:      NewDeckAtomics(),
	}
	d.beatTolSamples = uint64(beatSnapToleranceMillis / 1000.0 * float64(sampleRate))
	for s := 0; s < NumStems; s++ {
		d.Chains[s] = NewStemChain(StemRole(s), sampleRate, maxBlockSize)
		d.Slicers[s] = NewSlicer()
		d.stemScratch[s] = NewStereoBuffer(maxBlockSize)
	}
	return d
}

// LoadTrack installs a prepared track, resetting playhead/loop/cue state to
// the track's own defaults (hot cues/drop/grid/bpm come from the track).
func (d *Deck) LoadTrack(t *PreparedTrack) {
	d.Track = t
	d.Playhead = 0
	d.slipPlayhead = 0
	d.Playing = false
	d.LoopActive = false
	d.LoopStart, d.LoopEnd = 0, 0
	d.HotCues = t.HotCues
	d.HotCueSet = t.HotCuesSet
	d.hotCuePreview = [NumHotCues]bool{}
	d.CuePoint = 0
	d.CueSet = false
	d.cuePreviewActive = false
	d.Drop = t.Drop
	d.Grid = t.Grid
	d.BPM = t.BPM
}

// UnloadTrack drops the deck's reference to its prepared track's shared
// audio (if any) and resets to the empty state. Safe to call on an already
// empty deck.
func (d *Deck) UnloadTrack() {
	if d.Track != nil {
		d.Track.Stems.DropRT()
	}
	d.Track = nil
	d.Playhead = 0
	d.Playing = false
}

// --- transport -------------------------------------------------------

func (d *Deck) Play()        { d.Playing = true }
func (d *Deck) Pause()       { d.Playing = false }
func (d *Deck) TogglePlay()  { d.Playing = !d.Playing }

// Seek jumps to an absolute source-sample position, clamped to the loaded
// track's duration: seeking at or past duration_samples clamps to exactly
// duration_samples and stops playback if it was playing (§8).
func (d *Deck) Seek(pos uint64) {
	if d.Track != nil && pos >= d.Track.DurationSamples {
		pos = d.Track.DurationSamples
		d.Playing = false
	}
	d.Playhead = float64(pos)
}

// ToggleSlip flips slip mode (§4.8). Enabling it re-anchors the shadow
// playhead to the current position so it does not jump on the next loop/cue
// release.
func (d *Deck) ToggleSlip() {
	d.SlipActive = !d.SlipActive
	if d.SlipActive {
		d.slipPlayhead = d.Playhead
	}
}

// --- beat snapping -----------------------------------------------------

// beatSnap returns pos snapped to the nearest beat grid position within
// tolerance, or pos unchanged if the grid is empty or nothing is within
// tolerance (§4.4).
func (d *Deck) beatSnap(pos uint64) uint64 {
	if snapped, ok := d.Grid.NearestBeat(pos, d.beatTolSamples); ok {
		return snapped
	}
	return pos
}

// --- cue / hot cue state machine ---------------------------------------

// CuePress implements the main cue button's CDJ-style press semantics.
func (d *Deck) CuePress() {
	pos := uint64(d.Playhead)
	switch {
	case !d.CueSet:
		d.CueSet = true
		d.CuePoint = d.beatSnap(pos)
	case !d.Playing:
		d.cuePreviewActive = true
		d.cuePreResumePos = pos
		d.Playhead = float64(d.CuePoint)
		d.Playing = true
	default:
		d.Playhead = float64(d.CuePoint)
	}
}

// CueRelease ends a cue preview, if one was started by the last CuePress.
func (d *Deck) CueRelease() {
	if !d.cuePreviewActive {
		return
	}
	d.cuePreviewActive = false
	if d.SlipActive {
		d.Playhead = d.slipPlayhead
	} else {
		d.Playhead = float64(d.cuePreResumePos)
	}
	d.Playing = false
}

// SetCuePoint directly assigns the cue point (e.g. from a UI edit), beat
// snapped.
func (d *Deck) SetCuePoint(pos uint64) {
	d.CueSet = true
	d.CuePoint = d.beatSnap(pos)
}

// HotCuePress implements one hot-cue slot's CDJ-style press semantics
// (§4.4). A shift-held press clears the slot unconditionally.
func (d *Deck) HotCuePress(slot int) {
	if slot < 0 || slot >= NumHotCues {
		return
	}
	if d.Shift {
		d.ClearHotCue(slot)
		return
	}
	pos := uint64(d.Playhead)
	if !d.HotCueSet[slot] {
		d.HotCues[slot].Index = slot
		d.HotCues[slot].Position = d.beatSnap(pos)
		d.HotCueSet[slot] = true
		d.Atomics.PublishHotCue(slot, d.HotCues[slot].Position, true)
		return
	}
	target := d.HotCues[slot].Position
	if !d.Playing {
		d.hotCuePreview[slot] = true
		d.hotCueResumePos[slot] = pos
		d.Playhead = float64(target)
		d.Playing = true
		return
	}
	d.Playhead = float64(target)
}

// HotCueRelease ends whichever hot-cue preview (if any) is active. Only one
// slot can be in preview at a time in normal CDJ use, but every slot is
// checked for robustness against out-of-order command delivery.
func (d *Deck) HotCueRelease() {
	for i := 0; i < NumHotCues; i++ {
		if d.hotCuePreview[i] {
			d.hotCuePreview[i] = false
			if d.SlipActive {
				d.Playhead = d.slipPlayhead
			} else {
				d.Playhead = float64(d.hotCueResumePos[i])
			}
			d.Playing = false
			return
		}
	}
}

// ClearHotCue empties a hot-cue slot.
func (d *Deck) ClearHotCue(slot int) {
	if slot < 0 || slot >= NumHotCues {
		return
	}
	d.HotCueSet[slot] = false
	d.hotCuePreview[slot] = false
	d.Atomics.PublishHotCue(slot, 0, false)
}

// SetHotCue directly assigns a hot-cue slot's position (e.g. a UI edit),
// beat snapped.
func (d *Deck) SetHotCue(slot int, pos uint64) {
	if slot < 0 || slot >= NumHotCues {
		return
	}
	d.HotCues[slot].Index = slot
	d.HotCues[slot].Position = d.beatSnap(pos)
	d.HotCueSet[slot] = true
	d.Atomics.PublishHotCue(slot, d.HotCues[slot].Position, true)
}

// --- loop ----------------------------------------------------------------

func (d *Deck) ToggleLoop() { d.LoopActive = !d.LoopActive }

func (d *Deck) LoopIn() {
	d.LoopStart = uint64(d.Playhead)
	d.LoopActive = true
}

func (d *Deck) LoopOut() {
	d.LoopEnd = uint64(d.Playhead)
	d.LoopActive = true
}

// LoopOff deactivates the loop. In slip mode, the playhead jumps to the
// shadow slip position, i.e. where playback would be had the loop never
// engaged, rather than continuing from inside the loop region.
func (d *Deck) LoopOff() {
	d.LoopActive = false
	if d.SlipActive {
		d.Playhead = d.slipPlayhead
	}
}

// AdjustLoopLength changes the loop end by delta samples relative to the
// loop start (positive lengthens, negative shortens, never below 1 sample).
func (d *Deck) AdjustLoopLength(delta int64) {
	length := int64(d.LoopEnd) - int64(d.LoopStart) + delta
	if length < 1 {
		length = 1
	}
	d.LoopEnd = d.LoopStart + uint64(length)
}

// --- playback block processing -------------------------------------------

// ProcessBlock runs the §4.4 playback algorithm for n frames, filling out
// (pre-allocated, capacity >= n) with the deck's summed post-stem-chain
// stereo output. globalBPM and globalClockSample drive time-stretch ratio
// and slicer phase respectively. cfg supplies the linked-stem loudness
// target.
func (d *Deck) ProcessBlock(out *StereoBuffer, n int, globalBPM float64, globalClockSample uint64, cfg LoudnessConfig) {
	out.SetLen(n)
	out.Clear()

	if d.Track == nil || (!d.Playing && !d.cuePreviewActive && !d.anyHotCuePreview()) {
		d.publishAtomics()
		return
	}

	ratio := 1.0
	stretching := false
	if d.BPM > 0 && globalBPM > 0 {
		ratio = globalBPM / d.BPM
		stretching = ratio < 0.999 || ratio > 1.001
	}

	durationSamples := float64(d.Track.DurationSamples)

	for s := 0; s < NumStems; s++ {
		d.stemScratch[s].SetLen(n)
	}

	d.stretcher.SetMethod(d.Interp)

	pos := d.Playhead
	slipPos := d.slipPlayhead
	for i := 0; i < n; i++ {
		if d.LoopActive && d.LoopEnd > d.LoopStart && pos >= float64(d.LoopEnd) {
			frac := pos - float64(d.LoopEnd)
			pos = float64(d.LoopStart) + frac
		}

		for s := 0; s < NumStems; s++ {
			role := StemRole(s)
			chain := d.Chains[s]
			slicer := d.Slicers[s]

			var src *StereoBuffer
			readPos := pos
			silence := false

			if slicer.Enabled {
				offsets, velocities, count, ok := slicer.Advance(globalClockSample+uint64(i), globalBPM, d.sampleRate)
				if !ok {
					silence = true
				} else {
					base := d.Track.Stems.Stem(role)
					if chain.Link.Active && chain.Link.Loaded {
						if b := chain.Link.Data.Stretched.Mono(); b != nil {
							base = b
						}
					}
					var frame StereoFrame
					for k := 0; k < count; k++ {
						f := d.stretcher.ReadAt(base, float64(offsets[k]))
						v := float32(velocities[k])
						frame.L += f.L * v
						frame.R += f.R * v
					}
					d.stemScratch[s].SetFrame(i, frame)
					continue
				}
			}

			if silence {
				d.stemScratch[s].SetFrame(i, StereoFrame{})
				continue
			}

			src = chain.ActiveSource(d.Track.Stems.Stem(role))
			frame := d.stretcher.ReadAt(src, readPos)
			d.stemScratch[s].SetFrame(i, frame)
		}

		if stretching {
			pos += ratio
			slipPos += ratio
		} else {
			pos += 1.0
			slipPos += 1.0
		}
		if pos >= durationSamples && durationSamples > 0 && !d.LoopActive {
			pos = durationSamples - 1
			d.Playing = false
		}
		if durationSamples > 0 && slipPos >= durationSamples {
			slipPos -= durationSamples
		}
	}
	d.Playhead = pos
	d.slipPlayhead = slipPos

	soloed := false
	for s := 0; s < NumStems; s++ {
		if d.Chains[s].Soloed {
			soloed = true
			break
		}
	}

	for s := 0; s < NumStems; s++ {
		chain := d.Chains[s]
		buf := d.stemScratch[s]
		chain.ProcessBlock(buf)
		if chain.Muted || (soloed && !chain.Soloed) {
			buf.Clear()
			continue
		}
		if chain.Link.Active && chain.Link.Loaded {
			buf.Scale(float32(chain.Link.LinearGain(cfg)))
		}
		out.AddFrom(buf)
	}

	d.publishAtomics()
}

func (d *Deck) anyHotCuePreview() bool {
	for _, p := range d.hotCuePreview {
		if p {
			return true
		}
	}
	return false
}

func (d *Deck) publishAtomics() {
	d.Atomics.Publish(uint64(d.Playhead), d.Playing, d.LoopActive, d.LoopStart, d.LoopEnd)
}
