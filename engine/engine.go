package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Top-level audio engine (C9, §4.7): owns the four decks, the
 *		mixer, the global clock, phase sync, and the command-queue
 *		consumer endpoint. Engine.Process is the entire RT-thread
 *		surface; nothing it calls may allocate, block on a lock, do
 *		I/O, or log.
 *
 * Description:	Stats is a plain non-blocking counters surface (no
 *		allocation, no locks), grounded on the teacher's
 *		audio_stats.go idea of exposing audio-subsystem health
 *		without involving the hot path in any synchronization.
 *
 *------------------------------------------------------------------*/

import "sync/atomic"

// maxCommandsPerBlock bounds how many queued commands a single block may
// drain, per §4.7 step 1 ("bounded to prevent pathological stalls").
const maxCommandsPerBlock = 32

// Stats is a set of plain atomic counters the RT thread increments and any
// other thread may read, for operator visibility (supplements §5's "no
// graceful degradation beyond silence" with something observable).
type Stats struct {
	BlocksProcessed   atomic.Uint64
	CommandsProcessed atomic.Uint64
	CommandOverflows  atomic.Uint64
	UnderrunBlocks    atomic.Uint64 // blocks where a deck had no track but was asked to play
	LinkedStemLoadsDropped atomic.Uint64 // CmdLoadLinkedStem submitted while the loader's request queue was full
}

// Engine is the top-level Mesh audio engine.
type Engine struct {
	Decks [NumDecks]*Deck
	Mixer *Mixer

	Commands *CommandQueue
	Loudness LoudnessConfig

	// LinkedStemLoader, if set, is where CmdLoadLinkedStem forwards a
	// load request. Submission is a non-blocking channel send (the
	// loader's own goroutine does the decode/stretch I/O off the RT
	// thread); left nil, CmdLoadLinkedStem is a no-op.
	LinkedStemLoader *LinkedStemLoader

	GlobalBPM float64
	PhaseSync bool

	globalClockSample uint64

	sampleRate   int
	maxBlockSize int

	deckScratch [NumDecks]*StereoBuffer

	Stats Stats
}

// NewEngine builds an engine with four empty decks, a mixer, and a 64-entry
// command queue, all scratch buffers preallocated to maxBlockSize.
func NewEngine(sampleRate, maxBlockSize int) *Engine {
	e := &Engine{
		Commands:     NewCommandQueue(64),
		GlobalBPM:    120,
		sampleRate:   sampleRate,
		maxBlockSize: maxBlockSize,
		Mixer:        NewMixer(sampleRate),
		Loudness:     LoudnessConfig{TargetLUFS: -14},
	}
	for i := range e.Decks {
		e.Decks[i] = NewDeck(i, sampleRate, maxBlockSize)
		e.deckScratch[i] = NewStereoBuffer(maxBlockSize)
	}
	return e
}

// GlobalClockSample returns the number of samples elapsed since engine
// start, at the output sample rate (§4.7 "Global clock").
func (e *Engine) GlobalClockSample() uint64 { return e.globalClockSample }

// Process runs the full block-processing contract of §4.7 for n frames,
// filling masterOut and cueOut (each pre-allocated with capacity >= n). It
// never allocates.
func (e *Engine) Process(masterOut, cueOut *StereoBuffer, n int) {
	if n > e.maxBlockSize {
		n = e.maxBlockSize
	}

	processed := e.Commands.DrainInto(maxCommandsPerBlock, e.applyCommand)
	e.Stats.CommandsProcessed.Add(uint64(processed))
	e.Stats.CommandOverflows.Store(e.Commands.Overflows())

	for i, d := range e.Decks {
		d.ProcessBlock(e.deckScratch[i], n, e.GlobalBPM, e.globalClockSample, e.Loudness)
		if d.Track == nil && d.Playing {
			e.Stats.UnderrunBlocks.Add(1)
		}
	}

	e.Mixer.ProcessBlock(e.deckScratch, masterOut, cueOut, n)

	e.globalClockSample += uint64(n)
	e.Stats.BlocksProcessed.Add(1)
}

// applyCommand dispatches one drained command to the targeted deck/chain/
// mixer state. This function and everything it calls runs on the RT thread
// and must not allocate.
func (e *Engine) applyCommand(cmd Command) {
	if cmd.Kind == CmdSetGlobalBpm {
		e.GlobalBPM = clampF(cmd.Float, MinBPM, MaxBPM)
		return
	}
	if cmd.Kind == CmdAdjustBpm {
		e.GlobalBPM = clampF(e.GlobalBPM+cmd.Float, MinBPM, MaxBPM)
		return
	}
	if cmd.Kind == CmdSetPhaseSync {
		e.PhaseSync = cmd.Bool
		return
	}
	if cmd.Kind == CmdSetLoudnessConfig {
		if cfg, ok := cmd.Box.(LoudnessConfig); ok {
			e.Loudness = cfg
		}
		return
	}

	if cmd.Deck < 0 || cmd.Deck >= NumDecks {
		return
	}
	d := e.Decks[cmd.Deck]

	switch cmd.Kind {
	case CmdLoadTrack:
		if t, ok := cmd.Box.(*PreparedTrack); ok {
			d.LoadTrack(t)
		}
	case CmdUnloadTrack:
		d.UnloadTrack()

	case CmdPlay:
		e.playWithPhaseSync(d)
	case CmdPause:
		d.Pause()
	case CmdTogglePlay:
		if d.Playing {
			d.Pause()
		} else {
			e.playWithPhaseSync(d)
		}
	case CmdSeek:
		d.Seek(uint64(cmd.Int64))

	case CmdCuePress:
		d.CuePress()
	case CmdCueRelease:
		d.CueRelease()
	case CmdSetCuePoint:
		d.SetCuePoint(uint64(cmd.Int64))

	case CmdHotCuePress:
		d.HotCuePress(cmd.Index)
	case CmdHotCueRelease:
		d.HotCueRelease()
	case CmdClearHotCue:
		d.ClearHotCue(cmd.Index)
	case CmdSetHotCue:
		d.SetHotCue(cmd.Index, uint64(cmd.Int64))
	case CmdSetShift:
		d.Shift = cmd.Bool

	case CmdToggleLoop:
		d.ToggleLoop()
	case CmdLoopIn:
		d.LoopIn()
	case CmdLoopOut:
		d.LoopOut()
	case CmdLoopOff:
		d.LoopOff()
	case CmdAdjustLoopLength:
		d.AdjustLoopLength(cmd.Int64)
	case CmdSetLoopLengthIndex:
		e.applyLoopLengthIndex(d, cmd.Index)

	case CmdBeatJumpForward:
		e.beatJump(d, 1)
	case CmdBeatJumpBackward:
		e.beatJump(d, -1)
	case CmdSetBeatGrid:
		if g, ok := cmd.Box.(BeatGrid); ok {
			d.Grid = g
		}

	case CmdToggleStemMute:
		c := d.Chains[cmd.Stem]
		c.Muted = !c.Muted
	case CmdSetStemMute:
		d.Chains[cmd.Stem].Muted = cmd.Bool
	case CmdToggleStemSolo:
		c := d.Chains[cmd.Stem]
		c.Soloed = !c.Soloed
	case CmdSetStemSolo:
		d.Chains[cmd.Stem].Soloed = cmd.Bool

	case CmdSetSlicerEnabled:
		d.Slicers[cmd.Stem].SetEnabled(cmd.Bool, e.globalClockSample)
	case CmdSlicerButtonAction:
		d.Slicers[cmd.Stem].ButtonAction(int(cmd.Button), cmd.Bool, e.globalClockSample)
	case CmdSlicerResetQueue:
		d.Slicers[cmd.Stem].ResetQueue()
	case CmdSetSlicerBufferBars:
		d.Slicers[cmd.Stem].SetBufferBars(cmd.Int)
	case CmdSlicerLoadSequence:
		if seq, ok := cmd.Box.(StepSequence); ok {
			d.Slicers[cmd.Stem].Sequence = seq
		}

	case CmdLinkStem:
		if data, ok := cmd.Box.(LinkedStemData); ok {
			slot := &d.Chains[cmd.Stem].Link
			slot.Data = data
			slot.Loaded = true
			slot.HostLUFS = cmd.Float
			slot.HasHostLUFS = true
		}
	case CmdToggleLinkedStem:
		slot := &d.Chains[cmd.Stem].Link
		if slot.Loaded {
			slot.Active = !slot.Active
		}

	case CmdSwapMultiband:
		if r, ok := cmd.Box.(*MultibandRack); ok {
			d.Chains[cmd.Stem].SwapRack(r)
		}
	case CmdSetMultibandCrossover:
		d.Chains[cmd.Stem].Rack.SetCrossoverFrequency(cmd.Index, cmd.Float)
	case CmdAddMultibandBand:
		d.Chains[cmd.Stem].Rack.AddBand()
	case CmdRemoveMultibandBand:
		d.Chains[cmd.Stem].Rack.RemoveBand(cmd.Index)
	case CmdSetMultibandBandMute:
		e.setBand(d, cmd, func(b *Band) { b.Muted = cmd.Bool })
	case CmdSetMultibandBandSolo:
		e.setBand(d, cmd, func(b *Band) { b.Soloed = cmd.Bool })
	case CmdSetMultibandBandGain:
		e.setBand(d, cmd, func(b *Band) { b.Gain = cmd.Float })
	case CmdSetMultibandMacro:
		rack := d.Chains[cmd.Stem].Rack
		if cmd.Index >= 0 && cmd.Index < NumMacros {
			rack.Macros[cmd.Index].Value = clampF(cmd.Float, 0, 1)
		}
	case CmdAddBandEffect:
		e.addBandEffect(d, cmd)
	case CmdRemoveBandEffect:
		e.removeBandEffect(d, cmd)
	case CmdSetBandEffectBypass:
		e.withBandEffect(d, cmd, func(eff Effect) { eff.SetBypass(cmd.Bool) })
	case CmdSetBandEffectParam:
		e.withBandEffect(d, cmd, func(eff Effect) { eff.SetParamNorm(cmd.Index, cmd.Float) })

	case CmdSetVolume:
		e.Mixer.Channels[cmd.Deck].SetVolume(cmd.Float)
	case CmdSetCueListen:
		e.Mixer.Channels[cmd.Deck].CueListen = cmd.Bool
	case CmdSetEqHi:
		e.Mixer.Channels[cmd.Deck].SetEqHi(cmd.Float)
	case CmdSetEqMid:
		e.Mixer.Channels[cmd.Deck].SetEqMid(cmd.Float)
	case CmdSetEqLo:
		e.Mixer.Channels[cmd.Deck].SetEqLo(cmd.Float)
	case CmdSetFilter:
		e.Mixer.Channels[cmd.Deck].SetFilter(cmd.Float)
	case CmdSetMasterVolume:
		e.Mixer.MasterVolume = clampF(cmd.Float, 0, 1)
	case CmdSetCueMix:
		e.Mixer.CueMix = clampF(cmd.Float, 0, 1)
	case CmdSetCueVolume:
		e.Mixer.CueVolume = clampF(cmd.Float, 0, 1)

	case CmdSetLufsGain:
		// Applied as a per-deck gain multiplier on every stem chain's
		// dedicated LufsGain field, kept separate from Gain so loudness
		// normalisation composes with (rather than overwrites) any
		// other per-stem gain setting.
		for s := 0; s < NumStems; s++ {
			d.Chains[s].LufsGain = cmd.Float
		}

	case CmdToggleSlip:
		d.ToggleSlip()

	case CmdSetSlicerPresets:
		if presets, ok := cmd.Box.(SlicerPresets); ok {
			for s := 0; s < NumStems; s++ {
				if seq := presets.Sequences[s]; seq != nil {
					d.Slicers[s].Sequence = *seq
					d.Slicers[s].SetEnabled(true, e.globalClockSample)
				} else {
					d.Slicers[s].SetEnabled(false, e.globalClockSample)
				}
			}
		}

	case CmdLoadLinkedStem:
		e.submitLinkedStemLoad(d, cmd)
	}
}

// playWithPhaseSync implements §4.7's phase-sync contract: on Play for a
// non-first deck, with phase sync enabled, offset the deck's playhead so
// its next beat aligns to the master deck's (deck 0's) next beat.
func (e *Engine) playWithPhaseSync(d *Deck) {
	if e.PhaseSync && d.index != 0 && len(d.Grid.Beats) > 0 {
		master := e.Decks[0]
		if len(master.Grid.Beats) > 0 {
			masterPos := uint64(master.Playhead)
			if nextMaster, ok := nextBeat(master.Grid, masterPos); ok {
				if nextSelf, ok := nextBeat(d.Grid, uint64(d.Playhead)); ok {
					masterPeriod := beatPeriodSamples(master.Grid, masterPos)
					selfPeriod := beatPeriodSamples(d.Grid, uint64(d.Playhead))
					if masterPeriod > 0 && selfPeriod > 0 {
						// Fraction of its own beat period master still has
						// to travel before its next beat lands.
						masterPhase := float64(nextMaster-masterPos) / float64(masterPeriod)
						// Park self the same fraction of its own beat
						// period before nextSelf, so the two next beats
						// land together.
						target := float64(nextSelf) - masterPhase*float64(selfPeriod)
						d.Playhead = target
					}
				}
			}
		}
	}
	d.Play()
}

func nextBeat(g BeatGrid, pos uint64) (uint64, bool) {
	for _, b := range g.Beats {
		if b >= pos {
			return b, true
		}
	}
	return 0, false
}

func beatPeriodSamples(g BeatGrid, pos uint64) uint64 {
	for i := 0; i+1 < len(g.Beats); i++ {
		if g.Beats[i] >= pos {
			return g.Beats[i+1] - g.Beats[i]
		}
	}
	return 0
}

func (e *Engine) beatJump(d *Deck, dir int) {
	pos := uint64(d.Playhead)
	if dir > 0 {
		if b, ok := nextBeat(d.Grid, pos+1); ok {
			d.Playhead = float64(b)
		}
	} else {
		var prev uint64
		found := false
		for _, b := range d.Grid.Beats {
			if b >= pos {
				break
			}
			prev = b
			found = true
		}
		if found {
			d.Playhead = float64(prev)
		}
	}
}

// loopLengthBeats indexes the common musical loop-length choices a
// SetLoopLengthIndex command selects between.
var loopLengthBeats = [...]float64{0.25, 0.5, 1, 2, 4, 8, 16, 32}

func (e *Engine) applyLoopLengthIndex(d *Deck, index int) {
	if index < 0 || index >= len(loopLengthBeats) {
		return
	}
	beats := loopLengthBeats[index]
	samplesPerBeat := float64(e.sampleRate) * 60.0 / e.GlobalBPM
	length := uint64(beats * samplesPerBeat)
	d.LoopStart = uint64(d.Playhead)
	d.LoopEnd = d.LoopStart + length
	d.LoopActive = true
}

func (e *Engine) setBand(d *Deck, cmd Command, fn func(*Band)) {
	rack := d.Chains[cmd.Stem].Rack
	if cmd.Index < 0 || cmd.Index >= len(rack.Bands) {
		return
	}
	fn(rack.Bands[cmd.Index])
}

func (e *Engine) chainForCmd(d *Deck, cmd Command) *EffectChain {
	rack := d.Chains[cmd.Stem].Rack
	switch MacroTarget(cmd.Int) {
	case MacroTargetPreFX:
		return rack.PreFX
	case MacroTargetPostFX:
		return rack.PostFX
	case MacroTargetBand:
		if cmd.Index < 0 || cmd.Index >= len(rack.Bands) {
			return nil
		}
		return rack.Bands[cmd.Index].Chain
	}
	return nil
}

func (e *Engine) addBandEffect(d *Deck, cmd Command) {
	chain := e.chainForCmd(d, cmd)
	if eff, ok := cmd.Box.(Effect); ok && chain != nil {
		chain.Append(eff)
	}
}

func (e *Engine) removeBandEffect(d *Deck, cmd Command) {
	chain := e.chainForCmd(d, cmd)
	if chain != nil && cmd.Slot >= 0 && cmd.Slot < chain.Len() {
		chain.RemoveAt(cmd.Slot)
	}
}

// submitLinkedStemLoad forwards a CmdLoadLinkedStem command to the engine's
// linked-stem loader, if one is wired. The host deck's own drop marker and
// duration are read fresh off its current track rather than trusting stale
// UI-cached values; cmd.Box carries the source path and cmd.Float the host
// BPM, mirroring the catalogue's LoadLinkedStem{stem, path, host_bpm,
// host_drop, host_duration} shape (§4.8). Submission never blocks the RT
// thread: a full request queue just drops the request, counted in Stats.
func (e *Engine) submitLinkedStemLoad(d *Deck, cmd Command) {
	if e.LinkedStemLoader == nil {
		return
	}
	path, ok := cmd.Box.(string)
	if !ok || path == "" {
		return
	}
	req := LinkedStemRequest{
		HostDeck:   cmd.Deck,
		Stem:       cmd.Stem,
		SourcePath: path,
		HostBPM:    cmd.Float,
	}
	if d.Track != nil {
		req.HostDropMarker = d.Drop
		req.HostDurationSamples = d.Track.DurationSamples
	}
	if !e.LinkedStemLoader.TrySubmit(req) {
		e.Stats.LinkedStemLoadsDropped.Add(1)
	}
}

func (e *Engine) withBandEffect(d *Deck, cmd Command, fn func(Effect)) {
	chain := e.chainForCmd(d, cmd)
	if chain != nil && cmd.Slot >= 0 && cmd.Slot < chain.Len() {
		fn(chain.At(cmd.Slot))
	}
}
