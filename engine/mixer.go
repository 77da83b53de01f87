package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Four-channel mixer (C8, §4.6): per-channel three-band EQ,
 *		sweepable filter, volume, and cue send; master + cue bus
 *		summing with cue_mix crossfade.
 *
 * Description:	The sweep filter is realised with the same state-variable
 *		filter block as the multiband crossover (engine/multiband.go).
 *		The three-band EQ is not: it splits each sample into low,
 *		mid and high parts with two one-pole lowpass filters and
 *		scales each part by its band gain.
 *
 *------------------------------------------------------------------*/

import "math"

// eqKillAttenuationDB is the minimum attenuation an EQ band's kill position
// (value 0) must provide, per §4.6.
const eqKillAttenuationDB = -40.0

// channelEQ is a simple three-band (low/mid/high) equaliser realised as two
// parallel one-pole splits, with mid = input - low - high. 0.5 is flat,
// 0 is the -40dB-or-better kill position, 1 is a mild boost.
type channelEQ struct {
	lo, mid, hi float64 // 0..1, 0.5 = flat

	loState, midState, hiState float64 // one-pole filter state, per channel (mono-summed coefficient reused for L/R separately below)
	loStateR, midStateR, hiStateR float64

	sampleRate int
}

func newChannelEQ(sampleRate int) *channelEQ {
	return &channelEQ{lo: 0.5, mid: 0.5, hi: 0.5, sampleRate: sampleRate}
}

// bandGainLinear maps a 0..1 EQ knob to a linear gain: 0 maps to the kill
// floor, 0.5 to unity, 1 to a +6dB boost.
func bandGainLinear(v float64) float64 {
	if v <= 0 {
		return math.Pow(10, eqKillAttenuationDB/20.0)
	}
	db := (v - 0.5) * 2 * 6.0 // +-6dB around flat
	return math.Pow(10, db/20.0)
}

// process applies simple one-pole low/high shelving around fixed corner
// frequencies plus a mid gain, processing L and R independently via the
// cutoff-frequency-derived coefficient shared across both shelves.
func (e *channelEQ) process(f StereoFrame) StereoFrame {
	loCut := 300.0 / float64(e.sampleRate)
	hiCut := 3000.0 / float64(e.sampleRate)
	aLo := math.Exp(-2 * math.Pi * loCut)
	aHi := math.Exp(-2 * math.Pi * hiCut)

	// Low shelf: boost/cut everything below loCut.
	e.loState = float64(f.L)*(1-aLo) + e.loState*aLo
	lowL := e.loState
	e.loStateR = float64(f.R)*(1-aLo) + e.loStateR*aLo
	lowR := e.loStateR

	// High shelf: isolate everything above hiCut via a one-pole highpass
	// (input minus its own lowpassed version).
	e.hiState = float64(f.L)*(1-aHi) + e.hiState*aHi
	highL := float64(f.L) - e.hiState
	e.hiStateR = float64(f.R)*(1-aHi) + e.hiStateR*aHi
	highR := float64(f.R) - e.hiStateR

	midL := float64(f.L) - lowL - highL
	midR := float64(f.R) - lowR - highR

	loGain := bandGainLinear(e.lo)
	midGain := bandGainLinear(e.mid)
	hiGain := bandGainLinear(e.hi)

	outL := lowL*loGain + midL*midGain + highL*hiGain
	outR := lowR*loGain + midR*midGain + highR*hiGain
	return StereoFrame{L: float32(outL), R: float32(outR)}
}

// channelFilter is the single sweepable filter per channel: -1 = full
// lowpass sweep, 0 = bypass, +1 = full highpass sweep (§4.6).
type channelFilter struct {
	value      float64 // -1..1
	svf        *svfFilter
	sampleRate int
}

func newChannelFilter(sampleRate int) *channelFilter {
	return &channelFilter{svf: newSVFFilter(sampleRate), sampleRate: sampleRate}
}

func (f *channelFilter) setValue(v float64) {
	f.value = clampF(v, -1, 1)
	if f.value == 0 {
		return
	}
	var cutoff float64
	if f.value < 0 {
		// Lowpass sweep: -1 -> 200Hz, 0 -> 20kHz (exclusive).
		t := -f.value
		cutoff = lerp(20000, 200, t)
	} else {
		// Highpass sweep: 0 -> 20Hz (exclusive), +1 -> 15000Hz.
		cutoff = lerp(20, 15000, f.value)
	}
	f.svf.setFrequency(cutoff, f.sampleRate)
}

func (f *channelFilter) process(in StereoFrame) StereoFrame {
	if f.value == 0 {
		return in
	}
	low, high := f.svf.process(in)
	if f.value < 0 {
		return low
	}
	return high
}

// Channel is one of the mixer's four input strips.
type Channel struct {
	eq        *channelEQ
	filter    *channelFilter
	Volume    float64 // 0..1 linear
	CueListen bool
}

func newChannel(sampleRate int) *Channel {
	return &Channel{
		eq:     newChannelEQ(sampleRate),
		filter: newChannelFilter(sampleRate),
		Volume: 1.0,
	}
}

func (c *Channel) SetEqLo(v float64)  { c.eq.lo = clampF(v, 0, 1) }
func (c *Channel) SetEqMid(v float64) { c.eq.mid = clampF(v, 0, 1) }
func (c *Channel) SetEqHi(v float64)  { c.eq.hi = clampF(v, 0, 1) }
func (c *Channel) SetFilter(v float64) { c.filter.setValue(v) }
func (c *Channel) SetVolume(v float64) { c.Volume = clampF(v, 0, 1) }

func (c *Channel) process(in StereoFrame) StereoFrame {
	f := c.eq.process(in)
	f = c.filter.process(f)
	f.L *= float32(c.Volume)
	f.R *= float32(c.Volume)
	return f
}

// Mixer sums NumDecks post-stem-chain deck outputs into master and cue
// buses (§4.6).
type Mixer struct {
	Channels [NumDecks]*Channel

	MasterVolume float64 // 0..1
	CueMix       float64 // 0 = cue only, 1 = master only
	CueVolume    float64 // 0..1

	Limiter *MasterLimiter
	Clipper *HardClipper
}

// NewMixer builds a mixer with unity channel/master volumes, cue_mix at 1
// (master only), and the default limiter/clipper for sampleRate.
func NewMixer(sampleRate int) *Mixer {
	m := &Mixer{
		MasterVolume: 1.0,
		CueMix:       1.0,
		CueVolume:    1.0,
		Limiter:      NewMasterLimiter(sampleRate),
		Clipper:      NewHardClipper(-0.3),
	}
	for i := range m.Channels {
		m.Channels[i] = newChannel(sampleRate)
	}
	return m
}

// ProcessBlock reads deckOutputs (NumDecks buffers of length n), applies
// each channel's EQ/filter/volume and cue send, sums into masterOut, applies
// the limiter and clipper to masterOut, and sums the cue-enabled channels
// (crossfaded against master by CueMix) into cueOut.
func (m *Mixer) ProcessBlock(deckOutputs [NumDecks]*StereoBuffer, masterOut, cueOut *StereoBuffer, n int) {
	masterOut.SetLen(n)
	masterOut.Clear()
	cueOut.SetLen(n)
	cueOut.Clear()

	for i := 0; i < n; i++ {
		var masterSum, cueSum StereoFrame
		for ch := 0; ch < NumDecks; ch++ {
			in := deckOutputs[ch].Frame(i)
			out := m.Channels[ch].process(in)
			masterSum.L += out.L
			masterSum.R += out.R
			if m.Channels[ch].CueListen {
				cueSum.L += out.L * float32(m.CueVolume)
				cueSum.R += out.R * float32(m.CueVolume)
			}
		}
		masterSum.L *= float32(m.MasterVolume)
		masterSum.R *= float32(m.MasterVolume)

		masterOut.SetFrame(i, masterSum)

		cw := float32(m.CueMix)
		mixed := StereoFrame{
			L: (1-cw)*cueSum.L + cw*masterSum.L,
			R: (1-cw)*cueSum.R + cw*masterSum.R,
		}
		cueOut.SetFrame(i, mixed)
	}

	m.Limiter.ProcessBlock(masterOut)
	m.Clipper.ProcessBlock(masterOut)
}
