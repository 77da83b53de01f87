package engine

/*------------------------------------------------------------------
 *
 * Purpose:	The multiband effect rack (C6, §4.3): pre-FX -> crossover
 *		split -> N band chains -> sum -> post-FX, with macro-knob
 *		modulation and dry/wet gating at every boundary.
 *
 * Description:	The crossover's state-variable-filter coefficients and
 *		cascade structure are transcribed from the reference
 *		Linkwitz-Riley implementation: two cascaded 12dB/octave
 *		Butterworth (Q=1/sqrt2) state-variable sections per
 *		crossover point, giving a 24dB/octave slope with unity-gain
 *		recombination.
 *
 *------------------------------------------------------------------*/

import "math"

// ---------------------------------------------------------------------
// Crossover: cascaded state-variable filters.
// ---------------------------------------------------------------------

// svfFilter is a single two-pole (12dB/octave) state-variable filter,
// producing simultaneous lowpass/highpass outputs. Butterworth Q (1/sqrt2)
// is fixed so that cascading two of these yields an LR24 section.
type svfFilter struct {
	ic1eqL, ic2eqL float64
	ic1eqR, ic2eqR float64
	g, k, a1, a2, a3 float64
}

const butterworthQ = 1.0 / math.Sqrt2

func newSVFFilter(sampleRate int) *svfFilter {
	f := &svfFilter{}
	f.setFrequency(1000, sampleRate)
	return f
}

func (f *svfFilter) setFrequency(cutoff float64, sampleRate int) {
	cutoff = clampF(cutoff, 20, 20000)
	q := butterworthQ
	f.g = math.Tan(math.Pi * cutoff / float64(sampleRate))
	f.k = 1.0 / q
	f.a1 = 1.0 / (1.0 + f.g*(f.g+f.k))
	f.a2 = f.g * f.a1
	f.a3 = f.g * f.a2
}

// process returns (lowpass, highpass) for a single stereo sample.
func (f *svfFilter) process(in StereoFrame) (low, high StereoFrame) {
	// Left channel.
	v3l := float64(in.L) - f.ic2eqL
	v1l := f.a1*f.ic1eqL + f.a2*v3l
	v2l := f.ic2eqL + f.a2*f.ic1eqL + f.a3*v3l
	f.ic1eqL = 2*v1l - f.ic1eqL
	f.ic2eqL = 2*v2l - f.ic2eqL
	lowL := v2l
	highL := float64(in.L) - f.k*v1l - lowL

	// Right channel.
	v3r := float64(in.R) - f.ic2eqR
	v1r := f.a1*f.ic1eqR + f.a2*v3r
	v2r := f.ic2eqR + f.a2*f.ic1eqR + f.a3*v3r
	f.ic1eqR = 2*v1r - f.ic1eqR
	f.ic2eqR = 2*v2r - f.ic2eqR
	lowR := v2r
	highR := float64(in.R) - f.k*v1r - lowR

	return StereoFrame{L: float32(lowL), R: float32(lowR)},
		StereoFrame{L: float32(highL), R: float32(highR)}
}

func (f *svfFilter) reset() {
	f.ic1eqL, f.ic2eqL, f.ic1eqR, f.ic2eqR = 0, 0, 0, 0
}

// crossoverPoint cascades two SVF sections per branch to realise a single
// LR24 split into (low, high).
type crossoverPoint struct {
	lp1, lp2 *svfFilter
	hp1, hp2 *svfFilter
	freq     float64
}

func newCrossoverPoint(freq float64, sampleRate int) *crossoverPoint {
	c := &crossoverPoint{
		lp1: newSVFFilter(sampleRate),
		lp2: newSVFFilter(sampleRate),
		hp1: newSVFFilter(sampleRate),
		hp2: newSVFFilter(sampleRate),
	}
	c.setFrequency(freq, sampleRate)
	return c
}

func (c *crossoverPoint) setFrequency(freq float64, sampleRate int) {
	c.freq = clampF(freq, 20, 20000)
	c.lp1.setFrequency(c.freq, sampleRate)
	c.lp2.setFrequency(c.freq, sampleRate)
	c.hp1.setFrequency(c.freq, sampleRate)
	c.hp2.setFrequency(c.freq, sampleRate)
}

func (c *crossoverPoint) process(in StereoFrame) (low, high StereoFrame) {
	lp1out, _ := c.lp1.process(in)
	low, _ = c.lp2.process(lp1out)
	_, hp1out := c.hp1.process(in)
	_, high = c.hp2.process(hp1out)
	return low, high
}

func (c *crossoverPoint) reset() {
	c.lp1.reset()
	c.lp2.reset()
	c.hp1.reset()
	c.hp2.reset()
}

// crossover splits a stereo stream into 1..MaxBands bands using a cascade
// of LR24 crossover points: the first point splits into low/high, the high
// branch is split again at the next point, and so on (§4.3).
type crossover struct {
	points     [MaxBands - 1]*crossoverPoint
	bandCount  int
	sampleRate int
}

func newCrossover(sampleRate int) *crossover {
	defaultFreqs := [MaxBands - 1]float64{100, 250, 500, 1000, 2000, 4000, 8000}
	c := &crossover{bandCount: 1, sampleRate: sampleRate}
	for i := range c.points {
		c.points[i] = newCrossoverPoint(defaultFreqs[i], sampleRate)
	}
	return c
}

func (c *crossover) setBandCount(n int) {
	if n < 1 {
		n = 1
	}
	if n > MaxBands {
		n = MaxBands
	}
	c.bandCount = n
}

func (c *crossover) setFrequency(index int, freq float64) {
	if index < 0 || index >= c.bandCount-1 {
		return
	}
	c.points[index].setFrequency(freq, c.sampleRate)
}

func (c *crossover) frequency(index int) float64 {
	if index < 0 || index >= len(c.points) {
		return 1000
	}
	return c.points[index].freq
}

// split processes one stereo sample and writes the band outputs into out
// (which must have length >= c.bandCount). Bands beyond bandCount are left
// untouched.
func (c *crossover) split(in StereoFrame, out []StereoFrame) {
	if c.bandCount <= 1 {
		out[0] = in
		return
	}
	remaining := in
	for b := 0; b < c.bandCount-1; b++ {
		low, high := c.points[b].process(remaining)
		out[b] = low
		remaining = high
	}
	out[c.bandCount-1] = remaining
}

func (c *crossover) reset() {
	for _, p := range c.points {
		p.reset()
	}
}

// ---------------------------------------------------------------------
// Macros.
// ---------------------------------------------------------------------

// MacroTarget identifies where a macro mapping points.
type MacroTarget int

const (
	MacroTargetPreFX MacroTarget = iota
	MacroTargetBand
	MacroTargetPostFX
)

// MacroMapping maps one macro's modulation onto one effect parameter, per
// §3.
type MacroMapping struct {
	Target     MacroTarget
	BandIndex  int // meaningful only when Target == MacroTargetBand
	EffectIdx  int
	ParamIdx   int
	OffsetLow  float64 // signed offset range, in [-1, 1]
	OffsetHigh float64
}

// Macro is one rack-level knob: a name, a base value in [0,1], and zero or
// more parameter mappings.
type Macro struct {
	Name     string
	Value    float64
	Mappings []MacroMapping
}

func (m *Macro) offsetFor(mp MacroMapping) float64 {
	// The mapping's range scales the macro's base value; offsets from
	// multiple macros targeting the same parameter simply sum (§4.3).
	// Value 0 yields OffsetLow, value 1 yields OffsetHigh, interpolated
	// linearly in between.
	return mp.OffsetLow + m.Value*(mp.OffsetHigh-mp.OffsetLow)
}

// ---------------------------------------------------------------------
// Band.
// ---------------------------------------------------------------------

// Band is one band of a multiband rack: its own effect chain plus gain,
// mute/solo, and dry/wet (§3 "Band state").
type Band struct {
	LowCutoff  float64
	HighCutoff float64 // +Inf for the top band
	Gain       float64
	Muted      bool
	Soloed     bool
	Mix        float64 // per-band chain dry/wet
	Chain      *EffectChain

	dry *StereoBuffer
}

func newBand(maxBlockSize int) *Band {
	return &Band{
		Gain:  1.0,
		Mix:   1.0,
		Chain: NewEffectChain(maxBlockSize),
		dry:   NewStereoBuffer(maxBlockSize),
	}
}

// process runs the band's chain with its dry/wet applied; it does not apply
// the band's gain. buf holds the band's post-split input on entry and its processed
// output (still to be gain-scaled/summed by the caller) on exit.
func (b *Band) process(buf *StereoBuffer) {
	if b.Chain.Len() == 0 || b.Mix <= 0 {
		return
	}
	b.dry.SetLen(buf.Len())
	b.dry.CopyFrom(buf)
	b.Chain.ProcessBlock(buf)
	if b.Mix < 1.0 {
		blendBuffers(buf, b.dry, buf, b.Mix)
	}
}

// ---------------------------------------------------------------------
// Multiband rack.
// ---------------------------------------------------------------------

// MultibandRack is the full pre-FX -> split -> bands -> sum -> post-FX
// signal path of §4.3.
type MultibandRack struct {
	PreFX  *EffectChain
	PostFX *EffectChain
	// Bands is a view (re-sliced, never reallocated past construction)
	// over bandsStorage; its length is the active band count. All
	// MaxBands Band and bandInputs objects are constructed once up
	// front so SetBandCount/AddBand/RemoveBand — which the command
	// catalogue allows the RT thread to execute directly — never
	// allocate.
	Bands  []*Band
	Macros [NumMacros]Macro

	PreFXMix  float64
	PostFXMix float64
	GlobalMix float64

	xover *crossover

	sampleRate   int
	maxBlockSize int

	bandsStorage      [MaxBands]*Band
	bandInputsStorage [MaxBands]*StereoBuffer

	dryInput   *StereoBuffer
	preDry     *StereoBuffer
	bandInputs []*StereoBuffer
	sum        *StereoBuffer
	postDry    *StereoBuffer

	macroAccum    [maxMacroAccum]macroAccumEntry
	macroAccumLen int

	splitFrames [MaxBands]StereoFrame
}

// maxMacroAccum bounds the number of distinct (chain,band,effect,param)
// targets that may be modulated in a single block. Generous relative to
// NumMacros * a realistic mapping count per macro, and fixed so macro
// evaluation never allocates on the RT thread.
const maxMacroAccum = 128

type macroAccumEntry struct {
	target MacroTarget
	band   int
	effect int
	param  int
	sum    float64
}

// NewMultibandRack builds a single-band (pass-through crossover) rack ready
// to use. Additional bands are added with AddBand.
func NewMultibandRack(sampleRate, maxBlockSize int) *MultibandRack {
	r := &MultibandRack{
		PreFX:        NewEffectChain(maxBlockSize),
		PostFX:       NewEffectChain(maxBlockSize),
		PreFXMix:     1.0,
		PostFXMix:    1.0,
		GlobalMix:    1.0,
		xover:        newCrossover(sampleRate),
		sampleRate:   sampleRate,
		maxBlockSize: maxBlockSize,
		dryInput:     NewStereoBuffer(maxBlockSize),
		preDry:       NewStereoBuffer(maxBlockSize),
		sum:          NewStereoBuffer(maxBlockSize),
		postDry:      NewStereoBuffer(maxBlockSize),
	}
	for i := range r.Macros {
		r.Macros[i] = Macro{Name: "Macro"}
	}
	for i := range r.bandsStorage {
		r.bandsStorage[i] = newBand(maxBlockSize)
		r.bandInputsStorage[i] = NewStereoBuffer(maxBlockSize)
	}
	r.Bands = r.bandsStorage[:1]
	r.bandInputs = r.bandInputsStorage[:1]
	r.recomputeBandRanges()
	return r
}

// BandCount returns the current number of bands (1..MaxBands).
func (r *MultibandRack) BandCount() int { return len(r.Bands) }

// SetBandCount changes the number of bands, adding pass-through bands or
// truncating as needed. Crossovers are ignored when count == 1 (§8).
//
// Growing or shrinking only re-slices bandsStorage/bandInputsStorage, whose
// MaxBands entries are all constructed once in NewMultibandRack; a band
// that is "removed" and later re-added keeps whatever chain, gain, mute and
// solo state it last held; Reset clears only the crossover filter state.
// This keeps SetBandCount allocation-free so the RT thread can execute it
// directly for AddMultibandBand/RemoveMultibandBand commands.
func (r *MultibandRack) SetBandCount(n int) {
	if n < 1 {
		n = 1
	}
	if n > MaxBands {
		n = MaxBands
	}
	r.Bands = r.bandsStorage[:n]
	r.bandInputs = r.bandInputsStorage[:n]
	r.xover.setBandCount(n)
	r.recomputeBandRanges()
}

// AddBand appends one band, up to MaxBands.
func (r *MultibandRack) AddBand() {
	if len(r.Bands) >= MaxBands {
		return
	}
	r.SetBandCount(len(r.Bands) + 1)
}

// RemoveBand removes the band at index, as long as at least one band
// remains. The removed slot's pointer is swapped down through the fixed
// backing arrays (never reallocated) so every surviving index still points
// at a valid, already-constructed Band/StereoBuffer.
func (r *MultibandRack) RemoveBand(index int) {
	n := len(r.Bands)
	if n <= 1 || index < 0 || index >= n {
		return
	}
	for i := index; i < n-1; i++ {
		r.bandsStorage[i], r.bandsStorage[i+1] = r.bandsStorage[i+1], r.bandsStorage[i]
		r.bandInputsStorage[i], r.bandInputsStorage[i+1] = r.bandInputsStorage[i+1], r.bandInputsStorage[i]
	}
	r.Bands = r.bandsStorage[:n-1]
	r.bandInputs = r.bandInputsStorage[:n-1]
	r.xover.setBandCount(n - 1)
	r.recomputeBandRanges()
}

// SetCrossoverFrequency sets crossover point index's frequency (0..BandCount-2).
func (r *MultibandRack) SetCrossoverFrequency(index int, freq float64) {
	r.xover.setFrequency(index, freq)
	r.recomputeBandRanges()
}

func (r *MultibandRack) recomputeBandRanges() {
	low := 0.0
	for i, b := range r.Bands {
		b.LowCutoff = low
		if i < len(r.Bands)-1 {
			high := r.xover.frequency(i)
			b.HighCutoff = high
			low = high
		} else {
			b.HighCutoff = math.Inf(1)
		}
	}
}

func (r *MultibandRack) anySoloed() bool {
	for _, b := range r.Bands {
		if b.Soloed {
			return true
		}
	}
	return false
}

// evaluateMacros applies the macro/offset model once per block (§4.3): for
// each mapping, the effective normalised parameter value is
// base + sum(macro_i * offset_i), clamped to [0,1]. The accumulator is a
// fixed-size array reused every block so this never allocates on the RT
// thread.
func (r *MultibandRack) evaluateMacros() {
	r.macroAccumLen = 0

	record := func(mp MacroMapping, offset float64) {
		for i := 0; i < r.macroAccumLen; i++ {
			e := &r.macroAccum[i]
			if e.target == mp.Target && e.band == mp.BandIndex && e.effect == mp.EffectIdx && e.param == mp.ParamIdx {
				e.sum += offset
				return
			}
		}
		if r.macroAccumLen >= len(r.macroAccum) {
			return
		}
		r.macroAccum[r.macroAccumLen] = macroAccumEntry{
			target: mp.Target,
			band:   mp.BandIndex,
			effect: mp.EffectIdx,
			param:  mp.ParamIdx,
			sum:    offset,
		}
		r.macroAccumLen++
	}

	for mi := range r.Macros {
		m := &r.Macros[mi]
		for _, mp := range m.Mappings {
			record(mp, m.offsetFor(mp))
		}
	}

	for i := 0; i < r.macroAccumLen; i++ {
		e := &r.macroAccum[i]
		var chain *EffectChain
		switch e.target {
		case MacroTargetPreFX:
			chain = r.PreFX
		case MacroTargetPostFX:
			chain = r.PostFX
		case MacroTargetBand:
			if e.band < 0 || e.band >= len(r.Bands) {
				continue
			}
			chain = r.Bands[e.band].Chain
		}
		if chain == nil || e.effect < 0 || e.effect >= chain.Len() {
			continue
		}
		chain.At(e.effect).ApplyMacroOffset(e.param, e.sum)
	}
}

// ProcessBlock runs the full rack signal path in place on buf.
func (r *MultibandRack) ProcessBlock(buf *StereoBuffer) {
	n := buf.Len()
	r.evaluateMacros()

	r.dryInput.SetLen(n)
	r.dryInput.CopyFrom(buf)

	// Pre-FX chain with its dry/wet.
	if r.PreFX.Len() > 0 {
		r.preDry.SetLen(n)
		r.preDry.CopyFrom(buf)
		r.PreFX.ProcessBlock(buf)
		if r.PreFXMix < 1.0 {
			blendBuffers(buf, r.preDry, buf, r.PreFXMix)
		}
	}

	// Crossover split.
	for _, bi := range r.bandInputs {
		bi.SetLen(n)
	}
	bandFrames := r.splitFrames[:len(r.Bands)]
	for i := 0; i < n; i++ {
		r.xover.split(buf.Frame(i), bandFrames)
		for b := range r.Bands {
			r.bandInputs[b].SetFrame(i, bandFrames[b])
		}
	}

	soloed := r.anySoloed()
	r.sum.SetLen(n)
	r.sum.Clear()
	for bi, b := range r.Bands {
		in := r.bandInputs[bi]
		if b.Muted || (soloed && !b.Soloed) {
			continue
		}
		b.process(in)
		in.Scale(float32(b.Gain))
		r.sum.AddFrom(in)
	}

	// Post-FX chain with its dry/wet (boundary input is the sum of bands).
	if r.PostFX.Len() > 0 {
		r.postDry.SetLen(n)
		r.postDry.CopyFrom(r.sum)
		r.PostFX.ProcessBlock(r.sum)
		if r.PostFXMix < 1.0 {
			blendBuffers(r.sum, r.postDry, r.sum, r.PostFXMix)
		}
	}

	buf.CopyFrom(r.sum)

	// Global dry/wet blends the untouched rack input with everything above.
	if r.GlobalMix < 1.0 {
		blendBuffers(buf, r.dryInput, buf, r.GlobalMix)
	}
}

// Reset clears all filter state (used when swapping a rack in, so the new
// rack starts from silence rather than whatever its builder happened to
// leave in the SVF integrators).
func (r *MultibandRack) Reset() {
	r.xover.reset()
}
