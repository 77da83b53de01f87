package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// The LR24 crossover cascade must reconstruct a constant input to unity gain
// when the split bands are simply summed back together, within 1% after a
// 10000-sample warm-up (§8). The summed bands are phase-shifted relative to
// the input, so a time-varying signal is not reproduced sample for sample.
func TestCrossoverReconstructsUnityGain(t *testing.T) {
	const sampleRate = 48000
	c := newCrossover(sampleRate)
	c.setBandCount(3)
	c.setFrequency(0, 200)
	c.setFrequency(1, 2000)

	out := make([]StereoFrame, 3)
	in := StereoFrame{L: 0.5, R: -0.5}
	var recon StereoFrame
	for i := 0; i < 10000; i++ {
		c.split(in, out)
		recon = StereoFrame{}
		for _, b := range out {
			recon.L += b.L
			recon.R += b.R
		}
	}
	assert.InDeltaf(t, float64(in.L), float64(recon.L), 0.005, "left reconstruction after warm-up: %v", recon.L)
	assert.InDeltaf(t, float64(in.R), float64(recon.R), 0.005, "right reconstruction after warm-up: %v", recon.R)
}

func TestCrossoverSingleBandPassesThrough(t *testing.T) {
	c := newCrossover(48000)
	out := make([]StereoFrame, 1)
	in := StereoFrame{L: 0.5, R: -0.25}
	c.split(in, out)
	assert.Equal(t, in, out[0])
}

func TestMultibandRackSetBandCountNeverReallocatesBandsSlice(t *testing.T) {
	r := NewMultibandRack(48000, 512)
	assert.Equal(t, 1, r.BandCount())

	r.SetBandCount(4)
	require.Equal(t, 4, r.BandCount())
	// bandsStorage backs Bands; capacity never exceeds MaxBands regardless
	// of how many times SetBandCount is called.
	assert.Equal(t, MaxBands, cap(r.Bands))
	assert.Equal(t, MaxBands, cap(r.bandInputs))

	r.SetBandCount(1)
	assert.Equal(t, 1, r.BandCount())
	assert.Equal(t, MaxBands, cap(r.Bands))
}

func TestMultibandRackSetBandCountClampsToValidRange(t *testing.T) {
	r := NewMultibandRack(48000, 512)
	r.SetBandCount(0)
	assert.Equal(t, 1, r.BandCount())
	r.SetBandCount(MaxBands + 10)
	assert.Equal(t, MaxBands, r.BandCount())
}

func TestMultibandRackAddRemoveBandPreservesIdentity(t *testing.T) {
	r := NewMultibandRack(48000, 512)
	r.AddBand()
	r.AddBand()
	require.Equal(t, 3, r.BandCount())

	middle := r.Bands[1]
	middle.Gain = 0.42

	r.RemoveBand(0)
	require.Equal(t, 2, r.BandCount())
	// The band that was at index 1 (gain 0.42) should now be at index 0;
	// RemoveBand swaps pointers down rather than discarding state.
	assert.Equal(t, 0.42, r.Bands[0].Gain)
}

func TestMultibandRackRemoveBandRefusesLastBand(t *testing.T) {
	r := NewMultibandRack(48000, 512)
	r.RemoveBand(0)
	assert.Equal(t, 1, r.BandCount())
}

func TestMultibandRackRecomputeBandRangesTopBandIsInfinite(t *testing.T) {
	r := NewMultibandRack(48000, 512)
	r.SetBandCount(2)
	r.SetCrossoverFrequency(0, 1000)
	assert.Equal(t, 0.0, r.Bands[0].LowCutoff)
	assert.Equal(t, 1000.0, r.Bands[0].HighCutoff)
	assert.Equal(t, 1000.0, r.Bands[1].LowCutoff)
	assert.True(t, math.IsInf(r.Bands[1].HighCutoff, 1))
}

func TestMultibandRackGlobalMixBlendsDryAndWet(t *testing.T) {
	r := NewMultibandRack(48000, 4)
	r.Bands[0].Gain = 0 // silence the only band's contribution
	r.GlobalMix = 0.5

	buf := NewStereoBuffer(4)
	buf.SetLen(4)
	for i := 0; i < 4; i++ {
		buf.SetFrame(i, StereoFrame{L: 1, R: 1})
	}
	r.ProcessBlock(buf)
	for i := 0; i < 4; i++ {
		f := buf.Frame(i)
		assert.InDelta(t, 0.5, f.L, 1e-3)
	}
}

func TestMacroOffsetsFromMultipleMacrosSum(t *testing.T) {
	r := NewMultibandRack(48000, 4)
	eff := newTestEffect()
	r.PreFX.Append(eff)

	r.Macros[0] = Macro{Value: 0.5, Mappings: []MacroMapping{
		{Target: MacroTargetPreFX, EffectIdx: 0, ParamIdx: 0, OffsetHigh: 0.4},
	}}
	r.Macros[1] = Macro{Value: 0.5, Mappings: []MacroMapping{
		{Target: MacroTargetPreFX, EffectIdx: 0, ParamIdx: 0, OffsetHigh: 0.4},
	}}

	buf := NewStereoBuffer(4)
	buf.SetLen(4)
	r.ProcessBlock(buf)

	// Each mapping contributes 0.5*0.4 = 0.2, summing to 0.4.
	assert.InDelta(t, 0.4, eff.lastOffset, 1e-9)
}

func TestMacroOffsetForInterpolatesBetweenLowAndHigh(t *testing.T) {
	mp := MacroMapping{OffsetLow: -0.2, OffsetHigh: 0.6}
	assert.InDelta(t, -0.2, (&Macro{Value: 0}).offsetFor(mp), 1e-9)
	assert.InDelta(t, 0.6, (&Macro{Value: 1}).offsetFor(mp), 1e-9)
	assert.InDelta(t, 0.2, (&Macro{Value: 0.5}).offsetFor(mp), 1e-9)
}

// newTestEffect is a minimal Effect used only to observe ApplyMacroOffset
// calls.
type testEffect struct {
	lastOffset float64
}

func newTestEffect() *testEffect { return &testEffect{} }

func (e *testEffect) Name() string                 { return "test" }
func (e *testEffect) ParamMetadata() []ParamMeta    { return []ParamMeta{{Min: 0, Max: 1}} }
func (e *testEffect) SetParamNorm(i int, norm float64) {}
func (e *testEffect) ParamNorm(i int) float64       { return 0 }
func (e *testEffect) ApplyMacroOffset(i int, offsetSum float64) {
	e.lastOffset = offsetSum
}
func (e *testEffect) SetBypass(bool)          {}
func (e *testEffect) Bypassed() bool          { return false }
func (e *testEffect) LatencySamples() int     { return 0 }
func (e *testEffect) ProcessBlock(*StereoBuffer) {}

// Property: whatever sequence of band counts SetBandCount is driven through,
// BandCount always ends up clamped to [1, MaxBands] and Bands/bandInputs stay
// the same fixed-capacity backing arrays (no reallocation ever changes their
// capacity), which is the invariant that keeps AddMultibandBand/
// RemoveMultibandBand safe to run directly on the RT thread.
func TestMultibandRackPropertyBandCountNeverEscapesBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewMultibandRack(48000, 64)
		steps := rapid.IntRange(0, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			n := rapid.IntRange(-2, MaxBands+2).Draw(t, "n")
			r.SetBandCount(n)
			assert.GreaterOrEqual(t, r.BandCount(), 1)
			assert.LessOrEqual(t, r.BandCount(), MaxBands)
			assert.Equal(t, MaxBands, cap(r.Bands))
			assert.Equal(t, MaxBands, cap(r.bandInputs))
		}
	})
}
