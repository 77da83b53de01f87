package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStemChainKnobClampsToUnitRange(t *testing.T) {
	c := NewStemChain(StemVocals, 48000, 64)
	c.SetKnob(0, 1.5)
	assert.Equal(t, 1.0, c.Knob(0))
	c.SetKnob(0, -0.5)
	assert.Equal(t, 0.0, c.Knob(0))
}

func TestStemChainKnobOutOfRangeIndexIsNoop(t *testing.T) {
	c := NewStemChain(StemVocals, 48000, 64)
	c.SetKnob(-1, 0.5)
	assert.Equal(t, 0.0, c.Knob(-1))
	assert.Equal(t, 0.0, c.Knob(NumMacros))
}

func TestStemChainActiveSourceDefaultsToTrackStem(t *testing.T) {
	c := NewStemChain(StemVocals, 48000, 64)
	track := NewStereoBuffer(4)
	assert.Same(t, track, c.ActiveSource(track))
}

func TestStemChainActiveSourceUsesLinkedStemWhenActive(t *testing.T) {
	c := NewStemChain(StemVocals, 48000, 64)
	linked := NewStereoBuffer(4)
	c.Link.Data.Stretched = NewSharedStereoAudio(linked)
	c.Link.Loaded = true
	c.Link.Active = true

	track := NewStereoBuffer(4)
	assert.Same(t, linked, c.ActiveSource(track))
}

func TestStemChainActiveSourceIgnoresLinkedStemWhenNotLoaded(t *testing.T) {
	c := NewStemChain(StemVocals, 48000, 64)
	linked := NewStereoBuffer(4)
	c.Link.Data.Stretched = NewSharedStereoAudio(linked)
	c.Link.Active = true
	c.Link.Loaded = false

	track := NewStereoBuffer(4)
	assert.Same(t, track, c.ActiveSource(track))
}

func TestStemChainProcessBlockAppliesGain(t *testing.T) {
	c := NewStemChain(StemVocals, 48000, 4)
	c.Gain = 0.5
	buf := NewStereoBuffer(1)
	buf.SetLen(1)
	buf.SetFrame(0, StereoFrame{L: 2, R: 2})
	c.ProcessBlock(buf)
	assert.Equal(t, StereoFrame{L: 1, R: 1}, buf.Frame(0))
}

func TestStemChainProcessBlockComposesGainAndLufsGain(t *testing.T) {
	c := NewStemChain(StemVocals, 48000, 4)
	c.Gain = 0.5
	c.LufsGain = 2.0
	buf := NewStereoBuffer(1)
	buf.SetLen(1)
	buf.SetFrame(0, StereoFrame{L: 2, R: 2})
	c.ProcessBlock(buf)
	assert.Equal(t, StereoFrame{L: 2, R: 2}, buf.Frame(0))
}

func TestLinkedStemSlotLinearGainUnityWithoutLUFS(t *testing.T) {
	var slot LinkedStemSlot
	assert.Equal(t, 1.0, slot.LinearGain(LoudnessConfig{}))
}

func TestLinkedStemSlotLinearGainMatchesHostTarget(t *testing.T) {
	slot := LinkedStemSlot{
		Data:        LinkedStemData{HasLUFS: true, LUFS: -20},
		HostLUFS:    -14,
		HasHostLUFS: true,
	}
	gain := slot.LinearGain(LoudnessConfig{})
	assert.InDelta(t, 1.995, gain, 0.01)
}

func TestStemChainSwapRackReplacesPointer(t *testing.T) {
	c := NewStemChain(StemVocals, 48000, 64)
	newRack := NewMultibandRack(48000, 64)
	c.SwapRack(newRack)
	assert.Same(t, newRack, c.Rack)
}
