package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandGainLinearKillFloor(t *testing.T) {
	g := bandGainLinear(0)
	wantDB := eqKillAttenuationDB
	assert.InDelta(t, wantDB, 20*math.Log10(g), 0.1)
}

func TestBandGainLinearFlatAtHalf(t *testing.T) {
	assert.InDelta(t, 1.0, bandGainLinear(0.5), 1e-9)
}

func TestChannelFilterBypassAtZero(t *testing.T) {
	f := newChannelFilter(48000)
	in := StereoFrame{L: 0.3, R: -0.3}
	assert.Equal(t, in, f.process(in))
}

func TestChannelSetVolumeClamps(t *testing.T) {
	c := newChannel(48000)
	c.SetVolume(2.0)
	assert.Equal(t, 1.0, c.Volume)
	c.SetVolume(-1.0)
	assert.Equal(t, 0.0, c.Volume)
}

func TestMixerProcessBlockSumsChannelsWithVolume(t *testing.T) {
	m := NewMixer(48000)
	for i := range m.Channels {
		m.Channels[i].SetVolume(0)
	}
	m.Channels[0].SetVolume(1.0)

	// The block must outlast the limiter's lookahead delay for the impulse
	// to reach the master output.
	delay := m.Limiter.LatencySamples()
	n := delay + 4

	var decks [NumDecks]*StereoBuffer
	for i := range decks {
		decks[i] = NewStereoBuffer(n)
		decks[i].SetLen(n)
		decks[i].SetFrame(0, StereoFrame{L: 0.3, R: 0.3}) // silenced by volume 0 on channels 1..3
	}
	decks[0].SetFrame(0, StereoFrame{L: 0.1, R: 0.1})

	master := NewStereoBuffer(n)
	cue := NewStereoBuffer(n)
	m.ProcessBlock(decks, master, cue, n)

	// Channel 0 alone contributes; the limiter is transparent this far below
	// threshold but delays the signal by its lookahead.
	assert.InDelta(t, 0.1, float64(master.Frame(delay).L), 1e-3)
	assert.InDelta(t, 0.1, float64(master.Frame(delay).R), 1e-3)
	assert.Equal(t, n, master.Len())
	assert.Equal(t, n, cue.Len())
}

func TestMixerCueMixAtZeroIsCueBusOnly(t *testing.T) {
	m := NewMixer(48000)
	m.CueMix = 0
	m.Channels[0].CueListen = true
	m.Channels[0].SetVolume(1.0)
	for i := 1; i < NumDecks; i++ {
		m.Channels[i].SetVolume(0)
	}

	var decks [NumDecks]*StereoBuffer
	for i := range decks {
		decks[i] = NewStereoBuffer(2)
		decks[i].SetLen(2)
	}
	decks[0].SetFrame(0, StereoFrame{L: 0.2, R: 0.2})

	master := NewStereoBuffer(2)
	cue := NewStereoBuffer(2)
	m.ProcessBlock(decks, master, cue, 2)
	// With CueMix == 0, cueOut equals the raw cue-bus sum (not blended with
	// master at all). The limiter and clipper act on master only, so the
	// cue bus carries channel 0's flat-EQ output without delay.
	assert.Equal(t, 2, cue.Len())
	assert.InDelta(t, 0.2, float64(cue.Frame(0).L), 1e-6)
	assert.InDelta(t, 0.2, float64(cue.Frame(0).R), 1e-6)
}
