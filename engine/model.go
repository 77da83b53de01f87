package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Data model shared across components (§3): beat grids, hot
 *		cues, saved loops, drop markers, prepared tracks, and
 *		waveform previews.
 *
 *------------------------------------------------------------------*/

import "math"

// HotCue is a named jump-to position on a track.
type HotCue struct {
	Index    int
	Position uint64
	Label    string
	HasColor bool
	ColorR   uint8
	ColorG   uint8
	ColorB   uint8
}

// SavedLoop is a persisted loop region (distinct from the deck's single
// currently-active loop).
type SavedLoop struct {
	Index    int
	Start    uint64
	End      uint64 // End > Start
	Label    string
	HasColor bool
	ColorR   uint8
	ColorG   uint8
	ColorB   uint8
}

// DropMarker is the single optional structural "drop" position used to
// align linked stems between tracks.
type DropMarker struct {
	Position uint64
	Set      bool
}

// BeatGrid is an ordered ascending sequence of downbeat sample positions.
type BeatGrid struct {
	Beats []uint64
}

// GenerateBeatGrid regenerates a beat grid per the regeneration rule of §3:
// beats at firstBeat + i*round(sampleRate*60/bpm) for all i >= 0 while the
// beat position is < durationSamples.
func GenerateBeatGrid(firstBeat uint64, bpm float64, durationSamples uint64, sampleRate int) BeatGrid {
	if bpm <= 0 {
		return BeatGrid{}
	}
	step := uint64(math.Round(float64(sampleRate) * 60.0 / bpm))
	if step == 0 {
		return BeatGrid{}
	}
	var beats []uint64
	for pos := firstBeat; pos < durationSamples; pos += step {
		beats = append(beats, pos)
	}
	return BeatGrid{Beats: beats}
}

// NearestBeat returns the beat grid position closest to pos, and whether it
// is within toleranceSamples. If the grid is empty, ok is always false (no
// snapping occurs, per §4.4).
func (g BeatGrid) NearestBeat(pos uint64, toleranceSamples uint64) (beat uint64, ok bool) {
	if len(g.Beats) == 0 {
		return 0, false
	}
	// Binary search for the insertion point.
	lo, hi := 0, len(g.Beats)
	for lo < hi {
		mid := (lo + hi) / 2
		if g.Beats[mid] < pos {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	best := g.Beats[0]
	bestDist := absDiffU64(best, pos)
	for _, idx := range []int{lo - 1, lo} {
		if idx < 0 || idx >= len(g.Beats) {
			continue
		}
		d := absDiffU64(g.Beats[idx], pos)
		if d < bestDist {
			best = g.Beats[idx]
			bestDist = d
		}
	}
	if bestDist > toleranceSamples {
		return 0, false
	}
	return best, true
}

func absDiffU64(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// WaveformPreview is a pre-generated low-resolution peak series per stem,
// approximately 1800 peak pairs per stem (§3).
type WaveformPreview struct {
	// Peaks[stem] is a flattened sequence of (min,max) pairs.
	Peaks [NumStems][]float32
}

// PreparedTrack is the loader's output and the argument to "load track onto
// deck" (§3).
type PreparedTrack struct {
	Stems           SharedAudio
	DurationSamples uint64
	BPM             float64
	HasLUFS         bool
	LUFS            float64
	HasKey          bool
	Key             string
	Grid            BeatGrid
	HotCues         [NumHotCues]HotCue
	HotCuesSet      [NumHotCues]bool
	SavedLoops      []SavedLoop
	Drop            DropMarker
	Preview         WaveformPreview
	SampleRate      int
}

// LinkedStemData is the linked-stem loader's output (§4.9): an alternate
// stem buffer already time-stretched to the host deck's track duration.
// DropInStretched carries the host's drop position; the loader does not
// shift the audio to line the source's drop up with it.
type LinkedStemData struct {
	Stretched       SharedAudio
	DropInStretched DropMarker
	Duration        uint64
	HasLUFS         bool
	LUFS            float64
	OverviewPeaks   []float32
	HighResPeaks    []float32
}

// InterpolationMethod selects how the deck reads between integer sample
// positions during time-stretched or off-integer playback (§4.4).
type InterpolationMethod int

const (
	InterpLinear InterpolationMethod = iota
	InterpCubic
	InterpSinc
)

// LoudnessConfig is the auto-gain configuration surface of §6.
type LoudnessConfig struct {
	AutoGainEnabled bool
	TargetLUFS      float64
}

// LinearGainFor computes the linear gain to apply to bring measuredLUFS to
// the configured target, per §6: linear_gain = 10^((target-measured)/20).
func (c LoudnessConfig) LinearGainFor(measuredLUFS float64) float64 {
	if !c.AutoGainEnabled {
		return 1.0
	}
	return math.Pow(10, (c.TargetLUFS-measuredLUFS)/20.0)
}
