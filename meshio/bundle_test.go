package meshio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func makeTestBundle(frames int, bits uint16, tag FormatTag) *StemBundle {
	b := &StemBundle{
		Format:     AudioFormat{FormatTag: tag, Channels: StemChannelCount, SampleRate: 48000, BitsPerSample: bits},
		FrameCount: uint64(frames),
		Meta: TrackMetadata{
			Artist:  "Test Artist",
			HasBPM:  true,
			BPM:     128,
			HasLUFS: true,
			LUFS:    -9.5,
			HasKey:  true,
			Key:     "8A",
			Grid:    BeatGrid{Beats: []uint64{0, 22500, 45000, 67500}},
			Drop:    DropMarker{Position: 400000, Set: true},
			SavedLoops: []SavedLoop{
				{Index: 0, Start: 1000, End: 2000, Label: "Verse", HasColor: true, ColorR: 255, ColorG: 0, ColorB: 0},
			},
			Preview: WaveformPreview{Peaks: [NumStems][]float32{
				{-0.5, 0.5, -0.4, 0.6},
				{-0.2, 0.3},
				{-0.9, 0.9},
				{0, 0},
			}},
			StemLinks: []StemLinkReference{
				{StemIndex: 1, SourcePath: "other.mesh", SourceStem: 1, SourceDropMarker: 500000},
			},
		},
	}
	b.Meta.HotCuesSet[0] = true
	b.Meta.HotCues[0] = CuePoint{Index: 0, Position: 48000, Label: "Drop", HasColor: true, ColorR: 10, ColorG: 20, ColorB: 30}
	b.Meta.HotCuesSet[3] = true
	b.Meta.HotCues[3] = CuePoint{Index: 3, Position: 960000, Label: "Break"}

	for s := 0; s < NumStems; s++ {
		data := make([]float32, frames*2)
		for i := range data {
			data[i] = float32(i%200-100) / 100
		}
		b.Stems[s] = data
	}
	return b
}

func TestStemBundleRoundTripMetadata(t *testing.T) {
	want := makeTestBundle(100, 16, FormatPCM)
	var buf bytes.Buffer
	require.NoError(t, WriteStemBundle(&buf, want))

	got, err := ReadStemBundle(&buf)
	require.NoError(t, err)

	assert.Equal(t, want.Meta.Artist, got.Meta.Artist)
	assert.Equal(t, want.Meta.BPM, got.Meta.BPM)
	assert.Equal(t, want.Meta.LUFS, got.Meta.LUFS)
	assert.Equal(t, want.Meta.Key, got.Meta.Key)
	assert.Equal(t, want.Meta.Grid, got.Meta.Grid)
	assert.Equal(t, want.Meta.Drop, got.Meta.Drop)
	assert.Equal(t, want.Meta.SavedLoops, got.Meta.SavedLoops)
	assert.Equal(t, want.Meta.StemLinks, got.Meta.StemLinks)
	assert.Equal(t, want.Meta.Preview, got.Meta.Preview)
	assert.Equal(t, want.Meta.HotCues, got.Meta.HotCues)
	assert.Equal(t, want.Meta.HotCuesSet, got.Meta.HotCuesSet)
}

func TestStemBundleRoundTripPCM16(t *testing.T) {
	want := makeTestBundle(500, 16, FormatPCM)
	var buf bytes.Buffer
	require.NoError(t, WriteStemBundle(&buf, want))

	got, err := ReadStemBundle(&buf)
	require.NoError(t, err)
	require.Equal(t, want.FrameCount, got.FrameCount)

	for s := 0; s < NumStems; s++ {
		require.Len(t, got.Stems[s], len(want.Stems[s]))
		for i := range want.Stems[s] {
			// 16-bit quantization tolerance.
			assert.InDelta(t, want.Stems[s][i], got.Stems[s][i], 1.0/32000)
		}
	}
}

func TestStemBundleRoundTripFloat32IsExact(t *testing.T) {
	want := makeTestBundle(50, 32, FormatFloat)
	var buf bytes.Buffer
	require.NoError(t, WriteStemBundle(&buf, want))

	got, err := ReadStemBundle(&buf)
	require.NoError(t, err)
	for s := 0; s < NumStems; s++ {
		assert.InDeltaSlice(t, want.Stems[s], got.Stems[s], 1e-6)
	}
}

func TestStemBundleRejectsWrongChannelCount(t *testing.T) {
	b := makeTestBundle(10, 16, FormatPCM)
	b.Format.Channels = 2
	var buf bytes.Buffer
	err := WriteStemBundle(&buf, b)
	assert.ErrorIs(t, err, ErrBadStemFile)
}

func TestReadStemBundleRejectsUnsupportedSampleRate(t *testing.T) {
	b := makeTestBundle(10, 16, FormatPCM)
	var buf bytes.Buffer
	require.NoError(t, WriteStemBundle(&buf, b))

	// Corrupt the sample rate field of the fmt chunk in place: the
	// chunk-writer emits ds64(28) then "fmt "+size(4)+4 bytes, so
	// the 16-byte fmt body begins at a fixed, known offset.
	raw := buf.Bytes()
	fmtIDOffset := bytesIndex(raw, []byte("fmt "))
	require.GreaterOrEqual(t, fmtIDOffset, 0)
	// fmt chunk layout: id(4) + size(4) + body(formatTag(2) + channels(2) + sampleRate(4) + ...).
	sampleRateOffset := fmtIDOffset + 8 + 4
	raw[sampleRateOffset] = 0xFF
	raw[sampleRateOffset+1] = 0xFF
	raw[sampleRateOffset+2] = 0xFF
	raw[sampleRateOffset+3] = 0xFF

	_, err := ReadStemBundle(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrBadStemFile)
}

func bytesIndex(haystack, needle []byte) int {
	return bytes.Index(haystack, needle)
}

func TestStemBundlePropertyPCM16RoundTripWithinQuantizationTolerance(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		frames := rapid.IntRange(1, 200).Draw(rt, "frames")
		b := makeTestBundle(frames, 16, FormatPCM)
		for s := 0; s < NumStems; s++ {
			for i := range b.Stems[s] {
				b.Stems[s][i] = rapid.Float32Range(-1, 1).Draw(rt, "sample")
			}
		}

		var buf bytes.Buffer
		require.NoError(rt, WriteStemBundle(&buf, b))
		got, err := ReadStemBundle(&buf)
		require.NoError(rt, err)

		for s := 0; s < NumStems; s++ {
			for i := range b.Stems[s] {
				diff := float64(b.Stems[s][i]) - float64(got.Stems[s][i])
				if diff < 0 {
					diff = -diff
				}
				if diff > 1.0/16000 {
					rt.Fatalf("stem %d sample %d: wrote %v, read %v", s, i, b.Stems[s][i], got.Stems[s][i])
				}
			}
		}
	})
}
