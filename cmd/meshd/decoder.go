package main

/*------------------------------------------------------------------
 *
 * Purpose:	Adapts meshio's stem-bundle reader to engine.Decoder, so the
 *		engine package stays free of any dependency on the on-disk
 *		file format (§4.9's loader boundary).
 *
 * Description:	Runs entirely off the RT thread, inside engine.TrackLoader's
 *		own goroutine. Resampling reuses engine.Stretcher's
 *		windowed-sinc kernel rather than a dedicated resampling
 *		library, matching the decision recorded for meshio itself:
 *		the retrieval pack carries no Go resampling library distinct
 *		from the deck's own playback-rate stretcher.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"

	"github.com/charmbracelet/log"

	"mesh/engine"
	"mesh/meshio"
)

// fileDecoder implements engine.Decoder by reading stem bundles from disk
// via meshio and converting them into engine.PreparedTrack values.
type fileDecoder struct {
	interp engine.InterpolationMethod
	logger *log.Logger
}

func newFileDecoder(interp engine.InterpolationMethod, logger *log.Logger) *fileDecoder {
	return &fileDecoder{interp: interp, logger: logger}
}

// DecodeStemBundle reads path and prepares it for playback at
// targetSampleRate, resampling each stem if the file's native rate differs.
func (d *fileDecoder) DecodeStemBundle(path string, targetSampleRate int) (engine.PreparedTrack, error) {
	bundle, err := meshio.ReadStemBundleFile(path)
	if err != nil {
		return engine.PreparedTrack{}, fmt.Errorf("meshd: decoding %s: %w", path, err)
	}

	d.logger.Debug("decoded stem bundle", "path", path, "frames", bundle.FrameCount,
		"native_rate", bundle.Format.SampleRate, "target_rate", targetSampleRate)

	var stems [engine.NumStems]*engine.StereoBuffer
	for s := 0; s < engine.NumStems; s++ {
		stems[s] = d.prepareStem(bundle.Stems[s], int(bundle.FrameCount), int(bundle.Format.SampleRate), targetSampleRate)
	}

	outFrames := stems[0].Len()
	ratio := float64(targetSampleRate) / float64(bundle.Format.SampleRate)

	track := engine.PreparedTrack{
		Stems:           engine.NewSharedStemAudio(stems),
		DurationSamples: uint64(outFrames),
		HasLUFS:         bundle.Meta.HasLUFS,
		LUFS:            float64(bundle.Meta.LUFS),
		HasKey:          bundle.Meta.HasKey,
		Key:             bundle.Meta.Key,
		Grid:            rescaleGrid(bundle.Meta.Grid, ratio),
		SavedLoops:      rescaleLoops(bundle.Meta.SavedLoops, ratio),
		Drop:            rescaleDrop(bundle.Meta.Drop, ratio),
		Preview:         convertPreview(bundle.Meta.Preview),
		SampleRate:      targetSampleRate,
	}
	if bundle.Meta.HasBPM {
		track.BPM = bundle.Meta.BPM
	}
	for i := range bundle.Meta.HotCues {
		track.HotCuesSet[i] = bundle.Meta.HotCuesSet[i]
		c := bundle.Meta.HotCues[i]
		track.HotCues[i] = engine.HotCue{
			Index:    c.Index,
			Position: rescalePos(c.Position, ratio),
			Label:    c.Label,
			HasColor: c.HasColor,
			ColorR:   c.ColorR,
			ColorG:   c.ColorG,
			ColorB:   c.ColorB,
		}
	}

	return track, nil
}

// prepareStem deinterleaves one stem's stereo samples into a StereoBuffer,
// resampling to targetSampleRate if it differs from nativeSampleRate.
func (d *fileDecoder) prepareStem(interleaved []float32, frameCount, nativeSampleRate, targetSampleRate int) *engine.StereoBuffer {
	src := engine.NewStereoBuffer(frameCount)
	src.FillInterleaved(interleaved, frameCount)

	if nativeSampleRate == targetSampleRate || nativeSampleRate == 0 {
		return src
	}

	ratio := float64(nativeSampleRate) / float64(targetSampleRate)
	outFrames := int(float64(frameCount) / ratio)
	dst := engine.NewStereoBuffer(outFrames)
	dst.SetLen(outFrames)

	stretcher := engine.NewStretcher(d.interp)
	for i := 0; i < outFrames; i++ {
		dst.SetFrame(i, stretcher.ReadAt(src, float64(i)*ratio))
	}
	return dst
}

func rescalePos(pos uint64, ratio float64) uint64 {
	return uint64(float64(pos) * ratio)
}

func rescaleGrid(g meshio.BeatGrid, ratio float64) engine.BeatGrid {
	if len(g.Beats) == 0 {
		return engine.BeatGrid{}
	}
	beats := make([]uint64, len(g.Beats))
	for i, b := range g.Beats {
		beats[i] = rescalePos(b, ratio)
	}
	return engine.BeatGrid{Beats: beats}
}

func rescaleLoops(loops []meshio.SavedLoop, ratio float64) []engine.SavedLoop {
	if len(loops) == 0 {
		return nil
	}
	out := make([]engine.SavedLoop, len(loops))
	for i, l := range loops {
		out[i] = engine.SavedLoop{
			Index:    l.Index,
			Start:    rescalePos(l.Start, ratio),
			End:      rescalePos(l.End, ratio),
			Label:    l.Label,
			HasColor: l.HasColor,
			ColorR:   l.ColorR,
			ColorG:   l.ColorG,
			ColorB:   l.ColorB,
		}
	}
	return out
}

func rescaleDrop(d meshio.DropMarker, ratio float64) engine.DropMarker {
	if !d.Set {
		return engine.DropMarker{}
	}
	return engine.DropMarker{Position: rescalePos(d.Position, ratio), Set: true}
}

func convertPreview(p meshio.WaveformPreview) engine.WaveformPreview {
	var out engine.WaveformPreview
	for s := 0; s < engine.NumStems; s++ {
		out.Peaks[s] = p.Peaks[s]
	}
	return out
}
