package meshio

/*------------------------------------------------------------------
 *
 * Purpose:	RF64/WAV stem-bundle container format (§6): constants,
 *		format descriptor, and the error kinds a caller sees when
 *		a file fails validation.
 *
 * Description:	A stem bundle is an 8-channel RF64/BWF file, four stereo
 *		stems packed in the canonical order V,V,D,D,B,B,O,O. This
 *		package reads and writes that container plus the custom
 *		chunks Mesh layers onto it; it is not a general-purpose WAV
 *		library.
 *
 *------------------------------------------------------------------*/

import "fmt"

// StemChannelCount is the fixed channel count a valid stem bundle carries:
// four stereo stems interleaved V,V,D,D,B,B,O,O.
const StemChannelCount = 8

// NumStems mirrors engine.NumStems; kept independent so this package has no
// dependency on engine.
const NumStems = 4

// NumHotCues mirrors engine.NumHotCues.
const NumHotCues = 8

// FormatTag identifies the sample encoding of the data chunk.
type FormatTag uint16

const (
	FormatPCM   FormatTag = 1
	FormatFloat FormatTag = 3
)

// AudioFormat describes the fmt chunk of a stem bundle.
type AudioFormat struct {
	FormatTag     FormatTag
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

func (f AudioFormat) blockAlign() uint16 {
	return f.Channels * (f.BitsPerSample / 8)
}

func (f AudioFormat) byteRate() uint32 {
	return f.SampleRate * uint32(f.blockAlign())
}

// IsCompatible reports whether f can be read as a Mesh stem bundle, per §6:
// exactly 8 channels, a supported sample rate, and a supported bit depth.
// Different supported sample rates are allowed; resampling to the engine
// rate happens at load time, outside this package.
func (f AudioFormat) IsCompatible() error {
	if f.Channels != StemChannelCount {
		return fmt.Errorf("%w: expected %d channels, found %d", ErrBadStemFile, StemChannelCount, f.Channels)
	}
	switch f.SampleRate {
	case 44100, 48000, 88200, 96000:
	default:
		return fmt.Errorf("%w: unsupported sample rate %d", ErrBadStemFile, f.SampleRate)
	}
	switch f.BitsPerSample {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: unsupported bit depth %d", ErrBadStemFile, f.BitsPerSample)
	}
	if f.BitsPerSample == 32 && f.FormatTag != FormatFloat && f.FormatTag != FormatPCM {
		return fmt.Errorf("%w: unrecognized format tag %d", ErrBadStemFile, f.FormatTag)
	}
	return nil
}

// Sentinel errors a caller can match with errors.Is, per §7.
var (
	ErrBadStemFile    = fmt.Errorf("meshio: bad stem file")
	ErrMissingChunk   = fmt.Errorf("meshio: missing required chunk")
	ErrTruncated      = fmt.Errorf("meshio: file truncated")
	ErrUnsupportedTag = fmt.Errorf("meshio: unsupported RIFF form")
)
