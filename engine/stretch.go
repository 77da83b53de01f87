package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Playback-rate translation (C5, §4.4): reads a stereo
 *		source at a fractional position, producing one output frame
 *		per RT-thread sample request. Pitch is not preserved: a deck
 *		that advances the read position faster or slower than one
 *		source sample per output sample shifts pitch with tempo.
 *
 * Description:	Three interpolation methods are offered, selectable per
 *		deck (InterpolationMethod, engine/model.go): linear, cubic
 *		Catmull-Rom, and a fixed-length windowed-sinc kernel. The
 *		sinc kernel is generated once per deck (at construction, off
 *		the RT thread) the same way the filter generator builds its
 *		lowpass taps: a sinc core shaped by a Blackman window,
 *		normalised for unity gain, indexed here per fractional
 *		offset rather than per absolute cutoff.
 *
 *------------------------------------------------------------------*/

import "math"

// sincTaps is the number of taps either side of the centre sample the sinc
// interpolator considers; 8 either side (17 taps total per phase) is a
// common quality/cost tradeoff for audio resampling.
const sincTaps = 8

// sincPhases is the number of fractional-offset phases the sinc table is
// pre-computed for; runtime lookups round to the nearest phase rather than
// recomputing sinc() per sample, keeping Stretcher.Read allocation- and
// trig-call-free on the RT thread.
const sincPhases = 256

// sincTable[phase][tap] holds the precomputed, Blackman-windowed sinc
// kernel for phase/sincPhases fractional offset. Built once at package
// load; never mutated afterward.
var sincTable [sincPhases][2*sincTaps + 1]float64

func init() {
	for phase := 0; phase < sincPhases; phase++ {
		frac := float64(phase) / float64(sincPhases)
		var sum float64
		for t := -sincTaps; t <= sincTaps; t++ {
			x := float64(t) - frac
			var s float64
			if x == 0 {
				s = 1.0
			} else {
				s = math.Sin(math.Pi*x) / (math.Pi * x)
			}
			// Blackman window over the tap span, same coefficients
			// the lowpass kernel generator uses.
			n := float64(t+sincTaps) / float64(2*sincTaps)
			w := 0.42659 - 0.49656*math.Cos(2*math.Pi*n) + 0.076849*math.Cos(4*math.Pi*n)
			v := s * w
			sincTable[phase][t+sincTaps] = v
			sum += v
		}
		for t := range sincTable[phase] {
			sincTable[phase][t] /= sum
		}
	}
}

// Stretcher reads a StereoBuffer at arbitrary fractional positions by
// interpolation. The caller chooses how far the position advances per
// output sample; reading at a rate other than 1 changes speed and pitch
// together (no pitch-preserving time-stretch is performed).
type Stretcher struct {
	method InterpolationMethod
}

// NewStretcher builds a stretcher using the given interpolation method.
func NewStretcher(method InterpolationMethod) *Stretcher {
	return &Stretcher{method: method}
}

// SetMethod changes the interpolation method. Safe to call from the RT
// thread (it only stores an int); takes effect on the next ReadAt call.
func (s *Stretcher) SetMethod(m InterpolationMethod) { s.method = m }

// ReadAt returns the interpolated stereo frame at fractional source
// position pos (0 <= pos <= src.Len()-1 for a well-formed read; callers are
// responsible for loop/track-boundary clamping before calling this). It
// never allocates.
func (s *Stretcher) ReadAt(src *StereoBuffer, pos float64) StereoFrame {
	switch s.method {
	case InterpCubic:
		return s.readCubic(src, pos)
	case InterpSinc:
		return s.readSinc(src, pos)
	default:
		return s.readLinear(src, pos)
	}
}

func frameAt(src *StereoBuffer, i int) StereoFrame {
	if i < 0 {
		i = 0
	}
	if n := src.Len(); i >= n {
		i = n - 1
	}
	return src.Frame(i)
}

func (s *Stretcher) readLinear(src *StereoBuffer, pos float64) StereoFrame {
	i0 := int(math.Floor(pos))
	frac := pos - float64(i0)
	a := frameAt(src, i0)
	b := frameAt(src, i0+1)
	return StereoFrame{
		L: float32(lerp(float64(a.L), float64(b.L), frac)),
		R: float32(lerp(float64(a.R), float64(b.R), frac)),
	}
}

// readCubic uses a 4-point Catmull-Rom spline through samples i-1..i+2.
func (s *Stretcher) readCubic(src *StereoBuffer, pos float64) StereoFrame {
	i1 := int(math.Floor(pos))
	t := pos - float64(i1)

	p0 := frameAt(src, i1-1)
	p1 := frameAt(src, i1)
	p2 := frameAt(src, i1+1)
	p3 := frameAt(src, i1+2)

	return StereoFrame{
		L: float32(catmullRom(float64(p0.L), float64(p1.L), float64(p2.L), float64(p3.L), t)),
		R: float32(catmullRom(float64(p0.R), float64(p1.R), float64(p2.R), float64(p3.R), t)),
	}
}

func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

// readSinc convolves the precomputed windowed-sinc kernel nearest to pos's
// fractional offset against the 2*sincTaps+1 samples centred on it.
func (s *Stretcher) readSinc(src *StereoBuffer, pos float64) StereoFrame {
	i0 := int(math.Floor(pos))
	frac := pos - float64(i0)
	phase := int(frac*float64(sincPhases) + 0.5)
	if phase >= sincPhases {
		phase = sincPhases - 1
	}
	taps := &sincTable[phase]

	var l, r float64
	for t := -sincTaps; t <= sincTaps; t++ {
		f := frameAt(src, i0+t)
		w := taps[t+sincTaps]
		l += float64(f.L) * w
		r += float64(f.R) * w
	}
	return StereoFrame{L: float32(l), R: float32(r)}
}
