package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Master lookahead limiter and hard clipper (part of C8,
 *		§4.6). Transcribed from the reference feed-forward
 *		lookahead limiter: a fixed-capacity delay line, a
 *		sliding-window-minimum target gain, and an asymmetric
 *		attack/release envelope.
 *
 * Description:	Placed last in the master chain: master volume -> limiter
 *		-> clipper -> output. Below threshold the limiter is
 *		bit-identical to the (delayed) input; it never boosts.
 *
 *------------------------------------------------------------------*/

import "math"

// maxLimiterDelay bounds the ring buffers, supporting lookahead windows up
// to ~5ms at 192kHz.
const maxLimiterDelay = 1024

// defaultLimiterLookaheadSecs is 1.5ms (72 samples at 48kHz), per §4.6.
const defaultLimiterLookaheadSecs = 0.0015

// limiterReleaseSecs is the release envelope's time constant.
const limiterReleaseSecs = 0.1

// MasterLimiter is a transparent feed-forward lookahead limiter (§4.6).
type MasterLimiter struct {
	threshold float32
	lookahead int

	delayL, delayR [maxLimiterDelay]float32
	targetGains    [maxLimiterDelay]float32
	writePos       int

	gain         float32
	attackCoeff  float32
	releaseCoeff float32
}

// NewMasterLimiter builds a limiter with the default -0.3dBFS threshold
// (matching the clipper ceiling, so the limiter does the heavy lifting and
// the clipper only catches edge-case residuals) for the given sample rate.
func NewMasterLimiter(sampleRate int) *MasterLimiter {
	return NewMasterLimiterWithThresholdDB(-0.3, sampleRate)
}

// NewMasterLimiterWithThresholdDB builds a limiter with a custom threshold
// in dBFS. Lookahead is derived from the sample rate (not a runtime knob,
// per §9 open question b), so the limiter behaves correctly at 44.1/48/88.2
// /96kHz.
func NewMasterLimiterWithThresholdDB(db float64, sampleRate int) *MasterLimiter {
	threshold := float32(math.Pow(10, db/20.0))

	lookahead := int(math.Round(defaultLimiterLookaheadSecs * float64(sampleRate)))
	if lookahead < 1 {
		lookahead = 1
	}
	if lookahead > maxLimiterDelay {
		lookahead = maxLimiterDelay
	}

	// Attack: 99% convergence within `lookahead` samples.
	// coeff^N = 0.01 => coeff = exp(ln(0.01) / N)
	attackCoeff := float32(math.Exp(math.Log(0.01) / float64(lookahead)))

	// Release: first-order exponential with limiterReleaseSecs time constant.
	releaseCoeff := float32(math.Exp(-1.0 / (limiterReleaseSecs * float64(sampleRate))))

	l := &MasterLimiter{
		threshold:    threshold,
		lookahead:    lookahead,
		gain:         1.0,
		attackCoeff:  attackCoeff,
		releaseCoeff: releaseCoeff,
	}
	for i := range l.targetGains {
		l.targetGains[i] = 1.0
	}
	return l
}

// LatencySamples is the fixed delay the limiter introduces.
func (l *MasterLimiter) LatencySamples() int { return l.lookahead }

// ProcessBlock processes buf in place.
func (l *MasterLimiter) ProcessBlock(buf *StereoBuffer) {
	n := buf.Len()
	for i := 0; i < n; i++ {
		f := buf.Frame(i)

		peak := f.Peak()

		var target float32
		if peak > l.threshold {
			target = l.threshold / peak
		} else {
			target = 1.0
		}
		l.targetGains[l.writePos] = target

		minGain := l.windowMinGain()

		if minGain < l.gain {
			l.gain = l.gain*l.attackCoeff + minGain*(1-l.attackCoeff)
		} else {
			l.gain = l.gain*l.releaseCoeff + minGain*(1-l.releaseCoeff)
		}

		readPos := (l.writePos + maxLimiterDelay - l.lookahead) % maxLimiterDelay
		outL := l.delayL[readPos] * l.gain
		outR := l.delayR[readPos] * l.gain

		l.delayL[l.writePos] = f.L
		l.delayR[l.writePos] = f.R

		buf.SetFrame(i, StereoFrame{L: outL, R: outR})

		l.writePos = (l.writePos + 1) % maxLimiterDelay
	}
}

func (l *MasterLimiter) windowMinGain() float32 {
	min := float32(1.0)
	for i := 0; i < l.lookahead; i++ {
		pos := (l.writePos + maxLimiterDelay - i) % maxLimiterDelay
		if g := l.targetGains[pos]; g < min {
			min = g
		}
	}
	return min
}

// HardClipper clamps every sample to +/- the configured ceiling, catching
// any residual peak the limiter's lookahead couldn't anticipate (§4.6).
type HardClipper struct {
	ceiling float32
}

// NewHardClipper builds a clipper with a ceiling at the given dBFS level
// (the spec default is -0.3dBFS, matching the limiter threshold).
func NewHardClipper(db float64) *HardClipper {
	return &HardClipper{ceiling: float32(math.Pow(10, db/20.0))}
}

// Ceiling returns the clipper's linear-amplitude ceiling.
func (c *HardClipper) Ceiling() float32 { return c.ceiling }

// ProcessBlock clamps buf's samples in place.
func (c *HardClipper) ProcessBlock(buf *StereoBuffer) {
	n := buf.Len()
	for i := 0; i < n; i++ {
		f := buf.Frame(i)
		f.L = clampF32(f.L, -c.ceiling, c.ceiling)
		f.R = clampF32(f.R, -c.ceiling, c.ceiling)
		buf.SetFrame(i, f)
	}
}
