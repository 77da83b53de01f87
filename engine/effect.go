package engine

/*------------------------------------------------------------------
 *
 * Purpose:	The effect-instance capability set and the two supported
 *		backends (§4.3), plus the ordered effect chain used for
 *		pre-FX, per-band, and post-FX processing.
 *
 * Description:	Grounded on the buffered-processor pattern from the vst3go
 *		reference package: a homogeneous capability set
 *		(ParamMetadata/SetParamNorm/ApplyMacroOffset/SetBypass/
 *		LatencySamples/ProcessBlock) lets the rack stay ignorant of which backend
 *		a given instance uses. Two backends are provided: an
 *		in-process patching host (a small interpreted signal graph)
 *		and an external plugin host stand-in. Real native-plugin ABI
 *		hosting is out of a Go-native rewrite's reach without cgo
 *		and is explicitly excluded by the "no arbitrary plugin
 *		hosting" non-goal; PluginHostEffect here models the
 *		activate/deactivate/parameter-editor lifecycle the spec
 *		describes without bridging to a real native ABI.
 *
 *------------------------------------------------------------------*/

// ParamMeta describes one named, bounded parameter on an effect instance.
type ParamMeta struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
	Unit    string
}

// Normalize converts an actual parameter value into its [0,1] normalised
// form.
func (p ParamMeta) Normalize(actual float64) float64 {
	if p.Max == p.Min {
		return 0
	}
	return clampF((actual-p.Min)/(p.Max-p.Min), 0, 1)
}

// Denormalize converts a [0,1] normalised value into the parameter's actual
// range.
func (p ParamMeta) Denormalize(norm float64) float64 {
	return p.Min + clampF(norm, 0, 1)*(p.Max-p.Min)
}

// Effect is the homogeneous capability set every effect instance exposes,
// regardless of backend (§4.3 "a single polymorphic capability set").
type Effect interface {
	// Name identifies the effect for logging/UI purposes.
	Name() string
	// ParamMetadata reports the effect's parameters in a stable order;
	// parameter indices used by SetParamNorm/macro mappings refer to
	// this order.
	ParamMetadata() []ParamMeta
	// SetParamNorm explicitly sets parameter index i from a normalised
	// [0,1] value (e.g. from a command or a preset load). This is the
	// "base" value macros modulate around; it also immediately resets
	// the effective value to match (clearing any prior macro offset).
	SetParamNorm(i int, norm float64)
	// ParamNorm returns the current base (explicitly-set) normalised
	// value of parameter i. Presets snapshot this, not the
	// macro-modulated effective value, so that the round-trip law of
	// §8 holds regardless of macro state.
	ParamNorm(i int) float64
	// ApplyMacroOffset sets the *effective* value for this block to
	// base + offsetSum (clamped to [0,1]), without disturbing the base.
	// Called once per block, only for parameters with at least one
	// macro mapping (§4.3: "evaluated once per block, not per sample").
	ApplyMacroOffset(i int, offsetSum float64)
	// SetBypass sets the per-instance bypass flag. When bypassed,
	// ProcessBlock is skipped by the chain but instance state (e.g.
	// delay lines) is preserved, not reset.
	SetBypass(bypass bool)
	// Bypassed reports the current bypass flag.
	Bypassed() bool
	// LatencySamples reports any inherent processing latency, used only
	// for reporting; the engine performs no automatic delay
	// compensation (§4.3).
	LatencySamples() int
	// ProcessBlock processes buf in place.
	ProcessBlock(buf *StereoBuffer)
}

// dryWetMix is an embeddable helper giving an effect instance its own
// per-instance dry/wet mix, applied around the process call inside the
// instance's own ProcessBlock. New instances start fully wet.
type dryWetMix struct {
	mix float64 // 0 = fully dry, 1 = fully wet
}

func (m *dryWetMix) SetMix(v float64) { m.mix = clampF(v, 0, 1) }
func (m *dryWetMix) Mix() float64     { return m.mix }

// blendBuffers writes (1-w)*dry + w*wet into dst, which may alias wet.
func blendBuffers(dst, dry, wet *StereoBuffer, w float64) {
	n := dst.Len()
	wf := float32(w)
	df := float32(1 - w)
	for i := 0; i < n; i++ {
		d := dry.Frame(i)
		we := wet.Frame(i)
		dst.SetFrame(i, StereoFrame{
			L: df*d.L + wf*we.L,
			R: df*d.R + wf*we.R,
		})
	}
}

// EffectChain is an ordered list of effect instances, each with its own
// bypass and dry/wet (§4.3). Processing an effect whose bypass is set skips
// ProcessBlock but leaves state untouched.
type EffectChain struct {
	instances []Effect
	scratch   *StereoBuffer
}

// NewEffectChain builds an empty chain with scratch space sized to
// maxBlockSize, allocated once up front so ProcessBlock never allocates.
func NewEffectChain(maxBlockSize int) *EffectChain {
	return &EffectChain{scratch: NewStereoBuffer(maxBlockSize)}
}

// Len returns the number of instances in the chain.
func (c *EffectChain) Len() int { return len(c.instances) }

// At returns the effect instance at index i.
func (c *EffectChain) At(i int) Effect { return c.instances[i] }

// Append adds an effect instance to the end of the chain. Only called
// off-RT (by the preset builder) before the chain is swapped into place;
// appending on the RT thread would violate the no-allocation rule.
func (c *EffectChain) Append(e Effect) {
	c.instances = append(c.instances, e)
}

// RemoveAt removes the effect instance at index i. Off-RT only, same
// reasoning as Append.
func (c *EffectChain) RemoveAt(i int) {
	c.instances = append(c.instances[:i], c.instances[i+1:]...)
}

// ProcessBlock runs every non-bypassed instance in order, in place.
func (c *EffectChain) ProcessBlock(buf *StereoBuffer) {
	for _, e := range c.instances {
		if e.Bypassed() {
			continue
		}
		e.ProcessBlock(buf)
	}
}

// LatencySamples sums the reported latency of every instance in the chain.
func (c *EffectChain) LatencySamples() int {
	total := 0
	for _, e := range c.instances {
		total += e.LatencySamples()
	}
	return total
}

// ---------------------------------------------------------------------
// Backend 1: in-process patching host.
// ---------------------------------------------------------------------

// PatchParam is a single named sink-mailbox parameter on a patch instance,
// per §4.3's "named sink-mailbox convention where each parameter receives
// via a distinct name scoped by the patch instance id".
type PatchParam struct {
	Meta  ParamMeta
	base  float64 // actual units, explicitly set
	value float64 // actual units, current effective (post-macro) value
}

// PatchEffect is an in-process patching-host effect instance: it hosts a
// small named signal-processing graph (represented here by a pluggable
// process function, standing in for a compiled patch) and drives parameter
// inputs via named mailboxes.
type PatchEffect struct {
	dryWetMix
	name       string
	instanceID string
	params     []PatchParam
	bypass     bool
	process    func(p *PatchEffect, buf *StereoBuffer)
	dry        *StereoBuffer
}

// NewPatchEffect constructs a patching-host effect. process implements the
// patch's actual signal graph; it is called with the instance so it can
// read current parameter values via Param/ParamNorm.
func NewPatchEffect(name, instanceID string, params []PatchParam, maxBlockSize int, process func(*PatchEffect, *StereoBuffer)) *PatchEffect {
	return &PatchEffect{
		dryWetMix:  dryWetMix{mix: 1},
		name:       name,
		instanceID: instanceID,
		params:     params,
		process:    process,
		dry:        NewStereoBuffer(maxBlockSize),
	}
}

func (p *PatchEffect) Name() string { return p.name }

func (p *PatchEffect) ParamMetadata() []ParamMeta {
	metas := make([]ParamMeta, len(p.params))
	for i, pp := range p.params {
		metas[i] = pp.Meta
	}
	return metas
}

func (p *PatchEffect) SetParamNorm(i int, norm float64) {
	v := p.params[i].Meta.Denormalize(norm)
	p.params[i].base = v
	p.params[i].value = v
}

func (p *PatchEffect) ParamNorm(i int) float64 {
	return p.params[i].Meta.Normalize(p.params[i].base)
}

func (p *PatchEffect) ApplyMacroOffset(i int, offsetSum float64) {
	baseNorm := p.params[i].Meta.Normalize(p.params[i].base)
	p.params[i].value = p.params[i].Meta.Denormalize(clampF(baseNorm+offsetSum, 0, 1))
}

// Param returns the actual-units value of parameter i, for use by process
// functions.
func (p *PatchEffect) Param(i int) float64 { return p.params[i].value }

func (p *PatchEffect) SetBypass(b bool) { p.bypass = b }
func (p *PatchEffect) Bypassed() bool   { return p.bypass }
func (p *PatchEffect) LatencySamples() int { return 0 }

func (p *PatchEffect) ProcessBlock(buf *StereoBuffer) {
	if p.Mix() >= 1.0 {
		p.process(p, buf)
		return
	}
	p.dry.SetLen(buf.Len())
	p.dry.CopyFrom(buf)
	p.process(p, buf)
	blendBuffers(buf, p.dry, buf, p.Mix())
}

// ---------------------------------------------------------------------
// Backend 2: external plugin host.
// ---------------------------------------------------------------------

// PluginHostEffect models the lifecycle of a standard native-plugin ABI
// instance (scan, activate/deactivate, parameter editor) without bridging
// to a real plugin binary. Its ProcessBlock delegates to a Go closure
// standing in for the plugin's real-time process callback, which is how a
// test or a future native bridge would plug in actual audio.
type PluginHostEffect struct {
	dryWetMix
	name       string
	pluginID   string
	params     []PatchParam
	bypass     bool
	active     bool
	latency    int
	editorOpen bool
	process    func(p *PluginHostEffect, buf *StereoBuffer)
	dry        *StereoBuffer
}

// NewPluginHostEffect constructs a plugin-host effect instance already
// scanned and ready to activate.
func NewPluginHostEffect(name, pluginID string, params []PatchParam, latencySamples, maxBlockSize int, process func(*PluginHostEffect, *StereoBuffer)) *PluginHostEffect {
	return &PluginHostEffect{
		dryWetMix: dryWetMix{mix: 1},
		name:     name,
		pluginID: pluginID,
		params:   params,
		latency:  latencySamples,
		process:  process,
		dry:      NewStereoBuffer(maxBlockSize),
	}
}

// Activate transitions the plugin instance into the processing-ready state.
// Called by the preset builder off-RT; may be slow (real plugin
// instantiation can block for tens of milliseconds, per §4.3).
func (p *PluginHostEffect) Activate()   { p.active = true }
func (p *PluginHostEffect) Deactivate() { p.active = false }

// OpenEditor/CloseEditor model the optional windowed parameter-editor
// surface. The RT thread never calls these.
func (p *PluginHostEffect) OpenEditor()  { p.editorOpen = true }
func (p *PluginHostEffect) CloseEditor() { p.editorOpen = false }
func (p *PluginHostEffect) EditorOpen() bool { return p.editorOpen }

func (p *PluginHostEffect) Name() string { return p.name }

func (p *PluginHostEffect) ParamMetadata() []ParamMeta {
	metas := make([]ParamMeta, len(p.params))
	for i, pp := range p.params {
		metas[i] = pp.Meta
	}
	return metas
}

func (p *PluginHostEffect) SetParamNorm(i int, norm float64) {
	v := p.params[i].Meta.Denormalize(norm)
	p.params[i].base = v
	p.params[i].value = v
}

func (p *PluginHostEffect) ParamNorm(i int) float64 {
	return p.params[i].Meta.Normalize(p.params[i].base)
}

func (p *PluginHostEffect) ApplyMacroOffset(i int, offsetSum float64) {
	baseNorm := p.params[i].Meta.Normalize(p.params[i].base)
	p.params[i].value = p.params[i].Meta.Denormalize(clampF(baseNorm+offsetSum, 0, 1))
}

func (p *PluginHostEffect) SetBypass(b bool)    { p.bypass = b }
func (p *PluginHostEffect) Bypassed() bool      { return p.bypass }
func (p *PluginHostEffect) LatencySamples() int { return p.latency }

func (p *PluginHostEffect) ProcessBlock(buf *StereoBuffer) {
	if !p.active {
		return
	}
	if p.Mix() >= 1.0 {
		p.process(p, buf)
		return
	}
	p.dry.SetLen(buf.Len())
	p.dry.CopyFrom(buf)
	p.process(p, buf)
	blendBuffers(buf, p.dry, buf, p.Mix())
}
