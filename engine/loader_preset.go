package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Preset loader / builder service (C10, §4.3, §4.9): turns a
 *		pure-data preset description into a fully-built multiband
 *		rack on a background thread, since plugin instantiation may
 *		block for tens of milliseconds.
 *
 *------------------------------------------------------------------*/

import "sync/atomic"

// EffectSpec is a pure-data description of one effect instance within a
// preset: its plugin/patch id and its initial parameter values (the backend
// is whatever the builder's factory returns for that id) (§4.3 "presets are described as pure data").
type EffectSpec struct {
	PluginID   string
	ParamNorms []float64
}

// BandSpec is a pure-data description of one band of a preset.
type BandSpec struct {
	LowCutoff, HighCutoff float64
	Gain                  float64
	Mix                   float64
	Effects               []EffectSpec
}

// PresetBuildSpec is a pure-data multiband rack description (§3 "Preset
// (multiband)"): no effect instances, just ids + parameter values +
// mappings.
type PresetBuildSpec struct {
	PreFX     []EffectSpec
	PostFX    []EffectSpec
	Bands     []BandSpec
	Macros    [NumMacros]Macro
	PreFXMix  float64
	PostFXMix float64
	GlobalMix float64
}

// PresetBuildRequest asks the preset builder to instantiate a rack.
type PresetBuildRequest struct {
	ID         uint64
	DeckIndex  int
	Stem       StemRole
	Spec       PresetBuildSpec
	SampleRate int
	BufferSize int
}

// PresetBuildResult is the preset builder's response. On success Rack is
// ready to swap in via a SwapMultiband command; on failure the caller must
// leave the deck's current rack untouched (§7 ErrPluginInstantiationFailed,
// "all-or-nothing").
type PresetBuildResult struct {
	ID        uint64
	DeckIndex int
	Stem      StemRole
	Rack      *MultibandRack
	Err       error
}

// EffectFactory builds a concrete Effect instance for a plugin id. Returning
// an error models plugin instantiation failure (§7).
type EffectFactory interface {
	Build(pluginID string, maxBlockSize int) (Effect, error)
}

// PresetBuilder runs the preset-building service of §4.9.
type PresetBuilder struct {
	requests chan PresetBuildRequest
	results  chan PresetBuildResult
	nextID   atomic.Uint64
	factory  EffectFactory
	stop     chan struct{}
}

// NewPresetBuilder starts a preset builder backed by factory.
func NewPresetBuilder(factory EffectFactory) *PresetBuilder {
	b := &PresetBuilder{
		requests: make(chan PresetBuildRequest, 8),
		results:  make(chan PresetBuildResult, 8),
		factory:  factory,
		stop:     make(chan struct{}),
	}
	go b.run()
	return b
}

// Submit enqueues a build request and returns its monotonic id.
func (b *PresetBuilder) Submit(req PresetBuildRequest) uint64 {
	id := b.nextID.Add(1)
	req.ID = id
	b.requests <- req
	return id
}

// Results exposes the result channel for the UI to drain.
func (b *PresetBuilder) Results() <-chan PresetBuildResult { return b.results }

// Stop terminates the builder's goroutine.
func (b *PresetBuilder) Stop() { close(b.stop) }

func (b *PresetBuilder) run() {
	for {
		select {
		case <-b.stop:
			return
		case req := <-b.requests:
			rack, err := b.build(req.Spec, req.SampleRate, req.BufferSize)
			b.results <- PresetBuildResult{ID: req.ID, DeckIndex: req.DeckIndex, Stem: req.Stem, Rack: rack, Err: err}
		}
	}
}

// build instantiates every effect up front; any single failure aborts the
// whole build (all-or-nothing per §7), leaving nothing half-built to swap
// in.
func (b *PresetBuilder) build(spec PresetBuildSpec, sampleRate, bufferSize int) (*MultibandRack, error) {
	rack := NewMultibandRack(sampleRate, bufferSize)
	rack.Macros = spec.Macros
	rack.PreFXMix = spec.PreFXMix
	rack.PostFXMix = spec.PostFXMix
	rack.GlobalMix = spec.GlobalMix

	if err := b.buildChain(rack.PreFX, spec.PreFX, bufferSize); err != nil {
		return nil, err
	}
	if err := b.buildChain(rack.PostFX, spec.PostFX, bufferSize); err != nil {
		return nil, err
	}

	rack.SetBandCount(len(spec.Bands))
	for i, bs := range spec.Bands {
		band := rack.Bands[i]
		band.Gain = bs.Gain
		band.Mix = bs.Mix
		if err := b.buildChain(band.Chain, bs.Effects, bufferSize); err != nil {
			return nil, wrapLoaderError(ErrPluginInstantiationFailed, err)
		}
	}
	return rack, nil
}

func (b *PresetBuilder) buildChain(chain *EffectChain, specs []EffectSpec, bufferSize int) error {
	for _, es := range specs {
		eff, err := b.factory.Build(es.PluginID, bufferSize)
		if err != nil {
			return wrapLoaderError(ErrPluginInstantiationFailed, err)
		}
		for i, norm := range es.ParamNorms {
			if i < len(eff.ParamMetadata()) {
				eff.SetParamNorm(i, norm)
			}
		}
		chain.Append(eff)
	}
	return nil
}
