// Command meshd is the Mesh operator process: it loads configuration,
// opens the audio device, and drives the engine from a PortAudio callback
// and a raw-mode keyboard control surface.
package main

/*------------------------------------------------------------------
 *
 * Purpose:	Operator process entrypoint (ambient stack, not a [MODULE] of
 *		its own): wires meshcfg, engine, and meshio together and
 *		supplies the external audio callback §6 requires.
 *
 * Description:	pflag layers command-line overrides over meshcfg's YAML
 *		defaults the way cmd/direwolf/main.go layers its flags over
 *		direwolf.conf. The keyboard control surface (pkg/term raw
 *		mode) stands in for a hardware controller or MIDI/HID
 *		adapter, which §1 treats as an external collaborator the
 *		core must stay drivable without.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/lestrrat-go/strftime"
	"github.com/pkg/term"
	"github.com/spf13/pflag"

	"mesh/engine"
	"mesh/meshcfg"
)

func main() {
	var configPath = pflag.StringP("config", "c", "", "Path to a mesh.yaml configuration file. Missing file falls back to defaults.")
	var outputDevice = pflag.StringP("output-device", "o", "", "PortAudio output device name for the master bus. Empty uses the system default.")
	var cueDevice = pflag.StringP("cue-device", "p", "", "PortAudio output device name for the cue bus. Empty uses the system default.")
	var sampleRate = pflag.IntP("sample-rate", "r", 0, "Output sample rate. 0 uses the configured default.")
	var blockSize = pflag.IntP("block-size", "n", 0, "PortAudio frames per buffer. 0 uses the configured default.")
	var logDir = pflag.StringP("log-dir", "l", "", "Directory for session log files. Empty disables file logging.")
	var logLevel = pflag.StringP("log-level", "v", "", "Log level (debug, info, warn, error). Empty uses the configured default.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "meshd - the Mesh stem-aware DJ audio engine, standalone operator harness.\n")
		fmt.Fprintf(os.Stderr, "\nUsage: meshd [options] [stem-bundle ...]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	cfg := meshcfg.Default()
	if *configPath != "" {
		loaded, err := meshcfg.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "meshd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *outputDevice != "" {
		cfg.Device.OutputDeviceName = *outputDevice
	}
	if *cueDevice != "" {
		cfg.Device.CueDeviceName = *cueDevice
	}
	if *sampleRate != 0 {
		cfg.Device.SampleRate = *sampleRate
	}
	if *blockSize != 0 {
		cfg.Device.BlockSize = *blockSize
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "meshd: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, *logDir)

	interp := engine.InterpolationSinc
	switch cfg.Interpolation {
	case meshcfg.InterpolationLinear:
		interp = engine.InterpLinear
	case meshcfg.InterpolationCubic:
		interp = engine.InterpCubic
	}

	eng := engine.NewEngine(cfg.Device.SampleRate, cfg.Device.BlockSize)
	loader := engine.NewTrackLoader(newFileDecoder(interp, logger))
	defer loader.Stop()

	for deck, path := range cfg.Autoload {
		if path == "" {
			continue
		}
		logger.Info("autoloading track", "deck", deck, "path", path)
		loader.Submit(deck, path, cfg.Device.SampleRate)
	}

	for _, arg := range pflag.Args() {
		logger.Info("queueing track from command line", "path", arg)
		loader.Submit(0, arg, cfg.Device.SampleRate)
	}

	harness, err := newAudioHarness(eng, cfg, logger)
	if err != nil {
		logger.Error("failed to open audio device", "err", err)
		os.Exit(1)
	}
	if err := harness.Start(); err != nil {
		logger.Error("failed to start audio stream", "err", err)
		os.Exit(1)
	}
	defer harness.Stop()

	keys, restoreTerm, err := newKeyboardSurface()
	if err != nil {
		logger.Warn("keyboard control surface unavailable", "err", err)
	} else {
		defer restoreTerm()
		go runKeyboardSurface(keys, eng, logger)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-sigc:
			logger.Info("shutting down")
			return
		case res := <-loader.Results():
			handleLoadResult(eng, res, logger)
		case <-statsTicker.C:
			logStats(eng, logger)
		}
	}
}

func handleLoadResult(eng *engine.Engine, res engine.TrackLoadResult, logger *log.Logger) {
	if res.Err != nil {
		logger.Error("track load failed", "deck", res.DeckIndex, "err", res.Err)
		return
	}
	track := res.Track
	ok := eng.Commands.Push(engine.Command{
		Kind: engine.CmdLoadTrack,
		Deck: res.DeckIndex,
		Box:  &track,
	})
	if !ok {
		logger.Warn("command queue full, dropping load-track command", "deck", res.DeckIndex)
		return
	}
	logger.Info("track loaded", "deck", res.DeckIndex, "duration_samples", track.DurationSamples)
}

func logStats(eng *engine.Engine, logger *log.Logger) {
	logger.Debug("engine stats",
		"blocks", eng.Stats.BlocksProcessed.Load(),
		"commands", eng.Stats.CommandsProcessed.Load(),
		"overflows", eng.Stats.CommandOverflows.Load(),
		"underruns", eng.Stats.UnderrunBlocks.Load(),
	)
}

// setupLogger builds a charmbracelet/log logger, optionally tee'd to a
// session log file named by strftime pattern, matching §6's operator
// logging surface.
func setupLogger(level, logDir string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if logDir == "" {
		return logger
	}

	pattern, err := strftime.New("mesh-%Y%m%d-%H%M%S.log")
	if err != nil {
		logger.Warn("invalid session log file pattern", "err", err)
		return logger
	}
	name := pattern.FormatString(time.Now())
	path := filepath.Join(logDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn("could not open session log file", "path", path, "err", err)
		return logger
	}

	tee := log.NewWithOptions(io.MultiWriter(os.Stderr, f), log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	tee.SetLevel(logger.GetLevel())
	tee.Info("session log file opened", "path", path)
	return tee
}

// audioHarness owns the PortAudio duplex stream and the Engine it drives.
type audioHarness struct {
	eng              *engine.Engine
	stream           *portaudio.Stream
	logger           *log.Logger
	sampleRate       int
	blockSize        int
	outputDeviceName string
	cueDeviceName    string

	master *engine.StereoBuffer
	cue    *engine.StereoBuffer
}

func newAudioHarness(eng *engine.Engine, cfg meshcfg.Config, logger *log.Logger) (*audioHarness, error) {
	h := &audioHarness{
		eng:              eng,
		logger:           logger,
		sampleRate:       cfg.Device.SampleRate,
		blockSize:        cfg.Device.BlockSize,
		outputDeviceName: cfg.Device.OutputDeviceName,
		cueDeviceName:    cfg.Device.CueDeviceName,
		master:           engine.NewStereoBuffer(cfg.Device.BlockSize),
		cue:              engine.NewStereoBuffer(cfg.Device.BlockSize),
	}
	return h, nil
}

// Start opens a 0-input, 4-output (master L/R + cue L/R) PortAudio stream
// and begins driving the engine from its callback, grounded on the
// Processor.Start/ProcessAudio pattern of opening a stream with
// portaudio.OpenStream and a per-block callback.
//
// A configured output device name selects a specific audio interface by
// PortAudio device name; a distinct cue device name is logged but not
// independently routed, since driving two separate devices in phase from
// one engine block would need two PortAudio streams sharing one RT callback
// and most consumer interfaces only expose one multi-channel device anyway.
func (h *audioHarness) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("meshd: portaudio init: %w", err)
	}

	outDevice, err := resolveOutputDevice(h.outputDeviceName)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if h.cueDeviceName != "" && h.cueDeviceName != h.outputDeviceName {
		h.logger.Warn("cue_device differs from output_device; routing both buses through output_device",
			"output_device", h.outputDeviceName, "cue_device", h.cueDeviceName)
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outDevice,
			Channels: 4,
			Latency:  outDevice.DefaultLowOutputLatency,
		},
		SampleRate:      float64(h.sampleRate),
		FramesPerBuffer: h.blockSize,
	}
	stream, err := portaudio.OpenStream(params, h.processAudio)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("meshd: opening audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		portaudio.Terminate()
		return fmt.Errorf("meshd: starting audio stream: %w", err)
	}
	h.stream = stream
	return nil
}

// resolveOutputDevice looks up a PortAudio device by name, falling back to
// the host API's default output device when name is empty.
func resolveOutputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("meshd: no default output device: %w", err)
		}
		return dev, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("meshd: listing audio devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels >= 4 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("meshd: output device %q not found (or has fewer than 4 output channels)", name)
}

// Stop tears down the PortAudio stream in the reverse order Start opened
// it, matching Processor.Stop.
func (h *audioHarness) Stop() {
	if h.stream != nil {
		h.stream.Stop()
		h.stream.Close()
	}
	portaudio.Terminate()
}

// processAudio is the RT-thread callback: it runs Engine.Process once per
// block and splits the master/cue stereo buffers into PortAudio's
// per-channel output slices. Nothing here allocates; both buffers are sized
// to the block size in newAudioHarness.
func (h *audioHarness) processAudio(out [][]float32) {
	n := len(out[0])
	h.master.SetLen(n)
	h.cue.SetLen(n)

	h.eng.Process(h.master, h.cue, n)

	for i := 0; i < n; i++ {
		mf := h.master.Frame(i)
		cf := h.cue.Frame(i)
		out[0][i] = mf.L
		out[1][i] = mf.R
		out[2][i] = cf.L
		out[3][i] = cf.R
	}
}

// newKeyboardSurface opens the controlling terminal in raw mode so single
// keystrokes reach the control loop without waiting for Enter, the way
// serial_port_open uses term.Open/term.RawMode for a hardware link.
func newKeyboardSurface() (*term.Term, func(), error) {
	t, err := term.Open("/dev/tty", term.RawMode)
	if err != nil {
		return nil, nil, err
	}
	return t, func() { t.Restore(); t.Close() }, nil
}

// runKeyboardSurface maps single keystrokes to engine commands, standing in
// for a hardware DJ controller or MIDI/HID adapter (§1's external
// collaborator) so the engine remains drivable from a bare terminal.
//
// Deck 0 is the only deck reachable from the keyboard; a real controller
// maps its own per-deck buttons instead of sharing one keymap across four.
func runKeyboardSurface(t *term.Term, eng *engine.Engine, logger *log.Logger) {
	buf := make([]byte, 1)
	for {
		n, err := t.Read(buf)
		if err != nil || n == 0 {
			return
		}
		cmd, ok := keyToCommand(buf[0])
		if !ok {
			continue
		}
		if !eng.Commands.Push(cmd) {
			logger.Warn("command queue full, dropping keyboard command", "key", string(buf[0]))
		}
	}
}

func keyToCommand(key byte) (engine.Command, bool) {
	const deck = 0
	switch key {
	case ' ':
		return engine.Command{Kind: engine.CmdTogglePlay, Deck: deck}, true
	case 'c':
		return engine.Command{Kind: engine.CmdCuePress, Deck: deck}, true
	case 'C':
		return engine.Command{Kind: engine.CmdCueRelease, Deck: deck}, true
	case 'l':
		return engine.Command{Kind: engine.CmdToggleLoop, Deck: deck}, true
	case '[':
		return engine.Command{Kind: engine.CmdLoopIn, Deck: deck}, true
	case ']':
		return engine.Command{Kind: engine.CmdLoopOut, Deck: deck}, true
	case '1', '2', '3', '4', '5', '6', '7', '8':
		return engine.Command{Kind: engine.CmdHotCuePress, Deck: deck, Index: int(key - '1')}, true
	case 'b':
		return engine.Command{Kind: engine.CmdBeatJumpBackward, Deck: deck}, true
	case 'f':
		return engine.Command{Kind: engine.CmdBeatJumpForward, Deck: deck}, true
	}
	return engine.Command{}, false
}
