package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Typed error kinds for the data-path error taxonomy of §7.
 *
 * Description:	The RT thread never returns an error — on an unexpected
 *		state it outputs silence for the affected block and keeps
 *		going (§7 "Propagation policy"). Every other thread (loader
 *		threads, the preset builder, command validation) returns one
 *		of these sentinel errors, wrapped with context via
 *		fmt.Errorf("...: %w", ...) at the call site the way the
 *		teacher wraps lower-level failures before logging them.
 *
 *------------------------------------------------------------------*/

import "errors"

var (
	// ErrDeviceMissing means the configured audio device does not exist.
	// Reported to the UI; the engine is not constructed.
	ErrDeviceMissing = errors.New("engine: audio device missing")

	// ErrDeviceOpenFailed means the audio device exists but could not be
	// opened (in use, unsupported configuration, driver error).
	ErrDeviceOpenFailed = errors.New("engine: audio device open failed")

	// ErrBadStemFile means a stem-bundle file failed validation (wrong
	// channel count, unsupported bit depth, missing required chunk). The
	// track loader returns this; no track is loaded.
	ErrBadStemFile = errors.New("engine: bad stem file")

	// ErrResampleOrStretchFailed means the track or linked-stem loader
	// could not produce output at the required sample rate or duration.
	ErrResampleOrStretchFailed = errors.New("engine: resample or stretch failed")

	// ErrPluginInstantiationFailed means the preset builder could not
	// construct one of a preset's plugin instances. The whole preset
	// load fails (all-or-nothing); the deck's currently-installed rack
	// is left untouched.
	ErrPluginInstantiationFailed = errors.New("engine: plugin instantiation failed")

	// ErrQueueOverflow means the command channel (C4) was full when a
	// push was attempted. The caller may retry or drop; audio continues
	// uninterrupted either way.
	ErrQueueOverflow = errors.New("engine: command queue overflow")

	// ErrStaleResult means a loader result arrived whose request id no
	// longer matches any outstanding request. Callers should discard it
	// silently rather than treat it as a failure.
	ErrStaleResult = errors.New("engine: stale loader result")
)
