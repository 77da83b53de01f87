package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Track loader service (C10, §4.9): decodes an 8-channel stem
 *		bundle off the RT thread, resampled to the engine's sample
 *		rate, and hands back a PreparedTrack.
 *
 * Description:	One dedicated goroutine per service, draining a bounded
 *		request channel and posting to a bounded result channel —
 *		the same "one thread per long-running job, talk only via
 *		channels" shape the teacher uses for its per-channel receive
 *		threads (dlq.go's wake-up channel, appserver.go's per-session
 *		goroutine), generalized from "one thread per radio channel"
 *		to "one goroutine per loader service". Monotonic request ids
 *		let the UI discard stale results (§7 ErrStaleResult) when the
 *		user has moved on before a slow load completes.
 *
 *------------------------------------------------------------------*/

import "sync/atomic"

// TrackLoadRequest asks the track loader to decode and prepare a stem
// bundle for a given deck.
type TrackLoadRequest struct {
	ID              uint64
	DeckIndex       int
	Path            string
	TargetSampleRate int
}

// TrackLoadResult is the track loader's response.
type TrackLoadResult struct {
	ID        uint64
	DeckIndex int
	Track     PreparedTrack
	Err       error
}

// Decoder abstracts the stem-bundle decode step so the loader can be tested
// without real files; in production cmd/meshd's fileDecoder implements it on
// top of meshio's reader.
type Decoder interface {
	DecodeStemBundle(path string, targetSampleRate int) (PreparedTrack, error)
}

// TrackLoader runs the track-loading service of §4.9 on its own goroutine.
type TrackLoader struct {
	requests chan TrackLoadRequest
	results  chan TrackLoadResult
	nextID   atomic.Uint64
	decoder  Decoder
	stop     chan struct{}
}

// NewTrackLoader starts a track loader backed by decoder, with bounded
// request/result channels (capacity 8 is generous for a UI that issues one
// load per user action).
func NewTrackLoader(decoder Decoder) *TrackLoader {
	l := &TrackLoader{
		requests: make(chan TrackLoadRequest, 8),
		results:  make(chan TrackLoadResult, 8),
		decoder:  decoder,
		stop:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Submit enqueues a load request and returns its monotonic id. Non-blocking
// up to the channel's capacity; blocks briefly if the service is backed up
// beyond that (the UI thread is not the RT thread, so blocking here is
// acceptable per §5, unlike the command channel).
func (l *TrackLoader) Submit(deckIndex int, path string, targetSampleRate int) uint64 {
	id := l.nextID.Add(1)
	l.requests <- TrackLoadRequest{ID: id, DeckIndex: deckIndex, Path: path, TargetSampleRate: targetSampleRate}
	return id
}

// Results exposes the result channel for the UI to drain.
func (l *TrackLoader) Results() <-chan TrackLoadResult { return l.results }

// Stop terminates the loader's goroutine.
func (l *TrackLoader) Stop() { close(l.stop) }

func (l *TrackLoader) run() {
	for {
		select {
		case <-l.stop:
			return
		case req := <-l.requests:
			track, err := l.decoder.DecodeStemBundle(req.Path, req.TargetSampleRate)
			if err != nil {
				err = wrapLoaderError(ErrBadStemFile, err)
			}
			l.results <- TrackLoadResult{ID: req.ID, DeckIndex: req.DeckIndex, Track: track, Err: err}
		}
	}
}

func wrapLoaderError(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &loaderError{kind: kind, cause: cause}
}

type loaderError struct {
	kind  error
	cause error
}

func (e *loaderError) Error() string { return e.kind.Error() + ": " + e.cause.Error() }
func (e *loaderError) Unwrap() error { return e.kind }
