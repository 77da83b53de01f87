package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Linked-stem loader service (C10, §4.9): has a StemStretcher
 *		stretch an alternate track's stem to a host deck's duration,
 *		and records the host's drop marker as the stretched buffer's
 *		drop position. The loader does not shift the stretched audio,
 *		and it passes no drop marker to the StemStretcher; where the
 *		source track's drop lands is whatever the stretcher produced.
 *
 *------------------------------------------------------------------*/

import "sync/atomic"

// LinkedStemRequest asks the linked-stem loader to prepare a borrowed stem
// buffer stretched and aligned to a host deck's track.
type LinkedStemRequest struct {
	ID                   uint64
	HostDeck             int
	Stem                 StemRole
	SourcePath           string
	HostBPM              float64
	HostDropMarker       DropMarker
	HostDurationSamples  uint64
}

// LinkedStemResult is the linked-stem loader's response.
type LinkedStemResult struct {
	ID   uint64
	Stem StemRole
	Data LinkedStemData
	Err  error
}

// StemStretcher abstracts decoding + stretching a single stem file, so the
// loader is testable without real files.
type StemStretcher interface {
	LoadAndStretchStem(path string, hostDuration uint64) (LinkedStemData, error)
}

// LinkedStemLoader runs the linked-stem loading service of §4.9.
type LinkedStemLoader struct {
	requests chan LinkedStemRequest
	results  chan LinkedStemResult
	nextID   atomic.Uint64
	stretch  StemStretcher
	stop     chan struct{}
}

// NewLinkedStemLoader starts a linked-stem loader backed by stretcher.
func NewLinkedStemLoader(stretcher StemStretcher) *LinkedStemLoader {
	l := &LinkedStemLoader{
		requests: make(chan LinkedStemRequest, 8),
		results:  make(chan LinkedStemResult, 8),
		stretch:  stretcher,
		stop:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Submit enqueues a link request and returns its monotonic id.
func (l *LinkedStemLoader) Submit(req LinkedStemRequest) uint64 {
	id := l.nextID.Add(1)
	req.ID = id
	l.requests <- req
	return id
}

// TrySubmit enqueues a link request without blocking, returning false if the
// request channel is full (the request's id is consumed either way). Safe to
// call from the RT thread, unlike Submit.
func (l *LinkedStemLoader) TrySubmit(req LinkedStemRequest) bool {
	req.ID = l.nextID.Add(1)
	select {
	case l.requests <- req:
		return true
	default:
		return false
	}
}

// Results exposes the result channel for the UI to drain.
func (l *LinkedStemLoader) Results() <-chan LinkedStemResult { return l.results }

// Stop terminates the loader's goroutine.
func (l *LinkedStemLoader) Stop() { close(l.stop) }

func (l *LinkedStemLoader) run() {
	for {
		select {
		case <-l.stop:
			return
		case req := <-l.requests:
			data, err := l.stretch.LoadAndStretchStem(req.SourcePath, req.HostDurationSamples)
			if err != nil {
				err = wrapLoaderError(ErrResampleOrStretchFailed, err)
			} else if req.HostDropMarker.Set && data.Duration > 0 {
				data.DropInStretched = DropMarker{Position: req.HostDropMarker.Position, Set: true}
			}
			l.results <- LinkedStemResult{ID: req.ID, Stem: req.Stem, Data: data, Err: err}
		}
	}
}
