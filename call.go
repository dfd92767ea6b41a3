package apitrc

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Call is the record of a single outbound HTTP call. Calls are created by the
// interceptors, and are immutable once they've been added to a scope.
type Call struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Ms              int64             `json:"ms"`
	Status          int               `json:"status,omitempty"`
	Error           string            `json:"error,omitempty"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	RequestBody     any               `json:"requestBody,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody    any               `json:"responseBody,omitempty"`
	Timing          *Timing           `json:"timing,omitempty"`
}

// Errored returns true if the call failed before, or while, receiving a
// response.
func (c *Call) Errored() bool {
	return c.Error != ""
}

// Timing breaks a call down into connection phases. Each value is the number
// of milliseconds between the start of the call and the phase. Phases that
// didn't happen, e.g. DNS lookup on a reused connection, are nil. Timing is
// only recorded by Transport.
type Timing struct {
	Socket        *int64 `json:"socket,omitempty"`
	Lookup        *int64 `json:"lookup,omitempty"`
	Connect       *int64 `json:"connect,omitempty"`
	SecureConnect *int64 `json:"secureConnect,omitempty"`
	Response      *int64 `json:"response,omitempty"`
	End           *int64 `json:"end,omitempty"`
}

//
//
//

var callIDEntropy = ulid.DefaultEntropy()

// newCallID returns a ULID, i.e. the start time in milliseconds followed by a
// random suffix.
func newCallID(start time.Time) string {
	return ulid.MustNew(ulid.Timestamp(start), callIDEntropy).String()
}

func millisSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func normalizeMethod(method string) string {
	if method == "" {
		return "GET"
	}
	return strings.ToUpper(method)
}

// instrument calls fn, and recovers from any panic. It returns false if fn
// panicked. Every piece of instrumentation runs inside instrument, so that a
// bug in the tracer degrades to a missing record rather than a failed call.
func instrument(fn func()) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	fn()
	return true
}

//
//
//

type phase int

const (
	phaseSocket phase = iota
	phaseLookup
	phaseConnect
	phaseSecureConnect
	phaseResponse
	phaseEnd
)

// timingRecorder records the first occurrence of each phase. Its methods are
// called from httptrace hooks, which may run on other goroutines, so it's
// safe for concurrent use.
type timingRecorder struct {
	mtx    sync.Mutex
	start  time.Time
	timing Timing
}

func newTimingRecorder(start time.Time) *timingRecorder {
	return &timingRecorder{start: start}
}

func (r *timingRecorder) mark(p phase) {
	instrument(func() {
		ms := millisSince(r.start)

		r.mtx.Lock()
		defer r.mtx.Unlock()

		var dst **int64
		switch p {
		case phaseSocket:
			dst = &r.timing.Socket
		case phaseLookup:
			dst = &r.timing.Lookup
		case phaseConnect:
			dst = &r.timing.Connect
		case phaseSecureConnect:
			dst = &r.timing.SecureConnect
		case phaseResponse:
			dst = &r.timing.Response
		case phaseEnd:
			dst = &r.timing.End
		default:
			return
		}

		if *dst == nil {
			*dst = &ms
		}
	})
}

// snapshot returns a copy of the timing recorded so far. The pointed-to values
// are never modified after they're set, so sharing them is safe.
func (r *timingRecorder) snapshot() *Timing {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	t := r.timing
	return &t
}

//
//
//

// callRecorder accumulates the fields of a call as it progresses, and adds
// the call to its scope exactly once, when it's finished.
type callRecorder struct {
	scope  *Scope
	start  time.Time
	call   Call
	timing *timingRecorder // nil for fetch calls
	once   sync.Once
}

func newCallRecorder(scope *Scope, start time.Time, url, method string) *callRecorder {
	return &callRecorder{
		scope: scope,
		start: start,
		call: Call{
			ID:     newCallID(start),
			URL:    RedactURL(url),
			Method: normalizeMethod(method),
		},
	}
}

// finish completes the call, applies the final mutation, and adds it to the
// scope. Only the first call to finish has any effect. If the end phase was
// marked, it's used as the elapsed time, so the two always agree.
func (r *callRecorder) finish(final func(c *Call)) {
	r.once.Do(func() {
		instrument(func() {
			c := r.call // copy
			if final != nil {
				final(&c)
			}
			c.Ms = millisSince(r.start)
			if r.timing != nil {
				c.Timing = r.timing.snapshot()
				if c.Timing.End != nil {
					c.Ms = *c.Timing.End
				}
			}
			r.scope.add(&c)
		})
	})
}

// fail finishes the call with the provided error.
func (r *callRecorder) fail(err error) {
	r.finish(func(c *Call) {
		c.Error = err.Error()
	})
}
