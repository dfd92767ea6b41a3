package apitrc

import (
	"context"
	"sync"
)

// Scope collects the calls made during a single inbound request. Calls are
// appended in the order they complete, which isn't necessarily the order in
// which they started.
//
// A scope is owned by whoever created it, typically Track. Once the owner
// closes the scope, calls which arrive late are counted but not recorded.
//
// Scopes are safe for concurrent use.
type Scope struct {
	mtx     sync.Mutex
	calls   []*Call
	closed  bool
	dropped int
}

type scopeContextKey struct{}

var scopeContextVal scopeContextKey

// NewScope creates a new, empty scope, and injects it into the context. It
// returns a new context containing the scope, as well as the scope itself.
// Outbound calls made with the returned context, or any context derived from
// it, are recorded to the scope. If the context already contained a scope, it
// becomes "shadowed" by the new one.
func NewScope(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{}
	return context.WithValue(ctx, scopeContextVal, s), s
}

// MaybeGet returns the scope in the context, if it exists, with true as the
// second return value. If not, a nil scope is returned, with false as the
// second return value. This is not an error: outbound calls made without a
// scope simply aren't recorded.
func MaybeGet(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeContextVal).(*Scope)
	return s, ok && s != nil
}

// WithoutScope returns a context which doesn't resolve to any scope, but is
// otherwise identical to ctx. It's useful for work spawned by a request which
// outlives it, and shouldn't be recorded.
func WithoutScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeContextVal, (*Scope)(nil))
}

// Run calls fn with a context containing a new scope, and returns the calls
// recorded to that scope once fn returns, along with the error from fn.
func Run(ctx context.Context, fn func(context.Context) error) ([]*Call, error) {
	ctx, s := NewScope(ctx)
	err := fn(ctx)
	return s.Close(), err
}

func (s *Scope) add(c *Call) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		s.dropped++
		return
	}

	s.calls = append(s.calls, c)
}

// Len returns the number of calls recorded so far.
func (s *Scope) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return len(s.calls)
}

// Calls returns the calls recorded so far. Calls are immutable once recorded,
// and the returned slice is a copy, so it's safe for concurrent use.
func (s *Scope) Calls() []*Call {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	calls := make([]*Call, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// Close seals the scope and returns the calls recorded to it. Calls which
// complete after Close are dropped, and reflected in Dropped. Close may be
// called more than once, but only the first call seals the scope.
func (s *Scope) Close() []*Call {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.closed = true

	calls := make([]*Call, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// Dropped returns the number of calls which completed after the scope was
// closed.
func (s *Scope) Dropped() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.dropped
}

//
//
//

type recordingContextKey struct{}

var recordingContextVal recordingContextKey

// withRecording marks the context as belonging to a call that's already being
// recorded, so that nested interceptors, e.g. a traced fetch whose client uses
// a traced transport, don't record the same call twice.
func withRecording(ctx context.Context) context.Context {
	return context.WithValue(ctx, recordingContextVal, true)
}

func isRecording(ctx context.Context) bool {
	v, _ := ctx.Value(recordingContextVal).(bool)
	return v
}
