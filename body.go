package apitrc

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// captureBody is a response body which duplicates everything the caller reads
// into a side buffer. The caller sees exactly the bytes, and errors, of the
// wrapped body. When the body is exhausted, fails, or is closed, the done
// callback is invoked exactly once with the captured bytes.
type captureBody struct {
	rc   io.ReadCloser
	max  int
	done func(captured []byte, overflow bool, err error)

	mtx      sync.Mutex
	buf      bytes.Buffer
	overflow bool
	once     sync.Once
}

func newCaptureBody(rc io.ReadCloser, max int, done func([]byte, bool, error)) *captureBody {
	return &captureBody{
		rc:   rc,
		max:  max,
		done: done,
	}
}

// Read implements io.Reader.
func (b *captureBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		instrument(func() { b.capture(p[:n]) })
	}
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		b.finish(nil)
	default:
		b.finish(err)
	}
	return n, err
}

// Close implements io.Closer. Closing a body before it's been fully read
// finishes the call with whatever was captured up to that point.
func (b *captureBody) Close() error {
	err := b.rc.Close()
	b.finish(nil)
	return err
}

func (b *captureBody) capture(p []byte) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.overflow {
		return
	}

	if remaining := b.max - b.buf.Len(); len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.overflow = true
		return
	}

	b.buf.Write(p)
}

func (b *captureBody) finish(err error) {
	b.once.Do(func() {
		instrument(func() {
			b.mtx.Lock()
			captured, overflow := bytes.Clone(b.buf.Bytes()), b.overflow
			b.mtx.Unlock()

			b.done(captured, overflow, err)
		})
	})
}

//
//
//

// replayBody is an unconsumed copy of a body which has already been read in
// full by the fetch interceptor. If reading the original body failed, the
// same error is returned after the bytes that were successfully read.
type replayBody struct {
	io.Reader
}

func newReplayBody(data []byte, err error) *replayBody {
	var r io.Reader = bytes.NewReader(data)
	if err != nil {
		r = io.MultiReader(r, errorReader{err})
	}
	return &replayBody{Reader: r}
}

// Close implements io.Closer.
func (b *replayBody) Close() error { return nil }

type errorReader struct{ err error }

func (r errorReader) Read([]byte) (int, error) { return 0, r.err }
