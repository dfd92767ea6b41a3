package apitrc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// HeaderName is the response header carrying the JSON-encoded calls made while
// serving a request.
const HeaderName = "X-Api-Calls"

// Exchange summarizes a single tracked inbound request, and the outbound calls
// made while serving it. Exchanges are produced by Middleware and passed to
// each ObserveFunc after the response has been written.
type Exchange struct {
	ID       string        `json:"id"`
	Method   string        `json:"method"`
	Path     string        `json:"path"`
	Status   int           `json:"status"`
	Size     int           `json:"size"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"-"` // encoded as a string, see MarshalJSON
	Calls    []*Call       `json:"calls"`
	Dropped  int           `json:"dropped,omitempty"`
}

// Errored returns true if any of the exchange's outbound calls errored.
func (ex *Exchange) Errored() bool {
	for _, c := range ex.Calls {
		if c.Errored() {
			return true
		}
	}
	return false
}

// ObserveFunc is called with the exchange for every tracked request.
// Implementations must not modify the exchange.
type ObserveFunc func(ex *Exchange)

// Track decorates the handler so that every outbound call made while serving a
// request is recorded, and attached to the response in the HeaderName header.
// It's equivalent to Middleware with no observers.
func Track(next http.Handler) http.Handler {
	return Middleware()(next)
}

// Middleware returns a decorator which creates a new scope for each incoming
// request, and serves the request with that scope in the request context.
//
// The handler's response is buffered. Once the handler returns, the scope is
// closed. If any calls were recorded, they're added to the response in the
// HeaderName header. Otherwise, the response is passed through exactly as the
// handler wrote it. Either way, the response is then written, and the
// observers are called with a summary of the exchange.
//
// Because responses are buffered, the middleware isn't suitable for streaming
// or hijacking handlers. Panics in the handler propagate unchanged, and
// nothing is written.
func Middleware(observers ...ObserveFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			begin := time.Now().UTC()
			ctx, scope := NewScope(r.Context())

			bw := newBufferedWriter(w)
			next.ServeHTTP(bw, r.WithContext(ctx))

			var callsHeader string
			calls := scope.Close()
			if len(calls) > 0 {
				instrument(func() {
					if data, err := marshalJSON(calls); err == nil {
						callsHeader = string(data)
					}
				})
			}

			bw.writeTo(callsHeader)

			if len(observers) <= 0 {
				return
			}

			ex := &Exchange{
				ID:       ulid.MustNew(ulid.Timestamp(begin), callIDEntropy).String(),
				Method:   r.Method,
				Path:     r.URL.Path,
				Status:   bw.Code(),
				Size:     bw.body.Len(),
				Start:    begin,
				Duration: time.Since(begin),
				Calls:    calls,
				Dropped:  scope.Dropped(),
			}
			for _, observe := range observers {
				instrument(func() { observe(ex) })
			}
		})
	}
}

//
//
//

// bufferedWriter is a response writer which holds the entire response, so that
// headers can still be added after the handler has returned. The response it
// eventually writes is the one net/http would have written: header changes
// made after the first write are ignored, except for trailers, and
// informational responses go out immediately.
type bufferedWriter struct {
	w       http.ResponseWriter
	header  http.Header
	written http.Header // snapshot taken when the status is committed
	code    int
	body    bytes.Buffer
}

var (
	_ http.ResponseWriter = (*bufferedWriter)(nil)
	_ http.Flusher        = (*bufferedWriter)(nil)
)

// newBufferedWriter starts from the headers already set on w, which the
// handler would otherwise see and be able to change.
func newBufferedWriter(w http.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{w: w, header: w.Header().Clone()}
}

func (bw *bufferedWriter) Header() http.Header {
	return bw.header
}

func (bw *bufferedWriter) WriteHeader(code int) {
	if code >= 100 && code <= 199 && code != http.StatusSwitchingProtocols {
		replaceHeader(bw.w.Header(), bw.header)
		bw.w.WriteHeader(code)
		return
	}
	bw.commit(code)
}

func (bw *bufferedWriter) Write(p []byte) (int, error) {
	bw.commit(http.StatusOK)
	return bw.body.Write(p)
}

func (bw *bufferedWriter) commit(code int) {
	if bw.code != 0 {
		return
	}
	bw.code = code
	bw.written = bw.header.Clone()
}

// Flush is a no-op, as the response is written when the handler returns.
func (bw *bufferedWriter) Flush() {}

func (bw *bufferedWriter) Code() int {
	if bw.code == 0 {
		return http.StatusOK
	}
	return bw.code
}

// writeTo writes the buffered response to the underlying writer. If
// callsHeader isn't empty, it's added as the HeaderName header.
func (bw *bufferedWriter) writeTo(callsHeader string) {
	header := bw.written
	if header == nil { // the handler never wrote, so net/http would use the final headers
		header = bw.header
	}

	dst := bw.w.Header()
	replaceHeader(dst, header)
	if callsHeader != "" {
		dst.Set(HeaderName, callsHeader)
	}

	bw.w.WriteHeader(bw.Code())
	if bw.body.Len() > 0 {
		bw.w.Write(bw.body.Bytes())
	}

	// Trailers are read from the header map after the handler returns, so
	// values set after the body must reach the underlying writer now.
	for _, declared := range bw.header.Values("Trailer") {
		for _, k := range strings.Split(declared, ",") {
			k = http.CanonicalHeaderKey(strings.TrimSpace(k))
			if vs, ok := bw.header[k]; ok && k != "" {
				dst[k] = vs
			}
		}
	}
	for k, vs := range bw.header {
		if strings.HasPrefix(k, http.TrailerPrefix) {
			dst[k] = vs
		}
	}
}

// replaceHeader makes dst a copy of src, in place.
func replaceHeader(dst, src http.Header) {
	for k := range dst {
		if _, ok := src[k]; !ok {
			delete(dst, k)
		}
	}
	for k, vs := range src {
		dst[k] = append([]string(nil), vs...)
	}
}

//
//
//

// MarshalJSON implements json.Marshaler. Duration is encoded as a string,
// e.g. "1.5s".
func (ex Exchange) MarshalJSON() ([]byte, error) {
	type exchange Exchange
	return json.Marshal(struct {
		*exchange
		Duration string `json:"duration"`
	}{
		exchange: (*exchange)(&ex),
		Duration: ex.Duration.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (ex *Exchange) UnmarshalJSON(data []byte) error {
	type exchange Exchange
	aux := struct {
		*exchange
		Duration string `json:"duration"`
	}{
		exchange: (*exchange)(ex),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Duration != "" {
		d, err := time.ParseDuration(aux.Duration)
		if err != nil {
			return fmt.Errorf("parse duration: %w", err)
		}
		ex.Duration = d
	}
	return nil
}
