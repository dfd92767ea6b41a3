package apitrc

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// Transport is an http.RoundTripper which records each request it makes to the
// scope in the request context, if one exists. Requests without a scope, and
// requests to loopback addresses, are passed to the base round tripper
// unmodified.
//
// Recorded calls include connection phase timing, captured via
// [httptrace.ClientTrace]. Any client trace already in the request context is
// preserved. Response bodies are captured as the caller reads them, without
// delaying or altering what the caller receives. A call is added to the scope
// when its response body has been read to completion or closed, or when the
// request fails.
type Transport struct {
	// Base is the round tripper used to make requests. If nil,
	// http.DefaultTransport is used.
	Base http.RoundTripper
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport returns a transport wrapping the provided base round tripper.
func NewTransport(base http.RoundTripper) *Transport {
	return &Transport{Base: base}
}

// Unwrap returns the base round tripper.
func (t *Transport) Unwrap() http.RoundTripper {
	return t.base()
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base()

	ctx := req.Context()
	scope, ok := MaybeGet(ctx)
	if !ok || isRecording(ctx) {
		return base.RoundTrip(req)
	}

	var (
		rec    *callRecorder
		traced *http.Request
	)
	if !instrument(func() { rec, traced = t.begin(req, scope) }) || rec == nil {
		return base.RoundTrip(req)
	}

	resp, err := base.RoundTrip(traced)
	if err != nil {
		rec.fail(err)
		return resp, err
	}

	instrument(func() { rec.respond(resp) })

	return resp, nil
}

// begin returns a recorder for the request, and a shallow copy of the request
// whose context carries the timing hooks. It returns a nil recorder if the
// request shouldn't be recorded.
func (t *Transport) begin(req *http.Request, scope *Scope) (*callRecorder, *http.Request) {
	url := req.URL.Redacted()
	if IsLoopback(url) {
		return nil, nil
	}

	start := time.Now()
	rec := newCallRecorder(scope, start, url, req.Method)
	rec.call.RequestHeaders = headerMap(req.Header, isSensitiveHeader)
	rec.call.RequestBody = peekRequestBody(req)
	rec.timing = newTimingRecorder(start)

	ctx := withRecording(req.Context())
	ctx = httptrace.WithClientTrace(ctx, rec.clientTrace())

	return rec, req.WithContext(ctx)
}

func (r *callRecorder) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn:              func(httptrace.GotConnInfo) { r.timing.mark(phaseSocket) },
		DNSDone:              func(httptrace.DNSDoneInfo) { r.timing.mark(phaseLookup) },
		ConnectDone:          func(string, string, error) { r.timing.mark(phaseConnect) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { r.timing.mark(phaseSecureConnect) },
		GotFirstResponseByte: func() { r.timing.mark(phaseResponse) },
	}
}

// respond records the response metadata, and arranges for the call to finish
// once the caller is done with the response body.
func (r *callRecorder) respond(resp *http.Response) {
	r.timing.mark(phaseResponse)
	r.call.Status = resp.StatusCode
	r.call.ResponseHeaders = headerMap(resp.Header, nil)

	// Protocol switches hand the caller a writable body, which must be left
	// alone, and there's nothing meaningful to capture anyway.
	if resp.Body == nil || resp.Body == http.NoBody || resp.StatusCode == http.StatusSwitchingProtocols {
		r.timing.mark(phaseEnd)
		r.finish(nil)
		return
	}

	resp.Body = newCaptureBody(resp.Body, maxCaptureBytes, func(captured []byte, overflow bool, err error) {
		r.timing.mark(phaseEnd)
		r.finish(func(c *Call) {
			if !instrument(func() {
				switch {
				case len(captured) <= 0:
				case overflow:
					c.ResponseBody = Truncate(string(captured), MaxBodyLength)
				default:
					c.ResponseBody = captureBytes(captured, MaxBodyLength)
				}
			}) {
				c.ResponseBody = errorCapturingBody
			}
			if err != nil {
				c.Error = err.Error()
			}
		})
	})
}

// peekRequestBody captures the request body, if it can be done without
// consuming the body the transport is about to send, i.e. via GetBody.
func peekRequestBody(req *http.Request) any {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return nil
	}

	rc, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxCaptureBytes+1))
	switch {
	case err != nil:
		return unableToCapture
	case len(data) > maxCaptureBytes:
		return Truncate(string(data), MaxTextRequestBodyLength)
	default:
		return captureRequestString(string(data))
	}
}
