package apitrc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FetchFunc is a fetch-style entry point: one function call per request, with
// the request described by a URL and an optional FetchInit.
type FetchFunc func(ctx context.Context, url string, init *FetchInit) (*http.Response, error)

// FetchInit describes the optional parts of a fetch request.
type FetchInit struct {
	// Method defaults to GET.
	Method string

	// Headers may be an http.Header, a map[string]string, or a [][2]string of
	// key-value pairs. Other types are an error.
	Headers any

	// Body may be a string, a []byte, or an io.Reader. Other types are an
	// error.
	Body any
}

// NewFetch returns a FetchFunc which makes requests with the provided client.
// If the client is nil, http.DefaultClient is used. The returned function
// doesn't record anything itself; see TraceFetch.
func NewFetch(client *http.Client) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context, url string, init *FetchInit) (*http.Response, error) {
		if init == nil {
			init = &FetchInit{}
		}

		body, err := fetchBodyReader(init.Body)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, normalizeMethod(init.Method), url, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		if err := setFetchHeaders(req.Header, init.Headers); err != nil {
			return nil, err
		}

		return client.Do(req)
	}
}

func fetchBodyReader(body any) (io.Reader, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(x), nil
	case []byte:
		return bytes.NewReader(x), nil
	case io.Reader:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported body type %T", body)
	}
}

func setFetchHeaders(dst http.Header, headers any) error {
	switch x := headers.(type) {
	case nil:
	case http.Header:
		for k, vs := range x {
			for _, v := range vs {
				dst.Add(k, v)
			}
		}
	case map[string]string:
		for k, v := range x {
			dst.Set(k, v)
		}
	case [][2]string:
		for _, p := range x {
			dst.Add(p[0], p[1])
		}
	default:
		return fmt.Errorf("unsupported headers type %T", headers)
	}
	return nil
}

// TraceFetch decorates the provided fetch function, recording each call to the
// scope in the context, if one exists. Calls without a scope, and calls to
// relative or loopback URLs, are passed through unmodified.
//
// On success, the response body is read in full and replaced with an
// equivalent, unconsumed body, so the caller receives the original response
// value as if tracing were absent. Fetch calls don't record timing beyond the
// total elapsed time.
func TraceFetch(next FetchFunc) FetchFunc {
	return func(ctx context.Context, url string, init *FetchInit) (*http.Response, error) {
		scope, ok := MaybeGet(ctx)
		if !ok || isRecording(ctx) || IsLoopback(url) {
			return next(ctx, url, init)
		}

		var rec *callRecorder
		if !instrument(func() { rec = beginFetch(scope, url, init) }) || rec == nil {
			return next(ctx, url, init)
		}

		resp, err := next(withRecording(ctx), url, init)
		if err != nil {
			rec.fail(err)
			return resp, err
		}

		if resp == nil {
			return resp, nil
		}

		instrument(func() { rec.respondFetch(resp) })

		return resp, nil
	}
}

func beginFetch(scope *Scope, url string, init *FetchInit) *callRecorder {
	if init == nil {
		init = &FetchInit{}
	}

	rec := newCallRecorder(scope, time.Now(), url, init.Method)

	switch x := init.Headers.(type) {
	case http.Header:
		rec.call.RequestHeaders = headerMap(x, isSensitiveFetchHeader)
	case map[string]string:
		rec.call.RequestHeaders = redactHeaders(x, isSensitiveFetchHeader)
	case [][2]string:
		rec.call.RequestHeaders = pairsMap(x, isSensitiveFetchHeader)
	}

	if !instrument(func() { rec.call.RequestBody = fetchRequestBody(init.Body) }) {
		rec.call.RequestBody = unableToCapture
	}

	return rec
}

func fetchRequestBody(body any) any {
	switch x := body.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return captureRequestString(x)
	default:
		return binaryOrFormData
	}
}

// respondFetch reads the response body in full, hands the caller an
// unconsumed copy, and finishes the call.
func (r *callRecorder) respondFetch(resp *http.Response) {
	var (
		data    []byte
		readErr error
		read    bool
	)
	if resp.Body != nil && resp.Body != http.NoBody && resp.StatusCode != http.StatusSwitchingProtocols {
		data, readErr = io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = newReplayBody(data, readErr)
		read = true
	}

	r.finish(func(c *Call) {
		c.Status = resp.StatusCode
		c.ResponseHeaders = headerMap(resp.Header, nil)
		switch {
		case readErr != nil:
			c.ResponseBody = unableToCaptureBody
		case !read || len(data) <= 0:
		case strings.Contains(resp.Header.Get("content-type"), "application/json"):
			v, err := decodeJSON(data)
			if err != nil {
				c.ResponseBody = unableToCaptureBody
				return
			}
			c.ResponseBody = capValue(v, MaxBodyLength)
		default:
			c.ResponseBody = Truncate(string(data), MaxBodyLength)
		}
	})
}
