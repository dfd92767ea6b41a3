package apitrc_test

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vendorpay/apitrc"
)

// remoteURL is the base URL for test servers. It's deliberately not a loopback
// address, which would bypass tracing; newRemote dials the real server.
const remoteURL = "http://api.example.test"

// newRemote starts a test server for the handler, and returns a transport
// which dials that server for every request, regardless of the host.
func newRemote(t *testing.T, h http.Handler) *http.Transport {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return remoteTransport(t, server)
}

func newRemoteTLS(t *testing.T, h http.Handler) *http.Transport {
	t.Helper()

	server := httptest.NewTLSServer(h)
	t.Cleanup(server.Close)

	transport := remoteTransport(t, server)
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return transport
}

func remoteTransport(t *testing.T, server *httptest.Server) *http.Transport {
	t.Helper()

	addr := server.Listener.Addr().String()
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
	t.Cleanup(transport.CloseIdleConnections)

	return transport
}

func tracedClient(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: apitrc.NewTransport(base)}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(body))
	})
}

func decodeCallsHeader(t *testing.T, h http.Header) []map[string]any {
	t.Helper()

	raw := h.Get(apitrc.HeaderName)
	if raw == "" {
		t.Fatalf("%s header missing", apitrc.HeaderName)
	}

	var calls []map[string]any
	if err := json.Unmarshal([]byte(raw), &calls); err != nil {
		t.Fatalf("decode %s header: %v", apitrc.HeaderName, err)
	}

	return calls
}

func newResponse(req *http.Request, code int, contentType, body string) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		Status:        http.StatusText(code),
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
