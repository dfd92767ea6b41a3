package apitrc

import (
	"context"
	"net/http"
	"sync"

	"github.com/vendorpay/apitrc/internal/apitrcutil"
)

var (
	installOnce sync.Once
	fetchImpl   = apitrcutil.NewValue(NewFetch(nil))
)

// Fetch makes a request via the process-wide fetch implementation. Before
// Install is called, it's a plain NewFetch with the default client. After
// Install is called, calls are recorded as per TraceFetch.
func Fetch(ctx context.Context, url string, init *FetchInit) (*http.Response, error) {
	return fetchImpl.Load()(ctx, url, init)
}

// Install patches the process-wide HTTP entry points, so that outbound calls
// are recorded even when they're made by code that can't be given a traced
// client, like a third-party SDK. It wraps http.DefaultTransport in a
// Transport, and the process-wide Fetch implementation with TraceFetch.
//
// Install is idempotent, and there is no way to uninstall. It should be called
// once, early in main, before any clients are constructed. Code that asserts
// http.DefaultTransport is an *http.Transport will see a *Transport after
// Install. Such code should be changed to use Transport.Unwrap, or should run
// before Install.
func Install() {
	installOnce.Do(func() {
		base := http.DefaultTransport
		http.DefaultTransport = NewTransport(base)
		fetchImpl.Store(TraceFetch(NewFetch(&http.Client{Transport: base})))
	})
}
