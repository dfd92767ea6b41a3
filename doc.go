// Package apitrc records the outbound HTTP calls a program makes while serving
// an inbound request, and attaches them to that request's response. The idea
// is borrowed from in-process request tracing: rather than logging outbound
// traffic to a destination like stdout, each call is recorded to a value in
// the request context, known as a [Scope], and shipped back to the caller in a
// response header.
//
// Calls are observed at two places. [Transport] wraps an [http.RoundTripper],
// which covers every [http.Client], and therefore every SDK built on net/http.
// [Fetch] is a fetch-style entry point for code that prefers a single function
// call per request. [Install] patches [http.DefaultTransport] and the
// process-wide fetch implementation, once, so that code which can't be
// parameterized, like a third-party SDK, is still observed.
//
// Correlation is done via the context. Outbound requests made with a context
// derived from a traced inbound request are recorded into that request's
// scope. Requests made with any other context, e.g. from background jobs, pass
// through untouched. Calls to loopback addresses are never recorded.
//
// Recorded calls are redacted before they leave the interceptor: the value of
// the Authorization header, and the values of query parameters that look like
// credentials, are replaced with [Mask]. Captured bodies are size-capped.
//
// Tracing is best-effort. Under no circumstance should it change the result,
// or the error, of the call being traced.
package apitrc
