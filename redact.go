package apitrc

import (
	"net/http"
	"regexp"
	"strings"
)

// Mask replaces sensitive values in recorded calls.
const Mask = "***"

var sensitiveQueryParam = regexp.MustCompile(`(?i)([?&])(api_?key|token|secret|password|authorization)=[^&]*`)

// RedactURL replaces the values of sensitive query parameters in the URL with
// Mask. Parameter names are preserved, as are all other parameters. Keys are
// matched case-insensitively against api_key, apikey, token, secret, password,
// and authorization. RedactURL is idempotent.
func RedactURL(s string) string {
	return sensitiveQueryParam.ReplaceAllString(s, "${1}${2}="+Mask)
}

// RedactHeaders returns a copy of the headers with the value of any
// Authorization header, regardless of case, replaced with Mask.
func RedactHeaders(h map[string]string) map[string]string {
	return redactHeaders(h, isSensitiveHeader)
}

func redactHeaders(h map[string]string, sensitive func(string) bool) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if sensitive(k) {
			v = Mask
		}
		out[k] = v
	}
	return out
}

func isSensitiveHeader(key string) bool {
	return strings.EqualFold(key, "authorization")
}

// Fetch-style callers tend to invent their own auth headers, e.g.
// X-Auth-Token, so the fetch interceptor masks more aggressively.
func isSensitiveFetchHeader(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "auth") || strings.Contains(k, "token")
}

// headerMap flattens h into a map with lower-case keys, joining multiple
// values with a comma. If sensitive is non-nil, matching keys are masked.
func headerMap(h http.Header, sensitive func(string) bool) map[string]string {
	if len(h) <= 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, vs := range h {
		v := strings.Join(vs, ", ")
		if sensitive != nil && sensitive(k) {
			v = Mask
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

// pairsMap converts an ordered list of header pairs into a map. Later pairs
// with the same key are joined to earlier ones, like http.Header.Add.
func pairsMap(pairs [][2]string, sensitive func(string) bool) map[string]string {
	if len(pairs) <= 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v := p[0], p[1]
		if sensitive(k) {
			v = Mask
		}
		if prev, ok := out[k]; ok && v != Mask {
			v = prev + ", " + v
		}
		out[k] = v
	}
	return out
}

// IsLoopback reports whether calls to the URL should bypass tracing: URLs
// that contain "localhost" or "127.0.0.1", and relative URLs starting with
// "/".
func IsLoopback(url string) bool {
	return strings.HasPrefix(url, "/") ||
		strings.Contains(url, "localhost") ||
		strings.Contains(url, "127.0.0.1")
}
