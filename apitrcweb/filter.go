package apitrcweb

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vendorpay/apitrc"
)

// Filter selects tracked exchanges from the stream. The zero value allows
// every exchange.
type Filter struct {
	Method      string         `json:"method,omitempty"`
	PathPrefix  string         `json:"path_prefix,omitempty"`
	Host        string         `json:"host,omitempty"`
	MinCalls    int            `json:"min_calls,omitempty"`
	MinDuration *time.Duration `json:"min_duration,omitempty"`
	IsErrored   bool           `json:"is_errored,omitempty"`
}

// Allow returns true if the exchange satisfies every condition of the filter.
func (f Filter) Allow(ex *apitrc.Exchange) bool {
	if f.Method != "" && !strings.EqualFold(f.Method, ex.Method) {
		return false
	}

	if f.PathPrefix != "" && !strings.HasPrefix(ex.Path, f.PathPrefix) {
		return false
	}

	if len(ex.Calls) < f.MinCalls {
		return false
	}

	if f.MinDuration != nil && ex.Duration < *f.MinDuration {
		return false
	}

	if f.IsErrored && !ex.Errored() {
		return false
	}

	if f.Host != "" && !callsHost(ex, f.Host) {
		return false
	}

	return true
}

func callsHost(ex *apitrc.Exchange, host string) bool {
	for _, c := range ex.Calls {
		if u, err := url.Parse(c.URL); err == nil && strings.EqualFold(u.Hostname(), host) {
			return true
		}
	}
	return false
}

func (f Filter) String() string {
	var elems []string

	if f.Method != "" {
		elems = append(elems, fmt.Sprintf("method=%s", f.Method))
	}

	if f.PathPrefix != "" {
		elems = append(elems, fmt.Sprintf("path=%s", f.PathPrefix))
	}

	if f.Host != "" {
		elems = append(elems, fmt.Sprintf("host=%s", f.Host))
	}

	if f.MinCalls > 0 {
		elems = append(elems, fmt.Sprintf("min_calls=%d", f.MinCalls))
	}

	if f.MinDuration != nil {
		elems = append(elems, fmt.Sprintf("min=%s", f.MinDuration))
	}

	if f.IsErrored {
		elems = append(elems, "errored")
	}

	if len(elems) <= 0 {
		return "*"
	}

	return strings.Join(elems, " ")
}

func parseFilter(r *http.Request) Filter {
	urlquery := r.URL.Query()
	return Filter{
		Method:      urlquery.Get("method"),
		PathPrefix:  urlquery.Get("path"),
		Host:        urlquery.Get("host"),
		MinCalls:    parseDefault(urlquery.Get("min_calls"), strconv.Atoi, 0),
		MinDuration: parseDefault(urlquery.Get("min"), parseDurationPointer, nil),
		IsErrored:   urlquery.Has("errored"),
	}
}

// encodeFilter is the inverse of parseFilter.
func encodeFilter(f Filter, urlquery url.Values) {
	if f.Method != "" {
		urlquery.Set("method", f.Method)
	}
	if f.PathPrefix != "" {
		urlquery.Set("path", f.PathPrefix)
	}
	if f.Host != "" {
		urlquery.Set("host", f.Host)
	}
	if f.MinCalls > 0 {
		urlquery.Set("min_calls", strconv.Itoa(f.MinCalls))
	}
	if f.MinDuration != nil {
		urlquery.Set("min", f.MinDuration.String())
	}
	if f.IsErrored {
		urlquery.Set("errored", "true")
	}
}
