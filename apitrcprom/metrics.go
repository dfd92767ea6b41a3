// Package apitrcprom exports tracked exchanges as Prometheus metrics.
package apitrcprom

import (
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vendorpay/apitrc"
)

const namespace = "vendorpay"

// Metrics counts tracked requests and the outbound calls made while serving
// them. Its Observe method is meant to be passed to apitrc.Middleware.
type Metrics struct {
	requests     *prometheus.CounterVec
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	dropped      prometheus.Counter
}

// NewMetrics registers the metrics with the registerer, and returns them. A nil
// registerer means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracked_requests_total",
			Help:      "Total inbound requests served with call tracking, by method and status class.",
		}, []string{"method", "status"}),

		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_calls_total",
			Help:      "Total recorded outbound calls, by host, method, and status class.",
		}, []string{"host", "method", "status"}),

		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_call_duration_seconds",
			Help:      "Duration of recorded outbound calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),

		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_calls_total",
			Help:      "Total outbound calls which completed after their request had been served.",
		}),
	}
}

// Observe updates the metrics with the exchange.
func (m *Metrics) Observe(ex *apitrc.Exchange) {
	m.requests.WithLabelValues(ex.Method, StatusClass(ex.Status, "")).Inc()

	for _, c := range ex.Calls {
		host := callHost(c.URL)
		m.calls.WithLabelValues(host, c.Method, StatusClass(c.Status, c.Error)).Inc()
		m.callDuration.WithLabelValues(host).Observe((time.Duration(c.Ms) * time.Millisecond).Seconds())
	}

	if ex.Dropped > 0 {
		m.dropped.Add(float64(ex.Dropped))
	}
}

// StatusClass returns a low-cardinality label for a status code, e.g. "2xx".
// Calls which failed without a response are "error".
func StatusClass(code int, errmsg string) string {
	switch {
	case code == 0 && errmsg != "":
		return "error"
	case code < 100 || code > 599:
		return "unknown"
	default:
		return strconv.Itoa(code/100) + "xx"
	}
}

func callHost(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
