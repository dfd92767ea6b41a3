package apitrcweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"github.com/vendorpay/apitrc"
	"github.com/vendorpay/apitrc/internal/apitrcpubsub"
)

// StreamClient reads tracked exchanges from a remote stream server.
type StreamClient struct {
	// URI of the remote stream server. Required.
	URI string

	// SendBuffer requested from the remote stream server. Optional, max 100k.
	SendBuffer int

	// OnStats is called with every stats event received from the server.
	// Optional.
	OnStats func(Stats)

	// RetryInterval between reconnect attempts. Default 3s, min 1s, max 60s.
	RetryInterval time.Duration

	// StatsInterval for stream stats updates. Default 10s, min 1s, max 60s.
	StatsInterval time.Duration
}

// Stats of a single subscription, as reported by the server.
type Stats = apitrcpubsub.Stats

// NewStreamClient constructs a stream client connecting to the provided URI.
func NewStreamClient(uri string) *StreamClient {
	c := &StreamClient{
		URI: uri,
	}
	c.initialize()
	return c
}

func (c *StreamClient) initialize() {
	if c.URI != "" && !strings.HasPrefix(c.URI, "http") {
		c.URI = "http://" + c.URI
	}

	if min, max := 0, maxSendBuffer; c.SendBuffer < min {
		c.SendBuffer = min
	} else if c.SendBuffer > max {
		c.SendBuffer = max
	}

	if c.OnStats == nil {
		c.OnStats = func(Stats) {}
	}

	if def, min, max := 3*time.Second, 1*time.Second, 60*time.Second; c.RetryInterval == 0 {
		c.RetryInterval = def
	} else if c.RetryInterval < min {
		c.RetryInterval = min
	} else if c.RetryInterval > max {
		c.RetryInterval = max
	}

	if def, min, max := defaultStatsInterval, 1*time.Second, 60*time.Second; c.StatsInterval == 0 {
		c.StatsInterval = def
	} else if c.StatsInterval < min {
		c.StatsInterval = min
	} else if c.StatsInterval > max {
		c.StatsInterval = max
	}
}

// Stream exchanges from the remote server, filtered by the provided filter, to
// the provided channel. The stream stops when the context is canceled, or a
// non-recoverable error occurs. Transient connection errors are retried.
func (c *StreamClient) Stream(ctx context.Context, f Filter, ch chan<- *apitrc.Exchange) error {
	c.initialize()

	// The request deliberately has no context: EventSource treats context
	// cancelation as a recoverable error, and would retry instead of
	// returning. It also re-uses the request across reconnects, so the filter
	// has to be encoded in the URL.
	uri, err := url.Parse(c.URI)
	if err != nil {
		return fmt.Errorf("parse URI: %w", err)
	}

	urlquery := uri.Query()
	if c.SendBuffer > 0 {
		urlquery.Set("sendbuf", strconv.Itoa(c.SendBuffer))
	}
	urlquery.Set("stats", c.StatsInterval.String())
	encodeFilter(f, urlquery)
	uri.RawQuery = urlquery.Encode()

	req, err := http.NewRequest("GET", uri.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	es := eventsource.New(req, c.RetryInterval)
	go func() {
		<-ctx.Done()
		es.Close()
	}()

	for {
		ev, err := es.Read()
		if errors.Is(err, eventsource.ErrClosed) {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("read server-sent event: %w", err)
		}

		switch ev.Type {
		case EventTypeExchange:
			var ex apitrc.Exchange
			if err := json.Unmarshal(ev.Data, &ex); err != nil {
				return fmt.Errorf("decode exchange event: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- &ex:
			}

		case EventTypeStats:
			var stats Stats
			if err := json.Unmarshal(ev.Data, &stats); err != nil {
				return fmt.Errorf("decode stats event: %w", err)
			}
			c.OnStats(stats)

		default:
			// init, or event types from newer servers
		}
	}
}
