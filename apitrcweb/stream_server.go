package apitrcweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"github.com/vendorpay/apitrc"
	"github.com/vendorpay/apitrc/internal/apitrcpubsub"
)

// Event types emitted by the stream server.
const (
	EventTypeInit     = "init"
	EventTypeExchange = "exchange"
	EventTypeStats    = "stats"
)

const (
	defaultSendBuffer    = 100
	maxSendBuffer        = 100000
	defaultStatsInterval = 10 * time.Second
)

// StreamServer fans tracked exchanges out to subscribers over server-sent
// events. Exchanges are delivered as they're observed, and never retained, so
// subscribers only see exchanges which complete while they're connected.
//
// Exchanges include the captured headers and bodies of every client's calls,
// so the server should only be mounted on a private listener.
type StreamServer struct {
	broker     *apitrcpubsub.Broker[*apitrc.Exchange]
	sendBuffer int
}

// NewStreamServer returns a stream server. Each subscriber gets a send buffer
// of the given size, unless it asks for a different one. When a subscriber's
// buffer is full, further exchanges are dropped for that subscriber.
func NewStreamServer(sendBuffer int) *StreamServer {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &StreamServer{
		broker:     apitrcpubsub.NewBroker[*apitrc.Exchange](),
		sendBuffer: sendBuffer,
	}
}

// Observe publishes the exchange to all current subscribers. It never blocks,
// and is meant to be passed to apitrc.Middleware.
func (s *StreamServer) Observe(ex *apitrc.Exchange) {
	s.broker.Publish(ex)
}

// Subscribers returns the number of connected subscribers.
func (s *StreamServer) Subscribers() int {
	return s.broker.Subscribers()
}

// ServeHTTP implements http.Handler. Requests must Accept: text/event-stream.
func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		respondError(w, fmt.Errorf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		return
	}

	if !requestExplicitlyAccepts(r, "text/event-stream") {
		respondError(w, fmt.Errorf("invalid request Accept header (%s)", r.Header.Get("accept")), http.StatusBadRequest)
		return
	}

	var (
		urlquery  = r.URL.Query()
		f         = parseFilter(r)
		interval  = parseRange(urlquery.Get("stats"), time.ParseDuration, time.Second, defaultStatsInterval, time.Minute)
		sendbuf   = parseRange(urlquery.Get("sendbuf"), strconv.Atoi, 0, s.sendBuffer, maxSendBuffer)
		exchangec = make(chan *apitrc.Exchange, sendbuf)
		donec     = make(chan struct{})
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer close(donec)
		s.broker.Subscribe(ctx, f.Allow, exchangec)
	}()
	defer func() {
		cancel()
		<-donec
	}()

	eventsource.Handler(func(lastId string, encoder *eventsource.Encoder, stop <-chan bool) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		initc := make(chan struct{}, 1)
		initc <- struct{}{}

		var seq uint64
		emit := func(eventType string, v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", eventType, err)
			}
			seq++
			return encoder.Encode(eventsource.Event{
				Type: eventType,
				ID:   strconv.FormatUint(seq, 10),
				Data: data,
			})
		}

		for {
			select {
			case <-initc:
				if err := emit(EventTypeInit, map[string]any{
					"filter":  f,
					"sendbuf": cap(exchangec),
				}); err != nil {
					return
				}

			case <-ticker.C:
				stats, err := s.broker.Stats(exchangec)
				if err != nil {
					continue // not subscribed yet
				}
				if err := emit(EventTypeStats, stats); err != nil {
					return
				}

			case ex := <-exchangec:
				if err := emit(EventTypeExchange, ex); err != nil {
					return
				}

			case <-donec:
				return

			case <-stop:
				return

			case <-ctx.Done():
				return
			}
		}
	}).ServeHTTP(w, r)
}
