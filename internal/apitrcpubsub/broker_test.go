package apitrcpubsub_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vendorpay/apitrc/internal/apitrcpubsub"
)

func TestBroker(t *testing.T) {
	t.Parallel()

	var (
		ctx, cancel = context.WithCancel(context.Background())
		broker      = apitrcpubsub.NewBroker[int]()
		ch          = make(chan int, 2)
		even        = func(i int) bool { return i%2 == 0 }
		done        = make(chan apitrcpubsub.Stats, 1)
	)
	defer cancel()

	broker.Publish(0) // no subscribers, nothing happens

	go func() {
		stats, err := broker.Subscribe(ctx, even, ch)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Subscribe: want %v, have %v", context.Canceled, err)
		}
		done <- stats
	}()

	waitFor(t, func() bool { return broker.Subscribers() == 1 })

	for i := 1; i <= 6; i++ {
		broker.Publish(i) // 1 3 5 skipped, 2 4 sent, 6 dropped
	}

	if want, have := []int{2, 4}, []int{<-ch, <-ch}; !cmp.Equal(want, have) {
		t.Error(cmp.Diff(want, have))
	}

	stats, err := broker.Stats(ch)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := (apitrcpubsub.Stats{Skips: 3, Sends: 2, Drops: 1}), stats; want != have {
		t.Errorf("Stats: want %s, have %s", want, have)
	}

	cancel()

	if want, have := (apitrcpubsub.Stats{Skips: 3, Sends: 2, Drops: 1}), <-done; want != have {
		t.Errorf("final stats: want %s, have %s", want, have)
	}
	if want, have := 0, broker.Subscribers(); want != have {
		t.Errorf("Subscribers: want %d, have %d", want, have)
	}
	if _, err := broker.Stats(ch); err == nil {
		t.Errorf("Stats after unsubscribe: want error, have none")
	}
}

func TestBrokerDuplicateSubscribe(t *testing.T) {
	t.Parallel()

	var (
		ctx, cancel = context.WithCancel(context.Background())
		broker      = apitrcpubsub.NewBroker[string]()
		ch          = make(chan string)
		errc        = make(chan error, 1)
	)
	defer cancel()

	go func() {
		_, err := broker.Subscribe(ctx, nil, ch)
		errc <- err
	}()

	waitFor(t, func() bool { return broker.Subscribers() == 1 })

	if _, err := broker.Subscribe(ctx, nil, ch); err == nil {
		t.Errorf("second Subscribe: want error, have none")
	}

	cancel()
	<-errc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}
