package apitrcutil_test

import (
	"testing"
	"time"

	"github.com/vendorpay/apitrc/internal/apitrcutil"
)

func TestHumanizeDuration(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		input time.Duration
		want  string
	}{
		{0, "0s"},
		{1234 * time.Nanosecond, "1µs"},
		{1234567 * time.Nanosecond, "1.2ms"},
		{123456789 * time.Nanosecond, "123ms"},
		{1234567890 * time.Nanosecond, "1.2s"},
		{75 * time.Second, "1m15s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h3m"},
	} {
		if want, have := test.want, apitrcutil.HumanizeDuration(test.input); want != have {
			t.Errorf("%s: want %q, have %q", test.input, want, have)
		}
	}
}

func TestHumanizeMillis(t *testing.T) {
	t.Parallel()

	if want, have := "1.5s", apitrcutil.HumanizeMillis(1500); want != have {
		t.Errorf("want %q, have %q", want, have)
	}
}

func TestHumanizeBytes(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		input int
		want  string
	}{
		{0, "0B"},
		{1023, "1023B"},
		{1536, "1.5KB"},
		{200 * 1024, "200KB"},
		{3 * 1024 * 1024, "3.0MB"},
		{512 * 1024 * 1024, "512MB"},
	} {
		if want, have := test.want, apitrcutil.HumanizeBytes(test.input); want != have {
			t.Errorf("%d: want %q, have %q", test.input, want, have)
		}
	}
}
