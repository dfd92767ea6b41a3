package apitrcutil

import (
	"fmt"
	"strings"
	"time"
)

// TruncateDuration truncates the duration to a precision that suits its
// magnitude: durations over 1s are truncated at 100ms, durations over 1m are
// truncated at 1s, and so on.
func TruncateDuration(d time.Duration) time.Duration {
	switch {
	case d >= time.Hour:
		return d.Truncate(time.Minute)
	case d >= time.Minute:
		return d.Truncate(time.Second)
	case d >= time.Second:
		return d.Truncate(100 * time.Millisecond)
	case d >= 10*time.Millisecond:
		return d.Truncate(time.Millisecond)
	case d >= time.Millisecond:
		return d.Truncate(100 * time.Microsecond)
	case d >= time.Microsecond:
		return d.Truncate(time.Microsecond)
	default:
		return d
	}
}

// HumanizeDuration truncates the duration and returns a human-friendly string
// representation, e.g. "1.2s" or "340ms".
func HumanizeDuration(d time.Duration) string {
	dd := TruncateDuration(d)
	ds := dd.String()

	if dd >= time.Hour && strings.HasSuffix(ds, "0s") {
		ds = strings.TrimSuffix(ds, "0s")
	}

	return ds
}

// HumanizeMillis is HumanizeDuration for a number of milliseconds, which is
// how outbound calls record their timing.
func HumanizeMillis(ms int64) string {
	return HumanizeDuration(time.Duration(ms) * time.Millisecond)
}

// HumanizeBytes returns a human-friendly string representation of n, which is
// assumed to be bytes. KB is 1024 bytes and MB is 1048576 bytes. Larger units
// aren't used.
func HumanizeBytes[T ~int | ~int64](n T) string {
	var (
		kib = float64(1024)
		mib = 1024 * kib
		fn  = float64(n)
	)
	switch {
	case fn < kib:
		return fmt.Sprintf("%dB", int64(n))
	case fn < 100*kib:
		return fmt.Sprintf("%.1fKB", fn/kib)
	case fn < mib:
		return fmt.Sprintf("%.0fKB", fn/kib)
	case fn < 100*mib:
		return fmt.Sprintf("%.1fMB", fn/mib)
	default:
		return fmt.Sprintf("%.0fMB", fn/mib)
	}
}
