package apitrc

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

const (
	// MaxBodyLength is the maximum serialized length, in characters, of
	// captured response bodies and JSON request bodies.
	MaxBodyLength = 10000

	// MaxTextRequestBodyLength is the maximum length, in characters, of
	// captured request bodies which aren't JSON.
	MaxTextRequestBodyLength = 1000

	// TruncatedMarker is appended to captured values which exceed their cap.
	TruncatedMarker = "... [truncated]"

	// maxCaptureBytes bounds the side buffer used to capture streamed response
	// bodies. Bodies larger than this can't be decoded as JSON anyway, once
	// they're capped, so they're kept as truncated text.
	maxCaptureBytes = 1 << 20
)

// Placeholders recorded in place of values that couldn't be captured.
const (
	unableToSerialize   = "[Unable to serialize]"
	unableToCapture     = "[Unable to capture]"
	unableToCaptureBody = "[Unable to capture body]"
	errorCapturingBody  = "[Error capturing body]"
	binaryOrFormData    = "[Binary or FormData]"
)

// Truncate returns s if it is at most max characters long. Otherwise, it
// returns the first max characters of s followed by TruncatedMarker. Multibyte
// characters are never split.
func Truncate(s string, max int) string {
	if len(s) <= max { // fast path, bytes >= runes
		return s
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var n int
	for i := range s {
		if n == max {
			return s[:i] + TruncatedMarker
		}
		n++
	}
	return s
}

// capValue returns v unchanged if its JSON serialization is at most max
// characters long. Otherwise, it returns the truncated serialization as a
// string. Values which can't be serialized are replaced with a placeholder.
func capValue(v any, max int) any {
	data, err := marshalJSON(v)
	if err != nil {
		return unableToSerialize
	}
	if s := string(data); utf8.RuneCountInString(s) > max {
		return Truncate(s, max)
	}
	return v
}

// captureBytes decodes data as JSON, capped at max, if possible. Otherwise, it
// returns data as capped text.
func captureBytes(data []byte, max int) any {
	if v, err := decodeJSON(data); err == nil {
		return capValue(v, max)
	}
	return Truncate(string(data), max)
}

// captureRequestString captures a string request body: JSON is decoded and
// capped at MaxBodyLength, anything else is capped at MaxTextRequestBodyLength.
func captureRequestString(s string) any {
	if v, err := decodeJSON([]byte(s)); err == nil {
		return capValue(v, MaxBodyLength)
	}
	return Truncate(s, MaxTextRequestBodyLength)
}

var errNotJSON = errors.New("not JSON")

func decodeJSON(data []byte) (any, error) {
	if !json.Valid(data) {
		return nil, errNotJSON
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// marshalJSON is json.Marshal without HTML escaping, so that the length of the
// result matches what a reader of the tracing header will see.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
