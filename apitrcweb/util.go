package apitrcweb

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"
)

func requestExplicitlyAccepts(r *http.Request, acceptable ...string) bool {
	have := parseHeaderMediaTypes(r, "accept")
	for _, want := range acceptable {
		if _, ok := have[want]; ok {
			return true
		}
	}
	return false
}

func parseHeaderMediaTypes(r *http.Request, header string) map[string]map[string]string {
	mediaTypes := map[string]map[string]string{} // type: params
	for _, val := range strings.Split(r.Header.Get(header), ",") {
		mediaType, params, err := mime.ParseMediaType(val)
		if err != nil {
			continue
		}
		mediaTypes[mediaType] = params
	}
	return mediaTypes
}

func parseDefault[T any](s string, parse func(string) (T, error), def T) T {
	if v, err := parse(s); err == nil {
		return v
	}
	return def
}

func parseRange[T int | time.Duration](s string, parse func(string) (T, error), min, def, max T) T {
	v, err := parse(s)
	switch {
	case err != nil:
		return def
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}

func parseDurationPointer(s string) (*time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func respondError(w http.ResponseWriter, err error, code int) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error":       err.Error(),
		"status_code": code,
		"status_text": http.StatusText(code),
	})
}
