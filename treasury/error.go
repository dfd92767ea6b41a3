package treasury

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is returned for API responses with a non-2xx status code.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Parameter  string
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Parameter != "":
		return fmt.Sprintf("HTTP %d: %s: %s (%s)", e.StatusCode, e.Code, e.Message, e.Parameter)
	case e.Code != "":
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("HTTP %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// newError builds an error from a response body of the form
//
//	{"errors": {"code": "...", "message": "...", "parameter": "..."}}
//
// Bodies which don't match are used as the message, if short enough.
func newError(code int, body []byte) *Error {
	var payload struct {
		Errors struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Parameter string `json:"parameter"`
		} `json:"errors"`
	}

	e := &Error{StatusCode: code}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Errors.Message != "" {
		e.Code = payload.Errors.Code
		e.Message = payload.Errors.Message
		e.Parameter = payload.Errors.Parameter
		return e
	}

	if len(body) > 0 && len(body) <= 256 {
		e.Message = string(body)
	}

	return e
}
