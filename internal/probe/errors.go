package probe

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var errBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", maxResponseBodySize)

// Kind classifies why a received response failed a probe.
type Kind int

const (
	// KindStatus means the status code was not one of the allowed codes.
	KindStatus Kind = iota + 1

	// KindDecode means the body was not valid JSON or exceeded the size limit.
	KindDecode

	// KindReadiness means the readiness payload decoded but did not report "ok".
	KindReadiness
)

// String returns a short, log-friendly name for the kind.
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "unexpected_status"
	case KindDecode:
		return "decode_failure"
	case KindReadiness:
		return "readiness_failed"
	default:
		return "unknown"
	}
}

// Response is the part of an HTTP response retained for reporting.
type Response struct {
	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body contains the HTTP response body, at most 1MB.
	Body []byte

	// Latency is the total time taken for the request.
	Latency time.Duration
}

// Text returns the body as a string.
func (r Response) Text() string {
	return string(r.Body)
}

// ResponseError is the uniform failure returned by every probe when a response
// was received but did not satisfy the probe.
//
// It carries the original [Response] so that callers can report the body the
// instance actually sent.
type ResponseError struct {
	// Kind is the failure classification.
	Kind Kind

	// Response is the response that failed the probe.
	Response Response

	// Allowed lists the accepted status codes (populated for KindStatus).
	Allowed []int

	// Err is the underlying cause, if any (e.g. a JSON syntax error).
	Err error
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	var msg string
	switch e.Kind {
	case KindStatus:
		codes := make([]string, len(e.Allowed))
		for i, c := range e.Allowed {
			codes[i] = strconv.Itoa(c)
		}
		msg = fmt.Sprintf("expected one of HTTP (%s), got HTTP %d", strings.Join(codes, ", "), e.Response.StatusCode)
	case KindDecode:
		msg = "failed to decode response"
	case KindReadiness:
		msg = "failed readiness check"
	default:
		msg = "unexpected response"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ResponseError) Unwrap() error {
	return e.Err
}

// AsResponseError reports whether err is (or wraps) a [*ResponseError].
func AsResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
