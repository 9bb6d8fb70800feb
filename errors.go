package bigstash

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

var (
	// ErrNotModified is returned by a conditional GET answered with 304.
	// It is not a failure; RefreshUploadStatus consumes it.
	ErrNotModified = errors.New("not modified")
	// ErrUnsupportedAlgorithm is returned when a signing algorithm is not implemented
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrInvalidResource is returned when the root document has no such resource
	ErrInvalidResource = errors.New("invalid resource")
	// ErrUnexpectedContentType is returned when a response body is not JSON
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrListComplete is returned by List.FetchPage once the cursor is exhausted
	ErrListComplete = errors.New("list complete")
	// ErrUnauthorized is returned when a request signature does not verify
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingCredentials is returned when a client is built without key or secret
	ErrMissingCredentials = errors.New("api key and secret are required")
	// ErrConfigRequired is returned when New is called with a nil config
	ErrConfigRequired = errors.New("config is required")
)

// TransportError reports a request that never produced an HTTP response.
// It is the only retryable error kind.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AccessDeniedError is returned for 401 and 403 responses. The original
// request and response are kept for diagnostics; the response body has
// already been consumed.
type AccessDeniedError struct {
	Message  string
	Request  *http.Request
	Response *http.Response
}

func (e *AccessDeniedError) Error() string {
	return "access denied: " + e.Message
}

// StatusCode returns the HTTP status of the denied request.
func (e *AccessDeniedError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// ServiceError is a classified failure reported by the service or a
// response the client could not make sense of.
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// APIError carries the raw status and body of an unclassified non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "server error: " + strconv.Itoa(e.StatusCode) + " - " + e.Body
}

// Is reports whether target is an *APIError with the same StatusCode.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.StatusCode == e.StatusCode
}

// Sentinel API errors for use with errors.Is.
var (
	// ErrNotFound is returned when the requested resource does not exist (404).
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound}
	// ErrConflict is returned when the service rejects a state change (409).
	ErrConflict = &APIError{StatusCode: http.StatusConflict}
)

// IsRetryable reports whether err is worth retrying. Only transport
// failures are; anything the service answered is final.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsServiceError reports whether err came from talking to the service,
// as opposed to a local failure.
func IsServiceError(err error) bool {
	var (
		se *ServiceError
		ad *AccessDeniedError
		te *TransportError
	)
	return errors.As(err, &se) || errors.As(err, &ad) || errors.As(err, &te)
}
