package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	Status int
	Body   string
}

// Error renders "<status> <body>", the form surfaced to the rendering side.
func (e *StatusError) Error() string {
	return strconv.Itoa(e.Status) + " " + e.Body
}

// TransportError wraps failures to reach the backend at all.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}
