package contents

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

// TransportError is a failed round trip: the request did not complete
// (Status 0, Err set) or the server answered with a non-2xx status.
type TransportError struct {
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("contents: %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("contents: %s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConflictError is returned by Put when the version token is stale: the
// file changed since it was read. It is never retried.
type ConflictError struct {
	Path string
	SHA  string
	Err  *TransportError
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("contents: %s changed since sha %s was read: %v", e.Path, e.SHA, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func transportError(method string, resp *resty.Response, err error) *TransportError {
	te := &TransportError{Method: method, Err: err}
	if resp != nil && resp.Request != nil {
		te.URL = resp.Request.URL
	}
	return te
}

func statusError(method string, resp *resty.Response) *TransportError {
	return &TransportError{
		Method: method,
		URL:    resp.Request.URL,
		Status: resp.StatusCode(),
		Body:   resp.String(),
	}
}
