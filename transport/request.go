package transport

import "net/http"

// Request describes an outgoing API call.
//
// The descriptor is opaque to the transport layer: method, path, headers and
// body pass through untouched. The body is a buffered byte slice rather than
// a stream so the request can be replayed after a credential refresh.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is the raw outcome of a dispatched request.
//
// The body is fully read before the response is returned, so it can be
// consumed any number of times.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// authFailure reports whether the server rejected the request's credential.
// This classification is the only status interpretation the transport does;
// every other status passes through to the caller untouched.
func (r Response) authFailure() bool {
	return r.StatusCode == http.StatusUnauthorized
}
