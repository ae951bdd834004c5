package protocol

import (
	"net/url"
	"strings"
)

// Request is one parsed HTTP request.
// Text fields are decoded from the receive buffer, Body is left as raw bytes
// and may alias that buffer, so it is only valid while the connection is served.
type Request struct {
	Method   string
	Target   string // request target as received, path + query
	Path     string // target before '?', always starts with '/'
	RawQuery string // target after '?', not decoded
	Protocol string

	Headers map[string]string // case as received, last one wins
	Body    []byte

	// url params captured by the router, empty until a route matches
	Params map[string]string
}

// Header returns the value for key. exact case first, then case-insensitive;
// among several case variants the lowest key in byte order wins.
func (r *Request) Header(key string) string {
	if v, ok := r.Headers[key]; ok {
		return v
	}

	var found, val string
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) && (found == "" || k < found) {
			found, val = k, v
		}
	}
	return val
}

func (r *Request) Param(key string) string {
	return r.Params[key]
}

// Query parses RawQuery, malformed pairs are dropped
func (r *Request) Query() url.Values {
	q, _ := url.ParseQuery(r.RawQuery)
	return q
}

// Form decodes the body as application/x-www-form-urlencoded.
func (r *Request) Form() (url.Values, error) {
	return url.ParseQuery(string(r.Body))
}
