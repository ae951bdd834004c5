// parse raw bytes from one receive into a Request
// only parser logic
package protocol

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// for fast access
var (
	crlf    = []byte("\r\n")
	headEnd = []byte("\r\n\r\n")
)

// stateless HTTPParser struct
// should be init in engine worker
type HTTPParser struct{}

// Parse splits raw into request line, header block and body.
// raw must hold the whole request: there is no Content-Length read-ahead,
// everything after the blank line is the body.
func (p *HTTPParser) Parse(raw []byte) (*Request, error) {
	crs := 0

	// find a separator
	findsep := func(start int, sep []byte) int {
		idx := bytes.Index(raw[start:], sep)
		if idx == -1 {
			return -1
		}
		return start + idx
	}

	// request line
	sep := findsep(crs, crlf)
	if sep == -1 {
		return nil, fmt.Errorf("%w: no request line", ErrMalformedRequest)
	}
	line := raw[crs:sep]
	crs = sep + 2

	// header block ends at first blank line, it may be empty
	var head []byte
	if bytes.HasPrefix(raw[crs:], crlf) {
		crs += 2
	} else {
		sep = findsep(crs, headEnd)
		if sep == -1 {
			return nil, fmt.Errorf("%w: header block not terminated", ErrMalformedRequest)
		}
		head = raw[crs:sep]
		crs = sep + 4
	}

	if !utf8.Valid(line) || !utf8.Valid(head) {
		return nil, fmt.Errorf("%w: not utf-8", ErrMalformedRequest)
	}

	req, err := parseRequestLine(string(line))
	if err != nil {
		return nil, err
	}

	req.Headers, err = parseHeaders(string(head))
	if err != nil {
		return nil, err
	}

	// body taken verbatim
	req.Body = raw[crs:]
	return req, nil
}

// method, target and protocol separated by single spaces
func parseRequestLine(line string) (*Request, error) {
	tok := strings.Split(line, " ")
	if len(tok) != 3 {
		return nil, fmt.Errorf("%w: request line has %d tokens", ErrMalformedRequest, len(tok))
	}

	method, target, proto := tok[0], tok[1], tok[2]
	if method == "" || proto == "" || !strings.HasPrefix(target, "/") {
		return nil, fmt.Errorf("%w: bad request line %q", ErrMalformedRequest, line)
	}

	path, query, _ := strings.Cut(target, "?")
	return &Request{
		Method:   method,
		Target:   target,
		Path:     path,
		RawQuery: query,
		Protocol: proto,
		Params:   map[string]string{},
	}, nil
}

// every line is "key:value" with any number of spaces after the colon
func parseHeaders(head string) (map[string]string, error) {
	headers := make(map[string]string)
	if head == "" {
		return headers, nil
	}

	for _, hl := range strings.Split(head, "\r\n") {
		coloni := strings.IndexByte(hl, ':')
		if coloni <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, hl)
		}
		headers[hl[:coloni]] = strings.TrimLeft(hl[coloni+1:], " ")
	}
	return headers, nil
}
