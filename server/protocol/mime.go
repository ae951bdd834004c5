package protocol

import "strings"

const (
	TypeHTML   = "text/html; charset=UTF-8"
	TypeBinary = "application/octet-stream"
)

// extension (without dot) -> content type, keys are case-sensitive
var defaultTypes = map[string]string{
	"html": TypeHTML,
	"htm":  TypeHTML,
	"css":  "text/css",
	"js":   "text/javascript",
	"json": "application/json",
	"txt":  "text/plain; charset=UTF-8",
	"png":  "image/png",
	"jpg":  "image/jpg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
}

// DefaultTypes returns a copy of the built-in extension table.
func DefaultTypes() map[string]string {
	m := make(map[string]string, len(defaultTypes))
	for k, v := range defaultTypes {
		m[k] = v
	}
	return m
}

// ext of the last path segment and whether it has a dot at all
func extension(p string) (string, bool) {
	base := p[strings.LastIndexByte(p, '/')+1:]
	dot := strings.LastIndexByte(base, '.')
	if dot == -1 {
		return "", false
	}
	return base[dot+1:], true
}
