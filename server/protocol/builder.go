package protocol

import (
	"fmt"
	"time"
)

// lookup table for status codes, codes outside it are a programming error
var defaultReasons = map[int]string{
	// 2xx
	200: "OK",
	201: "Created",
	204: "No Content",

	// 3xx
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",

	// 4xx
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",

	// 5xx
	500: "Internal Server Error",
	501: "Not Implemented",
}

const (
	DefaultBanner = "tinyhttpd/0.1"

	// RFC 1123 with a fixed GMT zone
	dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"
)

var (
	proto = []byte("HTTP/1.1 ")
	colon = []byte(": ")
)

// Builder serializes a Response into wire bytes.
// its tables are filled at construction and only read afterwards,
// so one Builder is shared by all workers.
type Builder struct {
	reasons map[int]string
	types   map[string]string
	noExt   string
	banner  string
	now     func() time.Time
}

type BuilderOption func(*Builder)

// WithStatus adds or overrides a reason phrase
func WithStatus(code int, reason string) BuilderOption {
	return func(b *Builder) { b.reasons[code] = reason }
}

// WithTypes replaces the extension table
func WithTypes(types map[string]string) BuilderOption {
	return func(b *Builder) {
		b.types = make(map[string]string, len(types))
		for k, v := range types {
			b.types[k] = v
		}
	}
}

// WithNoExtType sets the type used for paths without any extension
func WithNoExtType(ct string) BuilderOption {
	return func(b *Builder) { b.noExt = ct }
}

func WithBanner(banner string) BuilderOption {
	return func(b *Builder) { b.banner = banner }
}

func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		reasons: make(map[int]string, len(defaultReasons)),
		types:   DefaultTypes(),
		noExt:   TypeHTML,
		banner:  DefaultBanner,
		now:     time.Now,
	}
	for code, r := range defaultReasons {
		b.reasons[code] = r
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// ContentType is the explicit type of res or one derived from the path extension:
// known ext -> table, unknown or empty ext -> octet-stream, no ext at all -> noExt
func (b *Builder) ContentType(res *Response, path string) string {
	if res.ContentType != "" {
		return res.ContentType
	}

	ext, ok := extension(path)
	if !ok {
		return b.noExt
	}
	if ct, ok := b.types[ext]; ok {
		return ct
	}
	return TypeBinary
}

// Build returns status line, headers, blank line and body.
// a text body is encoded here if nobody did it before.
func (b *Builder) Build(res *Response, req *Request) ([]byte, error) {
	reason, ok := b.reasons[res.Code]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, res.Code)
	}

	body := res.Encode()
	ct := b.ContentType(res, req.Path)
	date := b.now().UTC().Format(dateLayout)

	dst := make([]byte, 0, 160+len(b.banner)+len(ct)+len(body))

	dst = append(dst, proto...)
	dst = appendUint(dst, uint(res.Code))
	dst = append(dst, ' ')
	dst = append(dst, reason...)
	dst = append(dst, crlf...)

	dst = appendHeader(dst, "Date", date)
	dst = appendHeader(dst, "Host", b.banner)
	dst = append(dst, "Content-Length"...)
	dst = append(dst, colon...)
	dst = appendUint(dst, uint(len(body)))
	dst = append(dst, crlf...)
	dst = appendHeader(dst, "Connection", "Close")
	dst = appendHeader(dst, "Content-Type", ct)

	dst = append(dst, crlf...)
	dst = append(dst, body...)
	return dst, nil
}

func appendHeader(dst []byte, key, val string) []byte {
	dst = append(dst, key...)
	dst = append(dst, colon...)
	dst = append(dst, val...)
	return append(dst, crlf...)
}

// helper func to append int w/o strconv, n should be uint bc / 10 (and % 10)
// for uints is faster, and our len or code >= 0
func appendUint(dst []byte, n uint) []byte {
	if n == 0 {
		return append(dst, '0')
	}

	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n%10) + '0'
		n /= 10
	}
	return append(dst, tmp[i:]...)
}
