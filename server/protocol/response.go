package protocol

// Response is a handler result before serialization.
// Body holds raw bytes; Text is a text body that gets encoded into Body once.
// Empty ContentType means derive it from the request path extension.
type Response struct {
	Code        int
	Body        []byte
	Text        string
	ContentType string
}

func NewResponse(code int, body []byte) *Response {
	return &Response{Code: code, Body: body}
}

// TextResponse keeps s unencoded until Encode is called
func TextResponse(code int, s string) *Response {
	return &Response{Code: code, Text: s}
}

func HTMLResponse(code int, s string) *Response {
	return &Response{Code: code, Text: s, ContentType: TypeHTML}
}

func (r *Response) WithContentType(ct string) *Response {
	r.ContentType = ct
	return r
}

// Encode moves a text body into Body and returns the bytes.
// once Body is set it is returned as is, so a body is never encoded twice.
func (r *Response) Encode() []byte {
	if r.Body == nil && r.Text != "" {
		r.Body = []byte(r.Text)
		r.Text = ""
	}
	return r.Body
}
