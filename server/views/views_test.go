package views

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kfcemployee/tinyhttpd/server/protocol"
	"github.com/kfcemployee/tinyhttpd/server/router"
)

type tableRegistrar struct {
	patterns []string
	routes   []router.Route
	fail     string
}

func (t *tableRegistrar) Handle(pattern string, h router.Handler) error {
	if pattern == t.fail {
		return errors.New("refused")
	}
	rt, err := router.NewRoute(pattern, h)
	if err != nil {
		return err
	}
	t.patterns = append(t.patterns, pattern)
	t.routes = append(t.routes, rt)
	return nil
}

func newPages() *Pages {
	return New(func() time.Time {
		return time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.UTC)
	})
}

func TestRegister(t *testing.T) {
	reg := &tableRegistrar{}
	if err := newPages().Register(reg); err != nil {
		t.Fatal(err)
	}

	want := []string{"/now", "/show_request", "/parameters", "/user/<user_id>/profile"}
	if strings.Join(reg.patterns, " ") != strings.Join(want, " ") {
		t.Fatalf("patterns %v, want %v", reg.patterns, want)
	}

	r := router.NewHTTPRouter(reg.routes)
	req := &protocol.Request{Method: "GET", Path: "/user/42/profile"}
	h := r.Serve(req)
	if h == nil {
		t.Fatal("profile route not resolved")
	}
	res, err := h(req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(res.Body), "ID: 42") {
		t.Errorf("body %q", res.Body)
	}
}

func TestRegisterStopsOnError(t *testing.T) {
	reg := &tableRegistrar{fail: "/parameters"}
	if err := Register(reg); err == nil {
		t.Fatal("expected error")
	}
	if len(reg.patterns) != 2 {
		t.Errorf("registered %v", reg.patterns)
	}
}

func TestNow(t *testing.T) {
	res, err := newPages().Now(&protocol.Request{Method: "GET", Path: "/now"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Code != 200 || res.ContentType != protocol.TypeHTML {
		t.Errorf("code %d type %q", res.Code, res.ContentType)
	}
	if !strings.Contains(string(res.Body), "<h1>Now: 2024-03-09 14:05:07.123456</h1>") {
		t.Errorf("body %q", res.Body)
	}
}

func TestShowRequest(t *testing.T) {
	req := &protocol.Request{
		Method:   "POST",
		Target:   "/show_request?x=1",
		Path:     "/show_request",
		Protocol: "HTTP/1.1",
		Headers:  map[string]string{"User-Agent": "test", "Host": "<b>"},
		Body:     []byte("a=1\xff"),
	}
	res, err := newPages().ShowRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	body := string(res.Body)

	for _, want := range []string{
		"<p>POST /show_request?x=1 HTTP/1.1</p>",
		"Host: &lt;b&gt;\nUser-Agent: test",
		"<pre>a=1</pre>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in %q", want, body)
		}
	}
}

func TestParameters(t *testing.T) {
	p := newPages()

	tests := []struct {
		name   string
		method string
		body   string
		code   int
		want   []string
	}{
		{"get", "GET", "", 405, []string{"405 Method Not Allowed"}},
		{"put", "PUT", "a=1", 405, []string{"405 Method Not Allowed"}},
		{"post", "POST", "b=2&a=1&a=3", 200, []string{"a: 1, 3\nb: 2"}},
		{"post empty", "POST", "", 200, []string{"<h1>Parameters:</h1>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Parameters(&protocol.Request{Method: tt.method, Path: "/parameters", Body: []byte(tt.body)})
			if err != nil {
				t.Fatal(err)
			}
			if res.Code != tt.code {
				t.Errorf("code %d, want %d", res.Code, tt.code)
			}
			for _, w := range tt.want {
				if !strings.Contains(string(res.Body), w) {
					t.Errorf("missing %q in %q", w, res.Body)
				}
			}
		})
	}
}

func TestParametersBadForm(t *testing.T) {
	res, err := newPages().Parameters(&protocol.Request{Method: "POST", Body: []byte("b=2&a=%zz")})
	if err != nil {
		t.Fatal(err)
	}
	body := string(res.Body)
	if res.Code != 200 || !strings.Contains(body, "b: 2") || strings.Contains(body, "a: ") {
		t.Errorf("code %d body %q", res.Code, body)
	}
}
