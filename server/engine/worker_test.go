package engine

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kfcemployee/tinyhttpd/server/protocol"
	"github.com/kfcemployee/tinyhttpd/server/router"
)

type MockAddr struct {
	str string
}

func (m MockAddr) Network() string { return "tcp" }
func (m MockAddr) String() string  { return m.str }

// MockConn reads from in and records everything written to out
type MockConn struct {
	in     *bytes.Reader
	out    bytes.Buffer
	closed bool
	reads  int

	readErr  error
	writeErr error
}

func newMockConn(raw string) *MockConn {
	return &MockConn{in: bytes.NewReader([]byte(raw))}
}

func (m *MockConn) Read(b []byte) (int, error) {
	m.reads++
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.in.Read(b)
}

func (m *MockConn) Write(b []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.out.Write(b)
}

func (m *MockConn) Close() error {
	m.closed = true
	return nil
}

func (m *MockConn) LocalAddr() net.Addr                { return MockAddr{"(server)"} }
func (m *MockConn) RemoteAddr() net.Addr               { return MockAddr{"(client)"} }
func (m *MockConn) SetDeadline(t time.Time) error      { return nil }
func (m *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

type mockRecorder struct {
	mu   sync.Mutex
	recs []string
	err  error
}

func (r *mockRecorder) Record(id uint64, remote net.Addr, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, remote.String()+"|"+string(raw))
	return r.err
}

func fixedClock() time.Time {
	return time.Date(2024, time.March, 9, 14, 5, 7, 0, time.UTC)
}

func testRoutes() []router.Route {
	return []router.Route{
		router.MustRoute("/now", func(req *protocol.Request) (*protocol.Response, error) {
			return protocol.TextResponse(200, "<p>"+fixedClock().Format(time.RFC3339)+"</p>"), nil
		}),
		router.MustRoute("/user/<user_id>/profile", func(req *protocol.Request) (*protocol.Response, error) {
			return protocol.TextResponse(200, "user "+req.Param("user_id")), nil
		}),
		router.MustRoute("/error", func(req *protocol.Request) (*protocol.Response, error) {
			return nil, errors.New("db is down")
		}),
		router.MustRoute("/boom", func(req *protocol.Request) (*protocol.Response, error) {
			panic("boom")
		}),
		router.MustRoute("/nil", func(req *protocol.Request) (*protocol.Response, error) {
			return nil, nil
		}),
		router.MustRoute("/teapot", func(req *protocol.Request) (*protocol.Response, error) {
			return protocol.TextResponse(418, "tea"), nil
		}),
		router.MustRoute("/bytes", func(req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewResponse(200, []byte("日本語")).WithContentType("text/plain; charset=UTF-8"), nil
		}),
	}
}

func newTestWorker(t testing.TB, rec Recorder) *Worker {
	t.Helper()
	return NewWorker(WorkerConfig{
		Resolver:   router.NewHTTPRouter(testRoutes()),
		Fallback:   router.NewStatic(t.TempDir()),
		Serializer: protocol.NewBuilder(protocol.WithClock(fixedClock)),
		Recorder:   rec,
		Logger:     zerolog.Nop(),
	})
}

func TestWorkerServe(t *testing.T) {
	w := newTestWorker(t, nil)
	conn := newMockConn("GET /now HTTP/1.1\r\nHost: x\r\n\r\n")

	res, err := w.Serve(1, conn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
	if conn.reads != 1 {
		t.Errorf("expected exactly one read, got %d", conn.reads)
	}

	body := "<p>2024-03-09T14:05:07Z</p>"
	expect := "HTTP/1.1 200 OK\r\n" +
		"Date: Sat, 09 Mar 2024 14:05:07 GMT\r\n" +
		"Host: tinyhttpd/0.1\r\n" +
		"Content-Length: 27\r\n" +
		"Connection: Close\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" + body
	if conn.out.String() != expect {
		t.Errorf("got\n%q\nwant\n%q", conn.out.String(), expect)
	}
	if res.Code != 200 || res.Bytes != len(expect) {
		t.Errorf("result %+v", res)
	}
}

func TestWorkerResponses(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		statusLine string
		ctype      string
		body       string
	}{
		{
			name:       "params",
			raw:        "GET /user/42/profile HTTP/1.1\r\n\r\n",
			statusLine: "HTTP/1.1 200 OK",
			ctype:      protocol.TypeHTML,
			body:       "user 42",
		},
		{
			name:       "static fallback 404",
			raw:        "GET /user/42/settings HTTP/1.1\r\n\r\n",
			statusLine: "HTTP/1.1 404 Not Found",
			ctype:      protocol.TypeHTML,
			body:       "<html><body><h1>404 Not Found</h1></body></html>",
		},
		{
			name:       "explicit type and multibyte body",
			raw:        "GET /bytes HTTP/1.1\r\n\r\n",
			statusLine: "HTTP/1.1 200 OK",
			ctype:      "text/plain; charset=UTF-8",
			body:       "日本語",
		},
		{
			name:       "query does not affect routing",
			raw:        "GET /now?fmt=iso HTTP/1.1\r\n\r\n",
			statusLine: "HTTP/1.1 200 OK",
			ctype:      protocol.TypeHTML,
			body:       "<p>2024-03-09T14:05:07Z</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newMockConn(tt.raw)
			if _, err := newTestWorker(t, nil).Serve(1, conn); err != nil {
				t.Fatal(err)
			}

			head, body, ok := strings.Cut(conn.out.String(), "\r\n\r\n")
			if !ok {
				t.Fatalf("no header block: %q", conn.out.String())
			}
			lines := strings.Split(head, "\r\n")
			if lines[0] != tt.statusLine {
				t.Errorf("status line %q", lines[0])
			}
			if body != tt.body {
				t.Errorf("body %q", body)
			}
			if !strings.Contains(head, "\r\nContent-Type: "+tt.ctype) {
				t.Errorf("content type missing in %q", head)
			}
			if !strings.Contains(head, "\r\nContent-Length: "+strconv.Itoa(len(body))+"\r\n") {
				t.Errorf("content length mismatch in %q", head)
			}
		})
	}
}

func TestWorkerFailures(t *testing.T) {
	tests := []struct {
		name      string
		conn      *MockConn
		wantState State
		wantErr   error
		wantStack bool
	}{
		{
			name:      "malformed request line",
			conn:      newMockConn("GET /\r\n\r\n"),
			wantState: Parsing,
			wantErr:   protocol.ErrMalformedRequest,
		},
		{
			name:      "malformed header",
			conn:      newMockConn("GET / HTTP/1.1\r\nbroken\r\n\r\n"),
			wantState: Parsing,
			wantErr:   protocol.ErrMalformedHeader,
		},
		{
			name:      "handler error",
			conn:      newMockConn("GET /error HTTP/1.1\r\n\r\n"),
			wantState: Handling,
			wantErr:   ErrHandlerFailure,
		},
		{
			name:      "handler panic",
			conn:      newMockConn("GET /boom HTTP/1.1\r\n\r\n"),
			wantState: Handling,
			wantErr:   ErrHandlerFailure,
			wantStack: true,
		},
		{
			name:      "nil response",
			conn:      newMockConn("GET /nil HTTP/1.1\r\n\r\n"),
			wantState: Handling,
			wantErr:   ErrHandlerFailure,
		},
		{
			name:      "unknown status",
			conn:      newMockConn("GET /teapot HTTP/1.1\r\n\r\n"),
			wantState: Serializing,
			wantErr:   protocol.ErrUnknownStatus,
		},
		{
			name:      "client sent nothing",
			conn:      newMockConn(""),
			wantState: Receiving,
			wantErr:   ErrEmptyRequest,
		},
		{
			name:      "read error",
			conn:      &MockConn{in: bytes.NewReader(nil), readErr: io.ErrClosedPipe},
			wantState: Receiving,
			wantErr:   io.ErrClosedPipe,
		},
		{
			name:      "write error",
			conn:      &MockConn{in: bytes.NewReader([]byte("GET /now HTTP/1.1\r\n\r\n")), writeErr: io.ErrClosedPipe},
			wantState: Sending,
			wantErr:   io.ErrClosedPipe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestWorker(t, nil).Serve(7, tt.conn)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var ce *ConnError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConnError, got %T", err)
			}
			if ce.State != tt.wantState {
				t.Errorf("failed in %v, want %v", ce.State, tt.wantState)
			}
			if (len(ce.Stack) > 0) != tt.wantStack {
				t.Errorf("stack present = %v", len(ce.Stack) > 0)
			}
			if tt.conn.out.Len() != 0 {
				t.Errorf("no bytes should be sent, got %q", tt.conn.out.String())
			}
			if !tt.conn.closed {
				t.Error("connection not closed")
			}
		})
	}
}

func TestWorkerSingleReceive(t *testing.T) {
	// request bigger than the receive buffer: the body is cut at RecvSize
	w := NewWorker(WorkerConfig{
		Resolver: router.NewHTTPRouter([]router.Route{
			router.MustRoute("/echo", func(req *protocol.Request) (*protocol.Response, error) {
				return protocol.NewResponse(200, append([]byte(nil), req.Body...)), nil
			}),
		}),
		Fallback:   router.NewStatic(t.TempDir()),
		Serializer: protocol.NewBuilder(),
		RecvSize:   64,
		Logger:     zerolog.Nop(),
	})

	head := "POST /echo HTTP/1.1\r\n\r\n"
	conn := newMockConn(head + strings.Repeat("a", 100))
	if _, err := w.Serve(1, conn); err != nil {
		t.Fatal(err)
	}
	if conn.reads != 1 {
		t.Errorf("reads = %d", conn.reads)
	}
	_, body, _ := strings.Cut(conn.out.String(), "\r\n\r\n")
	if len(body) != 64-len(head) {
		t.Errorf("body has %d bytes, want %d", len(body), 64-len(head))
	}
}

// buffers come back from the pool intact
func TestWorkerReusesBuffers(t *testing.T) {
	w := newTestWorker(t, nil)

	for i := range 5 {
		conn := newMockConn("GET /now HTTP/1.1\r\nHost: x\r\n\r\n")
		res, err := w.Serve(uint64(i+1), conn)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		if res.Code != 200 || !strings.HasPrefix(conn.out.String(), "HTTP/1.1 200 OK\r\n") {
			t.Errorf("conn %d got %q", i, conn.out.String())
		}
	}
}

func TestWorkerRecorder(t *testing.T) {
	rec := &mockRecorder{}
	w := newTestWorker(t, rec)

	raw := "GET /missing.css HTTP/1.1\r\n\r\n"
	if _, err := w.Serve(3, newMockConn(raw)); err != nil {
		t.Fatal(err)
	}
	// malformed requests are captured too, capture runs before parsing
	if _, err := w.Serve(4, newMockConn("garbage")); err == nil {
		t.Fatal("expected parse error")
	}

	if len(rec.recs) != 2 || rec.recs[0] != "(client)|"+raw || rec.recs[1] != "(client)|garbage" {
		t.Errorf("records %q", rec.recs)
	}

	// a failing recorder does not fail the connection
	rec.err = errors.New("disk full")
	conn := newMockConn(raw)
	if _, err := w.Serve(5, conn); err != nil {
		t.Fatalf("capture error leaked: %v", err)
	}
	if conn.out.Len() == 0 {
		t.Error("response not sent")
	}
}

func TestStateString(t *testing.T) {
	if Handling.String() != "handling" || Closed.String() != "closed" {
		t.Errorf("names: %s %s", Handling, Closed)
	}
	if State(99).String() != "unknown" {
		t.Errorf("got %s", State(99))
	}
}
