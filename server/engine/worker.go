// per-connection worker: receive -> parse -> resolve -> handle -> serialize -> send -> close
package engine

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kfcemployee/tinyhttpd/server/protocol"
	"github.com/kfcemployee/tinyhttpd/server/router"
)

const DefaultRecvSize = 4096

var (
	ErrHandlerFailure = errors.New("handler failure")
	ErrEmptyRequest   = errors.New("empty request")
)

// Resolver finds a handler for req and fills its params, nil means no route
type Resolver interface {
	Serve(req *protocol.Request) router.Handler
}

// Fallback answers requests no route matched
type Fallback interface {
	Serve(req *protocol.Request) *protocol.Response
}

type Serializer interface {
	Build(res *protocol.Response, req *protocol.Request) ([]byte, error)
}

// Recorder keeps a copy of raw received bytes for debugging
type Recorder interface {
	Record(id uint64, remote net.Addr, raw []byte) error
}

// ConnError is what a failed connection reports to the accept loop
type ConnError struct {
	State State
	Err   error
	Stack []byte // set when a panic was recovered
}

func (e *ConnError) Error() string {
	return e.State.String() + ": " + e.Err.Error()
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// Result of a connection that got a response
type Result struct {
	Code  int
	Bytes int
}

type WorkerConfig struct {
	Resolver   Resolver
	Fallback   Fallback
	Serializer Serializer
	Recorder   Recorder // optional

	RecvSize     int
	ReadTimeout  time.Duration // 0 blocks forever
	WriteTimeout time.Duration

	Logger zerolog.Logger
}

// Worker runs the state machine for one connection at a time per call,
// it is safe to call Serve from many goroutines.
type Worker struct {
	parser   protocol.HTTPParser
	resolver Resolver
	fallback Fallback
	builder  Serializer
	recorder Recorder

	recvSize     int
	readTimeout  time.Duration
	writeTimeout time.Duration

	log  zerolog.Logger
	bufs sync.Pool
}

func NewWorker(cfg WorkerConfig) *Worker {
	size := cfg.RecvSize
	if size <= 0 {
		size = DefaultRecvSize
	}

	w := &Worker{
		resolver:     cfg.Resolver,
		fallback:     cfg.Fallback,
		builder:      cfg.Serializer,
		recorder:     cfg.Recorder,
		recvSize:     size,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		log:          cfg.Logger,
	}
	w.bufs.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return w
}

type stateFunc func(s *session) stateFunc

// Serve handles conn to the end and always closes it.
// nothing is written unless a full response was built; on error the
// connection is just closed and the error goes back to the caller.
func (w *Worker) Serve(id uint64, conn net.Conn) (Result, error) {
	s := &session{w: w, id: id, conn: conn}
	defer w.release(s)
	defer conn.Close()

	s.run()

	if s.err != nil {
		return Result{}, &ConnError{State: s.state, Err: s.err, Stack: s.stack}
	}
	s.state = Closed
	return Result{Code: s.res.Code, Bytes: s.sent}, nil
}

func (s *session) run() {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			if s.state == Handling {
				err = fmt.Errorf("%w: %w", ErrHandlerFailure, err)
			}
			s.err = err
			s.stack = debug.Stack()
		}
	}()

	for st := receive; st != nil; {
		st = st(s)
	}
}

// give receive buffer back to the pool
func (w *Worker) release(s *session) {
	if s.bufp != nil {
		w.bufs.Put(s.bufp)
		s.bufp, s.buf, s.raw = nil, nil, nil
	}
}

// state funcs

// one read, whatever it returns is the whole request
func receive(s *session) stateFunc {
	s.state = Receiving
	w := s.w

	if w.readTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(w.readTimeout)); err != nil {
			return s.fail(err)
		}
	}

	s.bufp = w.bufs.Get().(*[]byte)
	s.buf = *s.bufp
	n, err := s.conn.Read(s.buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrEmptyRequest
		}
		return s.fail(err)
	}
	s.raw = s.buf[:n]

	if w.recorder != nil {
		if err := w.recorder.Record(s.id, s.conn.RemoteAddr(), s.raw); err != nil {
			w.log.Warn().Err(err).Uint64("conn", s.id).Msg("capture failed")
		}
	}
	return parse
}

func parse(s *session) stateFunc {
	s.state = Parsing

	req, err := s.w.parser.Parse(s.raw)
	if err != nil {
		return s.fail(err)
	}
	s.req = req
	return resolve
}

// route match goes to handle, anything else is served from static files
func resolve(s *session) stateFunc {
	s.state = Resolving

	if s.h = s.w.resolver.Serve(s.req); s.h != nil {
		return handle
	}
	s.res = s.w.fallback.Serve(s.req)
	return serialize
}

func handle(s *session) stateFunc {
	s.state = Handling

	res, err := s.h(s.req)
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrHandlerFailure, err))
	}
	if res == nil {
		return s.fail(fmt.Errorf("%w: nil response", ErrHandlerFailure))
	}

	res.Encode()
	s.res = res
	return serialize
}

func serialize(s *session) stateFunc {
	s.state = Serializing

	out, err := s.w.builder.Build(s.res, s.req)
	if err != nil {
		return s.fail(err)
	}
	s.out = out
	return send
}
