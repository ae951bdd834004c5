// accept loop: one listening socket, one worker run per accepted connection
package engine

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	Backlog = 10 // backlog for listening

	acceptBackoff = 5 * time.Millisecond
)

var ErrEngineClosed = errors.New("engine closed")

// Engine accepts connections and hands each to the Worker.
// workers == 0 starts a goroutine per connection, workers > 0 uses a bounded pool.
type Engine struct {
	worker  *Worker
	workers int
	log     zerolog.Logger

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	done   chan struct{} // closed by Close
	exited chan struct{} // closed when the accept loop returns

	nextID atomic.Uint64
	conns  sync.WaitGroup
}

func New(w *Worker, workers int, log zerolog.Logger) *Engine {
	return &Engine{
		worker:  w,
		workers: workers,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Serve runs the accept loop on ln until Close.
// a failing connection is logged here and never stops the loop.
func (e *Engine) Serve(ln net.Listener) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		ln.Close()
		return ErrEngineClosed
	}
	e.ln = ln
	e.exited = make(chan struct{})
	defer close(e.exited)
	e.mu.Unlock()

	var jobs chan<- job
	if e.workers > 0 {
		jobs = e.startWorkerPool(e.workers)
		defer close(jobs)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-e.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			e.log.Warn().Err(err).Msg("accept error")
			time.Sleep(acceptBackoff)
			continue
		}

		id := e.nextID.Add(1)
		e.log.Info().
			Uint64("conn", id).
			Str("remote", addrString(conn.RemoteAddr())).
			Msg("accepted")

		e.conns.Add(1)
		if jobs != nil {
			jobs <- job{id: id, conn: conn}
			continue
		}
		go e.handle(id, conn)
	}
}

// run worker and report its result, the only place per-conn errors surface
func (e *Engine) handle(id uint64, conn net.Conn) {
	defer e.conns.Done()
	remote := addrString(conn.RemoteAddr())

	res, err := e.worker.Serve(id, conn)
	if err != nil {
		ev := e.log.Error().Err(err).Uint64("conn", id).Str("remote", remote)
		var ce *ConnError
		if errors.As(err, &ce) {
			ev = ev.Stringer("state", ce.State)
			if len(ce.Stack) > 0 {
				ev = ev.Bytes("stack", ce.Stack)
			}
		}
		ev.Msg("connection failed")
		return
	}

	e.log.Info().
		Uint64("conn", id).
		Str("remote", remote).
		Int("status", res.Code).
		Int("bytes", res.Bytes).
		Msg("closed")
}

// Addr of the listener, nil before Serve
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Close stops accepting, connections in flight keep running
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	close(e.done)

	if e.ln != nil {
		return e.ln.Close()
	}
	return nil
}

// Wait blocks until the accept loop returned and every accepted connection
// is closed, or ctx is done. call it after Close.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	exited := e.exited
	e.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		if exited != nil {
			<-exited
		}
		e.conns.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return "-"
	}
	return a.String()
}
