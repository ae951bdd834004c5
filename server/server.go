package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kfcemployee/tinyhttpd/internal/capture"
	"github.com/kfcemployee/tinyhttpd/server/engine"
	"github.com/kfcemployee/tinyhttpd/server/protocol"
	"github.com/kfcemployee/tinyhttpd/server/router"
)

// New(cfg)           - server with config, routes are added before start
// Handle(p, h)       - add route, first registered match wins
// MustHandle(p, h)   - same, panics on bad pattern
// Listen()           - bind listening socket, Addr() is known after it
// Serve()            - accept loop, blocks until Shutdown
// Run(ctx)           - Serve until ctx is done, then graceful shutdown
// Shutdown(ctx)      - stop accepting, wait for connections in flight

var (
	ErrServerStarted = errors.New("server already started")
)

type Config struct {
	Addr       string
	Backlog    int
	RecvSize   int // bytes read once per connection
	StaticRoot string
	Workers    int // 0 = goroutine per connection

	ReadTimeout     time.Duration // 0 = no deadline
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration // used by Run

	Banner      string // value of the Host response header
	NoExtType   string // content type for paths without extension
	CapturePath string // "" disables capture

	Logger *zerolog.Logger // nil = no logs
}

func DefaultConfig() Config {
	return Config{
		Addr:            "localhost:8080",
		Backlog:         engine.Backlog,
		RecvSize:        engine.DefaultRecvSize,
		StaticRoot:      "./static",
		ShutdownTimeout: 5 * time.Second,
		Banner:          protocol.DefaultBanner,
		NoExtType:       protocol.TypeHTML,
	}
}

// zero fields take defaults
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.Backlog <= 0 {
		c.Backlog = d.Backlog
	}
	if c.RecvSize <= 0 {
		c.RecvSize = d.RecvSize
	}
	if c.StaticRoot == "" {
		c.StaticRoot = d.StaticRoot
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.Banner == "" {
		c.Banner = d.Banner
	}
	if c.NoExtType == "" {
		c.NoExtType = d.NoExtType
	}
	return c
}

type Server struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	routes  []router.Route
	started bool
	ln      net.Listener
	eng     *engine.Engine
	rec     *capture.Recorder
}

func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Server{cfg: cfg, log: log}
}

// Handle adds a route. the table is frozen once the server listens.
func (s *Server) Handle(pattern string, h router.Handler) error {
	rt, err := router.NewRoute(pattern, h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("handle %q: %w", pattern, ErrServerStarted)
	}
	s.routes = append(s.routes, rt)
	return nil
}

func (s *Server) MustHandle(pattern string, h router.Handler) {
	if err := s.Handle(pattern, h); err != nil {
		panic(err)
	}
}

// Listen binds the socket and builds the engine from the current route table
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrServerStarted
	}

	var rec *capture.Recorder
	if s.cfg.CapturePath != "" {
		r, err := capture.Open(s.cfg.CapturePath)
		if err != nil {
			return err
		}
		rec = r
	}

	ln, err := engine.Listen(s.cfg.Addr, s.cfg.Backlog)
	if err != nil {
		if rec != nil {
			rec.Close()
		}
		return err
	}

	wcfg := engine.WorkerConfig{
		Resolver: router.NewHTTPRouter(s.routes),
		Fallback: router.NewStatic(s.cfg.StaticRoot),
		Serializer: protocol.NewBuilder(
			protocol.WithBanner(s.cfg.Banner),
			protocol.WithNoExtType(s.cfg.NoExtType),
		),
		RecvSize:     s.cfg.RecvSize,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		Logger:       s.log,
	}
	// typed nil must not reach the worker
	if rec != nil {
		wcfg.Recorder = rec
	}

	s.rec = rec
	s.ln = ln
	s.eng = engine.New(engine.NewWorker(wcfg), s.cfg.Workers, s.log)
	s.started = true
	return nil
}

// Addr of the listening socket, nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve listens if needed and runs the accept loop until Shutdown
func (s *Server) Serve() error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	eng, ln, n := s.eng, s.ln, len(s.routes)
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("static", s.cfg.StaticRoot).
		Int("workers", s.cfg.Workers).
		Int("routes", n).
		Msg("listening")

	err := eng.Serve(ln)
	if errors.Is(err, engine.ErrEngineClosed) {
		// shut down before the loop started
		return nil
	}
	return err
}

// Run serves until ctx is done and then shuts down within ShutdownTimeout
func (s *Server) Run(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(sctx); err != nil {
		return err
	}
	return <-errc
}

// Shutdown closes the listener and waits for every accepted connection
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	eng, ln, rec := s.eng, s.ln, s.rec
	s.mu.Unlock()

	if eng == nil {
		return nil
	}
	if err := eng.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn().Err(err).Msg("close listener")
	}
	// listener the loop never took over
	ln.Close()
	err := eng.Wait(ctx)
	if rec != nil {
		if cerr := rec.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("close capture")
		}
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info().Msg("stopped")
	return nil
}
