package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/kfcemployee/tinyhttpd/server"
	"github.com/kfcemployee/tinyhttpd/server/views"
)

func main() {
	def := server.DefaultConfig()

	addr := flag.String("addr", def.Addr, "listen address host:port")
	static := flag.String("static", def.StaticRoot, "static files root")
	workers := flag.Int("workers", def.Workers, "pool size, 0 = goroutine per connection")
	recvSize := flag.Int("recv-size", def.RecvSize, "bytes read from each connection")
	capturePath := flag.String("capture", "", "append raw requests to this file")
	readTimeout := flag.Duration("read-timeout", 0, "receive deadline, 0 = none")
	writeTimeout := flag.Duration("write-timeout", 0, "send deadline, 0 = none")
	level := flag.String("log-level", "info", "debug|info|warn|error")
	jsonLogs := flag.Bool("log-json", false, "log json lines instead of console output")
	flag.Parse()

	log, err := newLogger(*level, *jsonLogs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := def
	cfg.Addr = *addr
	cfg.StaticRoot = *static
	cfg.Workers = *workers
	cfg.RecvSize = *recvSize
	cfg.CapturePath = *capturePath
	cfg.ReadTimeout = *readTimeout
	cfg.WriteTimeout = *writeTimeout
	cfg.Logger = &log

	srv := server.New(cfg)
	if err := views.Register(srv); err != nil {
		log.Fatal().Err(err).Msg("register views")
	}
	if err := srv.Listen(); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}

	banner(os.Stdout, srv.Addr().String(), cfg.StaticRoot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	color.New(color.FgYellow).Fprintln(os.Stdout, "=== server stopped ===")
}

func newLogger(level string, jsonLogs bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("bad -log-level %q: %w", level, err)
	}

	var out io.Writer = os.Stderr
	if !jsonLogs {
		out = zerolog.ConsoleWriter{
			Out:        colorable.NewColorableStderr(),
			TimeFormat: time.DateTime,
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func banner(w io.Writer, addr, static string) {
	title := color.New(color.FgGreen, color.Bold)
	title.Fprintln(w, "=== tinyhttpd ===")
	fmt.Fprintf(w, "listening on %s\n", color.CyanString("http://%s", addr))
	fmt.Fprintf(w, "static root  %s\n", color.CyanString("%s", static))
}
