// Command salesd is the sales-event server from §6: a bare TCP listener,
// positional-argument bootstrap, and signal-based graceful shutdown.
//
// Grounded on the teacher's cmd/single/main.go: automaxprocs import for side
// effect, config load before anything else, a plain os/signal channel for
// SIGINT/SIGTERM, and an explicit shutdown sequence logged at each step.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/salesd/internal/auth"
	"github.com/adred-codev/salesd/internal/config"
	"github.com/adred-codev/salesd/internal/logging"
	"github.com/adred-codev/salesd/internal/metrics"
	"github.com/adred-codev/salesd/internal/notify"
	"github.com/adred-codev/salesd/internal/session"
	"github.com/adred-codev/salesd/internal/storage"
	"github.com/adred-codev/salesd/internal/sysmon"
	"github.com/adred-codev/salesd/internal/workerpool"
)

// serverArgs are the mandatory positional arguments from §6.
type serverArgs struct {
	port    int
	s       int
	d       int
	threads int
}

const (
	defaultPort    = 12345
	defaultS       = 10
	defaultD       = 365
	defaultThreads = 100

	minPort = 1024
	maxPort = 65535
)

func parseArgs(argv []string) (serverArgs, error) {
	args := serverArgs{port: defaultPort, s: defaultS, d: defaultD, threads: defaultThreads}

	if len(argv) > 4 {
		fmt.Fprintf(os.Stderr, "warning: ignoring %d extra argument(s)\n", len(argv)-4)
		argv = argv[:4]
	}

	fields := []*int{&args.port, &args.s, &args.d, &args.threads}
	names := []string{"port", "S", "D", "threads"}
	for i, raw := range argv {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return serverArgs{}, fmt.Errorf("%s must be a positive integer, got %q", names[i], raw)
		}
		*fields[i] = v
	}

	if args.port < minPort || args.port > maxPort {
		return serverArgs{}, fmt.Errorf("port must be in [%d,%d], got %d", minPort, maxPort, args.port)
	}
	if args.s <= 0 {
		return serverArgs{}, fmt.Errorf("S must be a positive integer, got %d", args.s)
	}
	if args.d <= 0 {
		return serverArgs{}, fmt.Errorf("D must be a positive integer, got %d", args.d)
	}
	if args.threads <= 0 {
		return serverArgs{}, fmt.Errorf("threads must be a positive integer, got %d", args.threads)
	}
	return args, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	args, err := parseArgs(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "salesd: %v\n", err)
		fmt.Fprintln(os.Stderr, "usage: salesd [port] [S] [D] [threads]  (defaults 12345 10 365 100)")
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "salesd: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)
	logger.Info().
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Int("port", args.port).Int("s", args.s).Int("d", args.d).Int("threads", args.threads).
		Msg("salesd: starting")

	storageEngine, err := storage.New(cfg.DataDir, args.s, args.d, logger)
	if err != nil {
		logger.Error().Err(err).Msg("salesd: failed to open storage engine")
		return 1
	}
	authStore, err := auth.Open(cfg.DataDir)
	if err != nil {
		logger.Error().Err(err).Msg("salesd: failed to open credential store")
		return 1
	}
	notifyCoord := notify.New()

	pool := workerpool.New(args.threads, logger)
	pool.Start()
	defer pool.Stop()

	m := metrics.New()

	handler := &session.Handler{
		Storage:            storageEngine,
		Notify:             notifyCoord,
		Auth:               authStore,
		Pool:               pool,
		Metrics:            m,
		Logger:             logger,
		Window:             args.d,
		ReadTimeout:        cfg.ReadTimeout,
		RateLimitPerSecond: 500,
		RateLimitBurst:     1000,
	}

	monCtx, cancelMon := context.WithCancel(context.Background())
	defer cancelMon()
	mon := sysmon.New(cfg.MetricsInterval, logger, m, pool, storageEngine, handler.ActiveConnections)
	go mon.Run(monCtx)

	addr := fmt.Sprintf(":%d", args.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("salesd: failed to listen")
		return 1
	}
	logger.Info().Str("addr", ln.Addr().String()).Msg("salesd: listening")

	go acceptLoop(ln, handler, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("salesd: shutting down")
	if err := ln.Close(); err != nil {
		logger.Warn().Err(err).Msg("salesd: error closing listener")
	}
	pool.Stop()
	logger.Info().Msg("salesd: shutdown complete")
	return 0
}

// acceptLoop runs until ln is closed, handing each connection to its own
// goroutine running session.Handler.Serve (§6 "one accept loop, one reader
// thread per accepted connection").
func acceptLoop(ln net.Listener, handler *session.Handler, logger zerolog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Expected on shutdown: Close() on the listener unblocks Accept
			// with a "use of closed network connection" error.
			logger.Info().Err(err).Msg("salesd: accept loop exiting")
			return
		}
		go handler.Serve(conn)
	}
}
