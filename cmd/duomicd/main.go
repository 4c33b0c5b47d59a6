// Command duomicd relays a multi-channel shared-memory capture stream
// into independently addressable mono virtual microphones, managed at
// runtime over a Unix control socket. Run with --mock to use an in-memory
// audio host (no FIFOs created).
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/duomic/duomic-go/internal/api"
	"github.com/duomic/duomic-go/internal/config"
	"github.com/duomic/duomic-go/internal/control"
	"github.com/duomic/duomic-go/internal/events"
	"github.com/duomic/duomic-go/internal/host"
	"github.com/duomic/duomic-go/internal/models"
	"github.com/duomic/duomic-go/internal/registry"
	"github.com/duomic/duomic-go/internal/shm"
	"github.com/duomic/duomic-go/internal/zeroconf"
)

const version = "0.1.0"

func main() {
	var (
		socketPath = flag.String("socket", control.DefaultSocketPath, "control socket path")
		shmPath    = flag.String("shm", shm.DefaultPath, "shared audio segment path")
		cfgPath    = flag.String("config", config.DefaultPath, "device config file")
		addr       = flag.String("addr", ":8095", "HTTP status API listen address")
		fifoDir    = flag.String("fifo-dir", "/tmp/duomic", "directory for device FIFOs")
		mock       = flag.Bool("mock", false, "use the in-memory audio host (no FIFOs)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Shared segment reader; a missing segment is fine, the daemon
	// degrades to silence until the producer shows up on a restart.
	reader := shm.NewReader(*shmPath)
	reader.Connect()
	defer reader.Close()

	// Audio host
	var audioHost host.Host
	var pipeHost *host.Pipe
	if *mock {
		slog.Info("using mock audio host")
		audioHost = host.NewMock()
	} else {
		p, err := host.NewPipe(*fifoDir)
		if err != nil {
			slog.Error("pipe host initialization failed", "err", err)
			os.Exit(1)
		}
		slog.Info("using pipe audio host", "dir", *fifoDir)
		audioHost = p
		pipeHost = p
	}

	// Event bus
	bus := events.NewBus()

	// Device registry, seeded from the config file (or built-in defaults)
	reg := registry.New(audioHost, reader, bus)
	for _, d := range config.Load(*cfgPath) {
		if err := reg.Add(ctx, d.Name, d.Channel); err != nil {
			slog.Warn("could not add configured device", "name", d.Name, "channel", d.Channel, "err", err)
		}
	}

	// Config hot-reload
	watcher := config.NewWatcher(*cfgPath, func(devices []models.Device) {
		reg.Sync(context.Background(), devices)
	})
	defer watcher.Close()

	// Control server. A bind failure disables runtime device management,
	// which the operator needs to know about immediately.
	ctl := control.NewServer(*socketPath, reg)
	if err := ctl.Listen(); err != nil {
		slog.Error("control server failed to start", "err", err)
		os.Exit(1)
	}
	ctlDone := make(chan error, 1)
	go func() { ctlDone <- ctl.Serve(ctx) }()

	// Zeroconf mDNS registration for the status API
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "duomic"
	}
	port := 8095
	if parts := strings.SplitN(*addr, ":", 2); len(parts) == 2 && parts[1] != "" {
		if p, err := strconv.Atoi(parts[1]); err == nil {
			port = p
		}
	}
	zc := zeroconf.New(hostname, port, version)
	go func() {
		if err := zc.Start(ctx); err != nil {
			slog.Warn("zeroconf failed", "err", err)
		}
	}()

	// HTTP status API
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.NewRouter(reg, bus, version),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		slog.Info("duomicd listening", "addr", *addr, "socket", *socketPath, "shm", *shmPath, "mock", *mock)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status API error", "err", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Join the control server so the socket is unlinked before we exit.
	if err := <-ctlDone; err != nil {
		slog.Warn("control server shutdown error", "err", err)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("status API shutdown error", "err", err)
	}

	// Retract devices so no pull touches the reader after Close.
	if pipeHost != nil {
		pipeHost.Close()
	}

	slog.Info("shutdown complete")
}
