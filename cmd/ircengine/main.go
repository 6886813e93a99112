package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/matt0x6f/irc-engine/internal/config"
	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/irc"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/metrics"
	"github.com/matt0x6f/irc-engine/internal/security"
	"github.com/matt0x6f/irc-engine/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("c", "./config.yaml", "Path to configuration file")
	showVersion := flag.Bool("v", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(constants.Version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		logger.Log.Fatal().Err(err).Msg("irc-engine stopped")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, _ := logger.ParseLevel(cfg.Log.Level)
	logger.SetLevel(level)

	if err := cfg.ResolveSecrets(security.NewKeychain()); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to read passwords from the keychain")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if m, err = metrics.New(reg); err != nil {
			return err
		}
		srv := serveMetrics(cfg.Metrics.Listen, reg)
		defer srv.Close()
	}

	bus := events.NewEventBus()
	if cfg.Storage.Path != "" {
		st, err := storage.NewStorage(cfg.Storage.Path, cfg.Storage.BufferSize, cfg.Storage.FlushInterval)
		if err != nil {
			return err
		}
		defer st.Close()
		rec := storage.NewRecorder(st, cfg.Server.Host)
		rec.Attach(bus)
		defer rec.Detach(bus)
	}

	out := os.Stdout
	closed := make(chan struct{})
	var closeOnce sync.Once
	bus.Subscribe(events.Wildcard, events.Func(func(e events.Event) {
		if line, ok := formatEvent(e); ok {
			fmt.Fprintln(out, line)
		}
		if e.Type == irc.EventConnectionStatus && e.Data["status"] == irc.StatusDisconnected.String() {
			closeOnce.Do(func() { close(closed) })
		}
	}))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	params, err := cfg.ConnectionParams()
	if err != nil {
		return err
	}
	conn := irc.New(params, bus, irc.WithMetrics(m))
	ctx := context.Background()
	result, err := conn.Connect(ctx)
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
	case sig := <-sigCh:
		logger.Log.Info().Str("signal", sig.String()).Msg("Interrupted while connecting")
		return shutdown(ctx, conn, closed)
	}

	autojoin(ctx, conn, cfg.Rooms)

	lines := make(chan string)
	go readLines(os.Stdin, lines)
	sh := &shell{conn: conn, out: out}

	for {
		select {
		case sig := <-sigCh:
			logger.Log.Info().Str("signal", sig.String()).Msg("Received signal, disconnecting")
			return shutdown(ctx, conn, closed)

		case <-closed:
			return nil

		case line, ok := <-lines:
			if !ok {
				return shutdown(ctx, conn, closed)
			}
			quit, err := sh.execute(ctx, line)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return shutdown(ctx, conn, closed)
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		MaxRequestsInFlight: 10,
		Timeout:             10 * time.Second,
		EnableOpenMetrics:   true,
	})
	handler = promhttp.InstrumentMetricHandler(reg, handler)

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	logger.Log.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}

// autojoin joins the configured rooms and reports each outcome as it arrives
func autojoin(ctx context.Context, conn *irc.Connection, rooms []config.RoomConfig) {
	for _, room := range rooms {
		_, result, err := conn.JoinRoom(ctx, room.Name, room.Key)
		if err != nil {
			logger.Log.Warn().Err(err).Str("room", room.Name).Msg("Failed to join room")
			continue
		}
		go func(name string, result <-chan error) {
			if err := <-result; err != nil {
				logger.Log.Warn().Err(err).Str("room", name).Msg("Join failed")
			}
		}(room.Name, result)
	}
}

func shutdown(ctx context.Context, conn *irc.Connection, closed <-chan struct{}) error {
	if err := conn.Disconnect(ctx); err != nil {
		if errors.Is(err, irc.ErrNotConnected) {
			return nil
		}
		return err
	}
	select {
	case <-closed:
	case <-time.After(constants.QuitTimeout + time.Second):
		logger.Log.Warn().Msg("Timed out waiting for the connection to close")
	}
	return nil
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
