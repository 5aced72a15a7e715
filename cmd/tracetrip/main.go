package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tracetrip/internal/api"
	"tracetrip/pkg/config"
	"tracetrip/pkg/delivery"
	"tracetrip/pkg/geofence"
	"tracetrip/pkg/logging"
	"tracetrip/pkg/nav"
	"tracetrip/pkg/netcheck"
	"tracetrip/pkg/position"
	"tracetrip/pkg/probe"
	"tracetrip/pkg/store"
	"tracetrip/pkg/tracker"
	"tracetrip/pkg/tracking"
	"tracetrip/pkg/version"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault("configs/tracetrip.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/tracetrip.yaml")
		return
	}

	if err := run(context.Background(), "configs/tracetrip.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// .env is optional, used for TRACETRIP_API_TOKEN in development
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("TraceTrip started", "version", version.Version)

	tr := tracker.New()
	oracle := netcheck.New(netcheck.ProbeAddr(cfg.Ingestion.BaseURL), 5*time.Second)
	queue := store.NewQueue(cfg.DB.Path, oracle)
	defer queue.Close()

	source, err := initSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize position source: %w", err)
	}
	defer source.Close()

	client := delivery.New(cfg.Ingestion.BaseURL, cfg.Ingestion.Token, time.Duration(cfg.Ingestion.Timeout), tr)

	// Startup Probes
	probes := []probe.Probe{
		probe.Storage(queue),
		probe.Position(source),
		probe.Ingestion(client.Endpoint()),
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	orch := tracking.New(&cfg.Tracking, queue, client, source,
		&position.StaticAuthorizer{Foreground: true, Background: true}, tr)
	orch.SetWakeSource(wakeOnSignal(ctx))

	// Arrivals persistence is best-effort: without a store the monitor
	// still emits crossing events.
	var arrivals store.ArrivalStore
	if st, err := queue.Store(); err == nil {
		arrivals = st
	} else {
		slog.Warn("Arrival persistence disabled", "error", err)
	}
	monitor := geofence.New(time.Duration(cfg.Geofence.WatchInterval), source, arrivals, tr)
	navigator := nav.New(&cfg.Nav, source, monitor)
	defer navigator.Stop()

	if err := orch.RestoreIfEnabled(ctx); err != nil {
		slog.Warn("Failed to restore tracking state", "error", err)
	}
	defer orch.Stop(context.Background())

	monitor.Start()
	defer monitor.Stop()

	stream := api.NewStreamHandler()
	defer stream.Close()
	go fanOutEvents(ctx, stream, orch, monitor, navigator)

	return runServer(ctx, cfg, orch, source, monitor, navigator, queue, tr, stream, arrivals)
}

func initSource(cfg *config.Config) (position.Source, error) {
	switch cfg.Position.Provider {
	case "serial":
		slog.Info("Using serial NMEA position source", "port", cfg.Position.Serial.Port, "baud", cfg.Position.Serial.BaudRate)
		return position.NewNMEASource(cfg.Position.Serial.Port, cfg.Position.Serial.BaudRate)
	case "mock", "":
		m := cfg.Position.Mock
		slog.Info("Using simulated position source", "lat", m.StartLat, "lon", m.StartLon)
		return position.NewMockSource(m.StartLat, m.StartLon, m.SpeedMps, m.HeadingDeg), nil
	default:
		return nil, fmt.Errorf("unknown position provider %q", cfg.Position.Provider)
	}
}

// wakeOnSignal turns SIGUSR1 into out-of-band tracking ticks, so an
// external scheduler can trigger a cycle between timer intervals.
func wakeOnSignal(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}
	}()
	return wake
}

// fanOutEvents forwards subsystem events to websocket clients.
func fanOutEvents(ctx context.Context, stream *api.StreamHandler, orch *tracking.Orchestrator, monitor *geofence.Monitor, navigator *nav.Navigator) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-orch.Events():
			stream.Broadcast("tracking", ev)
		case ev := <-monitor.Events():
			stream.Broadcast("geofence", ev)
		case g := <-navigator.Updates():
			stream.Broadcast("nav", g)
		}
	}
}

func runServer(ctx context.Context, cfg *config.Config, orch *tracking.Orchestrator, source position.Source, monitor *geofence.Monitor, navigator *nav.Navigator, queue *store.Queue, tr *tracker.Tracker, stream *api.StreamHandler, arrivals store.ArrivalStore) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewTrackingHandler(orch, source),
		api.NewGeofenceHandler(monitor, arrivals),
		api.NewNavHandler(navigator),
		api.NewStatsHandler(tr, queue),
		stream,
		shutdownFunc,
	)
	srv.Handler = loggingMiddleware(srv.Handler)

	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
