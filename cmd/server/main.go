package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/colourskel/skeleton-server/internal/app"
	"github.com/colourskel/skeleton-server/internal/config"
	"github.com/colourskel/skeleton-server/internal/emitter"
	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/metrics"
	"github.com/colourskel/skeleton-server/internal/pipeline"
	"github.com/colourskel/skeleton-server/internal/recorder"
	"github.com/colourskel/skeleton-server/internal/webmonitor"
	"github.com/colourskel/skeleton-server/internal/webrtc"
)

var (
	// Command-line flags, applied over the config file when set
	configPath  = flag.String("config", "", "YAML config file (defaults when empty)")
	httpAddr    = flag.String("http", ":8080", "HTTP server address")
	metricsAddr = flag.String("metrics", ":9090", "Metrics server address")
	pprofAddr   = flag.String("pprof", ":6060", "pprof server address (empty disables)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
	scenario    = flag.String("scenario", "", "Simulated sensor scenario file (built-in when empty)")
	fps         = flag.Int("fps", 30, "Sensor frame rate")
	measure     = flag.String("measure", "ShoulderLeft,ElbowLeft", "Measured joint pair")
)

// Server runs one pipeline session and its display surfaces
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg        *config.Config
	metrics    *metrics.Metrics
	pipeline   *app.Pipeline
	webrtc     *webrtc.Server
	recorder   *recorder.Recorder
	emitter    *emitter.MQTTEmitter
	monitor    *webmonitor.Server
	httpServer *http.Server
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := app.InitLogging(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	logger.Info("Main", "Skeleton measurement server starting...")
	logger.Info("Main", "Log level: %s", level)

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	if err := srv.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}

	logger.Info("Main", "Server stopped")
}

// loadConfig reads the config file and applies explicitly set flags over it
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}

	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "metrics":
			cfg.Metrics.Addr = *metricsAddr
		case "pprof":
			cfg.Metrics.PprofAddr = *pprofAddr
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-color":
			cfg.Log.Color = *logColor
		case "scenario":
			cfg.Sensor.Scenario = *scenario
		case "fps":
			cfg.Sensor.FPS = *fps
		case "measure":
			a, b, err := config.ParseJointPair(*measure)
			if err != nil {
				flagErr = fmt.Errorf("-measure: %w", err)
				return
			}
			cfg.Measurement.JointA, cfg.Measurement.JointB = a, b
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewServer creates the session and every surface fed from it
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := metrics.New()

	p, err := app.Build(cfg, m)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	webrtcSrv := webrtc.NewServer(cfg.HTTP.STUNServers, cfg.HTTP.MaxClients, m)
	rec := recorder.NewRecorder(cfg.Recorder.Path, m)

	var em *emitter.MQTTEmitter
	if cfg.MQTT.Enabled {
		em = emitter.NewMQTTEmitter(cfg.MQTT, m)
	}

	monitor := webmonitor.NewServer(webmonitor.FromHTTPConfig(cfg.HTTP), p.Session.Surface(), webrtcSrv, rec)

	mux := http.NewServeMux()
	mux.Handle("/", corsMiddleware(monitor.Handler()))

	return &Server{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		metrics:  m,
		pipeline: p,
		webrtc:   webrtcSrv,
		recorder: rec,
		emitter:  em,
		monitor:  monitor,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start starts all server components
func (s *Server) Start() error {
	logger.Info("Main", "Starting skeleton server...")
	logger.Info("Main", "  HTTP server: %s", s.cfg.HTTP.Addr)
	logger.Info("Main", "  Metrics server: %s", s.cfg.Metrics.Addr)
	logger.Info("Main", "  pprof server: %s", s.cfg.Metrics.PprofAddr)
	logger.Info("Main", "  Recording path: %s", s.cfg.Recorder.Path)

	if s.emitter != nil {
		// Auto-reconnect keeps retrying in the background, so a broker that is
		// down at startup is not fatal
		if err := s.emitter.Connect(); err != nil {
			logger.Warn("Main", "MQTT unavailable: %v", err)
		}
	}

	if s.cfg.Recorder.AutoStart {
		if err := s.recorder.Start(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
	}

	if s.cfg.Metrics.PprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", s.cfg.Metrics.PprofAddr)
			if err := http.ListenAndServe(s.cfg.Metrics.PprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	go func() {
		logger.Info("Main", "Starting metrics server on %s", s.cfg.Metrics.Addr)
		if err := s.metrics.StartServer(s.cfg.Metrics.Addr); err != nil {
			logger.Warn("Main", "Metrics server error: %v", err)
		}
	}()

	go func() {
		logger.Info("Main", "Starting HTTP server on %s", s.cfg.HTTP.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "HTTP server error: %v", err)
		}
	}()

	// Subscribe before the first tick so no status is missed
	id, statuses := s.pipeline.Session.Surface().Subscribe()
	s.wg.Add(1)
	go s.distribute(id, statuses)

	if err := s.pipeline.Session.Start(); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	logger.Info("Main", "Server started successfully")
	return nil
}

// distribute fans every published status out to the push surfaces (non-blocking)
func (s *Server) distribute(id int, statuses <-chan pipeline.Status) {
	defer s.wg.Done()
	defer s.pipeline.Session.Surface().Unsubscribe(id)

	for {
		select {
		case <-s.ctx.Done():
			return
		case st, ok := <-statuses:
			if !ok {
				return
			}
			if s.webrtc.GetClientCount() > 0 {
				if err := s.webrtc.Broadcast(st); err != nil {
					logger.Warn("Distribute", "WebRTC broadcast: %v", err)
				}
			}
			s.recorder.SendStatus(st)
			if s.emitter != nil {
				s.emitter.SendStatus(st)
			}
		}
	}
}

// corsMiddleware allows the monitor API to be used from other origins
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	// Stop ticks first so nothing is published into closed surfaces
	if err := s.pipeline.Session.Stop(); err != nil {
		logger.Warn("Main", "Session stop: %v", err)
	}

	s.cancel()
	s.wg.Wait()

	s.monitor.Close()
	if err := s.recorder.Close(); err != nil {
		logger.Warn("Main", "Recorder close: %v", err)
	}
	s.webrtc.Close()
	if s.emitter != nil {
		s.emitter.Disconnect()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
