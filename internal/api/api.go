// Package api provides the HTTP and WebSocket surface of HarvestFlow.
//
// It exposes RESTful session endpoints for the form-filling conversation and
// a realtime WebSocket endpoint with optional speech support. The API wires
// together the session store, the conversation engine and the two GenAI
// capabilities.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/harvestflow/harvestflow/internal/engine"
	"github.com/harvestflow/harvestflow/internal/genai"
	"github.com/harvestflow/harvestflow/internal/intent"
	"github.com/harvestflow/harvestflow/internal/schedule"
	"github.com/harvestflow/harvestflow/internal/speech"
	"github.com/harvestflow/harvestflow/internal/store"
	"github.com/harvestflow/harvestflow/internal/summary"
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr         string
	DBDriver     string
	ScheduleFile string
}

// Option configures Opts.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDBDriver selects the session store backend: memory, sqlite, postgres or redis.
func WithDBDriver(driver string) Option {
	return func(o *Opts) { o.DBDriver = driver }
}

// WithScheduleFile points at a JSON schedule override.
func WithScheduleFile(path string) Option {
	return func(o *Opts) { o.ScheduleFile = path }
}

// Server holds the API dependencies and routes.
type Server struct {
	st        store.Store
	eng       *engine.Engine
	schedules schedule.Config
	speech    *speech.Client // nil when speech is not configured
}

// NewServer creates a Server over explicit dependencies. speechClient may be
// nil; the realtime endpoint then runs text-only.
func NewServer(st store.Store, eng *engine.Engine, schedules schedule.Config, speechClient *speech.Client) *Server {
	return &Server{st: st, eng: eng, schedules: schedules, speech: speechClient}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("GET /sessions", s.listSessionsHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/turns", s.turnHandler)
	mux.HandleFunc("POST /sessions/{id}/reset", s.resetSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("GET /ws/{clientID}", s.realtimeHandler)
	return mux
}

// Run builds every module from its options and serves the API until the
// listener fails.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, speechOpts []speech.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	schedules := schedule.Default()
	if cfg.ScheduleFile != "" {
		loaded, err := schedule.LoadFile(cfg.ScheduleFile)
		if err != nil {
			return fmt.Errorf("failed to load schedule config: %w", err)
		}
		schedules = loaded
		slog.Info("api.Run: schedule override loaded", "file", cfg.ScheduleFile)
	}

	st, err := buildStore(cfg.DBDriver, storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer st.Close()

	gaClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	var speechClient *speech.Client
	if len(speechOpts) > 0 {
		speechClient, err = speech.NewClient(speechOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize speech client: %w", err)
		}
		slog.Info("api.Run: speech pipeline enabled")
	} else {
		slog.Info("api.Run: speech pipeline disabled, realtime endpoint is text-only")
	}

	eng := engine.New(schedules, intent.NewResolver(gaClient), summary.NewSummarizer(gaClient))
	server := NewServer(st, eng, schedules, speechClient)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HarvestFlow API running", "addr", cfg.Addr, "store", storeDriverName(cfg.DBDriver))
	return httpServer.ListenAndServe()
}

// buildStore selects and constructs the session store backend.
func buildStore(driver string, opts []store.Option) (store.Store, error) {
	switch storeDriverName(driver) {
	case "memory":
		return store.NewInMemoryStore(opts...), nil
	case "sqlite":
		return store.NewSQLiteStore(opts...)
	case "postgres":
		return store.NewPostgresStore(opts...)
	case "redis":
		return store.NewRedisStore(opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func storeDriverName(driver string) string {
	if driver == "" {
		return "memory"
	}
	return driver
}
