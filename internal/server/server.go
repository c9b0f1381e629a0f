// Package server orchestrates all components: NATS client, registry resolver,
// invocation client, optional history database, dispatcher, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/provider-invoker/internal/config"
	"github.com/morezero/provider-invoker/pkg/bootstrap"
	"github.com/morezero/provider-invoker/pkg/commsutil"
	"github.com/morezero/provider-invoker/pkg/db"
	"github.com/morezero/provider-invoker/pkg/dispatcher"
	"github.com/morezero/provider-invoker/pkg/events"
	"github.com/morezero/provider-invoker/pkg/invoker"
	"github.com/morezero/provider-invoker/pkg/registry"
)

const logPrefix = "server:server"

// registryForServer is the resolver surface used by the HTTP handlers.
type registryForServer interface {
	Health() bool
	ListServices() ([]string, error)
}

// Server is the provider-invoker gateway orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	resolver   registryForServer
}

// HealthOutput is the body of GET /health.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks lists the individual dependency checks. Database is omitted
// when history is disabled.
type HealthChecks struct {
	Registry bool  `json:"registry"`
	Comms    bool  `json:"comms"`
	Database *bool `json:"database,omitempty"`
}

// ConfigureLogging installs the default slog text handler at the given level.
func ConfigureLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	ConfigureLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting provider-invoker", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Connect to the registry
	resolverParams, err := cfg.ResolverParams()
	if err != nil {
		return err
	}
	resolver, err := registry.NewResolver(resolverParams)
	if err != nil {
		return fmt.Errorf("%s - failed to create resolver: %w", logPrefix, err)
	}
	defer resolver.Close()

	static, err := cfg.StaticProviders()
	if err != nil {
		return err
	}
	if static.Len() > 0 {
		slog.Info(fmt.Sprintf("%s - %d static providers take precedence over the registry", logPrefix, static.Len()))
	}
	lookup := bootstrap.NewOverlay(static, resolver)
	s.resolver = lookup

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	defer nc.Close()
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Optional invocation history
	var recorder invoker.Recorder
	if cfg.HistoryEnabled() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		defer pool.Close()
		s.pool = pool

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrations(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		recorder = db.NewRepository(pool)
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, invocation history disabled", logPrefix))
	}

	// Step 4: Invocation client
	sessionOpts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.EventsEnabled {
		publisher = events.NewCommsPublisher(nc, nil)
	}
	client := invoker.NewClient(invoker.ClientParams{
		SessionOptions: sessionOpts,
		Publisher:      publisher,
		Recorder:       recorder,
	})

	// Step 5: Create dispatcher and subscribe
	disp := dispatcher.NewDispatcher(lookup, client)
	sub, err := nc.Subscribe(cfg.GatewaySubject, NewMsgHandler(ctx, disp, cfg.RequestTimeout))
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, cfg.GatewaySubject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, cfg.GatewaySubject))

	// Step 6: Start HTTP health server
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - provider-invoker is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	sub.Unsubscribe()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	nc.Drain()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", handleReady)
	mux.HandleFunc("/services", s.handleServices())
	return mux
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		h := s.health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *Server) handleServices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		services, err := s.resolver.ListServices()
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to list services: %v", logPrefix, err))
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if services == nil {
			services = []string{}
		}
		json.NewEncoder(w).Encode(map[string][]string{"services": services})
	}
}

// health runs every dependency check, bounded by ctx. A registry probe that
// outlives ctx counts as unhealthy.
func (s *Server) health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{Timestamp: time.Now().UTC().Format(time.RFC3339)}

	registryOK := make(chan bool, 1)
	go func() { registryOK <- s.resolver.Health() }()
	select {
	case ok := <-registryOK:
		out.Checks.Registry = ok
	case <-ctx.Done():
		slog.Warn(fmt.Sprintf("%s - registry health check timed out", logPrefix))
	}

	out.Checks.Comms = s.nc == nil || s.nc.IsConnected()

	if s.pool != nil {
		dbOK := s.pool.Ping(ctx) == nil
		out.Checks.Database = &dbOK
	}

	out.Status = "healthy"
	if !out.Checks.Registry || !out.Checks.Comms || (out.Checks.Database != nil && !*out.Checks.Database) {
		out.Status = "unhealthy"
	}
	return out
}
