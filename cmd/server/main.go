// Package main is the entry point for the run-of-show sync server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/api"
	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/config"
	"github.com/bbernstein/runofshow-go/internal/database"
	"github.com/bbernstein/runofshow-go/internal/database/repositories"
	"github.com/bbernstein/runofshow-go/internal/gateway"
	"github.com/bbernstein/runofshow-go/internal/logging"
	"github.com/bbernstein/runofshow-go/internal/metrics"
	"github.com/bbernstein/runofshow-go/internal/relay"
	"github.com/bbernstein/runofshow-go/internal/services/housekeeping"
	"github.com/bbernstein/runofshow-go/internal/services/presence"
	"github.com/bbernstein/runofshow-go/internal/services/pubsub"
	"github.com/bbernstein/runofshow-go/internal/services/timer"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var startTime = time.Now()

func main() {
	// Load .env file if present
	envErr := godotenv.Load()

	cfg, err := config.LoadWithFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	printBanner(cfg)

	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() { _ = database.Close() }()

	log.Info().Msg("Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	clk := clock.Real()
	m := metrics.New()

	broker := pubsub.New(clk)
	broker.SetDropCallback(m.ObserveDrop)

	publishers := []pubsub.Publisher{broker, m}
	var natsRelay *relay.Relay
	if cfg.NATSURL != "" {
		rcfg := relay.DefaultConfig()
		rcfg.URL = cfg.NATSURL
		rcfg.SubjectPrefix = cfg.NATSSubjectPrefix
		natsRelay, err = relay.Connect(rcfg, clk)
		if err != nil {
			// The relay is optional; rooms keep working without it.
			log.Error().Err(err).Msg("NATS relay unavailable")
		} else {
			publishers = append(publishers, natsRelay)
		}
	}
	publisher := pubsub.Tee(publishers...)

	svc := timer.NewService(repositories.NewEventStore(db), publisher, clk, timer.Config{
		DefaultDurationSeconds: cfg.DefaultDurationSeconds,
	})
	svc.SetObserver(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restored, err := svc.Restore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restore event state")
	}
	log.Info().Int("events", restored).Msg("Restored event state")

	reg := presence.New(clk)

	wsConfig := gateway.DefaultConnectionConfig()
	wsConfig.ServerTimeInterval = cfg.ServerTimeInterval
	wsConfig.MaxMessageSize = cfg.MaxMessageSize
	cm := gateway.NewConnectionManager(wsConfig, broker, svc, reg, clk)
	go cm.Start(ctx)

	keeper, err := housekeeping.New(housekeeping.Config{
		PruneSchedule:     cfg.HousekeepingSchedule,
		PresenceTTL:       cfg.PresenceTTL,
		AutoResetSchedule: cfg.AutoResetSchedule,
	}, reg, publisher, svc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure housekeeping")
	}
	keeper.Start()

	router := newRouter(cfg, svc, cm, reg, m)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", "http://localhost:"+cfg.Port).Msg("Server listening")
		log.Info().Str("url", "ws://localhost:"+cfg.Port+"/ws").Msg("WebSocket endpoint")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Cleanup in reverse order
	keeper.Stop(shutdownCtx)
	cancel()
	if natsRelay != nil {
		if err := natsRelay.Close(); err != nil {
			log.Error().Err(err).Msg("NATS relay close error")
		}
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
}

// newRouter wires middleware and every HTTP surface.
func newRouter(cfg *config.Config, svc *timer.Service, cm *gateway.ConnectionManager, reg *presence.Registry, m *metrics.Metrics) chi.Router {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logging.RequestLogger())
	router.Use(middleware.Recoverer)
	if m != nil {
		router.Use(metrics.RequestMiddleware(m))
	}

	// CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000", "http://localhost:4000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            false,
	})
	router.Use(corsMiddleware.Handler)

	// Routes
	router.Get("/health", healthCheckHandler)
	router.Handle("/ws", cm)
	router.Get("/ws/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cm.GetConnectionStats())
	})
	if m != nil && cfg.MetricsEnabled {
		router.Handle("/metrics", m.Handler(func() {
			stats := cm.GetConnectionStats()
			m.SetConnections(stats.TotalConnections)
			m.SetRooms(stats.ActiveEvents)
			m.SetRunningTimers(len(svc.RunningTimers()))
		}))
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		api.NewHandler(svc).Routes(r)
		if cfg.AdminEnabled() {
			api.NewAdminHandler(svc, reg, cm, cfg.AdminKey).Routes(r)
		}
	})

	return router
}

// healthCheckHandler returns the server health status.
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
		"uptime":    time.Since(startTime).Round(time.Second).String(),
	})
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  Run-of-Show Sync Server")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Admin:       %v\n", cfg.AdminEnabled())
	fmt.Printf("  NATS relay:  %v\n", cfg.NATSURL != "")
	fmt.Println("============================================")
}
