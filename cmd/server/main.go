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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/freelilwilly/polymarket-tracker/internal/config"
	"github.com/freelilwilly/polymarket-tracker/internal/ledger"
	"github.com/freelilwilly/polymarket-tracker/internal/metrics"
	"github.com/freelilwilly/polymarket-tracker/internal/store"
	"github.com/freelilwilly/polymarket-tracker/internal/tracker"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRACKER_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// --- Initialize store ---
	st, closeStore, err := store.Open(context.Background(), cfg.Store.DatabaseURL, cfg.Store.RedisURL, cfg.Store.CacheTTL)
	if err != nil {
		slog.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// --- Ledger engine ---
	engine := ledger.NewEngine(cfg.Engine, nil)
	slog.Info("ledger engine ready",
		"run_id", engine.RunID(),
		"starting_bankroll", cfg.Engine.StartingBankroll,
		"base_risk_pct", cfg.Engine.BaseRiskPct,
		"multiplier_range", fmt.Sprintf("%.2f-%.2f", cfg.Engine.MinMultiplier, cfg.Engine.MaxMultiplier),
	)

	// --- WebSocket hub ---
	wsHub := tracker.NewWSHub()
	go wsHub.Run()
	defer wsHub.Stop()

	// --- Tracker service ---
	svc := tracker.NewService(engine, st, tracker.PersistPolicy{
		Attempts: cfg.Persist.Attempts,
		Backoff:  cfg.Persist.Backoff,
	}, wsHub)

	// Persist the empty snapshot so readers see this run from the start.
	if err := svc.Flush(context.Background()); err != nil {
		slog.Warn("initial snapshot not persisted", "err", err)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"copy-tracker"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// The WebSocket route must not sit behind a request timeout.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", wsHub.HandleWS)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("copy-tracker listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down copy-tracker...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if n := svc.Pending(); n > 0 {
		if err := svc.Flush(ctx); err != nil {
			slog.Error("final flush failed", "pending_audit", n, "err", err)
		}
	}
	fmt.Println("copy-tracker stopped")
}
