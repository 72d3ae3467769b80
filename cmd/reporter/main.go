package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/freelilwilly/polymarket-tracker/internal/config"
	"github.com/freelilwilly/polymarket-tracker/internal/report"
	"github.com/freelilwilly/polymarket-tracker/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRACKER_CONFIG"), "path to YAML config file")
	serverURL := flag.String("server", os.Getenv("TRACKER_URL"), "read the summary from a running tracker instead of the database")
	once := flag.Bool("once", false, "emit a single report and exit")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var source report.SummarySource
	switch {
	case *serverURL != "":
		source = report.NewHTTPSource(*serverURL)
		slog.Info("reading summary from tracker", "url", *serverURL)
	case cfg.Store.DatabaseURL != "":
		st, closeStore, err := store.Open(ctx, cfg.Store.DatabaseURL, cfg.Store.RedisURL, cfg.Store.CacheTTL)
		if err != nil {
			slog.Error("store init failed", "err", err)
			os.Exit(1)
		}
		defer closeStore()
		source = st
	default:
		slog.Error("nothing to report on: set -server/TRACKER_URL or DATABASE_URL")
		os.Exit(1)
	}

	r := report.NewReporter(source, cfg.Report.Label, cfg.Report.WarnROIPct, cfg.ReportInterval(), logger)
	if *once {
		r.Emit(ctx)
		return
	}
	r.Run(ctx)
	slog.Info("reporter stopped")
}
