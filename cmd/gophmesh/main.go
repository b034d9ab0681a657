package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/gophmesh/internal/client/cli"
	"github.com/iudanet/gophmesh/internal/client/iocli"
	"github.com/iudanet/gophmesh/internal/config"
	"github.com/iudanet/gophmesh/internal/crypto"
	"github.com/iudanet/gophmesh/internal/db"
	"github.com/iudanet/gophmesh/internal/metrics"
	"github.com/iudanet/gophmesh/internal/transport"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	stdio := iocli.NewStdio()

	// Файл конфигурации читается до разбора флагов: его значения становятся их умолчаниями
	configPath := config.PathFromArgs(os.Args[1:])
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flag.String("config", configPath, "Path to YAML config file")
	showVersion := flag.Bool("version", false, "Show version information")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		return nil
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		os.Exit(1)
	}
	command := args[0]

	if !cli.NeedsDB(command) {
		return cli.New(stdio, nil).Run(context.Background(), command, args[1:])
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	connection, err := cfg.ResolveConnection(os.Getenv, stdio.ReadPassword)
	if err != nil {
		return err
	}
	conn, err := crypto.ParseConnectionString(connection)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := db.Options{
		Dir:           cfg.DataDir,
		Backend:       cfg.Backend,
		FlushInterval: cfg.FlushInterval,
		SyncInterval:  cfg.SyncInterval,
	}

	if cli.NeedsNetwork(command) {
		if cfg.Tracker == "" {
			return fmt.Errorf("command %s needs a tracker, set -tracker", command)
		}
		opts.Discovery = transport.NewWebsocketDiscovery(transport.WebsocketOptions{
			TrackerURL: cfg.Tracker,
			Feed:       conn.Feed,
			PeerID:     cfg.PeerID,
			Redial:     command == "serve",
		}, logger)
	}

	if command == "serve" && cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts.Metrics = metrics.New(reg)
		srv := startMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	database, err := db.Open(ctx, cfg.Name, connection, logger, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.Close(closeCtx); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	err = cli.New(stdio, database).Run(ctx, command, args[1:])
	if errors.Is(err, cli.ErrUnknownCommand) {
		cli.PrintUsage(stdio)
	}
	return err
}

func startMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func printVersion() {
	fmt.Printf("gophmesh peer\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
