package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iudanet/gophmesh/internal/config"
	"github.com/iudanet/gophmesh/internal/tracker"
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
	configPath := config.PathFromArgs(os.Args[1:])
	cfg, err := config.LoadTracker(configPath)
	if err != nil {
		return err
	}

	// Parse flags
	flag.String("config", configPath, "Path to YAML config file")
	showVersion := flag.Bool("version", false, "Show version information")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := tracker.NewServer(tracker.Config{
		Addr:       cfg.Addr,
		Version:    Version,
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
	}, logger, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func printVersion() {
	fmt.Printf("gophmesh tracker\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
