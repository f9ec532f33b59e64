// =============================================================================
// RainyModel entry point
// =============================================================================
// Tiered LLM reverse proxy: HTTP API, health/discovery endpoints, Prometheus
// metrics, and a read-only analytics dashboard.
//
// Usage:
//
//	rainymodel serve                        # start the service
//	rainymodel serve --config routes.yaml   # use an explicit config file
//	rainymodel version                      # show version information
//	rainymodel health                       # probe a running instance
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orcest-ai/rainymodel/config"
)

// Version, BuildTime and GitCommit are overridden at build time via
// -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// serve
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the model_list/router_settings YAML file")
	fs.Parse(args)

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	path := *configPath
	if path == "" {
		path = config.ResolveConfigPath(filepath.Dir(wd))
	}

	doc, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config %s: %v\n", path, err)
		os.Exit(1)
	}

	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting RainyModel",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("config_path", path),
		zap.Int("deployments", len(doc.ModelList)),
	)

	shutdownTelemetry := initTelemetry(context.Background(), Version, logger)
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	srv := NewServer(doc, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()
	logger.Info("RainyModel stopped")
}

// =============================================================================
// health
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// version / help
// =============================================================================

func printVersion() {
	fmt.Printf("RainyModel %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`RainyModel - tiered LLM reverse proxy

Usage:
  rainymodel <command> [options]

Commands:
  serve     Start the RainyModel server
  version   Show version information
  health    Check a running server's health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to the model_list/router_settings YAML file

Examples:
  rainymodel serve
  rainymodel serve --config /etc/rainymodel/litellm_config.yaml
  rainymodel health --addr http://localhost:8080
  rainymodel version`)
}

// =============================================================================
// logging
// =============================================================================

// initLogger builds the process-wide zap.Logger: development (console,
// debug-level) when RAINYMODEL_DEBUG is set, production (JSON, info-level)
// otherwise.
func initLogger() *zap.Logger {
	if os.Getenv("RAINYMODEL_DEBUG") != "" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build(zap.AddCaller())
		if err == nil {
			return logger
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
