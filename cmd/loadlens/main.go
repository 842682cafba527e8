package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avast/retry-go/v5"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/analysisapi"
	"github.com/tinytelemetry/loadlens/internal/explorer"
	"github.com/tinytelemetry/loadlens/internal/httpserver"
	"github.com/tinytelemetry/loadlens/internal/tui"
	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var apiURL string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/loadlens/config.yml)")
	flag.StringVar(&apiURL, "api-url", "", "override the analysis service base URL")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("loadlens - microservice load explorer\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if apiURL != "" {
		cfg.APIURL = apiURL
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	logger, cleanupLogger := configureRuntimeLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanupLogger()

	sessionID := uuid.New().String()
	logger = logger.With(zap.String("session_id", sessionID))
	logger.Info("starting", zap.String("version", version), zap.String("api_url", cfg.APIURL))

	client, err := analysisapi.New(analysisapi.Config{
		BaseURL:           cfg.APIURL,
		RequestTimeout:    cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.RequestBurst,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerCooldown:   cfg.BreakerCooldown,
		SessionID:         sessionID,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.WaitForService > 0 {
		if err := waitForService(ctx, client, uint(cfg.WaitForService)); err != nil {
			return fmt.Errorf("analysis service at %s is not reachable: %w\nIs it running? Start the local one with: loadlens-mock", cfg.APIURL, err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := vizcache.NewMetrics(reg)

	spool, err := vizcache.NewSpool(afero.NewOsFs(), filepath.Join(cfg.SpoolDir, sessionID), metrics)
	if err != nil {
		return fmt.Errorf("creating image spool: %w", err)
	}
	defer func() {
		if err := spool.Remove(); err != nil {
			logger.Warn("spool cleanup failed", zap.Error(err))
		}
	}()

	cache := vizcache.NewCache(metrics, logger)
	orch := vizcache.NewOrchestrator(cache, vizcache.NewAPIFetcher(client, spool), metrics, logger)
	orch.FetchTimeout = cfg.RequestTimeout
	session := explorer.NewSession(client, orch, logger)
	defer session.Close()

	if cfg.DebugAddr != "" {
		debug := httpserver.NewServer(cache, httpserver.Options{
			Addr:      cfg.DebugAddr,
			SessionID: sessionID,
			Gatherer:  reg,
			Logger:    logger,
		})
		if err := debug.Start(); err != nil {
			logger.Warn("debug API disabled", zap.Error(err))
		} else {
			defer debug.Stop()
		}
	}

	explorerPage := tui.NewExplorerModel(tui.Deps{
		Session:        session,
		Commands:       client,
		Logger:         logger,
		Context:        ctx,
		CommandTimeout: cfg.RequestTimeout,
	})
	savedPage := tui.NewSavedPage(tui.SavedDeps{Source: client, Logger: logger, Context: ctx})
	app := tui.NewApp(explorerPage, tui.NewCachePage(cache), savedPage)

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}

	logger.Info("exiting")
	return nil
}

// waitForService polls /health with exponential backoff.
func waitForService(ctx context.Context, client *analysisapi.Client, attempts uint) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(retry.BackOffDelay),
	)
	return r.Do(func() error {
		return client.Health(ctx)
	})
}

// configureRuntimeLogger writes JSON logs to path. The terminal belongs to
// the TUI, so a logger that cannot open its file is a no-op.
func configureRuntimeLogger(path, level string) (*zap.Logger, func()) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return zap.NewNop(), func() {}
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}

	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop(), func() {}
	}
	return logger, func() {
		_ = logger.Sync()
	}
}
