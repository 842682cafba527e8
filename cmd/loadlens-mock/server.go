package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/loadlens/internal/mockservice"
	"github.com/tinytelemetry/loadlens/internal/model"
)

// runServer serves the fake analysis API until SIGINT or SIGTERM.
func runServer(cfg mockConfig) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ds, source, err := loadDataset(cfg)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	svc := mockservice.New(ds, mockservice.Options{
		Latency: cfg.Latency,
		Jitter:  cfg.Jitter,
		Seed:    cfg.Seed,
		Logger:  logger,
	})

	if cfg.Presave {
		presaveLatest(svc, ds)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg, ln.Addr().String(), source, ds)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("stopped")
	return nil
}

func loadDataset(cfg mockConfig) (*mockservice.Dataset, string, error) {
	if cfg.Dataset == "" {
		return mockservice.Generate(mockservice.GenerateOptions{Seed: cfg.Seed}), fmt.Sprintf("generated (seed %d)", cfg.Seed), nil
	}
	ds, err := mockservice.LoadDatasetFile(afero.NewOsFs(), cfg.Dataset)
	if err != nil {
		return nil, "", err
	}
	return ds, shortenPath(cfg.Dataset), nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = lvl
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("mod", "mock")), nil
}

func printStartupBanner(cfg mockConfig, addr, source string, ds *mockservice.Dataset) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, "    "+cyan.Bold(true).Render("loadlens mock analysis service")+" "+dim.Render("v"+version))
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render("http://"+addr)))
	lines = append(lines, fmt.Sprintf("    %s  Latency        %s", check, dim.Render(fmt.Sprintf("%s ± %s", cfg.Latency, cfg.Jitter))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Data"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Dataset        %s", check, dim.Render(source)))
	lines = append(lines, fmt.Sprintf("    %s  Metrics        %s", check, dim.Render(strings.Join(ds.Metrics(), ", "))))
	lines = append(lines, fmt.Sprintf("    %s  Dates          %s", check, dim.Render(fmt.Sprintf("%d", len(ds.Dates())))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

// presaveLatest stores a default grouping of the latest snapshot of every
// metric so the saved groupings page has something to list.
func presaveLatest(svc *mockservice.Service, ds *mockservice.Dataset) {
	dates := ds.Dates()
	if len(dates) == 0 {
		return
	}
	date := dates[len(dates)-1]
	times := ds.Times()[date]
	if len(times) == 0 {
		return
	}
	tm := times[len(times)-1]
	for _, metric := range ds.Metrics() {
		svc.SaveGrouping(metric, date, tm, model.DefaultMaxGroupSize, model.DefaultStabilityThreshold)
	}
}
