package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"InferenceTelemetry/src/archive"
	"InferenceTelemetry/src/config"
	"InferenceTelemetry/src/logbridge"
	"InferenceTelemetry/src/monitor"
	"InferenceTelemetry/src/quiet"
	"InferenceTelemetry/src/sampler"
	"InferenceTelemetry/src/server"
	"InferenceTelemetry/src/telemetry"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("telemetry server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Engine log bridge: the native inference engine calls Handle through
	// its log hook; verbosity follows the flag/env toggle.
	bridge, err := logbridge.New()
	if err != nil {
		return fmt.Errorf("failed to init engine log bridge: %w", err)
	}
	bridge.SetVerbose(cfg.Verbose)
	defer bridge.Sync()

	// Discard handle for native model-load chatter, held for the process
	// lifetime and released at shutdown.
	supp, err := quiet.New()
	if err != nil {
		return fmt.Errorf("failed to open discard streams: %w", err)
	}
	defer supp.Close()

	exporter, err := telemetry.Default()
	if err != nil {
		return fmt.Errorf("failed to build instrument set: %w", err)
	}

	smp, err := sampler.New(int32(cfg.PID), sampler.Options{
		SMIBinary:  cfg.SMIBinary,
		SMITimeout: cfg.SMITimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to init resource sampler: %w", err)
	}
	defer smp.Close()

	tracker := monitor.NewTracker()
	mon := monitor.New(tracker, logger,
		monitor.WithInterval(cfg.MonitorInterval()),
		monitor.WithMaxDescription(cfg.MaxDescription))
	mon.Start()
	defer mon.Stop()

	var arc *archive.Writer
	if cfg.ArchiveEnabled {
		arc, err = archive.NewWriter(cfg.ArchiveDir, cfg.SessionUUID, archive.Format(cfg.ArchiveFormat))
		if err != nil {
			return fmt.Errorf("failed to create session archive: %w", err)
		}
	}

	srv := server.New(server.Options{
		Exporter: exporter,
		Sampler:  smp,
		Tracker:  tracker,
		Monitor:  mon,
		Archive:  arc,
		Gatherer: prometheus.DefaultGatherer,
		Service:  cfg.ServiceName,
		PID:      int32(cfg.PID),
		Log:      logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	logger.Info("telemetry server starting",
		zap.String("session", cfg.SessionUUID.String()),
		zap.String("listen", cfg.ListenAddr),
		zap.String("service", cfg.ServiceName),
		zap.Bool("gpu", smp.GPUAvailable()))

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}

	if arc != nil {
		if err := arc.Close(); err != nil {
			logger.Warn("failed to close session archive", zap.Error(err))
		} else if cfg.GenerateReport {
			generateReport(cfg, arc, logger)
		}
	}
	return nil
}

func generateReport(cfg *config.Config, arc *archive.Writer, logger *zap.Logger) {
	rows, err := archive.Load(arc.Path())
	if err != nil {
		logger.Warn("failed to load session archive", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		logger.Info("no archived requests, skipping report")
		return
	}

	reportPath := filepath.Join(cfg.ArchiveDir, fmt.Sprintf("report_%s.html", cfg.SessionUUID))
	if err := archive.GenerateReport(reportPath, cfg.SessionUUID.String(), rows); err != nil {
		logger.Warn("failed to generate report", zap.Error(err))
		return
	}
	logger.Info("latency report written", zap.String("path", reportPath))
}
