package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/prepbufr-etl/internal/adapter/errtable"
	"github.com/couchcryptid/prepbufr-etl/internal/adapter/file"
	httpadapter "github.com/couchcryptid/prepbufr-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/prepbufr-etl/internal/adapter/kafka"
	"github.com/couchcryptid/prepbufr-etl/internal/adapter/prepbufr"
	"github.com/couchcryptid/prepbufr-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/prepbufr-etl/internal/adapter/windborne"
	"github.com/couchcryptid/prepbufr-etl/internal/config"
	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
	"github.com/couchcryptid/prepbufr-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	tables, err := errtable.Load(cfg.ErrorTablePath)
	if err != nil {
		return fmt.Errorf("load error tables: %w", err)
	}

	bucketer, err := domain.NewBucketer(cfg.BucketHours, cfg.BucketAlignment)
	if err != nil {
		return err
	}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Error("close error", "error", err)
			}
		}
	}()

	var extractor pipeline.Extractor
	switch cfg.Source {
	case config.SourceWindBorne:
		extractor = windborne.NewClient(cfg, metrics, logger)
	case config.SourceKafka:
		reader := kafkaadapter.NewReader(cfg, metrics, logger)
		closers = append(closers, reader)
		extractor = reader
	default:
		extractor = file.NewSource(cfg.SourceFile, metrics, logger)
	}

	var loader pipeline.MultiLoader
	if cfg.OutputGridded {
		loader = append(loader, sqlite.NewWriter(cfg.OutputDir, metrics, logger))
	} else {
		loader = append(loader, prepbufr.NewWriter(cfg.OutputDir, metrics, logger))
	}
	if cfg.KafkaSinkEnabled() {
		writer := kafkaadapter.NewWriter(cfg, metrics, logger)
		closers = append(closers, writer)
		loader = append(loader, writer)
	}

	p := pipeline.New(extractor, pipeline.NewTransformer(tables), loader, logger, metrics, pipeline.Options{
		Bucketer: bucketer,
		Combined: cfg.Combined,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	logger.Info("starting pipeline",
		"source", cfg.Source,
		"output_dir", cfg.OutputDir,
		"gridded", cfg.OutputGridded,
		"kafka_sink", cfg.KafkaSinkEnabled(),
	)
	stats, runErr := p.Run(ctx)
	if runErr == nil {
		logger.Info("pipeline finished", "run_id", stats.RunID, "batches", len(stats.Batches), "reports", stats.Reports)
	}

	if srv != nil {
		// Keep health and metrics endpoints up until asked to stop.
		if runErr == nil {
			<-ctx.Done()
		}
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	return runErr
}
