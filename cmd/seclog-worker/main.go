// cmd/seclog-worker/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bhaveshbhatkar/AISecurityLog/internal/api"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/config"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/detection"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/embedding"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/explain"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/logging"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/metrics"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/rules"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/scoring"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/storage"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/upload"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/vectorindex"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	oneShotFile := flag.String("file", "", "process a single log file and exit")
	oneShotUpload := flag.String("upload-id", "", "upload id for -file mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog, _ := zap.NewProduction()
		bootLog.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.Server.LogLevel)
	if err != nil {
		bootLog, _ := zap.NewProduction()
		bootLog.Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	db, err := storage.NewPostgres(storage.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := db.Ping(pingCtx); err != nil {
		pingCancel()
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	if err := db.CreateTables(ctx); err != nil {
		logger.Fatal("failed to create tables", zap.Error(err))
	}

	index, err := vectorindex.Open(cfg.Index.Dir, cfg.Embedding.Dimension,
		cfg.Index.LockTimeout, logger)
	if err != nil {
		logger.Fatal("failed to open similarity index", zap.Error(err))
	}
	logger.Info("similarity index ready",
		zap.Int("vectors", index.Len()), zap.Int("dimension", index.Dim()))

	embedder := embedding.NewClient(embedding.Config{
		BaseURL:     cfg.Embedding.BaseURL,
		Model:       cfg.Embedding.Model,
		Dimension:   cfg.Embedding.Dimension,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		RateLimit:   cfg.Embedding.RateLimit,
	}, &http.Client{Timeout: cfg.Embedding.Timeout}, logger)

	explainer := explain.NewClient(explain.Config{
		BaseURL:   cfg.Explain.BaseURL,
		APIKey:    cfg.Explain.APIKey,
		Model:     cfg.Explain.Model,
		MaxTokens: cfg.Explain.MaxTokens,
	}, &http.Client{Timeout: cfg.Explain.Timeout}, logger)

	collector := metrics.NewCollector()

	processor := detection.NewProcessor(logger, db, index, embedder, explainer, collector,
		detection.Params{
			Scoring: scoring.Params{
				DistanceThreshold: cfg.Detection.DistanceThreshold,
				MLWeight:          cfg.Detection.MLWeight,
				AnomalyThreshold:  cfg.Detection.AnomalyThreshold,
			},
			Rules: rules.Thresholds{
				HighRate:      cfg.Detection.HighRateThreshold,
				LargeTransfer: cfg.Detection.LargeTransferBytes,
			},
			MinNeighbors: cfg.Detection.MinNeighbors,
		})

	// One-shot mode: score a single file without the queue.
	if *oneShotFile != "" {
		uploadID := *oneShotUpload
		if uploadID == "" {
			logger.Fatal("-upload-id is required with -file")
		}
		if err := processor.ProcessFile(ctx, uploadID, *oneShotFile); err != nil {
			logger.Fatal("processing failed", zap.Error(err))
		}
		return
	}

	queue := upload.NewQueue(upload.QueueConfig{}, logger)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		consumer := upload.NewConsumer(queue, processor.ProcessFile, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}
	logger.Info("queue consumers started", zap.Int("concurrency", cfg.Worker.Concurrency))

	if cfg.Worker.SpoolDir != "" {
		watcher := upload.NewWatcher(cfg.Worker.SpoolDir, queue, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("spool watcher stopped", zap.Error(err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Port, logger, collector, db, index)

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if err := server.Start(); err != nil {
		logger.Fatal("ops server failed", zap.Error(err))
	}

	wg.Wait()
}
