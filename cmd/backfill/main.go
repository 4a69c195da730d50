// Command backfill runs a one-shot ingestion pass over a historical date
// range and exits. It shares the service configuration but starts no HTTP
// server and no periodic loops.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opencourt/registrar/internal/blob"
	"github.com/opencourt/registrar/internal/bus"
	"github.com/opencourt/registrar/internal/config"
	"github.com/opencourt/registrar/internal/embedding"
	"github.com/opencourt/registrar/internal/fetch"
	"github.com/opencourt/registrar/internal/model"
	"github.com/opencourt/registrar/internal/monitor"
	"github.com/opencourt/registrar/internal/parse"
	"github.com/opencourt/registrar/internal/pipeline"
	"github.com/opencourt/registrar/internal/storage"
	"github.com/opencourt/registrar/internal/telemetry"
	"github.com/opencourt/registrar/migrations"
)

func main() {
	fromFlag := flag.String("from", "", "start date, YYYY-MM-DD")
	toFlag := flag.String("to", "", "end date, YYYY-MM-DD (defaults to today)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *fromFlag, *toFlag); err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, fromStr, toStr string) error {
	if fromStr == "" {
		return fmt.Errorf("--from is required")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return fmt.Errorf("parse --from: %w", err)
	}
	to := time.Now().UTC().Truncate(24 * time.Hour)
	if toStr != "" {
		if to, err = time.Parse("2006-01-02", toStr); err != nil {
			return fmt.Errorf("parse --to: %w", err)
		}
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics := telemetry.NewPipelineMetrics()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	blobStore, err := blob.New(ctx, blob.Config{
		Type:      cfg.StorageType,
		Root:      cfg.StoragePath,
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("blob: %w", err)
	}

	var publisher bus.Publisher = bus.NoopPublisher{}
	if cfg.KafkaEnabled {
		kafka, err := bus.NewKafkaPublisher(cfg.KafkaBootstrapServers, logger, metrics)
		if err != nil {
			logger.Warn("kafka unavailable, events disabled", "error", err)
		} else {
			publisher = kafka
			defer kafka.Close()
		}
	}

	fetcher := fetch.NewPool(fetch.Config{
		Workers:    cfg.FetcherWorkers,
		MaxRetries: cfg.FetcherMaxRetries,
		Timeout:    cfg.FetcherTimeout,
	}, blobStore, logger, metrics)

	tokenizer, err := embedding.NewTiktokenTokenizer(cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("tokenizer: %w", err)
	}
	chunker := embedding.NewChunker(tokenizer, cfg.EmbeddingChunkSize)

	var embedder embedding.Provider = embedding.NewNoopProvider(model.EmbeddingDimensions)
	if cfg.OpenAIAPIKey != "" {
		embedder = embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingBatchSize)
	}

	coordinator := pipeline.New(db, fetcher, parse.New(logger, metrics), embedder,
		chunker, publisher, cfg.ParserConfidenceThreshold, logger, metrics)
	discoverer := monitor.NewDiscoverer(cfg.RegistryBaseURL, cfg.FetcherTimeout,
		db, nil, nil, logger, metrics)
	reconciler := monitor.NewReconciler(db, cfg.FetcherTimeout,
		cfg.ReconciliationBatch, logger, metrics)
	runner := pipeline.NewRunner(coordinator, discoverer, reconciler,
		cfg.DiscoveryInterval, cfg.ReconciliationInterval, logger)

	n, err := runner.Backfill(ctx, from, to)
	if err != nil {
		return err
	}
	logger.Info("backfill complete", "documents", n,
		"from", fromStr, "to", to.Format("2006-01-02"))
	return nil
}
