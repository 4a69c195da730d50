// Command registrar runs the court-registry ingestion service: the
// discovery and reconciliation loops, the processing pipeline, and the
// operational HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
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
	"github.com/opencourt/registrar/internal/server"
	"github.com/opencourt/registrar/internal/storage"
	"github.com/opencourt/registrar/internal/telemetry"
	"github.com/opencourt/registrar/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// The handler starts at info and is retargeted once the config has
	// been loaded, so config errors themselves are always visible.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, level); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, level *slog.LevelVar) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level.Set(cfg.SlogLevel())

	slog.Info("registrar starting", "version", version, "port", cfg.Port, "log_level", cfg.LogLevel)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	metrics := telemetry.NewPipelineMetrics()

	// Connect to the metadata store and bring the schema up to date.
	// RunMigrations tracks applied files in schema_migrations and skips
	// duplicates, so errors here indicate real failures.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Raw document archive.
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

	// Event bus. A broken broker never blocks ingestion, so a failed
	// Kafka connection degrades to the noop publisher.
	var publisher bus.Publisher = bus.NoopPublisher{}
	if cfg.KafkaEnabled {
		kafka, err := bus.NewKafkaPublisher(cfg.KafkaBootstrapServers, logger, metrics)
		if err != nil {
			logger.Warn("kafka unavailable, events disabled", "error", err)
		} else {
			publisher = kafka
			defer kafka.Close()
		}
	} else {
		logger.Info("event bus disabled")
	}

	fetcher := fetch.NewPool(fetch.Config{
		Workers:    cfg.FetcherWorkers,
		MaxRetries: cfg.FetcherMaxRetries,
		Timeout:    cfg.FetcherTimeout,
	}, blobStore, logger, metrics)

	parser := parse.New(logger, metrics)

	embedder, chunker, err := newEmbeddingStack(cfg, logger)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	coordinator := pipeline.New(db, fetcher, parser, embedder, chunker,
		publisher, cfg.ParserConfidenceThreshold, logger, metrics)

	discoverer := monitor.NewDiscoverer(cfg.RegistryBaseURL, cfg.FetcherTimeout,
		db, nil, nil, logger, metrics)
	reconciler := monitor.NewReconciler(db, cfg.FetcherTimeout,
		cfg.ReconciliationBatch, logger, metrics)

	runner := pipeline.NewRunner(coordinator, discoverer, reconciler,
		cfg.DiscoveryInterval, cfg.ReconciliationInterval, logger)
	go runner.Run(ctx)

	srv := server.New(server.Config{
		DB:           db,
		Backfiller:   runner,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("registrar shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("registrar stopped")
	return nil
}

// newEmbeddingStack creates the embedding provider and the token-bounded
// chunker. Without an API key the provider degrades to noop and documents
// are ingested without vectors.
func newEmbeddingStack(cfg config.Config, logger *slog.Logger) (embedding.Provider, *embedding.Chunker, error) {
	tokenizer, err := embedding.NewTiktokenTokenizer(cfg.EmbeddingModel)
	if err != nil {
		return nil, nil, fmt.Errorf("tokenizer: %w", err)
	}
	chunker := embedding.NewChunker(tokenizer, cfg.EmbeddingChunkSize)

	if cfg.OpenAIAPIKey == "" {
		logger.Warn("no OPENAI_API_KEY, embeddings disabled")
		return embedding.NewNoopProvider(model.EmbeddingDimensions), chunker, nil
	}

	logger.Info("embedding provider: openai",
		"model", cfg.EmbeddingModel, "dimensions", model.EmbeddingDimensions)
	return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingBatchSize), chunker, nil
}
