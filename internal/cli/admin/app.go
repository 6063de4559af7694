package admin

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/cloo-solutions/citadoc/internal/config"
	"github.com/cloo-solutions/citadoc/internal/database"
	"github.com/cloo-solutions/citadoc/internal/extract"
	"github.com/cloo-solutions/citadoc/internal/openai"
	"github.com/cloo-solutions/citadoc/internal/repository"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/cloo-solutions/citadoc/internal/storage"
	"github.com/cloo-solutions/citadoc/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// app holds the services shared by the daemon commands.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	ingest *service.IngestService
	chat   *service.ChatService
	// filesDir is set when uploads are kept on local disk.
	filesDir string
}

func addDatabaseFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", "migrations", "Directory containing the SQL migrations")
}

// newApp loads configuration, connects to the database and storage and
// builds the ingestion and chat services. The returned func releases them.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdownTelemetry := initTelemetry()

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		shutdownTelemetry()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("connected to database")
	cleanup := func() {
		pool.Close()
		shutdownTelemetry()
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := database.Migrate(cfg.DatabaseURL, dir); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a := &app{cfg: cfg, pool: pool}

	var store service.FileStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		store = s3Client
	} else {
		local, err := storage.NewLocalStore(cfg.StorageDir, "/files")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		log.Printf("storing uploads in %s", local.Root())
		a.filesDir = local.Root()
		store = local
	}

	var embedder service.EmbeddingClient
	var generator service.Generator
	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			ChatModel:           cfg.ChatModel,
			Temperature:         cfg.ChatTemperature,
			MaxTokens:           cfg.ChatMaxTokens,
		})
		embedder = client
		generator = client
	} else {
		log.Println("OPENAI_API_KEY not set: uploads and queries will fail until a provider is configured")
	}

	headingPattern := cfg.SectionHeadingPattern
	if headingPattern == "" {
		headingPattern = service.DefaultHeadingPattern
	}
	chunker, err := service.NewChunker(service.ChunkConfig{
		MaxChars:       cfg.ChunkSize,
		OverlapChars:   cfg.ChunkOverlap,
		HeadingPattern: headingPattern,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	convRepo := repository.NewConversationRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	a.ingest = service.NewIngestService(
		docRepo,
		chunkRepo,
		txRunner,
		store,
		extract.NewExtractor(),
		chunker,
		embedder,
		service.IngestConfig{
			MaxFileSize:      cfg.MaxFileSize,
			EmbedConcurrency: cfg.EmbedConcurrency,
			ProviderTimeout:  cfg.ProviderTimeout,
		},
	)

	a.chat = service.NewChatService(
		convRepo,
		txRunner,
		service.NewRetriever(embedder, chunkRepo, cfg.ProviderTimeout),
		service.NewContextAssembler(cfg.ConversationHistoryLength),
		generator,
		service.NewCitationResolver(service.SnippetConfig{
			MaxChars:  cfg.SnippetMaxChars,
			ScanChars: cfg.SnippetScanChars,
		}),
		service.ChatConfig{
			TopK:            cfg.RetrievalTopK,
			ProviderTimeout: cfg.ProviderTimeout,
		},
	)

	return a, cleanup, nil
}

// initTelemetry enables Sentry tracing when SENTRY_DSN is set.
func initTelemetry() func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return func() {}
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	// Default to 10% sampling in production, 100% in development
	sampleRate := 0.1
	if environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              dsn,
		Environment:      environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return func() {}
	}
	return shutdown
}
