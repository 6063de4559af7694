package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Uploaded originals go to S3 when configured, otherwise to StorageDir.
	StorageDir  string `envconfig:"STORAGE_DIR" default:"./data/uploads"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"citadoc-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string  `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	ChatTemperature     float32 `envconfig:"CHAT_TEMPERATURE" default:"0.7"`
	ChatMaxTokens       int     `envconfig:"CHAT_MAX_TOKENS" default:"1000"`

	ChunkSize             int    `envconfig:"CHUNK_SIZE" default:"900"`
	ChunkOverlap          int    `envconfig:"CHUNK_OVERLAP" default:"100"`
	SectionHeadingPattern string `envconfig:"SECTION_HEADING_PATTERN"`

	RetrievalTopK             int   `envconfig:"RETRIEVAL_TOP_K" default:"4"`
	ConversationHistoryLength int   `envconfig:"CONVERSATION_HISTORY_LENGTH" default:"5"`
	MaxFileSize               int64 `envconfig:"MAX_FILE_SIZE" default:"52428800"`
	SnippetMaxChars           int   `envconfig:"SNIPPET_MAX_CHARS" default:"250"`
	SnippetScanChars          int   `envconfig:"SNIPPET_SCAN_CHARS" default:"200"`

	ProviderTimeout  time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`
	EmbedConcurrency int           `envconfig:"EMBED_CONCURRENCY" default:"4"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CITADOC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings the pipeline cannot work with.
func (c *Config) Validate() error {
	var problems []string
	if c.ChunkSize <= 0 {
		problems = append(problems, "CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		problems = append(problems, "CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.RetrievalTopK <= 0 {
		problems = append(problems, "RETRIEVAL_TOP_K must be positive")
	}
	if c.ConversationHistoryLength < 0 {
		problems = append(problems, "CONVERSATION_HISTORY_LENGTH must not be negative")
	}
	if c.MaxFileSize <= 0 {
		problems = append(problems, "MAX_FILE_SIZE must be positive")
	}
	if c.SnippetMaxChars <= 3 {
		problems = append(problems, "SNIPPET_MAX_CHARS must be greater than 3")
	}
	if c.EmbeddingDimensions <= 0 {
		problems = append(problems, "EMBEDDING_DIMENSIONS must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
