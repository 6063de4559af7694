package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the dimension of text-embedding-3-small vectors
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel answers questions from retrieved context
	DefaultChatModel = openai.GPT4oMini
	// DefaultTemperature and DefaultMaxTokens bound a single answer
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrEmptyCompletion is returned when the model produced no answer
	ErrEmptyCompletion = errors.New("no completion returned")
)

// API defines the provider calls the client needs
type API interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
	CreateChatCompletion(ctx context.Context, system, user string) (string, error)
}

// Client wraps the OpenAI API client
type Client struct {
	api        API
	dimensions int
}

type OpenAIAdapter struct {
	client      *openai.Client
	model       openai.EmbeddingModel
	chatModel   string
	temperature float32
	maxTokens   int
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OpenAIAdapter{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		chatModel:   chatModel,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateChatCompletion sends one system and one user message and returns the
// first choice.
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
	Temperature         float32
	MaxTokens           int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey, Temperature: DefaultTemperature})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg),
		dimensions: dimensions,
	}
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	expected := c.dimensions
	if expected <= 0 {
		expected = DefaultEmbeddingDimensions
	}
	if len(embedding) != expected {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(embedding), expected)
	}

	return embedding, nil
}

// Generate produces an answer for the given prompt.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", ErrEmptyText
	}

	answer, err := c.api.CreateChatCompletion(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ErrEmptyCompletion
	}

	return answer, nil
}
