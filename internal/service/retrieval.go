package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/telemetry"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher finds the chunks nearest to a query embedding.
type ChunkSearcher interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.RetrievedChunk, error)
}

// Retriever turns a query into an ordered snapshot of the most similar chunks.
type Retriever struct {
	embedder EmbeddingClient
	index    ChunkSearcher
	timeout  time.Duration
}

// NewRetriever creates a Retriever. A zero timeout leaves provider calls
// bounded only by the caller's context.
func NewRetriever(embedder EmbeddingClient, index ChunkSearcher, timeout time.Duration) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		timeout:  timeout,
	}
}

// Retrieve embeds query and returns up to topK chunks, most similar first.
// Ties keep insertion order. Every failure is reported as
// domain.ErrRetrievalUnavailable; there is no partial result.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) (SourceList, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{
		Operation: "retrieve",
	})
	defer span.End()

	if topK <= 0 {
		return SourceList{}, fmt.Errorf("%w: top k must be positive", domain.ErrMissingRequiredField)
	}
	if r.embedder == nil || r.index == nil {
		return SourceList{}, domain.ErrRetrievalUnavailable
	}

	embedCtx, cancel := withTimeout(ctx, r.timeout)
	embedding, err := r.embedder.GenerateEmbedding(embedCtx, query)
	cancel()
	if err != nil {
		span.Fail(err)
		return SourceList{}, domain.ErrRetrievalUnavailable.WithCause(fmt.Errorf("embed query: %w", err))
	}

	searchCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	results, err := r.index.SearchByEmbedding(searchCtx, embedding, topK)
	if err != nil {
		span.Fail(err)
		return SourceList{}, domain.ErrRetrievalUnavailable.WithCause(fmt.Errorf("search index: %w", err))
	}
	if len(results) > topK {
		results = results[:topK]
	}

	span.SetCount("source_count", len(results))
	return NewSourceList(results), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
