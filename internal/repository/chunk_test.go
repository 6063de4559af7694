//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRepository_SearchByEmbedding(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	docs := NewDocumentRepository(pool)
	repo := NewChunkRepository(pool)

	section := "2. Vacation Policy"
	handbook := createDocument(ctx, t, docs, "handbook.pdf", time.Now())
	remote := createDocument(ctx, t, docs, "remote.txt", time.Now())

	overlapped := testChunk(handbook.ID, 1, axisVector(1), nil)
	overlapped.MidSentence = true
	require.NoError(t, repo.ReplaceChunks(ctx, handbook.ID, []domain.Chunk{
		testChunk(handbook.ID, 0, axisVector(0), &section),
		overlapped,
	}))
	require.NoError(t, repo.ReplaceChunks(ctx, remote.ID, []domain.Chunk{
		testChunk(remote.ID, 0, axisVector(0), nil),
	}))

	t.Run("orders by distance then insertion", func(t *testing.T) {
		results, err := repo.SearchByEmbedding(ctx, axisVector(0), 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, domain.ChunkID(handbook.ID, 0), results[0].ID)
		assert.Equal(t, "handbook.pdf", results[0].DocumentName)
		require.NotNil(t, results[0].SectionTitle)
		assert.Equal(t, section, *results[0].SectionTitle)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)

		assert.Equal(t, domain.ChunkID(remote.ID, 0), results[1].ID)
		assert.Equal(t, "remote.txt", results[1].DocumentName)
		assert.Nil(t, results[1].SectionTitle)

		assert.Equal(t, domain.ChunkID(handbook.ID, 1), results[2].ID)
		assert.InDelta(t, 1, results[2].Distance, 1e-6)
		assert.False(t, results[0].MidSentence)
		assert.True(t, results[2].MidSentence)
	})

	t.Run("respects limit", func(t *testing.T) {
		results, err := repo.SearchByEmbedding(ctx, axisVector(1), 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, domain.ChunkID(handbook.ID, 1), results[0].ID)
	})

	t.Run("lists chunks of a document in order", func(t *testing.T) {
		chunks, err := repo.ListByDocument(ctx, handbook.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0, chunks[0].Index)
		assert.Equal(t, 1, chunks[0].StartLine)
		assert.Equal(t, 2, chunks[0].EndLine)
		assert.Equal(t, 1, chunks[1].Index)
		assert.True(t, chunks[1].MidSentence)
		assert.Nil(t, chunks[1].Embedding)
	})
}

func TestChunkRepository_ReplaceIsAtomic(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	docs := NewDocumentRepository(pool)
	repo := NewChunkRepository(pool)
	runner := NewTxRunner(pool)

	d := createDocument(ctx, t, docs, "policy.txt", time.Now())
	require.NoError(t, repo.ReplaceChunks(ctx, d.ID, []domain.Chunk{
		testChunk(d.ID, 0, axisVector(0), nil),
		testChunk(d.ID, 1, axisVector(1), nil),
	}))

	failing := errors.New("embedding write failed")
	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.Chunks().ReplaceChunks(ctx, d.ID, []domain.Chunk{testChunk(d.ID, 0, axisVector(2), nil)}); err != nil {
			return err
		}
		return failing
	})
	require.ErrorIs(t, err, failing)

	chunks, err := repo.ListByDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	t.Run("invalid line range is rejected", func(t *testing.T) {
		bad := testChunk(d.ID, 0, axisVector(0), nil)
		bad.StartLine, bad.EndLine = 5, 4
		err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
			return repos.Chunks().ReplaceChunks(ctx, d.ID, []domain.Chunk{bad})
		})
		assert.Error(t, err)

		chunks, err := repo.ListByDocument(ctx, d.ID)
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})
}
