//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/pagination"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewDocumentRepository(pool)
	chunks := NewChunkRepository(pool)

	created := time.Now().Add(-time.Hour)
	d := createDocument(ctx, t, repo, "handbook.txt", created)
	require.NoError(t, chunks.ReplaceChunks(ctx, d.ID, []domain.Chunk{
		testChunk(d.ID, 0, axisVector(0), nil),
		testChunk(d.ID, 1, axisVector(1), nil),
	}))

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "handbook.txt", got.Name)
	assert.Equal(t, d.StoragePath, got.StoragePath)
	assert.Equal(t, int64(42), got.SizeBytes)
	assert.Equal(t, 2, got.ChunkCount)
	assert.True(t, got.CreatedAt.Equal(d.CreatedAt))

	t.Run("upsert keeps created_at", func(t *testing.T) {
		updated := *d
		updated.Name = "handbook-v2.txt"
		updated.CreatedAt = time.Now().UTC()
		updated.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, repo.Upsert(ctx, &updated))

		got, err := repo.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, "handbook-v2.txt", got.Name)
		assert.True(t, got.CreatedAt.Equal(d.CreatedAt))
		assert.True(t, got.UpdatedAt.Equal(updated.UpdatedAt))
	})

	t.Run("unknown and malformed ids are not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

		_, err = repo.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}

func TestDocumentRepository_Delete(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewDocumentRepository(pool)
	chunks := NewChunkRepository(pool)

	d := createDocument(ctx, t, repo, "a.txt", time.Now())
	require.NoError(t, chunks.ReplaceChunks(ctx, d.ID, []domain.Chunk{testChunk(d.ID, 0, axisVector(0), nil)}))

	require.NoError(t, repo.Delete(ctx, d.ID))

	_, err := repo.GetByID(ctx, d.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	remaining, err := chunks.ListByDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	results, err := chunks.SearchByEmbedding(ctx, axisVector(0), 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.ErrorIs(t, repo.Delete(ctx, d.ID), domain.ErrDocumentNotFound)
}

func TestDocumentRepository_ListWithCursor(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewDocumentRepository(pool)

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		d := createDocument(ctx, t, repo, "doc.txt", base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, d.ID)
	}

	first, err := repo.ListWithCursor(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, ids[4], first.Items[0].ID)
	assert.Equal(t, ids[3], first.Items[1].ID)

	var seen []string
	page := first
	for {
		for _, d := range page.Items {
			seen = append(seen, d.ID)
		}
		if !page.HasMore {
			break
		}
		cursor, err := pagination.DecodeCursor(page.NextCursor)
		require.NoError(t, err)
		page, err = repo.ListWithCursor(ctx, cursor, 2)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)

	_, err = repo.ListWithCursor(ctx, &pagination.Cursor{LastID: "bogus", Timestamp: time.Now()}, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, ids[0], all[0].ID)
}

func TestDocumentRepository_LockForWrite(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	runner := NewTxRunner(pool)
	docID := uuid.NewString()

	locked := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- runner.WithTx(ctx, func(repos service.TxRepositories) error {
			if err := repos.Documents().LockForWrite(ctx, docID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- runner.WithTx(ctx, func(repos service.TxRepositories) error {
			return repos.Documents().LockForWrite(ctx, docID)
		})
	}()

	select {
	case <-secondDone:
		t.Fatal("second transaction acquired a held document lock")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-firstDone)
	select {
	case err := <-secondDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second transaction never acquired the lock")
	}
}
