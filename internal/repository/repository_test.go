//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const testDimensions = 1536

func setupPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

// axisVector returns a unit vector along axis.
func axisVector(axis int) []float32 {
	v := make([]float32, testDimensions)
	v[axis] = 1
	return v
}

func createDocument(ctx context.Context, t *testing.T, repo *DocumentRepository, name string, createdAt time.Time) *domain.Document {
	t.Helper()
	id := uuid.NewString()
	d := &domain.Document{
		ID:          id,
		Name:        name,
		StoragePath: "documents/" + id + "/v1/" + name,
		ContentType: "text/plain",
		SizeBytes:   42,
		LineCount:   3,
		CharCount:   40,
		CreatedAt:   createdAt.UTC().Truncate(time.Microsecond),
		UpdatedAt:   createdAt.UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Upsert(ctx, d))
	return d
}

func testChunk(docID string, idx int, embedding []float32, section *string) domain.Chunk {
	return domain.Chunk{
		ID:           domain.ChunkID(docID, idx),
		DocumentID:   docID,
		Index:        idx,
		Content:      "chunk content",
		StartLine:    idx*2 + 1,
		EndLine:      idx*2 + 2,
		SectionTitle: section,
		Embedding:    embedding,
	}
}
