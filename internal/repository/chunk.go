package repository

import (
	"context"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository stores chunks together with their embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones in
// index order. Run it inside a transaction so readers never see a partial set.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		_, err := r.db.Exec(ctx,
			`INSERT INTO chunks
				(chunk_id, document_id, chunk_index, content, start_line, end_line, section_title, mid_sentence, embedding)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID,
			documentID,
			c.Index,
			c.Content,
			c.StartLine,
			c.EndLine,
			c.SectionTitle,
			c.MidSentence,
			pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// SearchByEmbedding returns the chunks closest to embedding by cosine
// distance. Equal distances keep insertion order.
func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		return []domain.RetrievedChunk{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.chunk_id, c.document_id, c.chunk_index, c.content, c.start_line, c.end_line, c.section_title, c.mid_sentence,
			d.name, c.embedding <=> $1 AS distance
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 ORDER BY distance, c.seq
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.RetrievedChunk{}
	for rows.Next() {
		var rc domain.RetrievedChunk
		if err := rows.Scan(
			&rc.ID, &rc.DocumentID, &rc.Index, &rc.Content, &rc.StartLine, &rc.EndLine, &rc.SectionTitle, &rc.MidSentence,
			&rc.DocumentName, &rc.Distance,
		); err != nil {
			return nil, err
		}
		results = append(results, rc)
	}
	return results, rows.Err()
}

// ListByDocument lists a document's chunks in index order, without vectors.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT chunk_id, document_id, chunk_index, content, start_line, end_line, section_title, mid_sentence
		 FROM chunks
		 WHERE document_id = $1
		 ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.Chunk{}
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.StartLine, &c.EndLine, &c.SectionTitle, &c.MidSentence); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

var (
	_ service.ChunkRepositoryInterface = (*ChunkRepository)(nil)
	_ service.ChunkSearcher            = (*ChunkRepository)(nil)
)
