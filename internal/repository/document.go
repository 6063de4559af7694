package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/pagination"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `d.id, d.name, d.storage_path, d.content_type, d.size_bytes, d.line_count, d.char_count,
	(SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id), d.created_at, d.updated_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

// Upsert inserts a document or updates every field except created_at.
func (r *DocumentRepository) Upsert(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, name, storage_path, content_type, size_bytes, line_count, char_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			storage_path = EXCLUDED.storage_path,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			line_count = EXCLUDED.line_count,
			char_count = EXCLUDED.char_count,
			updated_at = EXCLUDED.updated_at`,
		d.ID, d.Name, d.StoragePath, d.ContentType, d.SizeBytes, d.LineCount, d.CharCount, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if !validID(id) {
		return nil, domain.ErrDocumentNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListWithCursor lists documents newest first using keyset pagination on
// (created_at, id).
func (r *DocumentRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.DocumentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil && !validID(cursor.LastID) {
		return nil, domain.ErrInvalidCursor
	}

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents d
			 WHERE (d.created_at, d.id) < ($1, $2)
			 ORDER BY d.created_at DESC, d.id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents d
			 ORDER BY d.created_at DESC, d.id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}

	items, nextCursor, hasMore := pagination.Trim(items, limit, func(d *domain.Document) (string, time.Time) {
		return d.ID, d.CreatedAt
	})

	return &service.DocumentPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListAll lists every document, oldest first.
func (r *DocumentRepository) ListAll(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx, `SELECT `+documentColumns+` FROM documents d ORDER BY d.created_at, d.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

// Delete removes a document. Its chunks and their vectors go with it.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrDocumentNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// LockForWrite takes a transaction-scoped advisory lock on the document id.
// It must run inside a transaction.
func (r *DocumentRepository) LockForWrite(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('document:' || $1::text))`, id)
	return err
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	if err := row.Scan(&d.ID, &d.Name, &d.StoragePath, &d.ContentType, &d.SizeBytes, &d.LineCount, &d.CharCount, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var results []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

var _ service.DocumentRepositoryInterface = (*DocumentRepository)(nil)
