package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/pagination"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	if !validID(id) {
		return nil, domain.ErrConversationNotFound
	}
	var c domain.Conversation
	err := r.db.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

// LockForUpdate row-locks the conversation until the surrounding transaction
// ends.
func (r *ConversationRepository) LockForUpdate(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrConversationNotFound
	}
	var locked string
	err := r.db.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrConversationNotFound
		}
		return err
	}
	return nil
}

// AppendMessage stores m and refreshes the conversation's updated_at. The
// stored created_at is at least one microsecond after the conversation's
// latest message, and m.CreatedAt is set to it.
func (r *ConversationRepository) AppendMessage(ctx context.Context, m *domain.Message) error {
	if !m.Role.IsValid() {
		return fmt.Errorf("%w: role %q", domain.ErrMissingRequiredField, m.Role)
	}

	var citations []byte
	if m.Role == domain.RoleAssistant {
		cs := m.Citations
		if cs == nil {
			cs = []domain.Citation{}
		}
		encoded, err := json.Marshal(cs)
		if err != nil {
			return fmt.Errorf("encode citations: %w", err)
		}
		citations = encoded
	}

	var createdAt time.Time
	err := r.db.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, citations, created_at)
		 VALUES ($1, $2, $3, $4, $5, GREATEST($6::timestamptz,
			(SELECT MAX(created_at) + INTERVAL '1 microsecond' FROM messages WHERE conversation_id = $2)))
		 RETURNING created_at`,
		m.ID, m.ConversationID, string(m.Role), m.Content, citations, m.CreatedAt,
	).Scan(&createdAt)
	if err != nil {
		return err
	}
	m.CreatedAt = createdAt

	tag, err := r.db.Exec(ctx,
		`UPDATE conversations SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`,
		m.ConversationID, createdAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// RecentMessages returns the last limit messages in chronological order.
func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, citations, created_at FROM (
			SELECT id, conversation_id, role, content, citations, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		 ) recent
		 ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

// Messages returns every message in chronological order.
func (r *ConversationRepository) Messages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, citations, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

// ListWithCursor lists conversations most recently active first.
func (r *ConversationRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.ConversationPageResult, error) {
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
			`SELECT id, title, created_at, updated_at
			 FROM conversations
			 WHERE (updated_at, id) < ($1, $2)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, title, created_at, updated_at
			 FROM conversations
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, nextCursor, hasMore := pagination.Trim(items, limit, func(c *domain.Conversation) (string, time.Time) {
		return c.ID, c.UpdatedAt
	})

	return &service.ConversationPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func scanMessageRows(rows pgx.Rows) ([]domain.Message, error) {
	results := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role string
		var citations []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &citations, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		if citations != nil {
			if err := json.Unmarshal(citations, &m.Citations); err != nil {
				return nil, fmt.Errorf("decode citations of message %s: %w", m.ID, err)
			}
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

var _ service.ConversationRepositoryInterface = (*ConversationRepository)(nil)
