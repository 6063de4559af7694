package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Cursor represents a decoded pagination cursor
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor creates a URL-safe cursor from the last item ID and timestamp
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor and returns the last ID and timestamp
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:    parts[0],
		Timestamp: timestamp,
	}, nil
}

// Trim cuts a result fetched with limit+1 rows back to limit and, when a
// further row existed, returns the cursor of the last kept item. key gives
// the (id, timestamp) pair the listing is ordered by.
func Trim[T any](items []T, limit int, key func(T) (string, time.Time)) ([]T, string, bool) {
	if limit <= 0 || len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	id, ts := key(items[limit-1])
	return items, EncodeCursor(id, ts), true
}

// NewPage builds a PageResult, converting each item with fn
func NewPage[S, T any](items []S, cursor string, hasMore bool, fn func(S) T) PageResult[T] {
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return PageResult[T]{Items: out, Cursor: cursor, HasMore: hasMore}
}
