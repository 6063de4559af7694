package service

import "github.com/cloo-solutions/citadoc/internal/domain"

// SourceList is the numbered set of retrieved chunks for a single query.
// Numbering starts at 1 and is fixed when the list is built; prompt rendering
// and citation resolution both read from the same list.
type SourceList struct {
	items []domain.RetrievedChunk
}

// NewSourceList snapshots chunks in their retrieval order.
func NewSourceList(chunks []domain.RetrievedChunk) SourceList {
	items := make([]domain.RetrievedChunk, len(chunks))
	copy(items, chunks)
	return SourceList{items: items}
}

// Len returns the number of sources.
func (s SourceList) Len() int {
	return len(s.items)
}

// At returns the source numbered n.
func (s SourceList) At(n int) (domain.RetrievedChunk, bool) {
	if n < 1 || n > len(s.items) {
		return domain.RetrievedChunk{}, false
	}
	return s.items[n-1], true
}

// Items returns a copy of the sources in numbered order.
func (s SourceList) Items() []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, len(s.items))
	copy(out, s.items)
	return out
}
