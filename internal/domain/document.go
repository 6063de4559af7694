package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Supported upload content types keyed by lower-case file extension.
var supportedExtensions = map[string]string{
	".pdf": "application/pdf",
	".txt": "text/plain",
}

// Document is an uploaded source file and the bookkeeping for its text.
type Document struct {
	ID          string
	Name        string
	StoragePath string
	ContentType string
	SizeBytes   int64
	LineCount   int
	CharCount   int
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentTypeForFile returns the content type for a supported file name.
func ContentTypeForFile(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	contentType, ok := supportedExtensions[ext]
	if !ok {
		return "", ErrInvalidFileType
	}
	return contentType, nil
}

// IsSupportedFile reports whether name has an accepted upload extension.
func IsSupportedFile(name string) bool {
	_, err := ContentTypeForFile(name)
	return err == nil
}

// Chunk is an addressable, line-numbered slice of a document's text.
// MidSentence marks content that begins inside a sentence.
type Chunk struct {
	ID           string
	DocumentID   string
	Index        int
	Content      string
	StartLine    int
	EndLine      int
	SectionTitle *string
	MidSentence  bool
	Embedding    []float32
}

// ChunkID builds the stable identifier of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}

// RetrievedChunk is a chunk returned by similarity search together with the
// name of its document.
type RetrievedChunk struct {
	Chunk
	DocumentName string
	Distance     float64
}
