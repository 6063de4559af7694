package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/pagination"
	"github.com/cloo-solutions/citadoc/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Upsert(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
	ListAll(ctx context.Context) ([]*domain.Document, error)
	Delete(ctx context.Context, id string) error
	LockForWrite(ctx context.Context, id string) error
}

type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// ChunkRepositoryInterface defines the repository interface for chunk persistence
type ChunkRepositoryInterface interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// FileStore keeps the original uploaded files.
type FileStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader, contentType string) (string, error)
}

// IngestConfig bounds uploads and provider calls made during ingestion.
type IngestConfig struct {
	MaxFileSize      int64
	EmbedConcurrency int
	ProviderTimeout  time.Duration
}

// DefaultIngestConfig provides sane defaults for ingestion.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		MaxFileSize:      50 << 20,
		EmbedConcurrency: 4,
		ProviderTimeout:  60 * time.Second,
	}
}

// IngestService runs the write path: extract, chunk, embed and index.
type IngestService struct {
	docRepo   DocumentRepositoryInterface
	chunkRepo ChunkRepositoryInterface
	txRunner  TxRunner
	store     FileStore
	extractor TextExtractor
	chunker   *Chunker
	embedder  EmbeddingClient
	cfg       IngestConfig
	locks     *KeyedMutex
	uuidGen   UUIDGenerator
}

// NewIngestService creates a new IngestService instance
func NewIngestService(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	txRunner TxRunner,
	store FileStore,
	extractor TextExtractor,
	chunker *Chunker,
	embedder EmbeddingClient,
	cfg IngestConfig,
) *IngestService {
	return NewIngestServiceWithUUIDGen(docRepo, chunkRepo, txRunner, store, extractor, chunker, embedder, cfg, &DefaultUUIDGenerator{})
}

// NewIngestServiceWithUUIDGen creates a new IngestService with custom UUID generator (for testing)
func NewIngestServiceWithUUIDGen(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	txRunner TxRunner,
	store FileStore,
	extractor TextExtractor,
	chunker *Chunker,
	embedder EmbeddingClient,
	cfg IngestConfig,
	uuidGen UUIDGenerator,
) *IngestService {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 1
	}
	return &IngestService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		txRunner:  txRunner,
		store:     store,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		cfg:       cfg,
		locks:     NewKeyedMutex(),
		uuidGen:   uuidGen,
	}
}

// UploadInput represents an uploaded file. Size is the declared size, or -1
// when unknown.
type UploadInput struct {
	FileName string
	Size     int64
	Body     io.Reader
}

// UploadResult describes an indexed document.
type UploadResult struct {
	Document   *domain.Document
	ChunkCount int
}

type ListDocumentsInput struct {
	Cursor string
	Limit  int
}

type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// Upload indexes a new document. Either the document, its stored file and all
// of its chunks exist afterwards, or none of them do.
func (s *IngestService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	docID := s.uuidGen.NewString()
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Upload", telemetry.SpanAttributes{
		DocumentID: docID,
		FileName:   input.FileName,
		Operation:  "upload",
	})
	defer span.End()

	result, err := s.ingest(ctx, docID, input, false)
	recordIngest(span, result, err)
	return result, err
}

// Replace re-indexes an existing document from a new file. Readers see either
// the old chunk set or the new one.
func (s *IngestService) Replace(ctx context.Context, docID string, input UploadInput) (*UploadResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Replace", telemetry.SpanAttributes{
		DocumentID: docID,
		FileName:   input.FileName,
		Operation:  "replace",
	})
	defer span.End()

	if _, err := s.docRepo.GetByID(ctx, docID); err != nil {
		return nil, err
	}
	result, err := s.ingest(ctx, docID, input, true)
	recordIngest(span, result, err)
	return result, err
}

func recordIngest(span *telemetry.Span, result *UploadResult, err error) {
	if err != nil {
		span.Fail(err)
		return
	}
	span.SetCount("chunk_count", result.ChunkCount)
}

func (s *IngestService) ingest(ctx context.Context, docID string, input UploadInput, replace bool) (*UploadResult, error) {
	name := filepath.Base(strings.TrimSpace(input.FileName))
	if name == "." || name == string(filepath.Separator) || input.Body == nil {
		return nil, fmt.Errorf("%w: file", domain.ErrMissingRequiredField)
	}
	contentType, err := domain.ContentTypeForFile(name)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxFileSize > 0 && input.Size > s.cfg.MaxFileSize {
		return nil, domain.ErrFileTooLarge
	}

	data, err := s.readLimited(input.Body)
	if err != nil {
		return nil, err
	}

	text, err := s.extractor.Extract(ctx, bytes.NewReader(data), contentType)
	if err != nil {
		if errors.Is(err, domain.ErrExtractionFailed) {
			return nil, err
		}
		return nil, domain.ErrExtractionFailed.WithCause(err)
	}

	chunks, err := s.buildChunks(ctx, docID, text)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	key := storageKey(docID, s.uuidGen.NewString(), name)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, domain.ErrStorageOperationFail.WithCause(err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          docID,
		Name:        name,
		StoragePath: key,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		LineCount:   LineCount(text),
		CharCount:   utf8.RuneCountInString(text),
		ChunkCount:  len(chunks),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var previous *domain.Document
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		docs := repos.Documents()
		if err := docs.LockForWrite(ctx, docID); err != nil {
			return err
		}
		if replace {
			existing, err := docs.GetByID(ctx, docID)
			if err != nil {
				return err
			}
			previous = existing
			doc.CreatedAt = existing.CreatedAt
		}
		if err := docs.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		if err := repos.Chunks().ReplaceChunks(ctx, docID, chunks); err != nil {
			return fmt.Errorf("failed to save chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		s.deleteStored(ctx, key)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, err
		}
		return nil, domain.ErrIndexWriteFailed.WithCause(err)
	}

	if previous != nil && previous.StoragePath != key {
		s.deleteStored(ctx, previous.StoragePath)
	}

	log.Printf("ingest: indexed document %s (%s): %d lines, %d chunks", docID, name, doc.LineCount, len(chunks))
	return &UploadResult{Document: doc, ChunkCount: len(chunks)}, nil
}

// Reindex re-extracts, re-chunks and re-embeds a stored document in place.
func (s *IngestService) Reindex(ctx context.Context, docID string) (*UploadResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Reindex", telemetry.SpanAttributes{
		DocumentID: docID,
		Operation:  "reindex",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	rc, err := s.store.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, domain.ErrStorageOperationFail.WithCause(err)
	}
	data, err := s.readLimited(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	text, err := s.extractor.Extract(ctx, bytes.NewReader(data), doc.ContentType)
	if err != nil {
		if errors.Is(err, domain.ErrExtractionFailed) {
			return nil, err
		}
		return nil, domain.ErrExtractionFailed.WithCause(err)
	}
	chunks, err := s.buildChunks(ctx, docID, text)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		docs := repos.Documents()
		if err := docs.LockForWrite(ctx, docID); err != nil {
			return err
		}
		current, err := docs.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		current.LineCount = LineCount(text)
		current.CharCount = utf8.RuneCountInString(text)
		current.UpdatedAt = time.Now().UTC()
		if err := docs.Upsert(ctx, current); err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		doc = current
		return repos.Chunks().ReplaceChunks(ctx, docID, chunks)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, err
		}
		return nil, domain.ErrIndexWriteFailed.WithCause(err)
	}

	doc.ChunkCount = len(chunks)
	return &UploadResult{Document: doc, ChunkCount: len(chunks)}, nil
}

// ReindexAll reindexes every document, continuing past individual failures.
// It returns the number of documents reindexed and the first error seen.
func (s *IngestService) ReindexAll(ctx context.Context) (int, error) {
	docs, err := s.docRepo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	var firstErr error
	done := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.Reindex(ctx, doc.ID); err != nil {
			log.Printf("reindex: document %s (%s) failed: %v", doc.ID, doc.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done++
	}
	return done, firstErr
}

// Get retrieves a document with its chunk count.
func (s *IngestService) Get(ctx context.Context, docID string) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Get", telemetry.SpanAttributes{
		DocumentID: docID,
		Operation:  "get",
	})
	defer span.End()

	return s.docRepo.GetByID(ctx, docID)
}

// List returns documents, most recently updated first.
func (s *IngestService) List(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.List", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.ErrInvalidCursor
	}

	result, err := s.docRepo.ListWithCursor(ctx, cursor, pageLimit(input.Limit))
	if err != nil {
		return nil, err
	}

	return &ListDocumentsOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// Chunks lists a document's chunks in index order.
func (s *IngestService) Chunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Chunks", telemetry.SpanAttributes{
		DocumentID: docID,
		Operation:  "chunks",
	})
	defer span.End()

	if _, err := s.docRepo.GetByID(ctx, docID); err != nil {
		return nil, err
	}
	return s.chunkRepo.ListByDocument(ctx, docID)
}

// DownloadURL returns a URL for the stored original file.
func (s *IngestService) DownloadURL(ctx context.Context, docID string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.DownloadURL", telemetry.SpanAttributes{
		DocumentID: docID,
		Operation:  "download",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return "", err
	}

	exists, err := s.store.Exists(ctx, doc.StoragePath)
	if err != nil {
		return "", domain.ErrStorageOperationFail.WithCause(err)
	}
	if !exists {
		return "", domain.ErrStoredFileNotFound
	}

	url, err := s.store.DownloadURL(ctx, doc.StoragePath)
	if err != nil {
		return "", domain.ErrStorageOperationFail.WithCause(err)
	}
	return url, nil
}

// Delete removes a document, its chunks and vectors, then its stored file.
func (s *IngestService) Delete(ctx context.Context, docID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Delete", telemetry.SpanAttributes{
		DocumentID: docID,
		Operation:  "delete",
	})
	defer span.End()

	unlock, err := s.locks.Lock(ctx, docID)
	if err != nil {
		return err
	}
	defer unlock()

	var storagePath string
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		docs := repos.Documents()
		if err := docs.LockForWrite(ctx, docID); err != nil {
			return err
		}
		doc, err := docs.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		storagePath = doc.StoragePath
		return docs.Delete(ctx, docID)
	})
	if err != nil {
		return err
	}

	s.deleteStored(ctx, storagePath)
	return nil
}

func (s *IngestService) readLimited(r io.Reader) ([]byte, error) {
	if s.cfg.MaxFileSize <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, domain.ErrFileTooLarge
	}
	return data, nil
}

func (s *IngestService) buildChunks(ctx context.Context, docID, text string) ([]domain.Chunk, error) {
	spans, err := s.chunker.Split(text)
	if err != nil {
		return nil, err
	}
	if s.embedder == nil {
		return nil, domain.ErrIndexWriteFailed.WithCause(errors.New("no embedding provider configured"))
	}

	chunks := make([]domain.Chunk, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)
	for i, sp := range spans {
		g.Go(func() error {
			callCtx, cancel := withTimeout(gctx, s.cfg.ProviderTimeout)
			defer cancel()

			embedding, err := s.embedder.GenerateEmbedding(callCtx, sp.Content)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", sp.Index, err)
			}
			chunks[i] = domain.Chunk{
				ID:           domain.ChunkID(docID, sp.Index),
				DocumentID:   docID,
				Index:        sp.Index,
				Content:      sp.Content,
				StartLine:    sp.StartLine,
				EndLine:      sp.EndLine,
				SectionTitle: sp.SectionTitle,
				MidSentence:  sp.MidSentence,
				Embedding:    embedding,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.ErrIndexWriteFailed.WithCause(err)
	}
	return chunks, nil
}

func (s *IngestService) deleteStored(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.Printf("ingest: failed to delete stored file %s: %v", key, err)
		telemetry.CaptureError(ctx, fmt.Errorf("orphaned stored file %s: %w", key, err))
	}
}

func storageKey(docID, version, name string) string {
	return fmt.Sprintf("documents/%s/%s/%s", docID, version, name)
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
