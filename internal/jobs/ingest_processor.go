package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/service"
)

const (
	// MaxRetries is the maximum number of attempts for a file that keeps failing
	MaxRetries = 3

	// DefaultDebounce is how long a file must stay unchanged before it is ingested
	DefaultDebounce = 2 * time.Second
)

// DocumentIngester indexes files as documents
type DocumentIngester interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error)
	Replace(ctx context.Context, docID string, input service.UploadInput) (*service.UploadResult, error)
}

// indexedFile is what the processor remembers about an ingested path.
type indexedFile struct {
	DocumentID string    `json:"document_id"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
}

type pendingFile struct {
	lastEvent time.Time
	attempts  int
}

// IngestProcessor ingests files from a watched folder once they settle. The
// first ingest of a path uploads a new document; later changes replace it.
type IngestProcessor struct {
	ingester  DocumentIngester
	debounce  time.Duration
	stateFile string
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingFile
	known   map[string]indexedFile
}

// NewIngestProcessor creates an IngestProcessor. When stateFile is set the
// path to document mapping is loaded from and saved to it.
func NewIngestProcessor(ingester DocumentIngester, debounce time.Duration, stateFile string) (*IngestProcessor, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	p := &IngestProcessor{
		ingester:  ingester,
		debounce:  debounce,
		stateFile: stateFile,
		now:       time.Now,
		pending:   make(map[string]*pendingFile),
		known:     make(map[string]indexedFile),
	}
	if err := p.loadState(); err != nil {
		return nil, err
	}
	return p, nil
}

// Enqueue records a change to path. Unsupported files are ignored.
func (p *IngestProcessor) Enqueue(path string) {
	if !domain.IsSupportedFile(path) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.pending[path]; ok {
		f.lastEvent = p.now()
		return
	}
	p.pending[path] = &pendingFile{lastEvent: p.now()}
}

// Forget drops a removed path. The indexed document is kept.
func (p *IngestProcessor) Forget(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, path)
}

// DocumentID returns the document indexed from path, if any.
func (p *IngestProcessor) DocumentID(path string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.known[path]
	return f.DocumentID, ok
}

// ProcessJobs implements the JobProcessor interface
func (p *IngestProcessor) ProcessJobs(ctx context.Context) error {
	ready := p.takeReady()
	if len(ready) == 0 {
		return nil
	}

	log.Printf("Processing %d settled files", len(ready))

	for _, path := range ready {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processFile(ctx, path); err != nil {
			p.handleFailure(path, err)
		}
	}

	return p.saveState()
}

func (p *IngestProcessor) takeReady() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var ready []string
	for path, f := range p.pending {
		if now.Sub(f.lastEvent) >= p.debounce {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	return ready
}

func (p *IngestProcessor) processFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.Forget(path)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		p.Forget(path)
		return nil
	}

	input := service.UploadInput{
		FileName: filepath.Base(path),
		Size:     info.Size(),
		Body:     file,
	}

	p.mu.Lock()
	prev, known := p.known[path]
	p.mu.Unlock()
	if known && prev.Size == info.Size() && prev.ModTime.Equal(info.ModTime()) {
		p.Forget(path)
		return nil
	}

	docID := prev.DocumentID
	var result *service.UploadResult
	if known {
		result, err = p.ingester.Replace(ctx, docID, input)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			// Deleted through the API; index it again as a new document.
			if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
				return fmt.Errorf("failed to rewind file: %w", seekErr)
			}
			known = false
			result, err = p.ingester.Upload(ctx, input)
		}
	} else {
		result, err = p.ingester.Upload(ctx, input)
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.known[path] = indexedFile{
		DocumentID: result.Document.ID,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
	}
	delete(p.pending, path)
	p.mu.Unlock()

	verb := "Indexed"
	if known {
		verb = "Re-indexed"
	}
	log.Printf("%s %s as document %s (%d chunks)", verb, path, result.Document.ID, result.ChunkCount)
	return nil
}

func (p *IngestProcessor) handleFailure(path string, jobErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.pending[path]
	if !ok {
		return
	}
	f.attempts++

	// Validation failures will not succeed on retry.
	if isPermanent(jobErr) || f.attempts >= MaxRetries {
		log.Printf("Giving up on %s after %d attempts: %v", path, f.attempts, jobErr)
		delete(p.pending, path)
		return
	}

	log.Printf("Ingest of %s failed, will retry (attempt %d/%d): %v", path, f.attempts, MaxRetries, jobErr)
	f.lastEvent = p.now()
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidFileType) ||
		errors.Is(err, domain.ErrFileTooLarge) ||
		errors.Is(err, domain.ErrExtractionFailed) ||
		errors.Is(err, domain.ErrEmptyDocument)
}

func (p *IngestProcessor) loadState() error {
	if p.stateFile == "" {
		return nil
	}
	data, err := os.ReadFile(p.stateFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read watch state: %w", err)
	}
	if err := json.Unmarshal(data, &p.known); err != nil {
		return fmt.Errorf("failed to parse watch state: %w", err)
	}
	return nil
}

func (p *IngestProcessor) saveState() error {
	if p.stateFile == "" {
		return nil
	}
	p.mu.Lock()
	data, err := json.MarshalIndent(p.known, "", "  ")
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode watch state: %w", err)
	}
	if err := os.WriteFile(p.stateFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write watch state: %w", err)
	}
	return nil
}
