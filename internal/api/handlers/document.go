package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/citadoc/internal/api"
	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/pagination"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/go-chi/chi/v5"
)

// uploadField is the multipart form field carrying the document.
const uploadField = "file"

type DocumentService interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error)
	Replace(ctx context.Context, docID string, input service.UploadInput) (*service.UploadResult, error)
	Get(ctx context.Context, docID string) (*domain.Document, error)
	List(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error)
	Chunks(ctx context.Context, docID string) ([]domain.Chunk, error)
	DownloadURL(ctx context.Context, docID string) (string, error)
	Delete(ctx context.Context, docID string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type UploadResponse struct {
	DocumentID     string `json:"document_id"`
	DocumentName   string `json:"document_name"`
	LineCount      int    `json:"line_count"`
	CharacterCount int    `json:"character_count"`
	ChunkCount     int    `json:"chunk_count"`
}

type DocumentResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	ContentType    string `json:"content_type"`
	SizeBytes      int64  `json:"size_bytes"`
	LineCount      int    `json:"line_count"`
	CharacterCount int    `json:"character_count"`
	ChunkCount     int    `json:"chunk_count"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type ChunkResponse struct {
	ID           string  `json:"id"`
	Index        int     `json:"index"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	SectionTitle *string `json:"section_title"`
	Content      string  `json:"content"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:             d.ID,
		Name:           d.Name,
		Path:           d.StoragePath,
		ContentType:    d.ContentType,
		SizeBytes:      d.SizeBytes,
		LineCount:      d.LineCount,
		CharacterCount: d.CharCount,
		ChunkCount:     d.ChunkCount,
		CreatedAt:      formatTime(d.CreatedAt),
		UpdatedAt:      formatTime(d.UpdatedAt),
	}
}

func uploadToResponse(result *service.UploadResult) *UploadResponse {
	return &UploadResponse{
		DocumentID:     result.Document.ID,
		DocumentName:   result.Document.Name,
		LineCount:      result.Document.LineCount,
		CharacterCount: result.Document.CharCount,
		ChunkCount:     result.ChunkCount,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.receive(w, r, func(input service.UploadInput) (*service.UploadResult, error) {
		return h.svc.Upload(r.Context(), input)
	}, http.StatusCreated)
}

func (h *DocumentHandler) Replace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	h.receive(w, r, func(input service.UploadInput) (*service.UploadResult, error) {
		return h.svc.Replace(r.Context(), id, input)
	}, http.StatusOK)
}

// receive streams the multipart file field into index without buffering the
// request to disk.
func (h *DocumentHandler) receive(w http.ResponseWriter, r *http.Request, index func(service.UploadInput) (*service.UploadResult, error), status int) {
	reader, err := r.MultipartReader()
	if err != nil {
		api.Error(w, http.StatusBadRequest, "multipart/form-data body required")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			api.Error(w, http.StatusBadRequest, "file is required")
			return
		}
		if err != nil {
			api.HandleError(w, err)
			return
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}
		if part.FileName() == "" {
			part.Close()
			api.Error(w, http.StatusBadRequest, "filename is required")
			return
		}

		result, err := index(service.UploadInput{
			FileName: part.FileName(),
			Size:     -1,
			Body:     part,
		})
		part.Close()
		if err != nil {
			api.HandleError(w, err)
			return
		}

		api.Success(w, status, uploadToResponse(result))
		return
	}
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	input := service.ListDocumentsInput{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  parseLimit(r),
	}

	output, err := h.svc.List(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, pagination.NewPage(output.Items, output.Cursor, output.HasMore, documentToResponse))
}

func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	chunks, err := h.svc.Chunks(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]ChunkResponse, len(chunks))
	for i, c := range chunks {
		responses[i] = ChunkResponse{
			ID:           c.ID,
			Index:        c.Index,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			SectionTitle: c.SectionTitle,
			Content:      c.Content,
		}
	}

	api.Success(w, http.StatusOK, responses)
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	url, err := h.svc.DownloadURL(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"download_url": url})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]interface{}{"id": id, "deleted": true})
}

func parseLimit(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}
