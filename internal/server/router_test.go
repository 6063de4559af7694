package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/citadoc/internal/api/handlers"
	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error) {
	// Drain the body like the real service so request limits apply.
	if _, err := io.Copy(io.Discard, input.Body); err != nil {
		return nil, err
	}
	args := m.Called(ctx, input.FileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) Replace(ctx context.Context, docID string, input service.UploadInput) (*service.UploadResult, error) {
	args := m.Called(ctx, docID, input.FileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, docID string) (*domain.Document, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListDocumentsOutput), args.Error(1)
}

func (m *MockDocumentService) Chunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Chunk), args.Error(1)
}

func (m *MockDocumentService) DownloadURL(ctx context.Context, docID string) (string, error) {
	args := m.Called(ctx, docID)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, docID string) error {
	args := m.Called(ctx, docID)
	return args.Error(0)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Query(ctx context.Context, input service.QueryInput) (*service.QueryResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.QueryResult), args.Error(1)
}

func (m *MockChatService) ListConversations(ctx context.Context, input service.ListConversationsInput) (*service.ListConversationsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListConversationsOutput), args.Error(1)
}

func (m *MockChatService) Messages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func setupRouter(cfg RouterConfig) (http.Handler, *MockDocumentService, *MockChatService) {
	docSvc := new(MockDocumentService)
	chatSvc := new(MockChatService)
	cfg.DocumentHandler = handlers.NewDocumentHandler(docSvc)
	cfg.ChatHandler = handlers.NewChatHandler(chatSvc)
	return NewRouter(cfg), docSvc, chatSvc
}

func uploadBody(t *testing.T, fileName string, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte("a"), size))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _ := setupRouter(RouterConfig{
		HealthCheck: func(ctx context.Context) error { return nil },
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_HealthEndpoint_DatabaseDown(t *testing.T) {
	router, _, _ := setupRouter(RouterConfig{
		HealthCheck: func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"db":"unavailable"`)
}

func TestRouter_DocumentRoutes(t *testing.T) {
	router, docSvc, _ := setupRouter(RouterConfig{})

	now := time.Now().UTC()
	doc := &domain.Document{ID: "doc-1", Name: "handbook.txt", CreatedAt: now, UpdatedAt: now}
	docSvc.On("Get", mock.Anything, "doc-1").Return(doc, nil)
	docSvc.On("List", mock.Anything, service.ListDocumentsInput{Limit: 20}).Return(&service.ListDocumentsOutput{Items: []*domain.Document{doc}}, nil)
	docSvc.On("Chunks", mock.Anything, "doc-1").Return([]domain.Chunk{}, nil)
	docSvc.On("DownloadURL", mock.Anything, "doc-1").Return("/files/documents/doc-1/v/handbook.txt", nil)
	docSvc.On("Delete", mock.Anything, "doc-1").Return(nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/documents"},
		{http.MethodGet, "/documents/doc-1"},
		{http.MethodGet, "/documents/doc-1/chunks"},
		{http.MethodGet, "/documents/doc-1/download"},
		{http.MethodDelete, "/documents/doc-1"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}

	docSvc.AssertExpectations(t)
}

func TestRouter_Upload(t *testing.T) {
	router, docSvc, _ := setupRouter(RouterConfig{MaxUploadBytes: 1024})

	docSvc.On("Upload", mock.Anything, "handbook.txt").Return(&service.UploadResult{
		Document:   &domain.Document{ID: "doc-1", Name: "handbook.txt"},
		ChunkCount: 1,
	}, nil)

	body, contentType := uploadBody(t, "handbook.txt", 100)
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	docSvc.AssertExpectations(t)
}

func TestRouter_UploadTooLarge(t *testing.T) {
	router, docSvc, _ := setupRouter(RouterConfig{MaxUploadBytes: 10})

	body, contentType := uploadBody(t, "big.txt", int(multipartOverhead)+100)
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	docSvc.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestRouter_ChatRoutes(t *testing.T) {
	router, _, chatSvc := setupRouter(RouterConfig{})

	chatSvc.On("Query", mock.Anything, service.QueryInput{Message: "hello"}).Return(&service.QueryResult{ConversationID: "conv-1", Answer: "hi"}, nil)
	chatSvc.On("ListConversations", mock.Anything, service.ListConversationsInput{Limit: 20}).Return(&service.ListConversationsOutput{}, nil)
	chatSvc.On("Messages", mock.Anything, "conv-1").Return([]domain.Message{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat/query", strings.NewReader(`{"message":"hello"}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/conversations", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/conversations/conv-1/messages", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	chatSvc.AssertExpectations(t)
}

func TestRouter_CORS(t *testing.T) {
	router, _, _ := setupRouter(RouterConfig{CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/chat/query", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Files(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "documents", "doc-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "documents", "doc-1", "a.txt"), []byte("original"), 0o644))

	router, _, _ := setupRouter(RouterConfig{FilesDir: dir})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/documents/doc-1/a.txt", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "original", w.Body.String())

	noFiles, _, _ := setupRouter(RouterConfig{})
	w = httptest.NewRecorder()
	noFiles.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/documents/doc-1/a.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, corsOrigins(nil))
	assert.Equal(t, []string{"*"}, corsOrigins([]string{" "}))
	assert.Equal(t, []string{"https://a", "https://b"}, corsOrigins([]string{" https://a", "https://b "}))
}
