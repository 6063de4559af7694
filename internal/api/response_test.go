package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "value", result["key"])
}

func TestJSON_NilData(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, http.StatusCreated, map[string]string{"id": "123"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var result SuccessResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)

	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "123", data["id"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "invalid input")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var result ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "invalid input", result.Error)
}

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"invalid file type", domain.ErrInvalidFileType, http.StatusBadRequest},
		{"missing field", fmt.Errorf("%w: message", domain.ErrMissingRequiredField), http.StatusBadRequest},
		{"file too large", domain.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"max bytes reader", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"extraction failed", domain.ErrExtractionFailed.WithCause(errors.New("bad pdf")), http.StatusUnprocessableEntity},
		{"empty document", domain.ErrEmptyDocument, http.StatusUnprocessableEntity},
		{"document not found", domain.ErrDocumentNotFound, http.StatusNotFound},
		{"conversation not found", domain.ErrConversationNotFound, http.StatusNotFound},
		{"retrieval unavailable", domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable},
		{"generation failed", domain.ErrGenerationFailed, http.StatusBadGateway},
		{"index write failed", domain.ErrIndexWriteFailed, http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DomainErrorToHTTP(tt.err))
		})
	}
}

func TestHandleError_HidesServerSideCauses(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, domain.ErrIndexWriteFailed.WithCause(errors.New("pq: relation chunks does not exist")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.ErrIndexWriteFailed.Message, result.Error)
}

func TestHandleError_ClientErrorsKeepDetail(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, fmt.Errorf("%w: message", domain.ErrMissingRequiredField))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Contains(t, result.Error, "missing required field")
	assert.Contains(t, result.Error, "message")
}

func TestHandleError_UnknownError(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, errors.New("connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
