package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError of the same kind.
// A wrapped kind (see WithCause) still matches its sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// WithCause returns a copy of the error carrying err as its cause.
func (e *DomainError) WithCause(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeUnprocessable   = "UNPROCESSABLE"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeUpstream        = "UPSTREAM_FAILURE"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// Upload errors
var (
	ErrInvalidFileType  = NewDomainError(ErrCodeValidation, "only .pdf and .txt files are supported")
	ErrFileTooLarge     = NewDomainError(ErrCodePayloadTooLarge, "file exceeds the maximum upload size")
	ErrExtractionFailed = NewDomainError(ErrCodeUnprocessable, "failed to extract text from document")
	ErrEmptyDocument    = NewDomainError(ErrCodeUnprocessable, "document contains no text")
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidCursor        = NewDomainError(ErrCodeValidation, "invalid cursor")
)

// Not found errors
var (
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrStoredFileNotFound   = NewDomainError(ErrCodeNotFound, "stored file not found")
)

// Provider and index errors
var (
	ErrRetrievalUnavailable    = NewDomainError(ErrCodeUnavailable, "retrieval is unavailable")
	ErrGenerationFailed        = NewDomainError(ErrCodeUpstream, "answer generation failed")
	ErrIndexWriteFailed        = NewDomainError(ErrCodeInternalError, "failed to write document index")
	ErrStorageOperationFail    = NewDomainError(ErrCodeInternalError, "storage operation failed")
	ErrConversationWriteFailed = NewDomainError(ErrCodeInternalError, "failed to save conversation")
)
