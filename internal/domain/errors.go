package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the broad failure classes; the transport layer maps
// these onto status codes.
var (
	ErrNotFound        = errors.New("not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidArgument = errors.New("invalid argument")
)

type ProjectNotFoundError struct{ ID string }

func (e *ProjectNotFoundError) Error() string { return fmt.Sprintf("project %s not found", e.ID) }
func (e *ProjectNotFoundError) Unwrap() error { return ErrNotFound }

type DocumentNotFoundError struct{ ID string }

func (e *DocumentNotFoundError) Error() string { return fmt.Sprintf("document %s not found", e.ID) }
func (e *DocumentNotFoundError) Unwrap() error { return ErrNotFound }

type ConversationNotFoundError struct{ ID string }

func (e *ConversationNotFoundError) Error() string {
	return fmt.Sprintf("conversation %s not found", e.ID)
}
func (e *ConversationNotFoundError) Unwrap() error { return ErrNotFound }

type ProjectAlreadyPublishedError struct{}

func (e *ProjectAlreadyPublishedError) Error() string { return "project is already published" }

type ProjectNotPublishedError struct{}

func (e *ProjectNotPublishedError) Error() string { return "project is not published" }

// InvalidDocumentStatusTransitionError is raised for any transition outside
// the document FSM.
type InvalidDocumentStatusTransitionError struct {
	From DocumentStatus
	To   DocumentStatus
}

func (e *InvalidDocumentStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid document status transition: %s -> %s", e.From, e.To)
}

type ProjectReindexInProgressError struct{ ID string }

func (e *ProjectReindexInProgressError) Error() string {
	return fmt.Sprintf("project %s is already reindexing", e.ID)
}

// EmbeddingError covers provider failures and dimension mismatches during
// embedding generation.
type EmbeddingError struct {
	Message string
	Cause   error
}

func (e *EmbeddingError) Error() string { return e.Message }
func (e *EmbeddingError) Unwrap() error { return e.Cause }

func NewEmbeddingError(format string, args ...interface{}) *EmbeddingError {
	return &EmbeddingError{Message: fmt.Sprintf(format, args...)}
}

// LLMError covers chat-completion provider failures.
type LLMError struct {
	Message string
	Cause   error
}

func (e *LLMError) Error() string { return e.Message }
func (e *LLMError) Unwrap() error { return e.Cause }

func NewLLMError(format string, args ...interface{}) *LLMError {
	return &LLMError{Message: fmt.Sprintf(format, args...)}
}

// DocumentProcessingError covers pipeline failures that are neither
// extraction nor embedding specific, such as empty content after sanitizing.
type DocumentProcessingError struct{ Message string }

func (e *DocumentProcessingError) Error() string { return e.Message }

func NewDocumentProcessingError(format string, args ...interface{}) *DocumentProcessingError {
	return &DocumentProcessingError{Message: fmt.Sprintf(format, args...)}
}

// ExtractionError covers unsupported formats and decode failures.
type ExtractionError struct {
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string { return e.Message }
func (e *ExtractionError) Unwrap() error { return e.Cause }

type InvalidProviderError struct{ Provider string }

func (e *InvalidProviderError) Error() string {
	return fmt.Sprintf("unknown model provider: %s", e.Provider)
}
func (e *InvalidProviderError) Unwrap() error { return ErrInvalidArgument }

type InvalidModelError struct {
	Provider string
	Model    string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("model %s is not allowed for provider %s", e.Model, e.Provider)
}
func (e *InvalidModelError) Unwrap() error { return ErrInvalidArgument }

type DocumentTooLargeError struct{ Size, Max int }

func (e *DocumentTooLargeError) Error() string {
	return fmt.Sprintf("document exceeds maximum allowed size (%d > %d)", e.Size, e.Max)
}

type InvalidDocumentTypeError struct{ Extension string }

func (e *InvalidDocumentTypeError) Error() string {
	return fmt.Sprintf("unsupported document type: %s", e.Extension)
}

type ProjectDocumentLimitReachedError struct{ Max int }

func (e *ProjectDocumentLimitReachedError) Error() string {
	return fmt.Sprintf("project has reached the maximum of %d documents", e.Max)
}

type WeakPasswordError struct{ Reason string }

func (e *WeakPasswordError) Error() string { return "weak password: " + e.Reason }

type MultipleActiveCredentialsError struct{ Provider string }

func (e *MultipleActiveCredentialsError) Error() string {
	return fmt.Sprintf("multiple active credentials for provider %s", e.Provider)
}
