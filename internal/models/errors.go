package models

import (
	"errors"
	"fmt"
)

// Sentinel failures surfaced to the boundary layer.
var (
	// ErrEmptyContent means the loader returned no usable text for the URL.
	ErrEmptyContent = errors.New("no usable text content at URL")

	// ErrSessionNotFound means Ask ran before any successful LoadURL for the id.
	ErrSessionNotFound = errors.New("session not found, load a URL first")
)

// FetchError wraps a network or HTTP failure while retrieving the URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EmbeddingError wraps an embedding provider failure during index build.
// The whole ingestion is aborted; no partial index is kept.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding chunks: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError wraps a chat model failure while answering a question.
// The session history is left untouched.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
