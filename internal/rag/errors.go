package rag

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every component of the retrieval engine.
// Wrap them with fmt.Errorf("%w") so callers can test with errors.Is.
var (
	// ErrExtractionFailure reports a document that yielded no text.
	ErrExtractionFailure = errors.New("no extractable text")

	// ErrDimensionMismatch reports a vector whose length disagrees with the
	// dimension established by the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyIndex reports a search against an index with zero entries.
	ErrEmptyIndex = errors.New("no documents indexed yet")

	// ErrCorruptIndex reports persisted index state that cannot be read.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrEmbeddingFailure reports a failed call to the Embedder.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrGenerationFailure reports a failed call to the Generator.
	ErrGenerationFailure = errors.New("generation failed")

	// ErrInvalidArgument reports a caller error such as k <= 0.
	ErrInvalidArgument = errors.New("invalid argument")
)

// IsRetryable reports whether err came from a collaborator call that may
// succeed when repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbeddingFailure) || errors.Is(err, ErrGenerationFailure)
}

// EmbeddingError tags err as an ErrEmbeddingFailure unless it already is one.
func EmbeddingError(err error) error {
	if err == nil || errors.Is(err, ErrEmbeddingFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingFailure, err)
}

// GenerationError tags err as an ErrGenerationFailure unless it already is one.
func GenerationError(err error) error {
	if err == nil || errors.Is(err, ErrGenerationFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGenerationFailure, err)
}
