package domain

import "errors"

var (
	// ErrInvalidConfiguration indicates a component was constructed with
	// unusable settings. It is fatal at startup.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNoDocumentsFound indicates ingestion had nothing to index.
	// The existing index is left untouched.
	ErrNoDocumentsFound = errors.New("no documents found")

	// ErrEmbeddingUnavailable indicates the embedding service failed.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable indicates the language model failed.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrInvalidArgument indicates a programmer error such as a non-positive k.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch indicates vectors of different sizes were compared
	// or stored in the same index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
