package util

import "errors"

var (
	// ErrValidation marks a malformed or incomplete input record. The record
	// is rejected and logged; the batch continues.
	ErrValidation = errors.New("record failed validation")

	// ErrDuplicateID marks a re-submission of an existing paper id with
	// different content. Identical re-submissions are idempotent no-ops.
	ErrDuplicateID = errors.New("paper id already exists with different content")

	ErrPaperNotFound = errors.New("paper not found")

	// ErrExtractionFailed marks a corrupted or scanned document the external
	// extractor could not handle. Such papers are flagged for manual review
	// and excluded from the index.
	ErrExtractionFailed = errors.New("no extractable text found in document")

	// ErrDimensionMismatch is a config/programmer error: a vector whose
	// length does not match the index dimensionality. The index must reject
	// it before mutating any state.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	ErrEmbeddingService  = errors.New("embedding service unavailable")
	ErrGenerationService = errors.New("generation service unavailable")

	// ErrRetrievalTimeout is returned only when every retrieval source timed
	// out or failed; a single slow source degrades to the remaining one.
	ErrRetrievalTimeout = errors.New("all retrieval sources timed out")

	ErrSessionNotFound = errors.New("session not found")
)
