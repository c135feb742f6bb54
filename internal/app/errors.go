package app

import (
	"errors"
	"fmt"

	"juris-rag/internal/embedding"
)

var (
	ErrValidation            = errors.New("invalid input")
	ErrExtraction            = errors.New("document extraction failed")
	ErrEmbeddingUnavailable  = errors.New("embedding service unavailable")
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	ErrStorage               = errors.New("storage failure")
	ErrDocumentNotFound      = errors.New("document not found")
)

// Kind classifies an error for callers that cannot use errors.Is, such as
// the HTTP layer and ChatResult.
type Kind string

const (
	KindNone                  Kind = ""
	KindValidation            Kind = "validation"
	KindExtraction            Kind = "extraction"
	KindEmbeddingUnavailable  Kind = "embedding_unavailable"
	KindGenerationUnavailable Kind = "generation_unavailable"
	KindStorage               Kind = "storage"
	KindNotFound              Kind = "not_found"
	KindInternal              Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, embedding.ErrUnavailable):
		return KindEmbeddingUnavailable
	case errors.Is(err, ErrGenerationUnavailable):
		return KindGenerationUnavailable
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrDocumentNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func wrap(kind error, op string, err error) error {
	return fmt.Errorf("%w: %s: %v", kind, op, err)
}
