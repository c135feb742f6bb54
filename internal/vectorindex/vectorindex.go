// Package vectorindex defines the similarity index over chunk embeddings.
package vectorindex

import (
	"context"
	"errors"
	"math"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyVector       = errors.New("vector is empty")
	ErrMissingChunkID    = errors.New("chunk id is empty")
	ErrMissingDocumentID = errors.New("document id is empty")
)

// Filter scopes a search. Empty fields match anything.
type Filter struct {
	UserID     string
	DocumentID string
	SessionID  string
}

// Matches reports whether an entry stored with tags satisfies f.
func (f Filter) Matches(tags Filter) bool {
	if f.UserID != "" && f.UserID != tags.UserID {
		return false
	}
	if f.DocumentID != "" && f.DocumentID != tags.DocumentID {
		return false
	}
	if f.SessionID != "" && f.SessionID != tags.SessionID {
		return false
	}
	return true
}

type Match struct {
	ChunkID string
	Score   float64
}

// Index stores one vector per chunk id. Search results are ordered by cosine
// similarity descending, ties broken by first insertion. Vectors with zero
// norm are stored but never returned.
type Index interface {
	Upsert(ctx context.Context, chunkID string, vector []float32, tags Filter) error
	Search(ctx context.Context, query []float32, filter Filter, topK int) ([]Match, error)
	// DeleteByDocument removes every vector tagged with documentID and returns how many were removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Count(ctx context.Context) (int, error)
}

func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm
// or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
