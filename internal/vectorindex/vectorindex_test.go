package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 1}))
}

func TestFilterMatches(t *testing.T) {
	tags := Filter{UserID: "u1", DocumentID: "d1", SessionID: "s1"}

	assert.True(t, Filter{}.Matches(tags))
	assert.True(t, Filter{UserID: "u1"}.Matches(tags))
	assert.True(t, Filter{UserID: "u1", DocumentID: "d1", SessionID: "s1"}.Matches(tags))
	assert.False(t, Filter{UserID: "u2"}.Matches(tags))
	assert.False(t, Filter{UserID: "u1", DocumentID: "d2"}.Matches(tags))
	assert.False(t, Filter{SessionID: "s2"}.Matches(tags))
}
