package blob

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore() *Store {
	return New("mem://localhost/juris-" + uuid.NewString())
}

func TestDocumentPath(t *testing.T) {
	assert.Equal(t, "users/u1/sessions/s1/documents/d1/lease.pdf", DocumentPath("u1", "s1", "d1", "lease.pdf"))
	assert.Equal(t, "users/u1/sessions/default/documents/d1/lease.pdf", DocumentPath("u1", "", "d1", "lease.pdf"))
	assert.Equal(t, "users/u1/sessions/s1/documents/d1/.._.._etc_passwd", DocumentPath("u1", "s1", "d1", "../../etc/passwd"))
	assert.Equal(t, "users/u1/sessions/s1/documents/d1", DocumentPrefix("u1", "s1", "d1"))
	assert.Equal(t, "users/u1/sessions/default/documents/d1", DocumentPrefix("u1", "", "d1"))
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	rel := DocumentPath("u1", "s1", "d1", "lease.txt")

	u, err := s.Put(ctx, rel, []byte("Monthly rent is $1,200."))
	require.NoError(t, err)
	assert.Contains(t, u, rel)

	data, err := s.Get(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, "Monthly rent is $1,200.", string(data))

	require.NoError(t, s.Delete(ctx, rel))
	_, err = s.Get(ctx, rel)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, rel))
}

func TestStore_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	for _, rel := range []string{
		DocumentPath("u1", "s1", "d1", "a.txt"),
		DocumentPath("u1", "s1", "d1", "a.ocr.txt"),
		DocumentPath("u1", "s1", "d2", "b.pdf"),
		DocumentPath("u1", "s2", "d1", "c.txt"),
	} {
		_, err := s.Put(ctx, rel, []byte("x"))
		require.NoError(t, err)
	}

	listed, err := s.List(ctx, DocumentPrefix("u1", "s1", "d1"))
	require.NoError(t, err)
	sort.Strings(listed)
	assert.Equal(t, []string{
		"users/u1/sessions/s1/documents/d1/a.ocr.txt",
		"users/u1/sessions/s1/documents/d1/a.txt",
	}, listed)

	listed, err = s.List(ctx, DocumentPrefix("u9", "s1", "d1"))
	require.NoError(t, err)
	assert.Empty(t, listed)
}
