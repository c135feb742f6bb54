package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juris-rag/internal/model"
	"juris-rag/internal/vectorindex/memory"
)

var (
	vocabMu sync.Mutex
	vocab   = map[string]int{}
)

// wordEmbedder gives every distinct lower-cased word its own dimension.
type wordEmbedder struct {
	err error
}

func (e wordEmbedder) embed(text string) []float32 {
	vocabMu.Lock()
	defer vocabMu.Unlock()
	v := make([]float32, 256)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!$")
		id, ok := vocab[w]
		if !ok {
			id = len(vocab) % 256
			vocab[w] = id
		}
		v[id]++
	}
	return v
}

func (e wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.embed(text), nil
}

func makeChunks(user, doc string, texts ...string) []model.Chunk {
	chunks := make([]model.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = model.Chunk{
			ID:         fmt.Sprintf("%s-%d", doc, i),
			DocumentID: doc,
			UserID:     user,
			SessionID:  "s1",
			Filename:   doc + ".txt",
			Index:      i,
			Content:    text,
			Size:       len(text),
		}
	}
	return chunks
}

func indexChunks(t *testing.T, r *Retriever, chunks []model.Chunk) {
	t.Helper()
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vectors[i] = wordEmbedder{}.embed(c.Content)
	}
	require.NoError(t, r.Index(context.Background(), chunks, vectors))
}

func newRetriever(embedder QueryEmbedder) (*Retriever, *MemoryChunkStore) {
	store := NewMemoryChunkStore()
	return New(memory.New(), store, embedder, Config{MinScore: 0.1}), store
}

func TestRetrieve_OwnTextIsTopResult(t *testing.T) {
	r, _ := newRetriever(wordEmbedder{})
	chunks := makeChunks("u1", "lease",
		"Monthly rent is $1,200 due on the 1st.",
		"The security deposit is returned within thirty days.",
		"Either party may terminate for material breach.",
	)
	indexChunks(t, r, chunks)

	for _, c := range chunks {
		results, err := r.Retrieve(context.Background(), Query{Text: c.Content, UserID: "u1", DocumentID: "lease", TopK: 1})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, c.ID, results[0].Chunk.ID)
		assert.Equal(t, SourceVector, results[0].Source)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	}
}

func TestRetrieve_FilterIsolation(t *testing.T) {
	r, _ := newRetriever(wordEmbedder{})
	indexChunks(t, r, makeChunks("u1", "docA", "Monthly rent is due on the first day."))
	indexChunks(t, r, makeChunks("u1", "docB", "Monthly rent is due on the first day."))

	results, err := r.Retrieve(context.Background(), Query{Text: "monthly rent", UserID: "u1", DocumentID: "docB", TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "docB", results[0].Chunk.DocumentID)

	results, err = r.Retrieve(context.Background(), Query{Text: "monthly rent", UserID: "u2", TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_FallbackWhenIndexIsEmpty(t *testing.T) {
	r, store := newRetriever(wordEmbedder{})
	chunks := makeChunks("u1", "lease",
		"Tenant pays utilities.",
		"Pets are prohibited without written consent.",
		"Landlord maintains the roof.",
	)
	require.NoError(t, store.SaveBatch(context.Background(), chunks))

	results, err := r.Retrieve(context.Background(), Query{Text: "Are pets allowed?", UserID: "u1", DocumentID: "lease"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lease-1", results[0].Chunk.ID)
	assert.Equal(t, SourceKeyword, results[0].Source)
}

func TestRetrieve_FallbackWhenEmbeddingFails(t *testing.T) {
	r, store := newRetriever(wordEmbedder{err: errors.New("embedding service unavailable")})
	require.NoError(t, store.SaveBatch(context.Background(), makeChunks("u1", "lease", "Late fee of $50 applies.")))

	results, err := r.Retrieve(context.Background(), Query{Text: "late fee", UserID: "u1", DocumentID: "lease"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2.0, results[0].Score)
}

func TestRetrieve_FallbackRespectsOwner(t *testing.T) {
	r, store := newRetriever(wordEmbedder{})
	require.NoError(t, store.SaveBatch(context.Background(), makeChunks("u1", "lease", "Late fee of $50 applies.")))

	results, err := r.Retrieve(context.Background(), Query{Text: "late fee", UserID: "intruder", DocumentID: "lease"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_EmbeddingFailureWithoutDocumentScope(t *testing.T) {
	r, _ := newRetriever(wordEmbedder{err: errors.New("down")})

	_, err := r.Retrieve(context.Background(), Query{Text: "late fee", UserID: "u1"})
	assert.Error(t, err)
}

func TestRetrieve_NoOverlapYieldsNothing(t *testing.T) {
	r, _ := newRetriever(wordEmbedder{})
	indexChunks(t, r, makeChunks("u1", "zoo", "Zebras graze across savannah grassland."))

	results, err := r.Retrieve(context.Background(), Query{Text: "monthly rent amount", UserID: "u1", DocumentID: "zoo"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteDocument_Completeness(t *testing.T) {
	r, store := newRetriever(wordEmbedder{})
	indexChunks(t, r, makeChunks("u1", "lease", "Monthly rent is $1,200.", "Late fee of $50."))
	indexChunks(t, r, makeChunks("u1", "other", "Monthly rent is $900."))

	require.NoError(t, r.DeleteDocument(context.Background(), "lease"))

	for _, q := range []string{"Monthly rent is $1,200.", "Late fee of $50.", "anything"} {
		results, err := r.Retrieve(context.Background(), Query{Text: q, UserID: "u1", DocumentID: "lease"})
		require.NoError(t, err)
		assert.Empty(t, results)
	}

	left, err := store.ListByDocument(context.Background(), "lease", 0)
	require.NoError(t, err)
	assert.Empty(t, left)

	n, err := r.index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRebuild_RestoresVectorsFromChunkStore(t *testing.T) {
	ctx := context.Background()
	r, store := newRetriever(wordEmbedder{})
	indexChunks(t, r, makeChunks("u1", "lease", "Monthly rent is $1,200.", "Pets are not allowed."))
	indexChunks(t, r, makeChunks("u2", "deed", "The parcel is sold as is."))
	require.NoError(t, store.SaveBatch(ctx, []model.Chunk{{ID: "bare", DocumentID: "bare", UserID: "u1", Content: "no vector"}}))

	restarted := New(memory.New(), store, wordEmbedder{}, Config{MinScore: 0.1})
	loaded, err := restarted.Rebuild(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)
	count, err := restarted.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := restarted.Retrieve(ctx, Query{Text: "monthly rent", UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "lease-0", results[0].Chunk.ID)
	assert.Equal(t, SourceVector, results[0].Source)

	results, err = restarted.Retrieve(ctx, Query{Text: "parcel sold", UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRebuild_StopsOnScanError(t *testing.T) {
	r, _ := newRetriever(wordEmbedder{})
	boom := errors.New("scan failed")
	_, err := r.Rebuild(context.Background(), failingScanner{err: boom})
	assert.ErrorIs(t, err, boom)
}

type failingScanner struct {
	err error
}

func (f failingScanner) ScanChunks(context.Context, int, func([]model.Chunk) error) error {
	return f.err
}

func TestMemoryChunkStore_ScanChunksInBatches(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChunkStore()
	require.NoError(t, store.SaveBatch(ctx, makeChunks("u1", "b", "b0", "b1")))
	require.NoError(t, store.SaveBatch(ctx, makeChunks("u1", "a", "a0", "a1", "a2")))

	var sizes []int
	var ids []string
	require.NoError(t, store.ScanChunks(ctx, 2, func(batch []model.Chunk) error {
		sizes = append(sizes, len(batch))
		for _, c := range batch {
			ids = append(ids, c.ID)
		}
		return nil
	}))
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []string{"a-0", "a-1", "a-2", "b-0", "b-1"}, ids)
}

func TestIndex_CountMismatch(t *testing.T) {
	r, _ := newRetriever(wordEmbedder{})
	err := r.Index(context.Background(), makeChunks("u1", "d", "a", "b"), [][]float32{{1}})
	assert.ErrorIs(t, err, ErrVectorCountMismatch)
}

func TestKeywordSearch_RanksByOverlapCount(t *testing.T) {
	chunks := makeChunks("u1", "lease",
		"Rent is due monthly.",
		"Late rent incurs a late fee.",
		"Nothing relevant here.",
		"The fee for late rent is $50.",
	)

	results := KeywordSearch("late RENT fee late", chunks, 10)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Chunk.Index)
	assert.Equal(t, 3, results[1].Chunk.Index)
	assert.Equal(t, 0, results[2].Chunk.Index)
	assert.Equal(t, 3.0, results[0].Score)
	assert.Equal(t, 3.0, results[1].Score)
	assert.Equal(t, 1.0, results[2].Score)

	assert.Len(t, KeywordSearch("late rent fee", chunks, 1), 1)
	assert.Empty(t, KeywordSearch("   ", chunks, 5))
	assert.Empty(t, KeywordSearch("?! -- ...", chunks, 5))
	assert.Empty(t, KeywordSearch("zebra", chunks, 5))
}

func TestKeywordSearch_TrimsPunctuation(t *testing.T) {
	chunks := makeChunks("u1", "lease",
		"Rent is due monthly.",
		"Late rent incurs a late fee.",
	)

	results := KeywordSearch(`"Late" fee? (rent)`, chunks, 10)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Chunk.Index)
	assert.Equal(t, 3.0, results[0].Score)
	assert.Equal(t, 1.0, results[1].Score)

	assert.Equal(t, []string{"what's", "rent", "1,200"}, queryTokens("What's RENT, rent? $1,200."))
}

func TestMemoryChunkStore_ListOrderAndLimit(t *testing.T) {
	store := NewMemoryChunkStore()
	chunks := makeChunks("u1", "d", "zero", "one", "two")
	require.NoError(t, store.SaveBatch(context.Background(), []model.Chunk{chunks[2], chunks[0], chunks[1]}))

	listed, err := store.ListByDocument(context.Background(), "d", 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "zero", listed[0].Content)
	assert.Equal(t, "one", listed[1].Content)

	got, err := store.GetByIDs(context.Background(), []string{"d-1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	removed, err := store.DeleteByDocument(context.Background(), "d")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
}
