package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juris-rag/internal/ai"
	"juris-rag/internal/blob"
	"juris-rag/internal/chatlog"
	"juris-rag/internal/embedding"
	"juris-rag/internal/model"
	"juris-rag/internal/repository"
	"juris-rag/internal/retrieval"
	"juris-rag/internal/vectorindex/memory"
)

const leaseText = "Monthly rent is $1,200 due on the 1st."

const wellFormedAnswer = `## Summary
Rent is $1,200 per month [lease.txt:chunk_0].

## Key Points
- Payment is due on the 1st.

## Risks and Red Flags
- None found.

## Suggested Questions
- Is there a late fee?

⚠️ This is not legal advice. Consult a qualified attorney for legal guidance.`

// wordBackend gives every distinct lower-cased word its own dimension.
type wordBackend struct {
	mu    sync.Mutex
	vocab map[string]int
	err   error
}

func (b *wordBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 256)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,?!$")
			id, ok := b.vocab[w]
			if !ok {
				id = len(b.vocab) % 256
				b.vocab[w] = id
			}
			v[id]++
		}
		out[i] = v
	}
	return out, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	prompts  [][]ai.ChatMessage
	response string
	err      error
	during   func()
}

func (g *fakeGenerator) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	g.mu.Lock()
	g.calls++
	g.prompts = append(g.prompts, messages)
	g.mu.Unlock()
	if g.during != nil {
		g.during()
	}
	return g.response, g.err
}

func (g *fakeGenerator) lastUserPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	last := g.prompts[len(g.prompts)-1]
	return last[len(last)-1].Content
}

type testEnv struct {
	svc       *RAGService
	generator *fakeGenerator
	backend   *wordBackend
	documents *repository.MemoryDocumentRepository
	chunks    *retrieval.MemoryChunkStore
	index     *memory.Index
	blobs     *blob.Store
	messages  *chatlog.MemoryStore
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		generator: &fakeGenerator{response: wellFormedAnswer},
		backend:   &wordBackend{vocab: map[string]int{}},
		documents: repository.NewMemoryDocumentRepository(),
		chunks:    retrieval.NewMemoryChunkStore(),
		index:     memory.New(),
		blobs:     blob.New("mem://localhost/juris-test-" + uuid.NewString()),
		messages:  chatlog.NewMemoryStore(),
	}
	embedder := embedding.NewGenerator(env.backend, embedding.Config{})
	env.svc = NewRAGService(Dependencies{
		Documents: env.documents,
		Retriever: retrieval.New(env.index, env.chunks, embedder, retrieval.Config{MinScore: 0.1}),
		ChatLog:   chatlog.New(env.messages, nil, nil),
		Blobs:     env.blobs,
		Generator: env.generator,
		Embedder:  embedder,
	}, opts)
	return env
}

func (e *testEnv) ingest(t *testing.T, user, session, filename, text string) *IngestResult {
	t.Helper()
	res, err := e.svc.Ingest(context.Background(), IngestInput{
		UserID:    user,
		SessionID: session,
		Filename:  filename,
		Data:      []byte(text),
	})
	require.NoError(t, err)
	return res
}

func TestRAGService_RentScenario(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 800})
	ingested := env.ingest(t, "u1", "s1", "lease.txt", leaseText)
	assert.Equal(t, 1, ingested.NumChunks)
	assert.Equal(t, len([]rune(leaseText)), ingested.TextLength)
	assert.Equal(t, "lease.txt", ingested.Filename)

	res := env.svc.Chat(context.Background(), ChatInput{
		UserID:    "u1",
		SessionID: "s1",
		Question:  "What is the monthly rent?",
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, StateResponded, res.State)
	assert.Equal(t, 1, res.ChunksRetrieved)
	assert.Equal(t, []string{"lease.txt:chunk_0"}, res.Citations)
	assert.NotEmpty(t, res.Response)
	assert.Equal(t, 1, env.generator.calls)
	assert.Contains(t, env.generator.lastUserPrompt(), "[Section 1 - lease.txt:chunk_0]")
	assert.Contains(t, env.generator.lastUserPrompt(), leaseText)

	history, err := env.svc.ChatHistory(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, []string{"lease.txt:chunk_0"}, []string(history[1].Citations))
}

func TestRAGService_IngestStoresDocumentAndBlob(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	ingested := env.ingest(t, "u1", "s1", "lease.txt", leaseText)

	docs, err := env.svc.ListDocuments(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, ingested.DocumentID, doc.ID)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, "text/plain; charset=utf-8", doc.ContentType)
	assert.Equal(t, blob.DocumentPath("u1", "s1", doc.ID, "lease.txt"), doc.StoragePath)

	data, err := env.blobs.Get(ctx, doc.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, leaseText, string(data))

	chunks, err := env.chunks.ListByDocument(ctx, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(leaseText), chunks[0].End)
	assert.Equal(t, len(leaseText), chunks[0].Size)
}

func TestRAGService_ChunkSizeCountsBytes(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	text := "Der Mieter zahlt 1.200 € Miete bis zum 1. des Monats."
	ingested := env.ingest(t, "u1", "s1", "mietvertrag.txt", text)

	chunks, err := env.chunks.ListByDocument(ctx, ingested.DocumentID, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, len(text), chunks[0].Size)
	assert.NotEqual(t, len([]rune(text)), chunks[0].Size)
}

func TestRAGService_RestartRebuildsMemoryIndex(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.ingest(t, "u1", "s1", "lease.txt", leaseText)

	embedder := embedding.NewGenerator(env.backend, embedding.Config{})
	index := memory.New()
	retriever := retrieval.New(index, env.chunks, embedder, retrieval.Config{MinScore: 0.1})
	loaded, err := retriever.Rebuild(ctx, env.chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	restarted := NewRAGService(Dependencies{
		Documents: env.documents,
		Retriever: retriever,
		ChatLog:   chatlog.New(env.messages, nil, nil),
		Blobs:     env.blobs,
		Generator: env.generator,
		Embedder:  embedder,
	}, Options{})
	res := restarted.Chat(ctx, ChatInput{UserID: "u1", SessionID: "s1", Question: "What is the monthly rent?"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.ChunksRetrieved)
	assert.Equal(t, []string{"lease.txt:chunk_0"}, res.Citations)
}

func TestRAGService_IngestValidation(t *testing.T) {
	env := newTestEnv(t, Options{MaxUploadBytes: 64})

	cases := []struct {
		name  string
		input IngestInput
	}{
		{"zero bytes", IngestInput{UserID: "u1", SessionID: "s1", Filename: "empty.txt", Data: []byte{}}},
		{"whitespace only", IngestInput{UserID: "u1", SessionID: "s1", Filename: "blank.txt", Data: []byte("  \n\n  ")}},
		{"missing user", IngestInput{SessionID: "s1", Filename: "lease.txt", Data: []byte(leaseText)}},
		{"missing filename", IngestInput{UserID: "u1", SessionID: "s1", Data: []byte(leaseText)}},
		{"unsupported type", IngestInput{UserID: "u1", SessionID: "s1", Filename: "lease.exe", Data: []byte(leaseText)}},
		{"too large", IngestInput{UserID: "u1", SessionID: "s1", Filename: "big.txt", Data: []byte(strings.Repeat("rent ", 20))}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Ingest(context.Background(), tc.input)
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}

	docs, err := env.svc.ListDocuments(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Empty(t, docs)
	keys, err := env.blobs.List(context.Background(), "users")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRAGService_IngestCorruptPDF(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.svc.Ingest(context.Background(), IngestInput{
		UserID:   "u1",
		Filename: "broken.pdf",
		Data:     []byte{0x00, 0x01, 0x02, 0x03},
	})
	require.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, KindExtraction, KindOf(err))
}

func TestRAGService_IngestEmbeddingUnavailable(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.backend.err = errors.New("connection refused")

	_, err := env.svc.Ingest(context.Background(), IngestInput{
		UserID:   "u1",
		Filename: "lease.txt",
		Data:     []byte(leaseText),
	})
	require.ErrorIs(t, err, ErrEmbeddingUnavailable)

	docs, err := env.svc.ListDocuments(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Empty(t, docs)
	count, err := env.index.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRAGService_SummarizeDocument(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 60, ChunkOverlap: 10})
	text := "This lease runs for twelve months.\n\nMonthly rent is $1,200 due on the 1st.\n\nThe tenant pays a security deposit of $2,400."
	ingested := env.ingest(t, "u1", "s1", "lease.txt", text)
	require.Greater(t, ingested.NumChunks, 1)

	res, err := env.svc.Summarize(context.Background(), "u1", ingested.DocumentID)
	require.NoError(t, err)
	assert.True(t, res.FormatOK)
	assert.Equal(t, "lease.txt", res.Filename)
	assert.Equal(t, ingested.DocumentID, res.DocumentID)
	assert.Equal(t, 1, env.generator.calls)

	prompt := env.generator.lastUserPrompt()
	for _, sentence := range []string{"twelve months", "Monthly rent is $1,200", "security deposit of $2,400"} {
		assert.Equal(t, 1, strings.Count(prompt, sentence), sentence)
	}
}

func TestRAGService_SummarizeFlagsMalformedResponse(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.generator.response = "Rent is $1,200."
	ingested := env.ingest(t, "u1", "s1", "lease.txt", leaseText)

	res, err := env.svc.Summarize(context.Background(), "u1", ingested.DocumentID)
	require.NoError(t, err)
	assert.False(t, res.FormatOK)
	assert.Equal(t, "Rent is $1,200.", res.Summary)
}

func TestRAGService_SummarizeUnknownDocument(t *testing.T) {
	env := newTestEnv(t, Options{})
	ingested := env.ingest(t, "u1", "s1", "lease.txt", leaseText)

	_, err := env.svc.Summarize(context.Background(), "u2", ingested.DocumentID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Zero(t, env.generator.calls)
}

func TestRAGService_DeleteDocumentRemovesEverything(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	ingested := env.ingest(t, "u1", "s1", "lease.txt", leaseText)
	other := env.ingest(t, "u1", "s1", "notice.txt", "Notice of rent increase to $1,300 from March.")

	res := env.svc.Chat(ctx, ChatInput{UserID: "u1", SessionID: "s1", Question: "What is the monthly rent?", DocumentID: ingested.DocumentID})
	require.True(t, res.Success, res.Error)

	prefix := blob.DocumentPrefix("u1", "s1", ingested.DocumentID)
	_, err := env.blobs.Put(ctx, prefix+"/lease.ocr.txt", []byte(leaseText))
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteDocument(ctx, "u1", ingested.DocumentID))

	leftover, err := env.blobs.List(ctx, prefix)
	require.NoError(t, err)
	assert.Empty(t, leftover)
	kept, err := env.blobs.List(ctx, blob.DocumentPrefix("u1", "s1", other.DocumentID))
	require.NoError(t, err)
	assert.Equal(t, []string{blob.DocumentPath("u1", "s1", other.DocumentID, "notice.txt")}, kept)

	chunks, err := env.chunks.ListByDocument(ctx, ingested.DocumentID, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	count, err := env.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, other.NumChunks, count)

	_, err = env.blobs.Get(ctx, blob.DocumentPath("u1", "s1", ingested.DocumentID, "lease.txt"))
	assert.ErrorIs(t, err, blob.ErrNotFound)

	docs, err := env.svc.ListDocuments(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, other.DocumentID, docs[0].ID)

	scoped := env.svc.Chat(ctx, ChatInput{UserID: "u1", SessionID: "s1", Question: "rent", DocumentID: ingested.DocumentID})
	assert.False(t, scoped.Success)
	assert.Equal(t, KindNotFound, scoped.ErrorKind)

	history, err := env.svc.ChatHistory(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "rent", history[2].Content)

	assert.ErrorIs(t, env.svc.DeleteDocument(ctx, "u1", ingested.DocumentID), ErrDocumentNotFound)
}

func TestRAGService_HealthReport(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.svc.checks = map[string]HealthCheck{
		"blob":         env.blobs.Ping,
		"vector_index": func(context.Context) error { return nil },
		"redis":        func(context.Context) error { return errors.New("connection refused") },
	}

	report := env.svc.Health(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusHealthy, report.Components["blob"].Status)
	assert.Equal(t, StatusHealthy, report.Components["vector_index"].Status)
	assert.Equal(t, StatusDegraded, report.Components["redis"].Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Error)

	delete(env.svc.checks, "redis")
	assert.Equal(t, StatusHealthy, env.svc.Health(context.Background()).Status)
}
