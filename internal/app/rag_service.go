package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"juris-rag/internal/ai"
	"juris-rag/internal/blob"
	"juris-rag/internal/chunker"
	"juris-rag/internal/model"
	"juris-rag/internal/pkg/textextract"
	"juris-rag/internal/retrieval"
)

const (
	defaultTopK             = 5
	defaultMaxChatHistory   = 10
	defaultSummaryMaxChunks = 10
	defaultMaxUploadBytes   = 10 << 20
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	// GetByIDAndUserID returns nil, nil when the document does not exist.
	GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error)
	ListByUserIDAndSessionID(ctx context.Context, userID, sessionID string) ([]model.Document, error)
	DeleteByIDAndUserID(ctx context.Context, id, userID string) error
}

type Retriever interface {
	Index(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error
	Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
	ListChunks(ctx context.Context, documentID string, limit int) ([]model.Chunk, error)
}

type ChatLog interface {
	Append(ctx context.Context, msg model.Message) error
	History(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
}

type BlobStore interface {
	Put(ctx context.Context, rel string, data []byte) (string, error)
	Delete(ctx context.Context, rel string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthCheck reports a component as healthy by returning nil.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Documents    DocumentStore
	Retriever    Retriever
	ChatLog      ChatLog
	Blobs        BlobStore
	Generator    ai.Completer
	Embedder     Embedder
	HealthChecks map[string]HealthCheck
}

type Options struct {
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MaxChatHistory   int
	SummaryMaxChunks int
	MaxUploadBytes   int64
}

type RAGService struct {
	documents DocumentStore
	retriever Retriever
	chatLog   ChatLog
	blobs     BlobStore
	generator ai.Completer
	embedder  Embedder
	splitter  *chunker.Splitter
	checks    map[string]HealthCheck
	opts      Options
}

func NewRAGService(deps Dependencies, opts Options) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MaxChatHistory <= 0 {
		opts.MaxChatHistory = defaultMaxChatHistory
	}
	if opts.SummaryMaxChunks <= 0 {
		opts.SummaryMaxChunks = defaultSummaryMaxChunks
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	splitter := chunker.New(opts.ChunkSize, opts.ChunkOverlap)
	opts.ChunkSize, opts.ChunkOverlap = splitter.Size(), splitter.Overlap()

	return &RAGService{
		documents: deps.Documents,
		retriever: deps.Retriever,
		chatLog:   deps.ChatLog,
		blobs:     deps.Blobs,
		generator: deps.Generator,
		embedder:  deps.Embedder,
		splitter:  splitter,
		checks:    deps.HealthChecks,
		opts:      opts,
	}
}

type IngestInput struct {
	UserID      string
	SessionID   string
	Filename    string
	ContentType string
	Data        []byte
}

type IngestResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	NumChunks  int    `json:"num_chunks"`
	TextLength int    `json:"text_length"`
}

// Ingest extracts, chunks, embeds and indexes one uploaded file. No document
// record survives a failed ingestion.
func (s *RAGService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	userID := strings.TrimSpace(input.UserID)
	filename := strings.TrimSpace(input.Filename)
	if userID == "" {
		return nil, validationError("user_id is required")
	}
	if filename == "" {
		return nil, validationError("filename is required")
	}
	if len(input.Data) == 0 {
		return nil, validationError("file %q is empty", filename)
	}
	if int64(len(input.Data)) > s.opts.MaxUploadBytes {
		return nil, validationError("file %q exceeds %d bytes", filename, s.opts.MaxUploadBytes)
	}
	fileType, err := textextract.DetectFileType(filename)
	if err != nil {
		return nil, validationError("file %q: %v", filename, err)
	}

	extracted, err := textextract.Extract(fileType, input.Data)
	switch {
	case err == nil:
	case errors.Is(err, textextract.ErrEmptyInput), errors.Is(err, textextract.ErrNoText):
		return nil, validationError("file %q: %v", filename, err)
	default:
		return nil, wrap(ErrExtraction, filename, err)
	}

	pieces := s.splitter.Split(extracted.Text)
	if len(pieces) == 0 {
		return nil, validationError("file %q produced no chunks", filename)
	}
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, wrap(ErrEmbeddingUnavailable, "embed chunks", err)
	}
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrEmbeddingUnavailable, len(vectors), len(pieces))
	}

	docID := uuid.NewString()
	storagePath := blob.DocumentPath(userID, input.SessionID, docID, filename)
	if _, err := s.blobs.Put(ctx, storagePath, input.Data); err != nil {
		return nil, wrap(ErrStorage, "upload document", err)
	}

	contentType := strings.TrimSpace(input.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = textextract.ContentType(fileType)
	}
	doc := &model.Document{
		ID:          docID,
		UserID:      userID,
		SessionID:   input.SessionID,
		Filename:    filename,
		FileType:    string(fileType),
		ContentType: contentType,
		StoragePath: storagePath,
		TextLength:  utf8.RuneCountInString(extracted.Text),
		NumChunks:   len(pieces),
		NumPages:    len(extracted.Pages),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		s.discardBlob(storagePath)
		return nil, wrap(ErrStorage, "save document", err)
	}

	chunks := make([]model.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = model.Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			UserID:     userID,
			SessionID:  input.SessionID,
			Filename:   filename,
			Index:      p.Index,
			Content:    p.Text,
			Size:       len(p.Text),
			Start:      p.Start,
			End:        p.End,
		}
	}
	if err := s.retriever.Index(ctx, chunks, vectors); err != nil {
		s.rollbackIngest(doc)
		return nil, wrap(ErrStorage, "index chunks", err)
	}

	log.Printf("app: ingested document %s (%s) for user %s: %d chunks", docID, filename, userID, len(chunks))
	return &IngestResult{
		DocumentID: docID,
		Filename:   filename,
		NumChunks:  len(chunks),
		TextLength: doc.TextLength,
	}, nil
}

// rollbackIngest undoes a partially indexed document. It runs detached from
// the request so a cancelled caller still gets cleaned up after.
func (s *RAGService) rollbackIngest(doc *model.Document) {
	ctx := context.Background()
	if err := s.retriever.DeleteDocument(ctx, doc.ID); err != nil {
		log.Printf("app: rollback vectors for document %s failed: %v", doc.ID, err)
	}
	if err := s.documents.DeleteByIDAndUserID(ctx, doc.ID, doc.UserID); err != nil {
		log.Printf("app: rollback record for document %s failed: %v", doc.ID, err)
	}
	s.discardBlob(doc.StoragePath)
}

func (s *RAGService) discardBlob(path string) {
	if err := s.blobs.Delete(context.Background(), path); err != nil {
		log.Printf("app: discard blob %s failed: %v", path, err)
	}
}

type SummaryResult struct {
	Summary    string `json:"summary"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	FormatOK   bool   `json:"format_ok"`
}

// Summarize asks the model for a structured summary of the leading chunks of a document.
func (s *RAGService) Summarize(ctx context.Context, userID, documentID string) (*SummaryResult, error) {
	doc, err := s.ownedDocument(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.retriever.ListChunks(ctx, doc.ID, s.opts.SummaryMaxChunks)
	if err != nil {
		return nil, wrap(ErrStorage, "list chunks", err)
	}
	pieces := make([]chunker.Piece, len(chunks))
	for i, c := range chunks {
		pieces[i] = chunker.Piece{Index: c.Index, Text: c.Content, Start: c.Start, End: c.End}
	}
	text := chunker.Reassemble(pieces)
	if strings.TrimSpace(text) == "" {
		return nil, validationError("document %s has no text to summarize", doc.ID)
	}

	summary, err := s.generator.Complete(ctx, summaryPrompt(text))
	if err != nil {
		return nil, wrap(ErrGenerationUnavailable, "summarize", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = emptyModelResponse
	}
	return &SummaryResult{
		Summary:    summary,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		FormatOK:   validResponseFormat(summary),
	}, nil
}

func (s *RAGService) ListDocuments(ctx context.Context, userID, sessionID string) ([]model.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user_id is required")
	}
	docs, err := s.documents.ListByUserIDAndSessionID(ctx, userID, sessionID)
	if err != nil {
		return nil, wrap(ErrStorage, "list documents", err)
	}
	return docs, nil
}

func (s *RAGService) ChatHistory(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, validationError("session_id is required")
	}
	messages, err := s.chatLog.History(ctx, sessionID, limit)
	if err != nil {
		return nil, wrap(ErrStorage, "load chat history", err)
	}
	return messages, nil
}

// DeleteDocument removes the document's vectors, chunk text and blob, then
// soft-deletes its record. Chat history that cites it is kept.
func (s *RAGService) DeleteDocument(ctx context.Context, userID, documentID string) error {
	doc, err := s.ownedDocument(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if err := s.retriever.DeleteDocument(ctx, doc.ID); err != nil {
		return wrap(ErrStorage, "delete document index", err)
	}
	if err := s.deleteBlobs(ctx, doc); err != nil {
		return wrap(ErrStorage, "delete document blob", err)
	}
	if err := s.documents.DeleteByIDAndUserID(ctx, doc.ID, doc.UserID); err != nil {
		return wrap(ErrStorage, "delete document record", err)
	}
	log.Printf("app: deleted document %s for user %s", doc.ID, doc.UserID)
	return nil
}

// deleteBlobs removes the original and anything else stored under the document's prefix.
func (s *RAGService) deleteBlobs(ctx context.Context, doc *model.Document) error {
	paths, err := s.blobs.List(ctx, blob.DocumentPrefix(doc.UserID, doc.SessionID, doc.ID))
	if err != nil {
		return err
	}
	if doc.StoragePath != "" && !slices.Contains(paths, doc.StoragePath) {
		paths = append(paths, doc.StoragePath)
	}
	for _, rel := range paths {
		if err := s.blobs.Delete(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

func (s *RAGService) ownedDocument(ctx context.Context, userID, documentID string) (*model.Document, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(documentID) == "" {
		return nil, validationError("user_id and document_id are required")
	}
	doc, err := s.documents.GetByIDAndUserID(ctx, documentID, userID)
	if err != nil {
		return nil, wrap(ErrStorage, "load document", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}
