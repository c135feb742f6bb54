package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"juris-rag/internal/app"
	"juris-rag/internal/model"
	"juris-rag/internal/transport/http/response"
)

// RAGService is the orchestrator surface the handlers drive.
type RAGService interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
	Chat(ctx context.Context, input app.ChatInput) *app.ChatResult
	Summarize(ctx context.Context, userID, documentID string) (*app.SummaryResult, error)
	ListDocuments(ctx context.Context, userID, sessionID string) ([]model.Document, error)
	ChatHistory(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
	DeleteDocument(ctx context.Context, userID, documentID string) error
}

type RAGHandler struct {
	ragService     RAGService
	maxUploadBytes int64
}

type IngestResponse struct {
	Success bool `json:"success"`
	*app.IngestResult
}

type SummaryResponse struct {
	Success bool `json:"success"`
	*app.SummaryResult
}

type DocumentsResponse struct {
	Documents []model.Document `json:"documents"`
	Count     int              `json:"count"`
}

func NewRAGHandler(ragService RAGService, maxUploadBytes int64) *RAGHandler {
	return &RAGHandler{ragService: ragService, maxUploadBytes: maxUploadBytes}
}

// Ingest accepts a multipart form with user_id, session_id and file.
func (h *RAGHandler) Ingest(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	result, err := h.ragService.Ingest(c.Request.Context(), app.IngestInput{
		UserID:      strings.TrimSpace(c.PostForm("user_id")),
		SessionID:   strings.TrimSpace(c.PostForm("session_id")),
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, IngestResponse{Success: true, IngestResult: result})
}

// Summarize accepts a form with user_id and document_id.
func (h *RAGHandler) Summarize(c *gin.Context) {
	result, err := h.ragService.Summarize(c.Request.Context(),
		strings.TrimSpace(c.PostForm("user_id")),
		strings.TrimSpace(c.PostForm("document_id")),
	)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, SummaryResponse{Success: true, SummaryResult: result})
}

func (h *RAGHandler) ListDocuments(c *gin.Context) {
	docs, err := h.ragService.ListDocuments(c.Request.Context(),
		strings.TrimSpace(c.Query("user_id")),
		strings.TrimSpace(c.Query("session_id")),
	)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, DocumentsResponse{Documents: docs, Count: len(docs)})
}

func (h *RAGHandler) DeleteDocument(c *gin.Context) {
	documentID := c.Param("document_id")
	if err := h.ragService.DeleteDocument(c.Request.Context(), strings.TrimSpace(c.Query("user_id")), documentID); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"success": true, "document_id": documentID})
}
