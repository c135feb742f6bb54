package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"juris-rag/internal/app"
	"juris-rag/internal/model"
	"juris-rag/internal/transport/http/response"
)

const maxHistoryLimit = 200

type ChatHandler struct {
	ragService RAGService
}

type ChatRequest struct {
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
	Question   string `json:"question"`
	DocumentID string `json:"document_id"`
}

type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []model.Message `json:"messages"`
	Count     int             `json:"count"`
}

func NewChatHandler(ragService RAGService) *ChatHandler {
	return &ChatHandler{ragService: ragService}
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result := h.ragService.Chat(c.Request.Context(), app.ChatInput{
		UserID:     strings.TrimSpace(req.UserID),
		SessionID:  strings.TrimSpace(req.SessionID),
		Question:   req.Question,
		DocumentID: strings.TrimSpace(req.DocumentID),
	})
	if !result.Success {
		response.Failure(c, result.ErrorKind, result.Error, result)
		return
	}
	response.OK(c, result)
}

func (h *ChatHandler) History(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > maxHistoryLimit {
			parsed = maxHistoryLimit
		}
		limit = parsed
	}

	sessionID := strings.TrimSpace(c.Query("session_id"))
	messages, err := h.ragService.ChatHistory(c.Request.Context(), sessionID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, HistoryResponse{SessionID: sessionID, Messages: messages, Count: len(messages)})
}
