package handler

import "github.com/gin-gonic/gin"

func RegisterRoutes(r gin.IRouter, rag *RAGHandler, chat *ChatHandler, health *HealthHandler) {
	r.GET("/health", health.Check)

	r.POST("/ingest", rag.Ingest)
	r.POST("/summarize", rag.Summarize)
	r.GET("/documents", rag.ListDocuments)
	r.DELETE("/documents/:document_id", rag.DeleteDocument)

	r.POST("/chat", chat.Chat)
	r.GET("/chat-history", chat.History)
}
