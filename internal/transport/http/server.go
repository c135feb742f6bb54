package http

import (
	"github.com/gin-gonic/gin"

	"juris-rag/internal/bootstrap"
	"juris-rag/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = app.Config.MaxUploadBytes()

	handler.RegisterRoutes(router,
		handler.NewRAGHandler(app.RAG, app.Config.MaxUploadBytes()),
		handler.NewChatHandler(app.RAG),
		handler.NewHealthHandler(app.RAG, app.Config.App.Name, app.Config.App.Env, app.StartedAt),
	)
	return router
}
