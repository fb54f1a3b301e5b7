package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/ai"
	appsvc "pdfchat/internal/app"
	"pdfchat/internal/bootstrap"
	"pdfchat/internal/cache"
	"pdfchat/internal/lifecycle"
	"pdfchat/internal/platform/mail"
	"pdfchat/internal/platform/rabbitmq"
	"pdfchat/internal/repository"
	"pdfchat/internal/transport/http/handler"
	"pdfchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	documentRepo := repository.NewDocumentRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	chunkRepo := repository.NewChunkRepository(app.MySQL)
	codeRepo := repository.NewVerificationCodeRepository(app.MySQL)
	txManager := repository.NewTxManager(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmq.NewMessagePublisher(app.MQConn, app.Config.RabbitMQ.MessagePersistQueue)
	mailer := mail.New(
		app.Config.SMTP.Host,
		app.Config.SMTP.Port,
		app.Config.SMTP.Username,
		app.Config.SMTP.Password,
		app.Config.SMTP.From,
	)
	llmClient := ai.NewOpenAICompatibleClient()
	chatConfig := ai.ChatConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.Model,
	}
	embConfig := ai.EmbeddingConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.EmbeddingModel,
	}

	machine := lifecycle.NewMachine(sessionRepo, app.Logger)
	secondary := appsvc.NewSessionResources(chunkRepo, messageRepo, historyCache, app.Logger)
	sessionService := appsvc.NewSessionService(
		userRepo,
		sessionRepo,
		documentRepo,
		txManager,
		machine,
		secondary,
		app.Logger,
		app.Config.Lifecycle.InactivityThreshold(),
		app.Config.Lifecycle.RetentionThreshold(),
	)
	authService := appsvc.NewAuthService(
		userRepo,
		sessionService,
		codeRepo,
		mailer,
		app.Logger,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
		time.Duration(app.Config.Auth.ResetCodeTTLMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(
		sessionService,
		messageRepo,
		chunkRepo,
		publisher,
		historyCache,
		llmClient,
		chatConfig,
		embConfig,
		app.Config.LLM.MaxContextMessage,
	)
	documentService := appsvc.NewDocumentService(sessionService, chunkRepo, llmClient, embConfig)

	authHandler := handler.NewAuthHandler(authService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	chatHandler := handler.NewChatHandler(chatService)
	documentHandler := handler.NewDocumentHandler(documentService, sessionService)

	authJWT := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authJWT, authHandler.Me)
	authGroup.POST("/request-reset", authHandler.RequestPasswordReset)
	authGroup.POST("/reset", authHandler.ResetPassword)

	sessionGroup := v1.Group("/sessions")
	sessionGroup.Use(authJWT)
	sessionGroup.POST("", sessionHandler.Create)
	sessionGroup.GET("", sessionHandler.List)
	sessionGroup.GET("/:id", sessionHandler.Get)
	sessionGroup.POST("/:id/archive", sessionHandler.Archive)
	sessionGroup.POST("/:id/reactivate", sessionHandler.Reactivate)
	sessionGroup.DELETE("/:id", sessionHandler.Delete)
	sessionGroup.GET("/:id/history", chatHandler.GetHistory)
	sessionGroup.POST("/:id/documents", documentHandler.Upload)
	sessionGroup.GET("/:id/documents", documentHandler.List)
	sessionGroup.DELETE("/:id/documents/:docID", documentHandler.Delete)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(authJWT)
	chatGroup.POST("/messages", chatHandler.SendMessage)

	return router
}
