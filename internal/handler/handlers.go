package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/internal/middleware"
	"github.com/xtrafr/chatvercel/internal/service"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Chat      *ChatHandler
	Upload    *UploadHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, gatherer prometheus.Gatherer, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(services.Chat, services.Hub, gatherer),
		Chat:      NewChatHandler(services.Chat, services.Tokens, cfg.Chat.PollInterval.Milliseconds(), log),
		Upload:    NewUploadHandler(services.Blobs, log),
		WebSocket: NewWebSocketHandler(services.Chat, cfg.Server.AllowedOrigins, log),
	}
}

// NewRouter собирает gin-маршруты обоих протоколов
func NewRouter(handlers *Handlers, services *service.Services, cfg *config.Config, log logger.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sessionMiddleware := middleware.NewSessionMiddleware(services.Tokens, services.Chat, log)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, log)

	router := gin.New()
	router.MaxMultipartMemory = cfg.Upload.MaxBytes
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/metrics", handlers.Health.Metrics)
	router.Static(cfg.Upload.URLPrefix, cfg.Upload.Dir)

	api := router.Group("/api")
	{
		api.POST("/login", rateLimitMiddleware.Limit("login"), handlers.Chat.Login)

		session := api.Group("")
		session.Use(sessionMiddleware.RequireSession())
		{
			session.POST("/logout", handlers.Chat.Logout)
			session.GET("/messages", handlers.Chat.GetMessages)
			session.GET("/messages/:id/replies", handlers.Chat.GetReplies)
			session.POST("/send-message", rateLimitMiddleware.Limit("send"), handlers.Chat.SendMessage)
			session.POST("/typing", handlers.Chat.Typing)
			session.GET("/users", handlers.Chat.Users)
			session.POST("/upload", rateLimitMiddleware.Limit("upload"), handlers.Upload.Upload)

			admin := session.Group("/admin")
			{
				admin.POST("/clear-chat", handlers.Chat.ClearChat)
				admin.POST("/ban-user", handlers.Chat.BanUser)
				admin.POST("/unban", handlers.Chat.UnbanUser)
			}
		}
	}

	router.GET("/ws", sessionMiddleware.RequireSession(), handlers.WebSocket.HandleChat)

	return router
}
