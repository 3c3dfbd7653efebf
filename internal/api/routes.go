package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"estatechat/internal/api/handlers"
	"estatechat/internal/metrics"
	"estatechat/internal/middleware"
	"estatechat/internal/realtime"
	"estatechat/internal/service"
)

// RouteOptions 路由需要的其他依賴
type RouteOptions struct {
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Log            *slog.Logger
}

func SetupRoutes(r *gin.Engine, services *service.Services, hub *realtime.Hub, opts RouteOptions) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	// 初始化 handlers
	authHandler := handlers.NewAuthHandler(services.UserService)
	conversationHandler := handlers.NewConversationHandler(services.ConversationService)
	activityHandler := handlers.NewActivityHandler(services.OfferService, services.AppointmentService)
	presenceHandler := handlers.NewPresenceHandler(hub.Bridge())
	wsHandler := handlers.NewWebSocketHandler(hub, opts.AllowedOrigins, opts.Log)

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(opts.Gatherer)))
	}

	// 公開路由
	{
		// 用戶認證相關
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":   "ok",
				"realtime": hub.Running(),
			})
		})

		// WebSocket 連接點，身分在連線後以 authenticate 事件或 token 參數驗證
		api.GET("/ws", wsHandler.HandleWebSocket)
	}

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware(services.UserService))
	{
		conversations := authorized.Group("/conversations")
		{
			conversations.POST("", conversationHandler.CreateConversation)
			conversations.GET("/:id", conversationHandler.GetConversation)

			// 成員管理
			conversations.POST("/:id/participants", conversationHandler.AddParticipant)
			conversations.DELETE("/:id/participants/:userId", conversationHandler.RemoveParticipant)

			// 寫入成功後會廣播給加入該對話的連線
			conversations.POST("/:id/offers", activityHandler.CreateOffer)               // new_offer
			conversations.POST("/:id/appointments", activityHandler.ScheduleAppointment) // appointment_scheduled
		}

		presence := authorized.Group("/presence")
		{
			presence.GET("", presenceHandler.ListOnline)
			presence.GET("/:userId", presenceHandler.GetPresence)
		}
	}
}
