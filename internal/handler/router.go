package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/keyserver-api/internal/middleware"
	"github.com/yourusername/keyserver-api/internal/service"
	"github.com/yourusername/keyserver-api/internal/websocket"
)

// RouterConfig содержит зависимости и настройки роутера
type RouterConfig struct {
	KeyService     *service.KeyService
	Hub            *websocket.Hub
	RateLimiter    *middleware.RateLimiter
	RateLimit      middleware.RateLimitConfig
	RateLimitOn    bool
	AllowedOrigins []string
	// MetricsPath пустой — /metrics не регистрируется
	MetricsPath     string
	MetricsGatherer prometheus.Gatherer
	TrustedProxies  []string
}

// NewRouter собирает gin.Engine со всеми маршрутами сервиса
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging())

	// Доверяем только указанным прокси (nil — никаким) для корректного c.ClientIP()
	_ = router.SetTrustedProxies(cfg.TrustedProxies)

	corsConfig := cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader, "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}
	// cors паникует на пустом списке origin
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	LoadTemplates(router)

	keyHandler := NewKeyHandler(cfg.KeyService)
	apiHandler := NewKeyAPIHandler(cfg.KeyService)
	exportHandler := NewExportHandler(cfg.KeyService)

	limit := func(c *gin.Context) { c.Next() }
	if cfg.RateLimitOn && cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Limit(cfg.RateLimit)
	}
	textKey := middleware.ExtractKeyParam("key", keyContextKey, false)
	jsonKey := middleware.ExtractKeyParam("key", keyContextKey, true)

	// Простые текстовые маршруты
	router.GET("/", keyHandler.Root)
	router.GET("/generate_keys", limit, keyHandler.GenerateKeys)
	router.GET("/block/:key", textKey, keyHandler.BlockKey)
	router.GET("/unblock/:key", textKey, keyHandler.UnblockKey)
	router.GET("/delete/:key", textKey, keyHandler.DeleteKey)
	router.GET("/ping/:key", textKey, keyHandler.PingKey)
	router.GET("/serve_key", limit, keyHandler.ServeKey)
	router.GET("/showall", keyHandler.ShowAll)
	router.GET("/export.xlsx", exportHandler.ExportXLSX)

	// JSON API
	api := router.Group("/api")
	{
		keys := api.Group("/keys")
		{
			keys.POST("", limit, apiHandler.Generate)
			keys.GET("", apiHandler.List)
			keys.POST("/serve", limit, apiHandler.Serve)

			keyWithID := keys.Group("/:key", jsonKey)
			{
				keyWithID.GET("", apiHandler.Get)
				keyWithID.DELETE("", apiHandler.Delete)
				keyWithID.PUT("/block", apiHandler.Block)
				keyWithID.PUT("/unblock", apiHandler.Unblock)
				keyWithID.PUT("/ping", apiHandler.Ping)
			}
		}
		api.GET("/stats", apiHandler.Stats)
	}

	if cfg.Hub != nil {
		wsHandler := NewWSHandler(cfg.Hub, cfg.AllowedOrigins)
		router.GET("/ws", wsHandler.HandleConnection)
	}

	instanceID := ""
	if cfg.Hub != nil {
		instanceID = cfg.Hub.InstanceID()
	}
	router.GET("/health", NewHealthHandler(cfg.KeyService, instanceID).Health)

	if cfg.MetricsPath != "" {
		gatherer := cfg.MetricsGatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		router.GET(cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
