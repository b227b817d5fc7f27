package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/internal/config"
	"github.com/yourusername/keyserver-api/internal/domain/repository"
	"github.com/yourusername/keyserver-api/internal/handler"
	"github.com/yourusername/keyserver-api/internal/metrics"
	"github.com/yourusername/keyserver-api/internal/middleware"
	"github.com/yourusername/keyserver-api/internal/observability/logger"
	"github.com/yourusername/keyserver-api/internal/repository/memory"
	redisRepo "github.com/yourusername/keyserver-api/internal/repository/redis"
	"github.com/yourusername/keyserver-api/internal/service"
	"github.com/yourusername/keyserver-api/internal/service/keystore"
	ws "github.com/yourusername/keyserver-api/internal/websocket"
	"github.com/yourusername/keyserver-api/pkg/database"
)

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "keyserver"})
	defer logger.Sync()
	log := logger.Named("main")
	log.Info("config loaded", zap.String("path", configPath), zap.String("version", version))

	isProduction := cfg.Log.Env == "prod"
	if isProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Контекст для фоновых горутин; отменяется при остановке
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis необязателен: без него счётчики и rate limit живут в памяти
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient, err = database.NewUniversalRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		log.Info("connected to Redis", zap.String("mode", cfg.Redis.Mode))
	}

	var statsRepo repository.StatsRepository = memory.NewStatsRepo()
	if redisClient != nil {
		statsRepo, err = redisRepo.NewStatsRepo(redisClient, "")
		if err != nil {
			return fmt.Errorf("failed to initialize StatsRepo: %w", err)
		}
	}

	var pubSubProvider ws.PubSubProvider = &ws.NoOpPubSub{}
	if redisClient != nil && cfg.Events.Enabled {
		pubSubProvider, err = ws.NewRedisPubSub(ctx, redisClient)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis PubSub: %w", err)
		}
	}

	// Без событий хаб не создаётся и /ws не регистрируется
	var hub *ws.Hub
	var publisher service.EventPublisher
	if cfg.Events.Enabled {
		hub = ws.NewHub(ws.HubConfig{
			InstanceID:   cfg.Events.InstanceID,
			Channel:      cfg.Events.Channel,
			ClientBuffer: cfg.Events.ClientBuffer,
		}, pubSubProvider)
		if err := hub.Start(ctx); err != nil {
			return err
		}
		publisher = hub
	}

	var keyMetrics *metrics.KeyMetrics
	if cfg.Metrics.Enabled {
		keyMetrics, err = metrics.NewKeyMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	store := keystore.NewStore()
	keyService := service.NewKeyService(store, publisher, statsRepo, keyMetrics, cfg.Keys.BatchSize)

	refresher := service.NewRefresher(keyService, cfg.Keys.RefreshInterval)
	refresher.Start(ctx)

	// В production не доверяем прокси-заголовкам; при деплое за балансировщиком добавьте его IP
	var trustedProxies []string
	if !isProduction {
		trustedProxies = []string{"127.0.0.1", "::1"}
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	router := handler.NewRouter(handler.RouterConfig{
		KeyService:  keyService,
		Hub:         hub,
		RateLimiter: middleware.NewRateLimiter(redisClient),
		RateLimit: middleware.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
			KeyPrefix:   cfg.RateLimit.KeyPrefix,
		},
		RateLimitOn:     cfg.RateLimit.Enabled,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MetricsPath:     metricsPath,
		MetricsGatherer: prometheus.DefaultGatherer,
		TrustedProxies:  trustedProxies,
	})

	// HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case runErr = <-serverErr:
		log.Error("server failed", logger.Err(runErr))
	}

	// Останавливаем фоновые горутины до закрытия соединений с Redis
	cancel()
	refresher.Stop()
	if hub != nil {
		hub.Stop()
	}
	if err := pubSubProvider.Close(); err != nil {
		log.Warn("error closing PubSub provider", logger.Err(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", logger.Err(err))
		return err
	}

	log.Info("server exited properly")
	return runErr
}
