package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server    ServerConfig
	Keys      KeysConfig
	Redis     RedisConfig
	Events    EventsConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig
	Metrics   MetricsConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port            string
	ReadTimeout     int           `mapstructure:"read_timeout"`  // секунды
	WriteTimeout    int           `mapstructure:"write_timeout"` // секунды
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// KeysConfig содержит настройки пула ключей.
// Пороги блокировки (60с) и удаления (300с) фиксированы и здесь не задаются.
type KeysConfig struct {
	// BatchSize: сколько ключей выпускает один вызов generate
	BatchSize int `mapstructure:"batch_size"`

	// RefreshInterval: период фонового RefreshAll
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Enabled: без Redis счётчики и rate limit работают в памяти процесса,
	// а события не пересылаются между инстансами.
	Enabled bool `mapstructure:"enabled"`

	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт).
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"` // миллисекунды
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"` // миллисекунды
}

// EventsConfig содержит настройки рассылки событий жизненного цикла ключей
type EventsConfig struct {
	Enabled bool
	// Channel: канал Redis Pub/Sub для пересылки событий между инстансами
	Channel string
	// InstanceID: идентификатор инстанса; пустой — генерируется при старте
	InstanceID string `mapstructure:"instance_id"`
	// ClientBuffer: размер буфера отправки для одного WebSocket-клиента
	ClientBuffer int `mapstructure:"client_buffer"`
}

// RateLimitConfig содержит настройки ограничения частоты запросов
type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// LogConfig содержит настройки логирования
type LogConfig struct {
	Env   string // "dev" или "prod"
	Level string
}

// MetricsConfig содержит настройки экспорта метрик Prometheus
type MetricsConfig struct {
	Enabled bool
	Path    string
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.read_timeout", 10)
	vip.SetDefault("server.write_timeout", 10)
	vip.SetDefault("server.shutdown_timeout", 10*time.Second)
	vip.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	vip.SetDefault("keys.batch_size", 5)
	vip.SetDefault("keys.refresh_interval", time.Second)

	vip.SetDefault("redis.enabled", false)
	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("redis.addr", "localhost:6379")

	vip.SetDefault("events.enabled", true)
	vip.SetDefault("events.channel", "keyserver:events")
	vip.SetDefault("events.client_buffer", 64)

	vip.SetDefault("rate_limit.enabled", true)
	vip.SetDefault("rate_limit.max_requests", 60)
	vip.SetDefault("rate_limit.window", time.Minute)
	vip.SetDefault("rate_limit.key_prefix", "rl:keys")

	vip.SetDefault("log.env", "dev")
	vip.SetDefault("log.level", "info")

	vip.SetDefault("metrics.enabled", true)
	vip.SetDefault("metrics.path", "/metrics")
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Новый экземпляр Viper, без глобального состояния

	// 1. Значения по умолчанию
	setDefaults(vip)

	// 2. Привязываем переменные окружения ЯВНО
	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.allowed_origins", "SERVER_ALLOWED_ORIGINS")

	vip.BindEnv("keys.batch_size", "KEYS_BATCH_SIZE")
	vip.BindEnv("keys.refresh_interval", "KEYS_REFRESH_INTERVAL")

	vip.BindEnv("redis.enabled", "REDIS_ENABLED")
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("events.enabled", "EVENTS_ENABLED")
	vip.BindEnv("events.channel", "EVENTS_CHANNEL")
	vip.BindEnv("events.instance_id", "EVENTS_INSTANCE_ID")

	vip.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	vip.BindEnv("rate_limit.max_requests", "RATE_LIMIT_MAX_REQUESTS")
	vip.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")

	vip.BindEnv("log.env", "LOG_ENV")
	vip.BindEnv("log.level", "LOG_LEVEL")

	vip.BindEnv("metrics.enabled", "METRICS_ENABLED")

	// 3. Файл конфигурации (не страшно, если его нет)
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				log.Printf("Config file '%s' not found, using env/defaults", configPath)
			} else {
				log.Printf("Warning: failed to read config file '%s': %v", configPath, err)
			}
		}
	}

	// 4. Анмаршалим (Viper объединит файл, env и умолчания)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required (check SERVER_PORT env var)")
	}
	if c.Keys.BatchSize <= 0 {
		return fmt.Errorf("keys.batch_size must be positive, got %d", c.Keys.BatchSize)
	}
	if c.Keys.RefreshInterval <= 0 {
		return fmt.Errorf("keys.refresh_interval must be positive, got %v", c.Keys.RefreshInterval)
	}
	if c.Redis.Enabled && len(c.Redis.Addrs) == 0 && c.Redis.Addr == "" {
		return fmt.Errorf("redis is enabled but no address is configured (check REDIS_ADDR / REDIS_ADDRS env vars)")
	}
	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit requires positive max_requests and window")
	}
	return nil
}
