package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	MySQL       MySQLConfig
	Auth        AuthConfig
	Gate        GateConfig
	Geo         GeoConfig
	Performance PerformanceConfig
	Monitoring  MonitoringConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address      string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// MQTTConfig конфигурация MQTT
type MQTTConfig struct {
	URL          string
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	OrderMatters bool
	TopicPrefix  string
}

// MySQLConfig конфигурация MySQL (журнал переходов)
type MySQLConfig struct {
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
}

// AuthConfig конфигурация аутентификации
type AuthConfig struct {
	Endpoint string
	CacheTTL time.Duration
}

// GateConfig конфигурация state machine видимости
type GateConfig struct {
	DefaultPolicy string        // Политика фильтрации по умолчанию
	StaleAfter    time.Duration // Молчание трекера, после которого цель считается потерянной
	SweepInterval time.Duration // Интервал проверки устаревших целей
	AudioElements bool          // Создавать ли аудио-элементы презентации
}

// GeoConfig конфигурация геопространственных настроек
type GeoConfig struct {
	DefaultRadiusKM  int
	MaxRadiusKM      int
	GeohashPrecision int
}

// PerformanceConfig конфигурация производительности
type PerformanceConfig struct {
	JournalBatchSize      int
	JournalFlushInterval  time.Duration
	JournalQueueSize      int
	WebSocketPingInterval time.Duration
	WebSocketPongTimeout  time.Duration
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
	MetricsPort    string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ":8080"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 50),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		MQTT: MQTTConfig{
			URL:          getEnv("MQTT_URL", "tcp://localhost:1883"),
			ClientID:     getEnv("MQTT_CLIENT_ID", "argate-api"),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			CleanSession: getBool("MQTT_CLEAN_SESSION", false),
			OrderMatters: getBool("MQTT_ORDER_MATTERS", true),
			TopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "ar/t/+/status"),
		},
		MySQL: MySQLConfig{
			DSN:          getEnv("MYSQL_DSN", ""),
			MaxIdleConns: getInt("MYSQL_MAX_IDLE_CONNS", 10),
			MaxOpenConns: getInt("MYSQL_MAX_OPEN_CONNS", 50),
		},
		Auth: AuthConfig{
			Endpoint: getEnv("AUTH_ENDPOINT", ""),
			CacheTTL: getDuration("AUTH_CACHE_TTL", 5*time.Minute),
		},
		Gate: GateConfig{
			DefaultPolicy: getEnv("GATE_DEFAULT_POLICY", "tracked_or_extended_or_limited"),
			StaleAfter:    getDuration("GATE_STALE_AFTER", 30*time.Second),
			SweepInterval: getDuration("GATE_SWEEP_INTERVAL", 5*time.Second),
			AudioElements: getBool("GATE_AUDIO_ELEMENTS", true),
		},
		Geo: GeoConfig{
			DefaultRadiusKM:  getInt("DEFAULT_RADIUS_KM", 50),
			MaxRadiusKM:      getInt("MAX_RADIUS_KM", 200),
			GeohashPrecision: getInt("GEOHASH_PRECISION", 5),
		},
		Performance: PerformanceConfig{
			JournalBatchSize:      getInt("JOURNAL_BATCH_SIZE", 100),
			JournalFlushInterval:  getDuration("JOURNAL_FLUSH_INTERVAL", 5*time.Second),
			JournalQueueSize:      getInt("JOURNAL_QUEUE_SIZE", 1000),
			WebSocketPingInterval: getDuration("WEBSOCKET_PING_INTERVAL", 30*time.Second),
			WebSocketPongTimeout:  getDuration("WEBSOCKET_PONG_TIMEOUT", 60*time.Second),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			MetricsPort:    getEnv("METRICS_PORT", "9090"),
		},
	}

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.MQTT.URL == "" {
		return fmt.Errorf("MQTT_URL is required")
	}

	switch c.Gate.DefaultPolicy {
	case "tracked_only", "tracked_or_extended", "tracked_or_extended_or_limited":
	default:
		return fmt.Errorf("GATE_DEFAULT_POLICY must be one of tracked_only, tracked_or_extended, tracked_or_extended_or_limited")
	}

	if c.Gate.StaleAfter <= 0 {
		return fmt.Errorf("GATE_STALE_AFTER must be positive")
	}

	if c.Gate.SweepInterval <= 0 {
		return fmt.Errorf("GATE_SWEEP_INTERVAL must be positive")
	}

	if c.Geo.MaxRadiusKM <= 0 {
		return fmt.Errorf("MAX_RADIUS_KM must be positive")
	}

	if c.Geo.GeohashPrecision < 1 || c.Geo.GeohashPrecision > 12 {
		return fmt.Errorf("GEOHASH_PRECISION must be between 1 and 12")
	}

	if c.Performance.JournalBatchSize <= 0 {
		return fmt.Errorf("JOURNAL_BATCH_SIZE must be positive")
	}

	if c.Performance.JournalQueueSize <= 0 {
		return fmt.Errorf("JOURNAL_QUEUE_SIZE must be positive")
	}

	return nil
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "json")
}
