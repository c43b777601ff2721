package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Chat      ChatConfig
	Websocket WebsocketConfig
	Presence  PresenceConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// ChatConfig tunes conversation and message behavior.
type ChatConfig struct {
	PageSize       int
	MaxPageSize    int
	WelcomeMessage string
}

// WebsocketConfig tunes the realtime transport.
type WebsocketConfig struct {
	PingIntervalSeconds  int
	WriteDeadlineSeconds int
	MaxMessageBytes      int64
	SendBufferSize       int
}

// PresenceConfig controls the advisory presence mirror in Redis.
type PresenceConfig struct {
	KeyPrefix  string
	TTLSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "calmtunes-chat-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Chat: ChatConfig{
			PageSize:       getEnvAsInt("CHAT_PAGE_SIZE", 50),
			MaxPageSize:    getEnvAsInt("CHAT_MAX_PAGE_SIZE", 200),
			WelcomeMessage: getEnv("CHAT_WELCOME_MESSAGE", "Hi, thanks for reaching out. How can I support you today?"),
		},
		Websocket: WebsocketConfig{
			PingIntervalSeconds:  getEnvAsInt("WS_PING_INTERVAL_SECONDS", 30),
			WriteDeadlineSeconds: getEnvAsInt("WS_WRITE_DEADLINE_SECONDS", 10),
			MaxMessageBytes:      int64(getEnvAsInt("WS_MAX_MESSAGE_BYTES", 16384)),
			SendBufferSize:       getEnvAsInt("WS_SEND_BUFFER_SIZE", 64),
		},
		Presence: PresenceConfig{
			KeyPrefix:  getEnv("PRESENCE_KEY_PREFIX", "presence"),
			TTLSeconds: getEnvAsInt("PRESENCE_TTL_SECONDS", 90),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PingInterval returns the websocket keepalive interval.
func (w WebsocketConfig) PingInterval() time.Duration {
	if w.PingIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(w.PingIntervalSeconds) * time.Second
}

// WriteDeadline returns the per-write deadline for websocket frames.
func (w WebsocketConfig) WriteDeadline() time.Duration {
	if w.WriteDeadlineSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.WriteDeadlineSeconds) * time.Second
}

// TTL returns how long a presence key lives without a refresh.
func (p PresenceConfig) TTL() time.Duration {
	if p.TTLSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(p.TTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
