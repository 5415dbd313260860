package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Chat        ChatConfig
	Upload      UploadConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DatabaseConfig - Postgres нужен только для журнала модерации, пустой DSN его отключает
type DatabaseConfig struct {
	DSN            string
	MaxConnections int
}

// RedisConfig - пустой адрес переключает rate limit на in-memory
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Ban policies
const (
	BanPolicySession = "session"
	BanPolicyName    = "name"
	BanPolicyOrigin  = "origin"
)

type ChatConfig struct {
	AdminName         string
	HistoryLimit      int
	BootstrapLimit    int
	OnlineTimeout     time.Duration
	TypingQuiet       time.Duration
	PollInterval      time.Duration
	IdleEvictAfter    time.Duration // 0 - никогда не удалять по неактивности
	SweepInterval     time.Duration
	BanPolicy         string
	LeaveOnDisconnect bool
	MaxNameLength     int
	PushBuffer        int
}

type UploadConfig struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
	MaxFiles  int
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	// Загрузка .env файла (если существует)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 3000),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			DSN:            getEnv("DATABASE_DSN", ""),
			MaxConnections: getEnvAsInt("DATABASE_MAX_CONNECTIONS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "chat-session-secret-change-in-production"),
			TTL:    getEnvAsDuration("JWT_TTL", 24*time.Hour),
			Issuer: getEnv("JWT_ISSUER", "chatvercel"),
		},
		Chat: DefaultChatConfig(),
		Upload: UploadConfig{
			Dir:       getEnv("UPLOAD_DIR", "./public/uploads"),
			URLPrefix: getEnv("UPLOAD_URL_PREFIX", "/uploads"),
			MaxBytes:  int64(getEnvAsInt("UPLOAD_MAX_BYTES", 5_000_000)),
			MaxFiles:  getEnvAsInt("UPLOAD_MAX_FILES", 5),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	chat := &cfg.Chat
	chat.AdminName = getEnv("CHAT_ADMIN_NAME", chat.AdminName)
	chat.HistoryLimit = getEnvAsInt("CHAT_HISTORY_LIMIT", chat.HistoryLimit)
	chat.BootstrapLimit = getEnvAsInt("CHAT_BOOTSTRAP_LIMIT", chat.BootstrapLimit)
	chat.OnlineTimeout = getEnvAsDuration("CHAT_ONLINE_TIMEOUT", chat.OnlineTimeout)
	chat.TypingQuiet = getEnvAsDuration("CHAT_TYPING_QUIET", chat.TypingQuiet)
	chat.PollInterval = getEnvAsDuration("CHAT_POLL_INTERVAL", chat.PollInterval)
	chat.IdleEvictAfter = getEnvAsDuration("CHAT_IDLE_EVICT_AFTER", chat.IdleEvictAfter)
	chat.SweepInterval = getEnvAsDuration("CHAT_SWEEP_INTERVAL", chat.SweepInterval)
	chat.BanPolicy = strings.ToLower(getEnv("CHAT_BAN_POLICY", chat.BanPolicy))
	chat.LeaveOnDisconnect = getEnvAsBool("CHAT_LEAVE_ON_DISCONNECT", chat.LeaveOnDisconnect)
	chat.MaxNameLength = getEnvAsInt("CHAT_MAX_NAME_LENGTH", chat.MaxNameLength)
	chat.PushBuffer = getEnvAsInt("CHAT_PUSH_BUFFER", chat.PushBuffer)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultChatConfig - значения по умолчанию, совпадающие с исходным сервером
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		AdminName:         "admin",
		HistoryLimit:      200,
		BootstrapLimit:    50,
		OnlineTimeout:     10 * time.Second,
		TypingQuiet:       3 * time.Second,
		PollInterval:      2 * time.Second,
		SweepInterval:     time.Second,
		BanPolicy:         BanPolicySession,
		LeaveOnDisconnect: true,
		MaxNameLength:     32,
		PushBuffer:        64,
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret must be set")
	}
	if c.Upload.MaxFiles <= 0 || c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload limits must be positive")
	}
	return c.Chat.Validate()
}

func (c ChatConfig) Validate() error {
	if strings.TrimSpace(c.AdminName) == "" {
		return fmt.Errorf("admin name must be set")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive")
	}
	if c.BootstrapLimit <= 0 || c.BootstrapLimit > c.HistoryLimit {
		return fmt.Errorf("bootstrap limit must be in 1..%d", c.HistoryLimit)
	}
	if c.TypingQuiet <= 0 || c.OnlineTimeout <= 0 {
		return fmt.Errorf("typing and online windows must be positive")
	}
	if c.TypingQuiet >= c.OnlineTimeout {
		return fmt.Errorf("typing quiet window must be shorter than online timeout")
	}
	if c.SweepInterval <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("sweep and poll intervals must be positive")
	}
	if c.MaxNameLength <= 0 || c.PushBuffer <= 0 {
		return fmt.Errorf("name length and push buffer must be positive")
	}
	switch c.BanPolicy {
	case BanPolicySession, BanPolicyName, BanPolicyOrigin:
	default:
		return fmt.Errorf("unknown ban policy %q", c.BanPolicy)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(getEnv(key, ""))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}
