package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-this-secret-key"

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	API        APIConfig
	CORS       CORSConfig
	Livepeer   LivepeerConfig
	Moderation ModerationConfig
	Tracing    TracingConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Administrative role used only by the webhook path.
	AdminUser     string
	AdminPassword string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type APIConfig struct {
	RateLimitMessagesPerSec int
	ChatBurst               int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LivepeerConfig struct {
	APIKey          string
	APIBaseURL      string
	IngestURL       string
	PlaybackBaseURL string
	WebhookSecret   string
}

type ModerationConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	OTLPEndpoint string
	SamplerRatio float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			Env:             v.GetString("ENV"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:          v.GetString("DB_HOST"),
			Port:          v.GetString("DB_PORT"),
			User:          v.GetString("DB_USER"),
			Password:      v.GetString("DB_PASSWORD"),
			DBName:        v.GetString("DB_NAME"),
			SSLMode:       v.GetString("DB_SSLMODE"),
			AdminUser:     v.GetString("DB_ADMIN_USER"),
			AdminPassword: v.GetString("DB_ADMIN_PASSWORD"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Enabled:  v.GetBool("REDIS_ENABLED"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		API: APIConfig{
			RateLimitMessagesPerSec: v.GetInt("RATE_LIMIT_MESSAGES_PER_SECOND"),
			ChatBurst:               v.GetInt("RATE_LIMIT_CHAT_BURST"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Livepeer: LivepeerConfig{
			APIKey:          v.GetString("LIVEPEER_API_KEY"),
			APIBaseURL:      v.GetString("LIVEPEER_API_URL"),
			IngestURL:       v.GetString("LIVEPEER_INGEST_URL"),
			PlaybackBaseURL: v.GetString("LIVEPEER_PLAYBACK_URL"),
			WebhookSecret:   v.GetString("LIVEPEER_WEBHOOK_SECRET"),
		},
		Moderation: ModerationConfig{
			Provider: strings.ToLower(v.GetString("AI_PROVIDER")),
			APIKey:   v.GetString("AI_API_KEY"),
			Model:    v.GetString("AI_MODEL"),
			BaseURL:  v.GetString("AI_BASE_URL"),
			Timeout:  v.GetDuration("MODERATION_TIMEOUT"),
		},
		Tracing: TracingConfig{
			Enabled:      v.GetBool("OTEL_ENABLED"),
			Exporter:     v.GetString("OTEL_EXPORTER"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SamplerRatio: v.GetFloat64("OTEL_SAMPLER_RATIO"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "livecast")
	v.SetDefault("DB_PASSWORD", "livecast_password")
	v.SetDefault("DB_NAME", "livecast_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_ADMIN_USER", "")
	v.SetDefault("DB_ADMIN_PASSWORD", "")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", true)

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_EXPIRY_HOURS", 168)

	v.SetDefault("RATE_LIMIT_MESSAGES_PER_SECOND", 2)
	v.SetDefault("RATE_LIMIT_CHAT_BURST", 5)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	v.SetDefault("LIVEPEER_API_KEY", "")
	v.SetDefault("LIVEPEER_API_URL", "https://livepeer.studio/api")
	v.SetDefault("LIVEPEER_INGEST_URL", "rtmp://rtmp.livepeer.com/live")
	v.SetDefault("LIVEPEER_PLAYBACK_URL", "https://playback.livepeer.studio")
	v.SetDefault("LIVEPEER_WEBHOOK_SECRET", "")

	v.SetDefault("AI_PROVIDER", "openai")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_MODEL", "")
	v.SetDefault("AI_BASE_URL", "")
	v.SetDefault("MODERATION_TIMEOUT", "5s")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER", "stdout")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("OTEL_SAMPLER_RATIO", 1.0)
}

// Validate checks values that cannot be defaulted safely.
func (c *Config) Validate() error {
	if c.Moderation.Timeout <= 0 {
		return fmt.Errorf("MODERATION_TIMEOUT must be positive")
	}
	if c.API.RateLimitMessagesPerSec <= 0 {
		return fmt.Errorf("RATE_LIMIT_MESSAGES_PER_SECOND must be positive")
	}
	switch c.Moderation.Provider {
	case "openai", "groq":
	default:
		return fmt.Errorf("unsupported AI_PROVIDER %q", c.Moderation.Provider)
	}

	if c.Server.Env != "production" {
		return nil
	}
	if c.JWT.Secret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.Database.AdminUser == "" {
		return fmt.Errorf("DB_ADMIN_USER must be set in production")
	}
	if c.Database.AdminUser == c.Database.User {
		return fmt.Errorf("DB_ADMIN_USER must differ from DB_USER in production")
	}
	return nil
}

// GetDSN returns the database connection string for the end-user scoped role
func (c *Config) GetDSN() string {
	return c.dsn(c.Database.User, c.Database.Password)
}

// GetAdminDSN returns the connection string for the administrative role.
// Outside production it falls back to the regular credential.
func (c *Config) GetAdminDSN() string {
	if c.Database.AdminUser == "" {
		return c.GetDSN()
	}
	return c.dsn(c.Database.AdminUser, c.Database.AdminPassword)
}

func (c *Config) dsn(user, password string) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		user,
		password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
