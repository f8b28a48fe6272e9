package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Ai       AIConfig
	Upload   UploadConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	BodyLimitMB        int
	StaticDir          string
	NatsURL            string
	NatsStream         string
	RedisURL           string
	EventTopic         string
	OtelEnabled        bool
	OtelEndpoint       string
	ServiceName        string
}

type DatabaseConfig struct {
	// Empty means the history endpoints answer 503.
	Connection string
	// "postgres" or "memory"; memory keeps history for the life of the process.
	Store string
}

type AuthConfig struct {
	JwksURL            string
	Issuer             string
	AuthorizedParty    string
	PublishableKey     string
	SecretKey          string
	JwksCacheTTL       time.Duration
	JwksMinRefresh     time.Duration
	PremiumPlanMarker  string
	ClockSkewTolerance time.Duration
}

type AIConfig struct {
	LLMProvider      string // "openai" or "ollama"
	OpenAIKey        string
	OpenAIBaseURL    string
	OllamaBaseURL    string
	BaselineModel    string
	PremiumModel     string
	ChunkIdleTimeout time.Duration
	StreamKeepAlive  time.Duration
	MaxTokens        int
}

type UploadConfig struct {
	MaxBytes       int
	FilePrecedence string // "file" or "combine"
	ImageMode      string // "vision" or "transcribe"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", getEnv("PORT", "3000")),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			BodyLimitMB:        getEnvAsInt("BODY_LIMIT_MB", 10),
			StaticDir:          getEnv("STATIC_DIR", "static"),
			NatsURL:            getEnv("NATS_URL", ""),
			NatsStream:         getEnv("NATS_STREAM", "CONSULTATIONS"),
			RedisURL:           getEnv("REDIS_URL", ""),
			EventTopic:         getEnv("CONSULTATION_EVENT_TOPIC", "CONSULTATION_EVENTS"),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName:        getEnv("OTEL_SERVICE_NAME", "ai-consultation-backend"),
		},
		Database: DatabaseConfig{
			Connection: firstEnv("POSTGRES_URL", "DATABASE_URL", "DB_CONNECTION_STRING"),
			Store:      strings.ToLower(getEnv("HISTORY_STORE", "postgres")),
		},
		Auth: AuthConfig{
			JwksURL:            getEnv("CLERK_JWKS_URL", ""),
			Issuer:             getEnv("CLERK_ISSUER", ""),
			AuthorizedParty:    getEnv("CLERK_AUTHORIZED_PARTY", ""),
			PublishableKey:     getEnv("CLERK_PUBLISHABLE_KEY", ""),
			SecretKey:          getEnv("CLERK_SECRET_KEY", ""),
			JwksCacheTTL:       getEnvAsDuration("JWKS_CACHE_TTL", time.Hour),
			JwksMinRefresh:     getEnvAsDuration("JWKS_MIN_REFRESH_INTERVAL", 30*time.Second),
			PremiumPlanMarker:  getEnv("PREMIUM_PLAN_MARKER", "premium_subscription"),
			ClockSkewTolerance: getEnvAsDuration("JWT_CLOCK_SKEW", 5*time.Second),
		},
		Ai: AIConfig{
			LLMProvider:      getEnv("LLM_PROVIDER", "openai"),
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			OllamaBaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			BaselineModel:    getEnv("LLM_BASELINE_MODEL", "gpt-4o-mini"),
			PremiumModel:     getEnv("LLM_PREMIUM_MODEL", "gpt-5"),
			ChunkIdleTimeout: getEnvAsDuration("CHUNK_IDLE_TIMEOUT", 60*time.Second),
			StreamKeepAlive:  getEnvAsDuration("SSE_KEEPALIVE_INTERVAL", 15*time.Second),
			MaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 0),
		},
		Upload: UploadConfig{
			MaxBytes:       getEnvAsInt("MAX_UPLOAD_BYTES", 5*1024*1024),
			FilePrecedence: strings.ToLower(getEnv("FILE_PRECEDENCE", "file")),
			ImageMode:      strings.ToLower(getEnv("IMAGE_MODE", "vision")),
		},
	}
}

// IsProduction reports whether the console logger should emit JSON.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// Accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
