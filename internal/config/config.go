package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	DatabaseURL string
	SeedSlots   bool
	SeedDays    int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Conversation engine
	DefaultLanguage    string
	ClinicName         string
	ClinicServices     []string
	ClosedWeekdays     []string
	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration

	// Knowledge base / LLM
	LLMProvider     string // "gemini" or "bedrock"
	GeminiAPIKey    string
	GeminiModelID   string
	AWSRegion       string
	BedrockModelID  string
	RetrieverURL    string
	RetrieverTopK   int
	AnswerMaxTokens int

	// Admin surface
	AdminJWTSecret string

	// SendGrid email confirmations
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	CORSAllowedOrigins []string
}

// defaultServices is the clinic's service list when CLINIC_SERVICES is unset.
var defaultServices = []string{
	"physiotherapy",
	"massage",
	"osteopathy",
	"mental coaching",
	"ergotherapy",
	"acupuncture",
	"nutrition counseling",
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SeedSlots:   getEnvAsBool("SEED_SLOTS", false),
		SeedDays:    getEnvAsInt("SEED_DAYS", 14),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DefaultLanguage:    getEnv("DEFAULT_LANGUAGE", "en"),
		ClinicName:         getEnv("CLINIC_NAME", "Functiomed"),
		ClinicServices:     getEnvAsList("CLINIC_SERVICES", defaultServices),
		ClosedWeekdays:     getEnvAsList("CLINIC_CLOSED_WEEKDAYS", []string{"sunday"}),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),
		SweepInterval:      getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		LLMProvider:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:   getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", ""),
		RetrieverURL:    getEnv("KNOWLEDGE_RETRIEVER_URL", ""),
		RetrieverTopK:   getEnvAsInt("KNOWLEDGE_RETRIEVER_TOP_K", 4),
		AnswerMaxTokens: getEnvAsInt("KNOWLEDGE_ANSWER_MAX_TOKENS", 400),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Functiomed"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, trimming blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
