package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port             string
	CORSAllowOrigin  []string
	ObjectStoreType  string
	LocalStoreDir    string
	AWSRegion        string
	S3Bucket         string
	S3Prefix         string
	SSEKMSKeyID      string
	DatabaseURL      string
	RedisURL         string
	QueueURL         string
	Env              string
	VoiceBaseURL     string
	VoiceHost        string
	RapidAPIKey      string
	ElevenLabsAPIKey string
	VoiceTimeout     time.Duration
	JobStatusTTL     time.Duration
	JobStaleAfter    time.Duration
	MaxUploadBytes   int64
	DefaultPlanID    string
	JWTSecret        string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience. Existing
	// environment variables win over file values.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:             getEnv("PORT", "8080"),
		CORSAllowOrigin:  splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType:  normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:    getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:        getEnv("AWS_REGION", ""),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3Prefix:         getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:      getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:      dbURL,
		RedisURL:         getEnv("REDIS_URL", ""),
		QueueURL:         getEnv("NB_SQS_QUEUE_URL", ""),
		Env:              env,
		VoiceBaseURL:     getEnv("VOICE_BASE_URL", "https://elevenlabs-mcp.p.rapidapi.com"),
		VoiceHost:        getEnv("VOICE_HOST", "elevenlabs-mcp.p.rapidapi.com"),
		RapidAPIKey:      getEnv("RAPIDAPI_KEY", ""),
		ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),
		VoiceTimeout:     getDuration("VOICE_TIMEOUT", 5*time.Minute),
		JobStatusTTL:     getDuration("JOB_STATUS_TTL", 24*time.Hour),
		JobStaleAfter:    getDuration("JOB_STALE_AFTER", 20*time.Minute),
		MaxUploadBytes:   20 << 20,
		DefaultPlanID:    getEnv("DEFAULT_PLAN_ID", "free"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
	}
}

func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Printf("config: skip env file %s: %v", path, err)
		}
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config: %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
