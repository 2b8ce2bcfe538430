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
	Addr           string
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
	TrustedProxies []string

	DatabaseURL   string
	MigrationsDir string

	JWTSecret   string
	JWTAudience string

	RedisURL            string
	LeaderboardCacheTTL time.Duration
	IdentityCacheSize   int
	IdentityCacheTTL    time.Duration

	MeiliURL       string
	MeiliMasterKey string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	LLMBaseURL string
	LLMToken   string
	LLMModel   string
	LLMTimeout time.Duration

	RevisionsDir string

	// SMTP - email disabled if host is empty
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	MentionWorkers   int
	MentionQueueSize int

	DecideRequiresReviewer bool
	AllowRedecide          bool
}

// Load reads .env files (best effort) and then the process environment.
// Variables already set in the environment win over .env values.
func Load() Config {
	for _, location := range []string{".env", "../../.env"} {
		if err := godotenv.Load(location); err == nil {
			log.Printf("config: loaded %s", location)
			break
		}
	}

	return Config{
		Addr:           getenv("API_ADDR", ":8787"),
		CORSOrigin:     getenv("CORS_ORIGIN", "*"),
		RateLimitRPS:   getenvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getenvInt("RATE_LIMIT_BURST", 10),
		TrustedProxies: getenvList("TRUSTED_PROXIES"),

		DatabaseURL:   getenv("DATABASE_URL", ""),
		MigrationsDir: getenv("MIGRATIONS_DIR", "./db/migrations"),

		JWTSecret:   getenv("SUPABASE_JWT_SECRET", ""),
		JWTAudience: getenv("JWT_AUDIENCE", "authenticated"),

		RedisURL:            getenv("REDIS_URL", ""),
		LeaderboardCacheTTL: time.Duration(getenvInt("LEADERBOARD_CACHE_TTL_SECONDS", 30)) * time.Second,
		IdentityCacheSize:   getenvInt("IDENTITY_CACHE_SIZE", 1024),
		IdentityCacheTTL:    time.Duration(getenvInt("IDENTITY_CACHE_TTL_SECONDS", 300)) * time.Second,

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "submission-attachments"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),

		LLMBaseURL: getenv("LLM_BASE_URL", ""),
		LLMToken:   getenv("LLM_TOKEN", ""),
		LLMModel:   getenv("LLM_MODEL", ""),
		LLMTimeout: time.Duration(getenvInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,

		RevisionsDir: getenvAllowEmpty("REVISIONS_DIR", "./data/revisions"),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "CodeCollab"),

		MentionWorkers:   getenvInt("MENTION_WORKERS", 2),
		MentionQueueSize: getenvInt("MENTION_QUEUE_SIZE", 256),

		DecideRequiresReviewer: getenvBool("DECIDE_REQUIRES_REVIEWER", false),
		AllowRedecide:          getenvBool("ALLOW_REDECIDE", true),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// getenvAllowEmpty treats an explicitly empty variable as "disabled".
func getenvAllowEmpty(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(value)
}

// getenvList splits a comma-separated variable, dropping empty entries.
func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
