package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port string

	PGURL string
	Redis string

	AsynqConcurrency int // worker concurrency (default 4)

	ReplicateToken    string
	SupabaseJWTSecret string // legacy; used only if SupabaseURL not set
	SupabaseURL       string // e.g. https://xxx.supabase.co, used for JWKS verification

	// S3-compatible object storage (Supabase Storage, Cloudflare R2, MinIO)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3PublicURL string // e.g. https://storage.petportraits.app for public read URLs

	// Replicate model identifiers per pipeline mode. Overridable at runtime
	// via the admin model-settings table; these are the env fallbacks.
	ModelSimple  string // single-pass stylization
	ModelHD      string // higher-fidelity base model for the multimodel pipeline
	ModelUpscale string // super-resolution stage (hybrid 2x, multimodel 4x)

	// Daily generation quota per tier. 0 = unlimited.
	QuotaGuest    int
	QuotaLoggedIn int

	// CORS: comma-separated origins. Empty = allow "*"
	CORSOrigins string

	// TrustProxy honors X-Forwarded-For for client IPs (rate limits, guest
	// quota keys). Leave on only behind a proxy that overwrites the header.
	TrustProxy bool
}

func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		PGURL:            getEnv("DATABASE_URL", "postgres://localhost/petportraits?sslmode=disable"),
		Redis:            getEnv("REDIS_URL", "redis://localhost:6379"),
		AsynqConcurrency: getEnvInt("ASYNQ_CONCURRENCY", 4),

		ReplicateToken:    getEnv("REPLICATE_API_TOKEN", ""),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseURL:       strings.TrimSuffix(strings.TrimSpace(trimQuotes(getEnv("SUPABASE_URL", ""))), "/"),

		S3Endpoint:  s3Endpoint(),
		S3Region:    getEnv("S3_REGION", "auto"),
		S3Bucket:    getEnv("S3_BUCKET", "pet-portraits"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3UseSSL:    getEnvBool("S3_USE_SSL", true),
		S3PublicURL: strings.TrimSuffix(getEnv("S3_PUBLIC_URL", ""), "/"),

		ModelSimple:  getEnv("REPLICATE_MODEL_SIMPLE", "black-forest-labs/flux-kontext-pro"),
		ModelHD:      getEnv("REPLICATE_MODEL_HD", "google/nano-banana"),
		ModelUpscale: getEnv("REPLICATE_MODEL_UPSCALE", "nightmareai/real-esrgan"),

		QuotaGuest:    getEnvInt("QUOTA_GUEST_DAILY", 3),
		QuotaLoggedIn: getEnvInt("QUOTA_LOGGED_IN_DAILY", 50),

		CORSOrigins: strings.TrimSpace(getEnv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),

		TrustProxy: getEnvBool("TRUST_PROXY_HEADERS", true),
	}
}

func getEnv(k, defaultV string) string {
	if v := os.Getenv(k); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultV
}

// s3Endpoint returns S3_ENDPOINT with scheme stripped for the AWS SDK.
func s3Endpoint() string {
	raw := getEnv("S3_ENDPOINT", "")
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	return raw
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func getEnvInt(k string, defaultV int) int {
	if v := os.Getenv(k); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultV
}

func getEnvBool(k string, defaultV bool) bool {
	if v := os.Getenv(k); v != "" {
		return v == "1" || v == "true" || v == "yes"
	}
	return defaultV
}
