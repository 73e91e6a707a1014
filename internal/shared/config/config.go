package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"disc-report/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	ServiceToken    string
	DatabaseURL     string

	// DB pool overrides; zero keeps the runtime profile's default.
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBPingTimeout     time.Duration

	ObjectStoreType    string
	LocalStoreDir      string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string
	SSEKMSKeyID        string
	GCSBucket          string
	GCSPrefix          string
	GCSCredentialsFile string
	QueueURL           string

	WorkerConcurrency int
	QueueVisibility   time.Duration
	ShutdownTimeout   time.Duration
	CleanupInterval   time.Duration
	CleanupBatch      int

	TemplatesDir    string
	AssetsDir       string
	ManifestDir     string
	TemplateVersion string
	AllowScripts    bool
	VerifyPDFText   bool

	Renderer          string
	ChromeBin         string
	RenderAPIURL      string
	RenderAPIKey      string
	RenderMaxAttempts int
	RenderBackoffBase time.Duration
	RenderBackoffMax  time.Duration
	RenderHTTPTimeout time.Duration
	RenderPageTimeout time.Duration
	RenderInlineLimit int
	RenderConcurrency int
	GenerationTimeout time.Duration
	GenerationMode    string
	LockTTL           time.Duration
	DocumentRetention time.Duration
	SignedURLTTL      time.Duration

	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	MailFrom    string
	CompanyName string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		telemetry.Warn("config.missing", map[string]any{"key": "DATABASE_URL", "env": env})
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ServiceToken:    getEnv("SERVICE_TOKEN", ""),
		DatabaseURL:     dbURL,

		DBMaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 0),
		DBMaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 0),
		DBConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 0),
		DBConnMaxIdleTime: getDuration("DB_CONN_MAX_IDLE_TIME", 0),
		DBPingTimeout:     getDuration("DB_PING_TIMEOUT", 0),

		ObjectStoreType:    normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:      getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:          getEnv("AWS_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Prefix:           getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:        getEnv("SSE_KMS_KEY_ID", ""),
		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSPrefix:          getEnv("GCS_PREFIX", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		QueueURL:           getEnv("REPORT_SQS_QUEUE_URL", ""),

		WorkerConcurrency: getInt("REPORT_WORKER_CONCURRENCY", 2),
		QueueVisibility:   getDuration("REPORT_SQS_VISIBILITY_TIMEOUT", 5*time.Minute),
		ShutdownTimeout:   getDuration("REPORT_SHUTDOWN_TIMEOUT", 30*time.Second),
		CleanupInterval:   getDuration("REPORT_CLEANUP_INTERVAL", time.Hour),
		CleanupBatch:      getInt("REPORT_CLEANUP_BATCH", 200),

		TemplatesDir:    getEnv("REPORT_TEMPLATES_DIR", "./templates"),
		AssetsDir:       getEnv("REPORT_ASSETS_DIR", "./templates/shared"),
		ManifestDir:     getEnv("REPORT_MANIFEST_DIR", "./templates/manifests"),
		TemplateVersion: getEnv("TEMPLATE_VERSION", "v1"),
		AllowScripts:    getBool("REPORT_ALLOW_SCRIPTS", false),
		VerifyPDFText:   getBool("VERIFY_PDF_TEXT", false),

		Renderer:          normalizeRenderer(getEnv("RENDERER", "local")),
		ChromeBin:         getEnv("CHROME_BIN", ""),
		RenderAPIURL:      getEnv("RENDER_API_URL", ""),
		RenderAPIKey:      getEnv("RENDER_API_KEY", ""),
		RenderMaxAttempts: getInt("RENDER_MAX_ATTEMPTS", 3),
		RenderBackoffBase: getDuration("RENDER_BACKOFF_BASE", 500*time.Millisecond),
		RenderBackoffMax:  getDuration("RENDER_BACKOFF_MAX", 8*time.Second),
		RenderHTTPTimeout: getDuration("RENDER_HTTP_TIMEOUT", 120*time.Second),
		RenderPageTimeout: getDuration("RENDER_PAGE_TIMEOUT", 45*time.Second),
		RenderInlineLimit: getInt("RENDER_INLINE_LIMIT_BYTES", 4<<20),
		RenderConcurrency: getInt("RENDER_CONCURRENCY", 3),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 150*time.Second),
		GenerationMode:    normalizeGenerationMode(getEnv("GENERATION_MODE", "sync")),
		LockTTL:           getDuration("LOCK_TTL", 3*time.Minute),
		DocumentRetention: getDuration("DOCUMENT_RETENTION", 180*24*time.Hour),
		SignedURLTTL:      getDuration("SIGNED_URL_TTL", 15*time.Minute),

		SMTPHost:    getEnv("SMTP_HOST", ""),
		SMTPPort:    getInt("SMTP_PORT", 587),
		SMTPUser:    getEnv("SMTP_USER", ""),
		SMTPPass:    getEnv("SMTP_PASS", ""),
		MailFrom:    getEnv("MAIL_FROM", "rapport@example.com"),
		CompanyName: getEnv("COMPANY_NAME", "The Lean Communication"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		invalidValue(key, raw, "int", err)
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		invalidValue(key, raw, "bool", err)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		invalidValue(key, raw, "duration", err)
		return def
	}
	return val
}

func invalidValue(key, raw, kind string, err error) {
	telemetry.Warn("config.invalid_value", map[string]any{
		"key":   key,
		"value": raw,
		"want":  kind,
		"error": err,
	})
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
	case "gcs", "gs":
		return "gcs"
	default:
		return "local"
	}
}

func normalizeRenderer(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "remote", "http", "api":
		return "remote"
	default:
		return "local"
	}
}

func normalizeGenerationMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queue", "async":
		return "queue"
	default:
		return "sync"
	}
}
