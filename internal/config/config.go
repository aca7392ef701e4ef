// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Host     string
	Port     string
	BaseURL  string
	LogLevel string

	// Shared secret expected in the x-api-key header. Empty disables the gate.
	APIKey       string
	APIKeySecret string // Secret Manager resource overriding APIKey

	Gemini  GeminiConfig
	Storage StorageConfig

	MaxImageDownloadBytes int64
	HTTPTimeout           time.Duration
}

// GeminiConfig configures the generative API client.
type GeminiConfig struct {
	APIKey       string
	APIKeySecret string // Secret Manager resource, e.g. "projects/p/secrets/gemini/versions/latest"
	BaseURL      string
	ImageModel   string
	TextModel    string
	TTSModel     string
}

// StorageConfig selects and configures the file-storage backend.
type StorageConfig struct {
	Backend           string // "local", "gcs", "auto" or "s3"
	BucketName        string
	ObjectPrefix      string
	PublicReadDefault bool
	LocalBaseDir      string
	PublicBaseURL     string
	MaxUploadBytes    int64 // 0 means unlimited

	// Credentials file for GCP clients; empty means Application Default Credentials.
	CredentialsFile string

	// S3-compatible backend (MinIO, AWS S3, R2 ...)
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Bucket     string
	S3PublicBase string // browser-accessible base, e.g. "http://localhost:9000/media"
	S3UseSSL     bool
}

// Load reads configuration from env files (".env" when none are given) and
// environment variables. Variables already set in the environment win.
func Load(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("no .env file found, reading from environment")
	}

	host := getEnv("MCP_HOST", getEnv("HOST", "0.0.0.0"))
	port := getEnv("MCP_PORT", getEnv("PORT", "8000"))

	baseURL := strings.TrimRight(getEnv("BASE_URL", ""), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL(host, port)
	}

	return &Config{
		Host:         host,
		Port:         port,
		BaseURL:      baseURL,
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
		APIKey:       getEnvAllowEmpty("MCP_API_KEY", "sk-1234"),
		APIKeySecret: getEnv("MCP_API_KEY_SECRET", ""),

		Gemini: GeminiConfig{
			APIKey:       getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
			APIKeySecret: getEnv("GEMINI_API_KEY_SECRET", ""),
			BaseURL:      strings.TrimRight(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"), "/"),
			ImageModel:   getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
			TextModel:    getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
			TTSModel:     getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		},

		Storage: StorageConfig{
			Backend:           strings.ToLower(getEnv("STORAGE_BACKEND", "auto")),
			BucketName:        getEnv("GCS_BUCKET", ""),
			ObjectPrefix:      getEnv("GCS_PREFIX", ""),
			PublicReadDefault: getBool("GCS_PUBLIC_READ", false),
			LocalBaseDir:      getEnv("STATIC_DIR", "static"),
			PublicBaseURL:     baseURL,
			MaxUploadBytes:    getInt64("MAX_UPLOAD_BYTES", 100<<20),
			CredentialsFile:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

			S3Endpoint:   getEnv("S3_ENDPOINT", ""),
			S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
			S3Bucket:     getEnv("S3_BUCKET", ""),
			S3PublicBase: getEnv("S3_PUBLIC_BASE", ""),
			S3UseSSL:     getBool("S3_USE_SSL", false),
		},

		MaxImageDownloadBytes: getInt64("MAX_IMAGE_DOWNLOAD_BYTES", 20<<20),
		HTTPTimeout:           time.Duration(getInt64("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// IsDebug returns true when LOG_LEVEL=debug.
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// Warnings lists settings that will make requests fail later. Startup logs them
// instead of refusing to boot so /health stays reachable.
func (c *Config) Warnings() []string {
	var out []string
	if c.APIKey == "" && c.APIKeySecret == "" {
		out = append(out, "MCP_API_KEY is empty: x-api-key check is disabled")
	}
	if c.Gemini.APIKey == "" && c.Gemini.APIKeySecret == "" {
		out = append(out, "GEMINI_API_KEY is not configured: generation tools will fail")
	}
	switch c.Storage.Backend {
	case "local", "auto":
	case "gcs":
		if c.Storage.BucketName == "" {
			out = append(out, "STORAGE_BACKEND=gcs but GCS_BUCKET is empty: uploads will fail")
		}
	case "s3":
		if c.Storage.S3Bucket == "" || c.Storage.S3Endpoint == "" {
			out = append(out, "STORAGE_BACKEND=s3 but S3_ENDPOINT or S3_BUCKET is empty: uploads will fail")
		}
	default:
		out = append(out, fmt.Sprintf("unknown STORAGE_BACKEND %q: uploads will fail", c.Storage.Backend))
	}
	return out
}

func defaultBaseURL(host, port string) string {
	h := host
	if h == "0.0.0.0" || h == "::" || h == "" {
		h = "localhost"
	}
	return "http://" + net.JoinHostPort(h, port)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty returns fallback only when key is unset, so an explicit
// empty value can switch a feature off.
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := strings.ToLower(getEnv(key, ""))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getInt64(key string, fallback int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		log.Printf("config: ignoring invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
