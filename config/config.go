package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	HTTPPort      string
	StorageDriver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxPages          int
	ExtractionCap     int
	MaxRetries        int
	PayloadTimeout    time.Duration
	VisibilityTimeout time.Duration
	AnchorTimeout     time.Duration

	Headless  bool
	ChromeBin string

	ProxyHost     string
	ProxyPort     string
	ProxyUsername string
	ProxyPassword string
	ProxyCountry  string
	ProxyLifetime string

	CapSolverAPIKey string
	TwoCaptchaKey   string

	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	ImageNamespace   string
	ImageConcurrency int
	ImageRateLimitMs int

	CSVOutputPath string

	RabbitMQURL      string
	RabbitMQExchange string

	LogLevel        string
	LogJSON         bool
	FluentEnabled   bool
	FluentHost      string
	FluentPort      int
	FluentTagPrefix string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		HTTPPort:      getEnv("HTTP_PORT", "8000"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "realestate"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxPages:          getEnvInt("MAX_PAGES", 5),
		ExtractionCap:     getEnvInt("EXTRACTION_CAP", 100),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		PayloadTimeout:    getEnvDuration("PAYLOAD_TIMEOUT", 60*time.Second),
		VisibilityTimeout: getEnvDuration("VISIBILITY_TIMEOUT", 10*time.Second),
		AnchorTimeout:     getEnvDuration("ANCHOR_TIMEOUT", 60*time.Second),

		Headless:  getEnvBool("HEADLESS", false),
		ChromeBin: getEnv("CHROME_BIN", ""),

		ProxyHost:     getEnv("PROXY_HOST", ""),
		ProxyPort:     getEnv("PROXY_PORT", "12321"),
		ProxyUsername: getEnv("PROXY_USERNAME", ""),
		ProxyPassword: getEnv("PROXY_PASSWORD", ""),
		ProxyCountry:  getEnv("PROXY_COUNTRY", "fr"),
		ProxyLifetime: getEnv("PROXY_LIFETIME", "35m"),

		CapSolverAPIKey: getEnv("CAPSOLVER_API_KEY", ""),
		TwoCaptchaKey:   getEnv("TWO_CAPTCHA_API_KEY", ""),

		S3Endpoint:       getEnv("AWS_S3_ENDPOINT", ""),
		S3AccessKey:      getEnv("AWS_S3_ACCESS_KEY", ""),
		S3SecretKey:      getEnv("AWS_S3_SECRET_KEY", ""),
		S3Bucket:         getEnv("AWS_S3_BUCKET_NAME", ""),
		ImageNamespace:   getEnv("IMAGE_NAMESPACE", "real_estate"),
		ImageConcurrency: getEnvInt("IMAGE_CONCURRENCY", 3),
		ImageRateLimitMs: getEnvInt("IMAGE_RATE_LIMIT_MS", 0),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "listings"),

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogJSON:         getEnvBool("LOG_JSON", false),
		FluentEnabled:   getEnvBool("FLUENT_ENABLED", false),
		FluentHost:      getEnv("FLUENT_HOST", "127.0.0.1"),
		FluentPort:      getEnvInt("FLUENT_PORT", 24224),
		FluentTagPrefix: getEnv("FLUENT_TAG_PREFIX", "leboncoin-scraper"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// ProxyEnabled reports whether residential proxy credentials are configured.
func (c *Config) ProxyEnabled() bool {
	return c.ProxyHost != "" && c.ProxyUsername != ""
}

// ImageStoreEnabled reports whether object storage for image re-hosting is configured.
func (c *Config) ImageStoreEnabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != "" && c.S3AccessKey != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
