package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Addr     string
	DataDir  string
	LogLevel string
	// LogFormat is "json" or "console".
	LogFormat string

	// Hosted data store
	DatabaseURL  string
	PublicAPIKey string

	// Guest identity tokens
	AuthJWTSecret string

	// Media storage
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageUseSSL    bool
	StorageBucket    string
	StoragePublicURL string
	UploadOrigin     string
	UploadURLTTL     time.Duration
	StoryTTL         time.Duration

	// Rate limiting of RSVP submissions, disabled without RedisAddr
	RedisAddr      string
	RSVPRateLimit  int
	RSVPRateWindow time.Duration
	// Peers whose X-Forwarded-For header is believed
	TrustedProxies []string

	// WhatsApp host notifications
	WhatsAppEnabled     bool
	WhatsAppHostPhones  []string
	WhatsAppCountryCode string

	WeddingDate     string
	WeddingLocation string
	BrideName       string
	GroomName       string

	OTELEndpoint    string
	OTELServiceName string
}

// LoadConfig loads configuration from environment variables or defaults
func LoadConfig() *Config {
	return &Config{
		Addr:      getEnv("ADDR", ":8080"),
		DataDir:   getEnv("DATA_DIR", "data"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		PublicAPIKey: os.Getenv("PUBLIC_API_KEY"),

		AuthJWTSecret: os.Getenv("AUTH_JWT_SECRET"),

		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey: os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey: os.Getenv("STORAGE_SECRET_KEY"),
		StorageUseSSL:    getBool("STORAGE_USE_SSL", false),
		StorageBucket:    getEnv("STORAGE_BUCKET", "wedding-media"),
		StoragePublicURL: os.Getenv("STORAGE_PUBLIC_URL"),
		UploadOrigin:     getEnv("UPLOAD_ALLOWED_ORIGIN", "*"),
		UploadURLTTL:     getDuration("UPLOAD_URL_TTL", 2*time.Hour),
		StoryTTL:         getDuration("STORY_TTL", 24*time.Hour),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RSVPRateLimit:  getInt("RSVP_RATE_LIMIT", 10),
		RSVPRateWindow: getDuration("RSVP_RATE_WINDOW", time.Minute),
		TrustedProxies: getList("TRUSTED_PROXIES"),

		WhatsAppEnabled:     getBool("WHATSAPP_ENABLED", false),
		WhatsAppHostPhones:  getList("WHATSAPP_HOST_PHONES"),
		WhatsAppCountryCode: getEnv("WHATSAPP_COUNTRY_CODE", ""),

		WeddingDate:     getEnv("WEDDING_DATE", "Saturday, January 1, 2025"),
		WeddingLocation: getEnv("WEDDING_LOCATION", "Venue TBD"),
		BrideName:       getEnv("BRIDE_NAME", "Bride"),
		GroomName:       getEnv("GROOM_NAME", "Groom"),

		OTELEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELServiceName: getEnv("OTEL_SERVICE_NAME", "wedding-site"),
	}
}

// ValidateServer reports the settings the HTTP server cannot start without.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.AuthJWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.StorageAccessKey == "" || c.StorageSecretKey == "" {
		errs = append(errs, errors.New("STORAGE_ACCESS_KEY and STORAGE_SECRET_KEY are required"))
	}
	if c.WhatsAppEnabled && len(c.WhatsAppHostPhones) == 0 {
		errs = append(errs, errors.New("WHATSAPP_HOST_PHONES is required when WHATSAPP_ENABLED is set"))
	}
	return errors.Join(errs...)
}

// ValidateDatabase reports whether commands that only read the store can run.
func (c *Config) ValidateDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// PublicMediaBase is the URL prefix under which uploaded objects resolve.
func (c *Config) PublicMediaBase() string {
	if c.StoragePublicURL != "" {
		return strings.TrimRight(c.StoragePublicURL, "/")
	}
	scheme := "http"
	if c.StorageUseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, c.StorageEndpoint, c.StorageBucket)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
