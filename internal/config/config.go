// Package config provides environment configuration loading and validation
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the Pathlet binaries read from the environment.
type Config struct {
	AppEnv string
	Port   int
	Host   string

	// Identity collaborator (GoTrue compatible auth API)
	AuthURL         string
	AuthAnonKey     string
	AuthRedirectURL string
	RefreshInterval time.Duration
	RefreshMargin   time.Duration

	// Session guard behaviour in the HTTP backend
	GuardResolveTimeout time.Duration
	ClientIdleTTL       time.Duration
	AuthPagePath        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string

	KafkaBrokers       string
	KafkaReadingsTopic string

	ConsulAddr  string
	ConsulToken string
	ServiceName string

	InferenceURL    string
	InferenceModel  string
	InferenceAPIKey string

	// InferenceService, when set and Consul is configured, is looked up in Consul
	// and takes precedence over InferenceURL.
	InferenceService string

	CORSOrigins []string
}

// RequiredServerVars lists the variables cmd/server refuses to start without.
var RequiredServerVars = []string{"AUTH_URL", "AUTH_ANON_KEY", "DATABASE_URL"}

// RequiredClientVars lists the variables cmd/pathlet refuses to start without.
var RequiredClientVars = []string{"AUTH_URL", "AUTH_ANON_KEY"}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	redisDB, err := GetEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	port, err := GetEnvInt("PORT", 8080)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv: GetEnvOrDefault("APP_ENV", "development"),
		Port:   port,
		Host:   GetEnvOrDefault("HOST", "localhost"),

		AuthURL:         strings.TrimRight(os.Getenv("AUTH_URL"), "/"),
		AuthAnonKey:     os.Getenv("AUTH_ANON_KEY"),
		AuthRedirectURL: GetEnvOrDefault("AUTH_REDIRECT_URL", "http://localhost:5173/welcome"),
		RefreshInterval: GetEnvDuration("AUTH_REFRESH_INTERVAL", 30*time.Second),
		RefreshMargin:   GetEnvDuration("AUTH_REFRESH_MARGIN", 60*time.Second),

		GuardResolveTimeout: GetEnvDuration("GUARD_RESOLVE_TIMEOUT", 3*time.Second),
		ClientIdleTTL:       GetEnvDuration("CLIENT_IDLE_TTL", 30*time.Minute),
		AuthPagePath:        GetEnvOrDefault("AUTH_PAGE_PATH", "/auth"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		KafkaReadingsTopic: GetEnvOrDefault("KAFKA_TOPIC_READINGS", "reading-events"),

		ConsulAddr:  os.Getenv("CONSUL_HTTP_ADDR"),
		ConsulToken: os.Getenv("CONSUL_HTTP_TOKEN"),
		ServiceName: GetEnvOrDefault("SERVICE_NAME", "pathlet-server"),

		InferenceURL:     GetEnvOrDefault("INFERENCE_URL", "https://api-inference.huggingface.co"),
		InferenceModel:   GetEnvOrDefault("INFERENCE_MODEL", "gpt2"),
		InferenceAPIKey:  os.Getenv("INFERENCE_API_KEY"),
		InferenceService: os.Getenv("INFERENCE_SERVICE"),

		CORSOrigins: splitList(GetEnvOrDefault("CORS_ORIGINS", "http://localhost:5173")),
	}

	return cfg, nil
}

// IsProduction reports whether cookies and the like should be locked down.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ValidateEnv validates that all required environment variables are set
func ValidateEnv(requiredVars []string) error {
	var missing []string

	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missing = append(missing, varName)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

// GetEnvOrDefault retrieves an environment variable or returns a default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt retrieves an integer environment variable. An unparsable value is an error
// rather than a silent fallback.
func GetEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer in %s: %w", key, err)
	}
	return n, nil
}

// GetEnvDuration retrieves a duration environment variable or returns the default
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// ErrNoOrigins is returned when CORS is configured with an empty origin list.
var ErrNoOrigins = errors.New("no CORS origins configured")

// Origins returns the CORS origin list or ErrNoOrigins.
func (c *Config) Origins() ([]string, error) {
	if len(c.CORSOrigins) == 0 {
		return nil, ErrNoOrigins
	}
	return c.CORSOrigins, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
