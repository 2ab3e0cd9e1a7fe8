package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	RedisURL             string
	JWTSecret            string
	StorageBucket        string
	SandboxEndpoint      string
	MetadataTokenURL     string
	SandboxTimeout       time.Duration
	SandboxRetryCount    int
	SandboxRetryDelay    time.Duration
	SchemeCacheTTL       time.Duration
	DefaultGradingScheme string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsLocal reports whether the service runs outside a production-like
// environment, in which case the sandbox auth handshake is skipped.
func (c Config) IsLocal() bool {
	env := strings.ToLower(c.AppEnv)
	return env == "local" || env == "development" || env == "test"
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("QFEED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "QFeed Grading API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("metadata.token_url", "http://metadata/computeMetadata/v1/instance/service-accounts/default/identity")
	v.SetDefault("sandbox.timeout_ms", 30000)
	v.SetDefault("sandbox.retry_count", 2)
	v.SetDefault("sandbox.retry_delay_ms", 500)
	v.SetDefault("scheme.cache_ttl", "10m")
	v.SetDefault("grading.default_scheme", defaultGradingScheme)

	ttlString := v.GetString("scheme.cache_ttl")
	if ttlString == "" {
		ttlString = "10m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid scheme cache ttl: %w", err)
	}

	timeoutMs := v.GetInt("sandbox.timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}

	retryDelayMs := v.GetInt("sandbox.retry_delay_ms")
	if retryDelayMs <= 0 {
		retryDelayMs = 500
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		JWTSecret:            v.GetString("jwt.secret"),
		StorageBucket:        v.GetString("storage.bucket"),
		SandboxEndpoint:      v.GetString("sandbox.endpoint"),
		MetadataTokenURL:     v.GetString("metadata.token_url"),
		SandboxTimeout:       time.Duration(timeoutMs) * time.Millisecond,
		SandboxRetryCount:    v.GetInt("sandbox.retry_count"),
		SandboxRetryDelay:    time.Duration(retryDelayMs) * time.Millisecond,
		SchemeCacheTTL:       ttl,
		DefaultGradingScheme: v.GetString("grading.default_scheme"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.SandboxEndpoint == "" {
		return Config{}, fmt.Errorf("sandbox endpoint must be provided")
	}

	if cfg.SandboxRetryCount < 0 {
		cfg.SandboxRetryCount = 0
	}

	return cfg, nil
}

// defaultGradingScheme maps an aggregate score to a pass/fail label when an
// assignment does not carry its own scheme. Course staff normally override it.
const defaultGradingScheme = `result = input.score >= 55 ? "pass" : "fail";`
