package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Development-only signing secrets. Load refuses to start a production
// process with these; outside production they are accepted but flagged so
// the caller can log the fallback loudly.
const (
	devAccessSecret  = "dev_access_secret_do_not_use"
	devRefreshSecret = "dev_refresh_secret_do_not_use"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Log      LogConfig
	Gateways GatewayConfig
	Issues   IssueConfig
	Reports  ReportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig carries every knob of the credential and session subsystem.
// It is built once at startup and passed into constructors; nothing re-reads
// the environment afterwards.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
	Issuer             string
	CookieDomain       string
	CookieSecure       bool
	DevSecrets         bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GatewayConfig tunes the gateway registry endpoints.
type GatewayConfig struct {
	CacheTTL time.Duration
}

// IssueConfig gates issue triage extras.
type IssueConfig struct {
	ExportEnabled bool
}

// ReportConfig tunes the background report pipeline.
type ReportConfig struct {
	OutputDir       string
	SigningSecret   string
	DownloadTTL     time.Duration
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	Workers         int
	MaxRetries      int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	auth := AuthConfig{
		AccessTokenSecret:  v.GetString("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: v.GetString("REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:     parseDuration(v.GetString("ACCESS_TOKEN_TTL"), 15*time.Minute),
		RefreshTokenTTL:    parseDuration(v.GetString("REFRESH_TOKEN_TTL"), 7*24*time.Hour),
		BcryptCost:         v.GetInt("BCRYPT_COST"),
		Issuer:             v.GetString("TOKEN_ISSUER"),
		CookieDomain:       v.GetString("COOKIE_DOMAIN"),
		CookieSecure:       v.GetBool("COOKIE_SECURE") || cfg.Env == EnvProduction,
	}
	if auth.AccessTokenSecret == "" {
		auth.AccessTokenSecret = devAccessSecret
		auth.DevSecrets = true
	}
	if auth.RefreshTokenSecret == "" {
		auth.RefreshTokenSecret = devRefreshSecret
		auth.DevSecrets = true
	}
	if cfg.Env == EnvProduction && auth.DevSecrets {
		return nil, fmt.Errorf("config: token secrets must be set explicitly in production")
	}
	if auth.AccessTokenSecret == auth.RefreshTokenSecret {
		return nil, fmt.Errorf("config: access and refresh token secrets must differ")
	}
	cfg.Auth = auth

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Gateways = GatewayConfig{
		CacheTTL: parseDuration(v.GetString("GATEWAY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Issues = IssueConfig{
		ExportEnabled: v.GetBool("ENABLE_ISSUE_EXPORT"),
	}

	reports := ReportConfig{
		OutputDir:       v.GetString("REPORT_OUTPUT_DIR"),
		SigningSecret:   v.GetString("REPORT_SIGNING_SECRET"),
		DownloadTTL:     parseDuration(v.GetString("REPORT_DOWNLOAD_TTL"), 24*time.Hour),
		ResultTTL:       parseDuration(v.GetString("REPORT_RESULT_TTL"), 7*24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("REPORT_CLEANUP_INTERVAL"), time.Hour),
		Workers:         v.GetInt("REPORT_WORKERS"),
		MaxRetries:      v.GetInt("REPORT_MAX_RETRIES"),
	}
	if reports.SigningSecret == "" {
		// Derived, never equal to a token secret.
		reports.SigningSecret = auth.RefreshTokenSecret + "/reports"
	}
	cfg.Reports = reports

	return cfg, nil
}

// RefreshCookiePath returns the path the refresh cookie is scoped to. The
// cookie must never ride along on ordinary API calls.
func (c *Config) RefreshCookiePath() string {
	return c.APIPrefix + "/auth/refresh"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "mesh_registry")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("TOKEN_ISSUER", "afetnet-mesh-registry")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GATEWAY_CACHE_TTL", "5m")
	v.SetDefault("ENABLE_ISSUE_EXPORT", false)

	v.SetDefault("REPORT_OUTPUT_DIR", "./exports")
	v.SetDefault("REPORT_SIGNING_SECRET", "")
	v.SetDefault("REPORT_DOWNLOAD_TTL", "24h")
	v.SetDefault("REPORT_RESULT_TTL", "168h")
	v.SetDefault("REPORT_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORT_WORKERS", 2)
	v.SetDefault("REPORT_MAX_RETRIES", 2)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
