package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store backends selectable through CORRECTIONS_STORE.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Corrections CorrectionsConfig
	Cache       CacheConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
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
	ConnLifetime time.Duration
	ConnIdleTime time.Duration
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CorrectionsConfig holds the business rules of the correction workflow.
type CorrectionsConfig struct {
	Store           string
	SeedFile        string
	MaxBatchSize    int
	ReasonMinLength int
	ReasonMaxLength int
	NoteMaxLength   int
	DefaultPageSize int
	MaxPageSize     int
}

// CacheConfig toggles Redis backed caching for the pending queue.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AuditConfig controls the asynchronous audit writer.
type AuditConfig struct {
	Enabled    bool
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// MetricsConfig toggles Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		ConnLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		ConnIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: v.GetDuration("REDIS_DIAL_TIMEOUT"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Corrections = CorrectionsConfig{
		Store:           strings.ToLower(strings.TrimSpace(v.GetString("CORRECTIONS_STORE"))),
		SeedFile:        strings.TrimSpace(v.GetString("CORRECTIONS_SEED_FILE")),
		MaxBatchSize:    positiveOr(v.GetInt("CORRECTIONS_MAX_BATCH_SIZE"), 50),
		ReasonMinLength: positiveOr(v.GetInt("CORRECTIONS_REASON_MIN_LENGTH"), 10),
		ReasonMaxLength: positiveOr(v.GetInt("CORRECTIONS_REASON_MAX_LENGTH"), 500),
		NoteMaxLength:   positiveOr(v.GetInt("CORRECTIONS_NOTE_MAX_LENGTH"), 500),
		DefaultPageSize: positiveOr(v.GetInt("CORRECTIONS_DEFAULT_PAGE_SIZE"), 20),
		MaxPageSize:     positiveOr(v.GetInt("CORRECTIONS_MAX_PAGE_SIZE"), 100),
	}
	if cfg.Corrections.Store != StoreMemory {
		cfg.Corrections.Store = StorePostgres
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CORRECTIONS_CACHE_TTL"), time.Minute),
	}

	cfg.Audit = AuditConfig{
		Enabled:    v.GetBool("ENABLE_AUDIT"),
		Workers:    positiveOr(v.GetInt("AUDIT_WORKERS"), 1),
		MaxRetries: positiveOr(v.GetInt("AUDIT_MAX_RETRIES"), 3),
		RetryDelay: parseDuration(v.GetString("AUDIT_RETRY_DELAY"), time.Second),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("ENABLE_METRICS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "30m")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "attendance-correction-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CORRECTIONS_STORE", StorePostgres)
	v.SetDefault("CORRECTIONS_SEED_FILE", "configs/attendance-seed.yaml")
	v.SetDefault("CORRECTIONS_MAX_BATCH_SIZE", 50)
	v.SetDefault("CORRECTIONS_REASON_MIN_LENGTH", 10)
	v.SetDefault("CORRECTIONS_REASON_MAX_LENGTH", 500)
	v.SetDefault("CORRECTIONS_NOTE_MAX_LENGTH", 500)
	v.SetDefault("CORRECTIONS_DEFAULT_PAGE_SIZE", 20)
	v.SetDefault("CORRECTIONS_MAX_PAGE_SIZE", 100)

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CORRECTIONS_CACHE_TTL", "1m")

	v.SetDefault("ENABLE_AUDIT", true)
	v.SetDefault("AUDIT_WORKERS", 1)
	v.SetDefault("AUDIT_MAX_RETRIES", 3)
	v.SetDefault("AUDIT_RETRY_DELAY", "1s")

	v.SetDefault("ENABLE_METRICS", true)
}

// isMissingFile reports whether viper failed because the explicit .env file is absent.
// SetConfigFile bypasses the search path, so viper surfaces an fs error instead of
// ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
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
