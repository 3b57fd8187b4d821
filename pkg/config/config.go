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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Marketplace MarketplaceConfig
	JobBoard    JobBoardConfig
	Exports     ExportsConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MarketplaceConfig tunes the shift and application lifecycle rules.
type MarketplaceConfig struct {
	PenaltiesEnabled        bool
	LateCancellationWindow  time.Duration
	WorkerBanDuration       time.Duration
	CompanyLateFeeMinor     int64
	PenaltyCurrency         string
	MaxShiftOccurrences     int
	ClockInGrace            time.Duration
	ShiftCompletionInterval time.Duration
	DefaultShiftCurrency    string
}

// JobBoardConfig governs caching of the public shift listing.
type JobBoardConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ExportsConfig controls asynchronous payroll exports.
type ExportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
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
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxOccurrences := v.GetInt("SHIFT_MAX_OCCURRENCES")
	if maxOccurrences <= 0 {
		maxOccurrences = 52
	}
	cfg.Marketplace = MarketplaceConfig{
		PenaltiesEnabled:        v.GetBool("ENABLE_CANCELLATION_PENALTIES"),
		LateCancellationWindow:  parseDuration(v.GetString("LATE_CANCELLATION_WINDOW"), 24*time.Hour),
		WorkerBanDuration:       parseDuration(v.GetString("WORKER_BAN_DURATION"), 30*24*time.Hour),
		CompanyLateFeeMinor:     v.GetInt64("COMPANY_LATE_FEE_MINOR"),
		PenaltyCurrency:         strings.ToUpper(v.GetString("PENALTY_CURRENCY")),
		MaxShiftOccurrences:     maxOccurrences,
		ClockInGrace:            parseDuration(v.GetString("TIMESHEET_CLOCKIN_GRACE"), 30*time.Minute),
		ShiftCompletionInterval: parseDuration(v.GetString("SHIFT_COMPLETION_INTERVAL"), 15*time.Minute),
		DefaultShiftCurrency:    strings.ToUpper(v.GetString("SHIFT_DEFAULT_CURRENCY")),
	}

	cfg.JobBoard = JobBoardConfig{
		CacheEnabled: v.GetBool("ENABLE_JOB_BOARD_CACHE"),
		CacheTTL:     parseDuration(v.GetString("JOB_BOARD_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled:           v.GetBool("ENABLE_EXPORTS"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
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
	v.SetDefault("DB_NAME", "vikar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "vikar-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CANCELLATION_PENALTIES", false)
	v.SetDefault("LATE_CANCELLATION_WINDOW", "24h")
	v.SetDefault("WORKER_BAN_DURATION", "720h")
	v.SetDefault("COMPANY_LATE_FEE_MINOR", 50000)
	v.SetDefault("PENALTY_CURRENCY", "DKK")
	v.SetDefault("SHIFT_MAX_OCCURRENCES", 52)
	v.SetDefault("TIMESHEET_CLOCKIN_GRACE", "30m")
	v.SetDefault("SHIFT_COMPLETION_INTERVAL", "15m")
	v.SetDefault("SHIFT_DEFAULT_CURRENCY", "DKK")

	v.SetDefault("ENABLE_JOB_BOARD_CACHE", false)
	v.SetDefault("JOB_BOARD_CACHE_TTL", "2m")

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)
}

// isMissingFile covers viper returning a plain fs error when SetConfigFile
// points at a file that does not exist.
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
