package config

import (
	"errors"
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

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Classifier   ClassifierConfig
	Progression  ProgressionConfig
	Timetable    TimetableConfig
	Certificates CertificatesConfig
	Events       EventsConfig
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

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ClassifierConfig lets deployments override the grade mapping without a code
// change. Each list is a comma-separated set of raw grade values.
type ClassifierConfig struct {
	AdvanceLabels  []string
	EscalateLabels []string
	HoldLabels     []string
	AdvanceScores  []string
	EscalateScores []string
	HoldScores     []string
}

// ProgressionConfig tunes the evaluation write path.
type ProgressionConfig struct {
	ConflictRetries  int
	PositionCacheTTL time.Duration
}

// TimetableConfig governs projector caching and export limits.
type TimetableConfig struct {
	CacheTTL     time.Duration
	MaxRangeDays int
}

// CertificatesConfig gates the certificate request endpoints.
type CertificatesConfig struct {
	Enabled bool
}

// EventsConfig sizes the in-process domain event dispatcher.
type EventsConfig struct {
	Workers    int
	BufferSize int
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

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Classifier = ClassifierConfig{
		AdvanceLabels:  splitAndTrim(v.GetString("CLASSIFIER_ADVANCE_LABELS")),
		EscalateLabels: splitAndTrim(v.GetString("CLASSIFIER_ESCALATE_LABELS")),
		HoldLabels:     splitAndTrim(v.GetString("CLASSIFIER_HOLD_LABELS")),
		AdvanceScores:  splitAndTrim(v.GetString("CLASSIFIER_ADVANCE_SCORES")),
		EscalateScores: splitAndTrim(v.GetString("CLASSIFIER_ESCALATE_SCORES")),
		HoldScores:     splitAndTrim(v.GetString("CLASSIFIER_HOLD_SCORES")),
	}

	cfg.Progression = ProgressionConfig{
		ConflictRetries:  v.GetInt("PROGRESSION_CONFLICT_RETRIES"),
		PositionCacheTTL: parseDuration(v.GetString("POSITION_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Timetable = TimetableConfig{
		CacheTTL:     parseDuration(v.GetString("TIMETABLE_CACHE_TTL"), 2*time.Minute),
		MaxRangeDays: v.GetInt("TIMETABLE_MAX_RANGE_DAYS"),
	}

	cfg.Certificates = CertificatesConfig{Enabled: v.GetBool("ENABLE_CERTIFICATES")}

	cfg.Events = EventsConfig{
		Workers:    v.GetInt("EVENTS_WORKERS"),
		BufferSize: v.GetInt("EVENTS_BUFFER_SIZE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "halaqat_progress")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	// Default grade mapping shared by every evaluation entry point. Only the
	// top label and the top numeric score escalate to the next stage.
	v.SetDefault("CLASSIFIER_ADVANCE_LABELS", "ممتاز,جيد جداً,جيد")
	v.SetDefault("CLASSIFIER_ESCALATE_LABELS", "متفوق")
	v.SetDefault("CLASSIFIER_HOLD_LABELS", "إعادة,غياب,إذن")
	v.SetDefault("CLASSIFIER_ADVANCE_SCORES", "4")
	v.SetDefault("CLASSIFIER_ESCALATE_SCORES", "5")
	v.SetDefault("CLASSIFIER_HOLD_SCORES", "1,2,3")

	v.SetDefault("PROGRESSION_CONFLICT_RETRIES", 3)
	v.SetDefault("POSITION_CACHE_TTL", "5m")

	v.SetDefault("TIMETABLE_CACHE_TTL", "2m")
	v.SetDefault("TIMETABLE_MAX_RANGE_DAYS", 92)

	v.SetDefault("ENABLE_CERTIFICATES", true)

	v.SetDefault("EVENTS_WORKERS", 1)
	v.SetDefault("EVENTS_BUFFER_SIZE", 64)
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
