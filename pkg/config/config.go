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

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Issues        IssuesConfig
	Auth          AuthConfig
	Notifications NotificationsConfig
	Reporter      ReporterConfig
}

type DatabaseConfig struct {
	Driver       string
	Path         string
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
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// IssuesConfig tunes issue submission limits.
type IssuesConfig struct {
	RateLimitPerDay int
	MaxImages       int
}

// AuthConfig holds the static admin credential and OTP lifetime.
type AuthConfig struct {
	AdminToken string
	OTPTTL     time.Duration
}

// NotificationsConfig configures the status-change dispatcher. An empty AMQPURL
// selects the log-only sender.
type NotificationsConfig struct {
	Workers    int
	MaxRetries int
	AMQPURL    string
	Queue      string
}

// ReporterConfig configures the offline-capable reporter agent.
type ReporterConfig struct {
	APIBaseURL   string
	QueuePath    string
	Token        string
	ItemTimeout  time.Duration
	ProbeTimeout time.Duration
	SyncInterval time.Duration
	MaxImages    int
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Path:         v.GetString("DB_PATH"),
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxImages := v.GetInt("ISSUE_MAX_IMAGES")
	if maxImages <= 0 {
		maxImages = 3
	}
	cfg.Issues = IssuesConfig{
		RateLimitPerDay: v.GetInt("ISSUE_RATE_LIMIT_PER_DAY"),
		MaxImages:       maxImages,
	}

	cfg.Auth = AuthConfig{
		AdminToken: v.GetString("ADMIN_TOKEN"),
		OTPTTL:     parseDuration(v.GetString("OTP_TTL"), 10*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		AMQPURL:    v.GetString("NOTIFY_AMQP_URL"),
		Queue:      v.GetString("NOTIFY_QUEUE"),
	}

	cfg.Reporter = ReporterConfig{
		APIBaseURL:   strings.TrimRight(v.GetString("REPORTER_API_BASE_URL"), "/"),
		QueuePath:    v.GetString("REPORTER_QUEUE_PATH"),
		Token:        v.GetString("REPORTER_TOKEN"),
		ItemTimeout:  parseDuration(v.GetString("REPORTER_ITEM_TIMEOUT"), 15*time.Second),
		ProbeTimeout: parseDuration(v.GetString("REPORTER_PROBE_TIMEOUT"), 3*time.Second),
		SyncInterval: parseDuration(v.GetString("REPORTER_SYNC_INTERVAL"), time.Minute),
		MaxImages:    maxImages,
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "./data/citizen_safety.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "citizen_safety")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ISSUE_RATE_LIMIT_PER_DAY", 10)
	v.SetDefault("ISSUE_MAX_IMAGES", 3)

	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("OTP_TTL", "10m")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_AMQP_URL", "")
	v.SetDefault("NOTIFY_QUEUE", "issue_status_notifications")

	v.SetDefault("REPORTER_API_BASE_URL", "http://localhost:8080/api")
	v.SetDefault("REPORTER_QUEUE_PATH", "./data/offline_queue.db")
	v.SetDefault("REPORTER_TOKEN", "")
	v.SetDefault("REPORTER_ITEM_TIMEOUT", "15s")
	v.SetDefault("REPORTER_PROBE_TIMEOUT", "3s")
	v.SetDefault("REPORTER_SYNC_INTERVAL", "1m")
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
