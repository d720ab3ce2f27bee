// Package config loads runtime configuration from environment
// variables, with a .env file honored for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hearthplan/hearthplan/internal/models"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server       ServerConfig
	Logging      LoggingConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	Pipeline     PipelineConfig
	Notify       NotifyConfig
	Registration RegistrationConfig
	OpenAI       OpenAIConfig
	Weather      WeatherConfig
	Calendar     CalendarConfig
	OAuth        OAuthConfig
}

// CalendarConfig points at the household calendar service. Empty URL
// disables the calendar filter stage.
type CalendarConfig struct {
	APIURL string
	UserID string
}

// OAuthConfig holds the token endpoint used to refresh stored email
// and calendar credentials.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL           string
	MigrationsDir string
}

// AuthConfig holds JWT signing parameters for the admin API.
type AuthConfig struct {
	JWTSecret     string
	TokenLifetime time.Duration
	AdminUser     string
	// Bcrypt hash of the admin password. Plaintext is never configured.
	AdminPasswordHash string
}

// PipelineConfig tunes the discovery pipeline.
type PipelineConfig struct {
	Interval          time.Duration
	FetchWindow       time.Duration
	FetchConcurrency  int
	FilterConcurrency int
	ProposeLimit      int
	FuzzyThreshold    float64
	OrderMode         string
	// Source feeds, comma separated name=url pairs.
	Sources map[string]string
	// RetentionAge prunes terminal events older than this; zero keeps
	// everything.
	RetentionAge time.Duration
}

// NotifyConfig holds notification channel parameters.
type NotifyConfig struct {
	Recipient      string
	Channel        string
	ResponseWindow time.Duration
	SMSAPIURL      string
	SMSAccountSID  string
	SMSAuthToken   string
	SMSFromNumber  string
	EmailAPIURL    string
	EmailFrom      string
	EmailTokenUser string
}

// RegistrationConfig tunes the registration safety guard.
type RegistrationConfig struct {
	AutomationURL      string
	EmergencyThreshold int64
}

// OpenAIConfig holds classifier credentials.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// WeatherConfig holds forecast provider credentials.
type WeatherConfig struct {
	APIURL string
	APIKey string
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultLogFormat = "json"

	defaultMigrationsDir = "migrations"

	defaultPipelineInterval = 6 * time.Hour
	defaultFetchWindow      = 48 * time.Hour
	defaultProposeLimit     = 5
	defaultFuzzyThreshold   = 0.75

	defaultResponseWindowHours = 24
	defaultEmergencyThreshold  = 3

	defaultTokenLifetime = 24 * time.Hour
)

// Load reads configuration from the environment, applying defaults
// when values are not provided. A .env file in the working directory
// is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", defaultPort),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MigrationsDir: getEnv("MIGRATIONS_DIR", defaultMigrationsDir),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("JWT_SECRET"),
			TokenLifetime:     defaultTokenLifetime,
			AdminUser:         getEnv("ADMIN_USER", "admin"),
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		Pipeline: PipelineConfig{
			Interval:          defaultPipelineInterval,
			FetchWindow:       defaultFetchWindow,
			FetchConcurrency:  4,
			FilterConcurrency: 8,
			ProposeLimit:      defaultProposeLimit,
			FuzzyThreshold:    defaultFuzzyThreshold,
			OrderMode:         getEnv("PIPELINE_ORDER_MODE", "default"),
			Sources:           map[string]string{},
		},
		Notify: NotifyConfig{
			Recipient:      os.Getenv("NOTIFY_RECIPIENT"),
			Channel:        getEnv("NOTIFY_CHANNEL", "sms"),
			ResponseWindow: defaultResponseWindowHours * time.Hour,
			SMSAPIURL:      os.Getenv("SMS_API_URL"),
			SMSAccountSID:  os.Getenv("SMS_ACCOUNT_SID"),
			SMSAuthToken:   os.Getenv("SMS_AUTH_TOKEN"),
			SMSFromNumber:  os.Getenv("SMS_FROM_NUMBER"),
			EmailAPIURL:    os.Getenv("EMAIL_API_URL"),
			EmailFrom:      os.Getenv("EMAIL_FROM"),
			EmailTokenUser: getEnv("EMAIL_TOKEN_USER", "default"),
		},
		Registration: RegistrationConfig{
			AutomationURL:      os.Getenv("AUTOMATION_URL"),
			EmergencyThreshold: defaultEmergencyThreshold,
		},
		OpenAI: OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  os.Getenv("OPENAI_MODEL"),
		},
		Weather: WeatherConfig{
			APIURL: os.Getenv("WEATHER_API_URL"),
			APIKey: os.Getenv("WEATHER_API_KEY"),
		},
		Calendar: CalendarConfig{
			APIURL: os.Getenv("CALENDAR_API_URL"),
			UserID: getEnv("CALENDAR_USER", "default"),
		},
		OAuth: OAuthConfig{
			TokenURL:     os.Getenv("OAUTH_TOKEN_URL"),
			ClientID:     os.Getenv("OAUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("PIPELINE_INTERVAL_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return Config{}, fmt.Errorf("invalid PIPELINE_INTERVAL_MINUTES: must be a positive integer")
		}
		cfg.Pipeline.Interval = time.Duration(minutes) * time.Minute
	}

	if v := os.Getenv("PIPELINE_PROPOSE_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return Config{}, fmt.Errorf("invalid PIPELINE_PROPOSE_LIMIT: must be a positive integer")
		}
		cfg.Pipeline.ProposeLimit = limit
	}

	if v := os.Getenv("PIPELINE_FUZZY_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold <= 0 || threshold > 1 {
			return Config{}, fmt.Errorf("invalid PIPELINE_FUZZY_THRESHOLD: must be in (0, 1]")
		}
		cfg.Pipeline.FuzzyThreshold = threshold
	}

	if v := os.Getenv("PIPELINE_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return Config{}, fmt.Errorf("invalid PIPELINE_RETENTION_DAYS: must be a non-negative integer")
		}
		cfg.Pipeline.RetentionAge = time.Duration(days) * 24 * time.Hour
	}

	if v := os.Getenv("PIPELINE_SOURCES"); v != "" {
		sources, err := parseSources(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PIPELINE_SOURCES: %w", err)
		}
		cfg.Pipeline.Sources = sources
	}

	if v := os.Getenv("NOTIFY_RESPONSE_WINDOW_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return Config{}, fmt.Errorf("invalid NOTIFY_RESPONSE_WINDOW_HOURS: must be a positive integer")
		}
		cfg.Notify.ResponseWindow = time.Duration(hours) * time.Hour
	}

	if v := os.Getenv("REGISTRATION_EMERGENCY_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseInt(v, 10, 64)
		if err != nil || threshold <= 0 {
			return Config{}, fmt.Errorf("invalid REGISTRATION_EMERGENCY_THRESHOLD: must be a positive integer")
		}
		cfg.Registration.EmergencyThreshold = threshold
	}

	switch cfg.Notify.Channel {
	case string(models.ChannelSMS), string(models.ChannelEmail):
	default:
		return Config{}, fmt.Errorf("invalid NOTIFY_CHANNEL: must be 'sms' or 'email'")
	}

	return cfg, nil
}

// parseSources parses "library=https://a/feed,parks=https://b/feed".
func parseSources(raw string) (map[string]string, error) {
	sources := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("malformed source entry %q", pair)
		}
		sources[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	return sources, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", raw)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
