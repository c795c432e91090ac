package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/segyhp/loan-servicing/internal/domain"
)

// Config holds all configuration for our application
type Config struct {
	Server       ServerConfig       `mapstructure:",squash"`
	Database     DatabaseConfig     `mapstructure:",squash"`
	Redis        RedisConfig        `mapstructure:",squash"`
	Scheduler    SchedulerConfig    `mapstructure:",squash"`
	Notification NotificationConfig `mapstructure:",squash"`
	Logging      LoggingConfig      `mapstructure:",squash"`
	Health       HealthConfig       `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	Host            string        `mapstructure:"DATABASE_HOST"`
	Port            string        `mapstructure:"DATABASE_PORT"`
	Name            string        `mapstructure:"DATABASE_NAME"`
	User            string        `mapstructure:"DATABASE_USER"`
	Password        string        `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string        `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

// DSN returns the lib/pq connection string, preferring DATABASE_URL when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	URL      string `mapstructure:"REDIS_URL"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

// Enabled reports whether a Redis server is configured at all.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Host != ""
}

type SchedulerConfig struct {
	Mode           string        `mapstructure:"SCHEDULER_MODE"`
	Interval       string        `mapstructure:"SCHEDULER_INTERVAL"`
	TimeOfDay      string        `mapstructure:"SCHEDULER_TIME_OF_DAY"`
	CustomDays     string        `mapstructure:"SCHEDULER_CUSTOM_DAYS"`
	CustomChannels string        `mapstructure:"SCHEDULER_CUSTOM_CHANNELS"`
	Cadence        string        `mapstructure:"SCHEDULER_CADENCE"`
	Timezone       string        `mapstructure:"SCHEDULER_TIMEZONE"`
	DispatchDelay  time.Duration `mapstructure:"SCHEDULER_DISPATCH_DELAY"`
	Autostart      bool          `mapstructure:"SCHEDULER_AUTOSTART"`
	OnePerChannel  bool          `mapstructure:"SCHEDULER_ONE_PER_CHANNEL"`
	DedupeTTL      time.Duration `mapstructure:"SCHEDULER_DEDUPE_TTL"`
}

type NotificationConfig struct {
	SMTPHost          string        `mapstructure:"SMTP_HOST"`
	SMTPPort          int           `mapstructure:"SMTP_PORT"`
	SMTPUsername      string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword      string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom          string        `mapstructure:"SMTP_FROM"`
	SMTPTimeout       time.Duration `mapstructure:"SMTP_TIMEOUT"`
	WhatsAppURL       string        `mapstructure:"WHATSAPP_API_URL"`
	WhatsAppToken     string        `mapstructure:"WHATSAPP_API_TOKEN"`
	SMSURL            string        `mapstructure:"SMS_API_URL"`
	SMSToken          string        `mapstructure:"SMS_API_TOKEN"`
	GatewayTimeout    time.Duration `mapstructure:"NOTIFICATION_GATEWAY_TIMEOUT"`
	DevelopmentSender bool          `mapstructure:"NOTIFICATION_LOG_ONLY"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                  "8080",
	"SERVER_HOST":                  "0.0.0.0",
	"ENV":                          "development",
	"SERVER_READ_TIMEOUT":          "15s",
	"SERVER_WRITE_TIMEOUT":         "30s",
	"DATABASE_URL":                 "",
	"DATABASE_HOST":                "localhost",
	"DATABASE_PORT":                "5432",
	"DATABASE_NAME":                "loan_servicing",
	"DATABASE_USER":                "postgres",
	"DATABASE_PASSWORD":            "",
	"DATABASE_SSLMODE":             "disable",
	"DATABASE_MAX_OPEN_CONNS":      10,
	"DATABASE_MAX_IDLE_CONNS":      5,
	"DATABASE_CONN_MAX_LIFETIME":   "30m",
	"REDIS_URL":                    "",
	"REDIS_HOST":                   "",
	"REDIS_PORT":                   "6379",
	"REDIS_PASSWORD":               "",
	"REDIS_DB":                     0,
	"SCHEDULER_MODE":               string(domain.TriggerDailyFixedTime),
	"SCHEDULER_INTERVAL":           "1h",
	"SCHEDULER_TIME_OF_DAY":        "09:00",
	"SCHEDULER_CUSTOM_DAYS":        "7,3,1,0,-1,-3,-7",
	"SCHEDULER_CUSTOM_CHANNELS":    "email,whatsapp",
	"SCHEDULER_CADENCE":            "1h",
	"SCHEDULER_TIMEZONE":           "Asia/Jakarta",
	"SCHEDULER_DISPATCH_DELAY":     "500ms",
	"SCHEDULER_AUTOSTART":          true,
	"SCHEDULER_ONE_PER_CHANNEL":    false,
	"SCHEDULER_DEDUPE_TTL":         "48h",
	"SMTP_HOST":                    "",
	"SMTP_PORT":                    587,
	"SMTP_USERNAME":                "",
	"SMTP_PASSWORD":                "",
	"SMTP_FROM":                    "",
	"SMTP_TIMEOUT":                 "15s",
	"WHATSAPP_API_URL":             "",
	"WHATSAPP_API_TOKEN":           "",
	"SMS_API_URL":                  "",
	"SMS_API_TOKEN":                "",
	"NOTIFICATION_GATEWAY_TIMEOUT": "10s",
	"NOTIFICATION_LOG_ONLY":        false,
	"LOG_LEVEL":                    "info",
	"LOG_FORMAT":                   "json",
	"HEALTH_CHECK_TIMEOUT":         "5s",
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// .env is optional; godotenv never overrides variables already set
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Read from environment variables
	v.AutomaticEnv()

	// Try to read from .env file (optional)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	if c.Scheduler.DispatchDelay < 0 {
		return fmt.Errorf("SCHEDULER_DISPATCH_DELAY must not be negative")
	}

	// Validate scheduler trigger
	sc, err := c.SchedulerTrigger()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	// Validate health check timeout
	if _, err := time.ParseDuration(c.Health.Timeout); err != nil {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a valid duration: %w", err)
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// Location returns the scheduler time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Scheduler.Timezone)
}

// SchedulerTrigger converts the flat scheduler settings into a domain.SchedulerConfig.
func (c *Config) SchedulerTrigger() (domain.SchedulerConfig, error) {
	sc := domain.SchedulerConfig{
		Mode:      domain.TriggerMode(strings.ToLower(c.Scheduler.Mode)),
		TimeOfDay: c.Scheduler.TimeOfDay,
	}

	if c.Scheduler.Interval != "" {
		interval, err := time.ParseDuration(c.Scheduler.Interval)
		if err != nil {
			return sc, fmt.Errorf("SCHEDULER_INTERVAL must be a valid duration: %w", err)
		}
		sc.Interval = interval
	}

	if c.Scheduler.Cadence != "" {
		cadence, err := time.ParseDuration(c.Scheduler.Cadence)
		if err != nil {
			return sc, fmt.Errorf("SCHEDULER_CADENCE must be a valid duration: %w", err)
		}
		sc.Cadence = cadence
	}

	days, err := ParseDayOffsets(c.Scheduler.CustomDays)
	if err != nil {
		return sc, fmt.Errorf("SCHEDULER_CUSTOM_DAYS: %w", err)
	}
	sc.CustomDays = days

	channels, err := ParseChannels(c.Scheduler.CustomChannels)
	if err != nil {
		return sc, fmt.Errorf("SCHEDULER_CUSTOM_CHANNELS: %w", err)
	}
	sc.Channels = channels

	return sc, nil
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Health.Timeout)
	return timeout
}

// ParseDayOffsets parses a comma separated list of signed day offsets ("7,3,0,-2").
func ParseDayOffsets(s string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		day, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid day offset %q", part)
		}
		days = append(days, day)
	}
	return days, nil
}

// ParseChannels parses a comma separated channel list ("email,whatsapp").
func ParseChannels(s string) (domain.ChannelSet, error) {
	var set domain.ChannelSet
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		switch domain.Channel(part) {
		case domain.ChannelEmail, domain.ChannelWhatsApp, domain.ChannelSMS:
			set = set.With(domain.Channel(part), true)
		default:
			return set, fmt.Errorf("unknown channel %q", part)
		}
	}
	return set, nil
}
