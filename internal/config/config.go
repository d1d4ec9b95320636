package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/mailbeforecart/internal/email"
	"github.com/dukerupert/mailbeforecart/internal/reminder"
)

// Config is the runtime configuration for the service and CLI.
type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	SiteName string `yaml:"site_name"`
	CartURL  string `yaml:"cart_url"`

	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
	CaptureRateLimit  int           `yaml:"capture_rate_limit"`
	SecureCookies     bool          `yaml:"secure_cookies"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`

	Mail     email.Settings `yaml:"mail"`
	Webhooks Webhooks       `yaml:"webhooks"`
}

// Webhooks holds the signing secrets for purchase notifications. An empty
// secret disables that endpoint.
type Webhooks struct {
	OrderSecret  string `yaml:"order_secret"`
	StripeSecret string `yaml:"stripe_secret"`
}

func Default() *Config {
	return &Config{
		Port:              "8080",
		DBPath:            "mailbeforecart.db",
		LogLevel:          "info",
		LogFormat:         "text",
		SiteName:          "Our Store",
		CartURL:           "http://localhost:8080/cart",
		SchedulerInterval: reminder.DefaultInterval,
		CaptureRateLimit:  30,
		Mail:              email.Settings{Provider: email.ProviderLog},
	}
}

// Load builds the configuration. Values are layered: defaults, then a .env
// file in the working directory, then MBC_* environment variables, then the
// YAML file at path when path is not empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("MBC_PORT", &c.Port)
	str("MBC_DB_PATH", &c.DBPath)
	str("MBC_LOG_LEVEL", &c.LogLevel)
	str("MBC_LOG_FORMAT", &c.LogFormat)
	str("MBC_SITE_NAME", &c.SiteName)
	str("MBC_CART_URL", &c.CartURL)
	str("MBC_MAIL_PROVIDER", &c.Mail.Provider)
	str("MBC_MAIL_API_KEY", &c.Mail.APIKey)
	str("MBC_MAIL_FROM", &c.Mail.From)
	str("MBC_MAIL_FROM_NAME", &c.Mail.FromName)
	str("MBC_ORDER_WEBHOOK_SECRET", &c.Webhooks.OrderSecret)
	str("MBC_STRIPE_WEBHOOK_SECRET", &c.Webhooks.StripeSecret)

	if v := getenv("MBC_SCHEDULER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MBC_SCHEDULER_INTERVAL: %w", err)
		}
		c.SchedulerInterval = d
	}
	if v := getenv("MBC_CAPTURE_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MBC_CAPTURE_RATE_LIMIT: %w", err)
		}
		c.CaptureRateLimit = n
	}
	if v := getenv("MBC_SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MBC_SECURE_COOKIES: %w", err)
		}
		c.SecureCookies = b
	}
	if v := getenv("MBC_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.SchedulerInterval < time.Second {
		return fmt.Errorf("scheduler_interval %s is too short", c.SchedulerInterval)
	}
	if c.CaptureRateLimit <= 0 {
		return fmt.Errorf("capture_rate_limit must be positive, got %d", c.CaptureRateLimit)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	switch c.Mail.Provider {
	case email.ProviderLog:
	case email.ProviderPostmark, email.ProviderSendGrid:
		if c.Mail.APIKey == "" || c.Mail.From == "" {
			return fmt.Errorf("mail provider %s requires api_key and from", c.Mail.Provider)
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}
	return nil
}
