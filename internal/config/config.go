package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/example/lead-intake-service/internal/util"
)

// Supported EMAIL_PROVIDER values.
const (
	EmailProviderSMTP   = "smtp"
	EmailProviderResend = "resend"
	EmailProviderMock   = "mock"
)

// Supported LEAD_STORE values.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreKafka    = "kafka"
	StoreNone     = "none"
)

// Config captures all runtime configuration for the lead webhook service.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Mail      MailConfig
	Branding  BrandingConfig
	Providers ProviderConfig
	Timeouts  TimeoutConfig
	Store     StoreConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env        string
	Port       int
	LogLevel   string
	ConfigFile string
}

// HTTPConfig controls the inbound HTTP server.
type HTTPConfig struct {
	MaxBodyBytes           int64
	ReadTimeoutSeconds     int
	WriteTimeoutSeconds    int
	ShutdownTimeoutSeconds int
}

// MailConfig holds the addresses the notification pipeline sends from and to.
type MailConfig struct {
	// From is the sender identity of the internal alert. It may carry a
	// display name ("Leads <alerts@example.com>").
	From string
	// AdminEmail sends the client acknowledgment, receives its replies and is
	// the default target of the test email.
	AdminEmail string
	// InternalNotifyEmail receives every internal alert.
	InternalNotifyEmail string
	MaxConcurrentSends  int
}

// BrandingConfig customises the rendered notification copy.
type BrandingConfig struct {
	Name            string
	InternalSubject string
	ClientSubject   string
	ResponseWindow  string
	TestSubject     string
}

// SMTPConfig stores SMTP credentials for email delivery.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// ResendConfig stores the HTTP email API credentials and circuit settings.
type ResendConfig struct {
	APIKey                string
	BaseURL               string
	From                  string
	CircuitErrorPercent   int
	CircuitSleepWindowMs  int
	MaxConcurrentRequests int
}

// ProviderConfig wraps configuration for the outbound mail transport.
type ProviderConfig struct {
	EmailProvider string
	SMTP          SMTPConfig
	Resend        ResendConfig
}

// TimeoutConfig contains timeout thresholds for outbound providers.
type TimeoutConfig struct {
	SendTimeoutSeconds int
}

// StoreConfig selects and configures the lead store backend.
type StoreConfig struct {
	Backend      string
	DatabaseURL  string
	RedisURL     string
	RedisKey     string
	RedisMaxLen  int
	KafkaBrokers []string
	KafkaTopic   string
	// RecordTimeoutSeconds bounds each Record call made before notification.
	RecordTimeoutSeconds int
}

// Load reads environment variables (and an optional .env file), applies the
// optional YAML overlay, validates required values and returns a populated
// Config instance. All validation problems are reported in a single error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 3000, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)
	cfg.App.ConfigFile = ldr.getString("APP_CONFIG_FILE", "", false)

	cfg.HTTP.MaxBodyBytes = int64(ldr.getInt("MAX_BODY_BYTES", 1<<20, false))
	cfg.HTTP.ReadTimeoutSeconds = ldr.getInt("HTTP_READ_TIMEOUT_SECONDS", 15, false)
	cfg.HTTP.WriteTimeoutSeconds = ldr.getInt("HTTP_WRITE_TIMEOUT_SECONDS", 30, false)
	cfg.HTTP.ShutdownTimeoutSeconds = ldr.getInt("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 10, false)

	// The mail addresses may also come from the YAML overlay, so they are
	// checked for presence after the merge.
	cfg.Mail.From = ldr.getString("MAIL_FROM", "", false)
	cfg.Mail.AdminEmail = ldr.getString("ADMIN_EMAIL", "", false)
	cfg.Mail.InternalNotifyEmail = ldr.getString("INTERNAL_NOTIFY_EMAIL", "", false)
	cfg.Mail.MaxConcurrentSends = ldr.getInt("MAX_CONCURRENT_SENDS", 10, false)

	cfg.Branding = defaultBranding(ldr.getString("BRAND_NAME", "Zypher Agent", false))

	cfg.Providers.EmailProvider = strings.ToLower(ldr.getString("EMAIL_PROVIDER", EmailProviderMock, false))
	smtpRequired := cfg.Providers.EmailProvider == EmailProviderSMTP
	cfg.Providers.SMTP.Host = ldr.getString("SMTP_HOST", "", smtpRequired)
	cfg.Providers.SMTP.Port = ldr.getInt("SMTP_PORT", 587, false)
	cfg.Providers.SMTP.User = ldr.getString("SMTP_USER", "", false)
	cfg.Providers.SMTP.Pass = ldr.getString("SMTP_PASS", "", false)
	cfg.Providers.SMTP.From = cfg.Mail.From

	resendRequired := cfg.Providers.EmailProvider == EmailProviderResend
	cfg.Providers.Resend.APIKey = ldr.getString("RESEND_API_KEY", "", resendRequired)
	cfg.Providers.Resend.BaseURL = ldr.getString("RESEND_BASE_URL", "https://api.resend.com", false)
	cfg.Providers.Resend.From = cfg.Mail.From
	cfg.Providers.Resend.CircuitErrorPercent = ldr.getInt("RESEND_CIRCUIT_ERROR_PERCENT", 50, false)
	cfg.Providers.Resend.CircuitSleepWindowMs = ldr.getInt("RESEND_CIRCUIT_SLEEP_MS", 5000, false)
	cfg.Providers.Resend.MaxConcurrentRequests = ldr.getInt("RESEND_MAX_CONCURRENT_REQUESTS", 100, false)

	cfg.Timeouts.SendTimeoutSeconds = ldr.getInt("SEND_TIMEOUT_SECONDS", 10, false)

	cfg.Store.Backend = strings.ToLower(ldr.getString("LEAD_STORE", StoreMemory, false))
	cfg.Store.DatabaseURL = ldr.getString("DATABASE_URL", "", cfg.Store.Backend == StorePostgres)
	cfg.Store.RedisURL = ldr.getString("REDIS_URL", "", cfg.Store.Backend == StoreRedis)
	cfg.Store.RedisKey = ldr.getString("REDIS_LEAD_KEY", "leads", false)
	cfg.Store.RedisMaxLen = ldr.getInt("REDIS_LEAD_MAX", 10000, false)
	cfg.Store.KafkaBrokers = ldr.getStringSlice("KAFKA_BROKERS", cfg.Store.Backend == StoreKafka)
	cfg.Store.KafkaTopic = ldr.getString("KAFKA_LEAD_TOPIC", "leads.received", false)
	cfg.Store.RecordTimeoutSeconds = ldr.getInt("LEAD_STORE_TIMEOUT_SECONDS", 5, false)

	if cfg.App.ConfigFile != "" {
		if err := mergeFile(cfg.App.ConfigFile, cfg); err != nil {
			ldr.addError(fmt.Sprintf("APP_CONFIG_FILE: %v", err))
		}
	}

	ldr.validateValues(cfg)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultBranding(name string) BrandingConfig {
	return BrandingConfig{
		Name:            name,
		InternalSubject: fmt.Sprintf("New %s contact form lead", name),
		ClientSubject:   fmt.Sprintf("We've received your enquiry - %s", name),
		ResponseWindow:  "one working day",
		TestSubject:     fmt.Sprintf("%s test email", name),
	}
}

func (l *envLoader) validateValues(cfg *Config) {
	l.require("MAIL_FROM", cfg.Mail.From)
	l.require("ADMIN_EMAIL", cfg.Mail.AdminEmail)
	l.require("INTERNAL_NOTIFY_EMAIL", cfg.Mail.InternalNotifyEmail)

	if cfg.Mail.From != "" {
		if _, err := util.ParseSender(cfg.Mail.From); err != nil {
			l.addError("MAIL_FROM must be a valid address")
		}
	}
	if cfg.Mail.AdminEmail != "" {
		normalized, err := util.NormalizeEmail(cfg.Mail.AdminEmail)
		if err != nil {
			l.addError("ADMIN_EMAIL must be a bare email address")
		}
		cfg.Mail.AdminEmail = normalized
	}
	if cfg.Mail.InternalNotifyEmail != "" {
		normalized, err := util.NormalizeEmail(cfg.Mail.InternalNotifyEmail)
		if err != nil {
			l.addError("INTERNAL_NOTIFY_EMAIL must be a bare email address")
		}
		cfg.Mail.InternalNotifyEmail = normalized
	}

	switch cfg.Providers.EmailProvider {
	case EmailProviderSMTP, EmailProviderResend, EmailProviderMock:
	default:
		l.addError(fmt.Sprintf("EMAIL_PROVIDER %q is not supported", cfg.Providers.EmailProvider))
	}
	if cfg.Providers.EmailProvider == EmailProviderResend {
		if _, err := util.ValidateHTTPURL(cfg.Providers.Resend.BaseURL); err != nil {
			l.addError("RESEND_BASE_URL must be a valid http(s) url")
		}
	}

	switch cfg.Store.Backend {
	case StoreMemory, StorePostgres, StoreRedis, StoreKafka, StoreNone:
	default:
		l.addError(fmt.Sprintf("LEAD_STORE %q is not supported", cfg.Store.Backend))
	}

	if cfg.Store.RecordTimeoutSeconds <= 0 {
		l.addError("LEAD_STORE_TIMEOUT_SECONDS must be positive")
	}
	if cfg.Timeouts.SendTimeoutSeconds <= 0 {
		l.addError("SEND_TIMEOUT_SECONDS must be positive")
	}
	if cfg.Mail.MaxConcurrentSends <= 0 {
		l.addError("MAX_CONCURRENT_SENDS must be positive")
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		l.addError("MAX_BODY_BYTES must be positive")
	}
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val != "" {
			return val
		}
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) require(key, value string) {
	if strings.TrimSpace(value) == "" {
		l.addError(fmt.Sprintf("%s is required", key))
	}
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
