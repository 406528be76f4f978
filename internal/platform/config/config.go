package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// devSigningSecret is accepted only when KEYSTONE_ENV=dev.
const devSigningSecret = "dev-only-sso-secret-change-me-0123456789"

// Server captures the portal's configuration.
type Server struct {
	Addr            string
	Env             string
	LogLevel        string
	PortalBaseURL   string
	ShutdownTimeout time.Duration
	SeedFile        string

	SSO      SSOConfig
	Session  SessionConfig
	Database DatabaseConfig
	Redis    RedisConfig
	SMTP     SMTPConfig

	AppCacheTTL      time.Duration
	RecoveryTokenTTL time.Duration
	LoginRateLimit   int // requests per minute per IP on credential endpoints
}

// SSOConfig configures token minting.
type SSOConfig struct {
	SigningSecret string
	TokenTTL      time.Duration
	ClockLeeway   time.Duration
}

// SessionConfig configures the portal's own browser session.
type SessionConfig struct {
	CookieName   string
	CookieSecure bool
	TTL          time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// Enabled reports whether outbound email is configured.
func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.From != "" }

// App configures a downstream app embedding the SSO exchange.
type App struct {
	Addr            string
	Env             string
	LogLevel        string
	AppSlug         string
	PublicURL       string
	PortalLoginURL  string
	SharedSecret    string
	SessionSecret   string
	SessionTTL      time.Duration
	SSOTTL          time.Duration
	ClockLeeway     time.Duration
	CookieName      string
	InsecureCookie  bool
	ShutdownTimeout time.Duration
}

// LoadDotEnv loads path into the environment when the file exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds a Server config from the environment.
func Load() (Server, error) {
	var e envReader
	cfg := Server{
		Addr:            e.str("KEYSTONE_ADDR", ":8080"),
		Env:             e.str("KEYSTONE_ENV", "dev"),
		LogLevel:        e.str("LOG_LEVEL", "info"),
		PortalBaseURL:   strings.TrimRight(e.str("PORTAL_BASE_URL", "http://localhost:8080"), "/"),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		SeedFile:        e.str("SEED_FILE", ""),
		SSO: SSOConfig{
			SigningSecret: e.str("SSO_SIGNING_SECRET", ""),
			TokenTTL:      e.duration("SSO_TOKEN_TTL", 5*time.Minute),
			ClockLeeway:   e.duration("SSO_CLOCK_LEEWAY", 5*time.Second),
		},
		Session: SessionConfig{
			CookieName:   e.str("PORTAL_COOKIE_NAME", "portal_session"),
			CookieSecure: e.boolean("PORTAL_COOKIE_SECURE", true),
			TTL:          e.duration("PORTAL_SESSION_TTL", 12*time.Hour),
		},
		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.integer("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     e.str("SMTP_HOST", ""),
			Port:     e.integer("SMTP_PORT", 587),
			Username: e.str("SMTP_USERNAME", ""),
			Password: e.str("SMTP_PASSWORD", ""),
			From:     e.str("SMTP_FROM", ""),
			UseTLS:   e.boolean("SMTP_TLS", false),
		},
		AppCacheTTL:      e.duration("APP_CACHE_TTL", time.Minute),
		RecoveryTokenTTL: e.duration("RECOVERY_TOKEN_TTL", time.Hour),
		LoginRateLimit:   e.integer("LOGIN_RATE_LIMIT", 10),
	}

	if cfg.SSO.SigningSecret == "" && cfg.IsDev() {
		cfg.SSO.SigningSecret = devSigningSecret
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, e.err()
}

func (c Server) IsDev() bool { return c.Env == "dev" }

func (c Server) validate() error {
	var errs []error
	if len(c.SSO.SigningSecret) < 32 {
		errs = append(errs, errors.New("SSO_SIGNING_SECRET must be at least 32 bytes"))
	}
	if c.SSO.TokenTTL <= 0 || c.SSO.TokenTTL > 15*time.Minute {
		errs = append(errs, errors.New("SSO_TOKEN_TTL must be positive and at most 15m"))
	}
	if c.SSO.ClockLeeway < 0 || c.SSO.ClockLeeway >= c.SSO.TokenTTL {
		errs = append(errs, errors.New("SSO_CLOCK_LEEWAY must be non-negative and below SSO_TOKEN_TTL"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("PORTAL_SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// LoadApp builds a downstream app config from the environment.
func LoadApp() (App, error) {
	var e envReader
	cfg := App{
		Addr:            e.str("APP_ADDR", ":8090"),
		Env:             e.str("KEYSTONE_ENV", "dev"),
		LogLevel:        e.str("LOG_LEVEL", "info"),
		AppSlug:         e.str("APP_SLUG", ""),
		PublicURL:       e.str("APP_PUBLIC_URL", ""),
		PortalLoginURL:  e.str("PORTAL_LOGIN_URL", "http://localhost:8080/login"),
		SharedSecret:    e.str("SSO_SIGNING_SECRET", ""),
		SessionSecret:   e.str("APP_SESSION_SECRET", ""),
		SessionTTL:      e.duration("APP_SESSION_TTL", 7*24*time.Hour),
		SSOTTL:          e.duration("SSO_TOKEN_TTL", 5*time.Minute),
		ClockLeeway:     e.duration("SSO_CLOCK_LEEWAY", 5*time.Second),
		CookieName:      e.str("APP_COOKIE_NAME", "app_session"),
		InsecureCookie:  e.boolean("APP_COOKIE_INSECURE", false),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if cfg.SharedSecret == "" && cfg.Env == "dev" {
		cfg.SharedSecret = devSigningSecret
	}

	var errs []error
	if cfg.AppSlug == "" {
		errs = append(errs, errors.New("APP_SLUG is required"))
	}
	if len(cfg.SharedSecret) < 32 {
		errs = append(errs, errors.New("SSO_SIGNING_SECRET must be at least 32 bytes"))
	}
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		errs = append(errs, errors.New("APP_SESSION_SECRET must be at least 32 bytes"))
	}
	if cfg.SessionTTL <= cfg.SSOTTL {
		errs = append(errs, errors.New("APP_SESSION_TTL must exceed SSO_TOKEN_TTL"))
	}
	if err := errors.Join(append(errs, e.err())...); err != nil {
		return App{}, err
	}
	return cfg, nil
}

// envReader reads typed values and accumulates parse errors, so one bad
// variable does not hide the others.
type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *envReader) err() error { return errors.Join(e.errs...) }
