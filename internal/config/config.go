// Package config loads server settings from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/mail"
)

// Mail transports selectable with MAIL_TRANSPORT.
const (
	MailLog   = "log"
	MailSMTP  = "smtp"
	MailKafka = "kafka"
)

type Config struct {
	Port          int
	DBPath        string
	PublicBaseURL string

	Tokens      auth.TokenConfig
	BcryptCost  int
	HashWorkers int

	RedisAddr     string // empty disables the cache and the rate limiter
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	MailTransport  string
	SMTP           mail.SMTPConfig
	KafkaBrokers   []string
	KafkaMailTopic string

	CloudinaryURL string // empty disables avatar uploads

	CORSAllowedOrigins []string
	RateLimitMe        int // requests per minute on /users/me

	// Seeded at startup; the only source of admin accounts.
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	LogLevel  slog.Level
	LogFormat string // "text" or "json"
}

// Load reads .env (if any) and the environment, then validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}

	cfg, err := parse(os.Getenv)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parse(getenv func(string) string) (Config, error) {
	e := env{get: getenv}

	cfg := Config{
		Port:          e.integer("PORT", 8080),
		DBPath:        e.str("DB_PATH", "data/contacts.db"),
		PublicBaseURL: e.str("PUBLIC_BASE_URL", ""),

		Tokens: auth.TokenConfig{
			Secret:               e.str("JWT_SECRET", ""),
			Algorithm:            e.str("JWT_ALGORITHM", "HS256"),
			Issuer:               e.str("JWT_ISSUER", auth.DefaultIssuer),
			AccessTTL:            e.duration("ACCESS_TOKEN_TTL", auth.DefaultTTL),
			EmailVerificationTTL: e.duration("EMAIL_TOKEN_TTL", auth.DefaultTTL),
			PasswordResetTTL:     e.duration("RESET_TOKEN_TTL", auth.DefaultTTL),
		},
		BcryptCost:  e.integer("BCRYPT_COST", auth.DefaultCost),
		HashWorkers: e.integer("HASH_WORKERS", 0),

		RedisAddr:     e.str("REDIS_ADDR", ""),
		RedisPassword: e.str("REDIS_PASSWORD", ""),
		RedisDB:       e.integer("REDIS_DB", 0),
		CacheTTL:      e.duration("CACHE_TTL", time.Hour),

		MailTransport: strings.ToLower(e.str("MAIL_TRANSPORT", MailLog)),
		SMTP: mail.SMTPConfig{
			Host:     e.str("SMTP_HOST", ""),
			Port:     e.integer("SMTP_PORT", 587),
			Username: e.str("SMTP_USER", ""),
			Password: e.str("SMTP_PASS", ""),
			From:     e.str("MAIL_FROM", ""),
			FromName: e.str("MAIL_FROM_NAME", "Contacts"),
		},
		KafkaBrokers:   e.list("KAFKA_BROKERS"),
		KafkaMailTopic: e.str("KAFKA_MAIL_TOPIC", "mail.outbound"),

		CloudinaryURL: e.str("CLOUDINARY_URL", ""),

		CORSAllowedOrigins: e.list("CORS_ALLOWED_ORIGINS"),
		RateLimitMe:        e.integer("RATE_LIMIT_ME", 5),

		AdminUsername: e.str("ADMIN_USERNAME", "admin"),
		AdminEmail:    e.str("ADMIN_EMAIL", ""),
		AdminPassword: e.str("ADMIN_PASSWORD", ""),

		LogLevel:  e.level("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(e.str("LOG_FORMAT", "text")),
	}

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = fmt.Sprintf("http://localhost:%d/", cfg.Port)
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}

	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(e.errs...))
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Tokens.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}

	switch c.MailTransport {
	case MailLog:
	case MailSMTP:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			errs = append(errs, errors.New("MAIL_TRANSPORT=smtp needs SMTP_HOST and MAIL_FROM"))
		}
	case MailKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaMailTopic == "" {
			errs = append(errs, errors.New("MAIL_TRANSPORT=kafka needs KAFKA_BROKERS and KAFKA_MAIL_TOPIC"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_TRANSPORT %q is not one of log, smtp, kafka", c.MailTransport))
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// env collects parse errors so one bad variable doesn't hide the next.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a positive duration", key, v))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.get(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a log level", key, v))
		return def
	}
	return l
}
