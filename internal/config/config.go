package config // package config loads application configuration from environment variables

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Nested structs group settings that are handed
// to a single subsystem (SMTP, queue) so constructors do not need the whole
// Config.
type Config struct {
	Env           string        // application environment (dev, test, prod)
	Port          string        // HTTP port to listen on
	DBUser        string        // database username
	DBPass        string        // database password (optional)
	DBHost        string        // database host address
	DBPort        string        // database port number
	DBName        string        // database name
	DBAutoMigrate bool          // apply embedded schema on startup
	JWTSecret     string        // secret used to sign bearer tokens
	JWTTTL        time.Duration // bearer token lifetime
	BcryptCost    int           // bcrypt cost for password hashing
	FrontendURL   string        // base URL used in emailed links
	CORSOrigins   []string      // allowed origins for browser clients
	RabbitMQURL   string        // when empty, mail is sent directly instead of queued
	TokenSweep    string        // cron spec for the expired reset token sweeper
	SentryDSN     string        // optional error tracking
	SMTP          SMTPConfig
}

// SMTPConfig configures the outbound mailer.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	UseTLS    bool   // STARTTLS on true, implicit SSL on false
	Templates string // optional directory overriding the built-in templates
}

// Load reads configuration values from the environment and returns a
// Config.  A .env file in the working directory is loaded first when
// present; real environment variables win over it.  Required variables
// are enforced by must() and missing values stop the process.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env file", "error", err)
	}
	return Config{
		Env:           envStr("APP_ENV", "dev"),
		Port:          envStr("APP_PORT", "3001"),
		DBUser:        must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        must("DB_HOST"),
		DBPort:        envStr("DB_PORT", "3306"),
		DBName:        must("DB_NAME"),
		DBAutoMigrate: envBool("DB_AUTO_MIGRATE", false),
		JWTSecret:     must("JWT_SECRET"),
		JWTTTL:        envDur("JWT_TTL", 3*time.Hour),
		BcryptCost:    envInt("BCRYPT_COST", 10),
		FrontendURL:   strings.TrimRight(envStr("FRONTEND_URL", "http://localhost:5500"), "/"),
		CORSOrigins:   splitList(envStr("CORS_ORIGINS", "*")),
		RabbitMQURL:   os.Getenv("RABBITMQ_URL"),
		TokenSweep:    envStr("TOKEN_SWEEP_SPEC", "@every 15m"),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		SMTP: SMTPConfig{
			Host:      envStr("SMTP_HOST", "smtp.sendgrid.net"),
			Port:      envInt("SMTP_PORT", 587),
			Username:  envStr("SMTP_USER", "apikey"),
			Password:  os.Getenv("SMTP_PASSWORD"),
			FromEmail: envStr("SMTP_FROM_EMAIL", "no-reply@bloodlink.local"),
			FromName:  envStr("SMTP_FROM_NAME", "BloodLink"),
			UseTLS:    envBool("SMTP_USE_TLS", true),
			Templates: os.Getenv("MAIL_TEMPLATES_DIR"),
		},
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs an error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		slog.Error("missing required env var", "key", key)
		os.Exit(1)
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
