// Package config loads the service configuration from the process
// environment. Every knob has a default suitable for local runs.
package config

import (
	"os"
	"strconv"
	"time"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN renders the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

type Config struct {
	HTTP struct {
		Addr string
	}
	// BaseURL is the public origin of this service, used to build
	// OIDC redirect and portal URLs.
	BaseURL string
	// SecretKey keys the OTP code HMAC.
	SecretKey string

	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}

	SessionTTL     time.Duration
	OtpTTL         time.Duration
	OtpMaxAttempts int
	OidcStateTTL   time.Duration

	RateWindow      time.Duration
	VoucherPerIP    int
	VoucherPerMAC   int
	OtpStartPerIP   int
	OtpStartPerMAC  int
	OtpVerifyPerIP  int
	OtpVerifyPerMAC int

	Unifi struct {
		Timeout      time.Duration
		FindAttempts int
		FindBackoff  time.Duration
	}

	SMTP struct {
		Addr     string
		Host     string
		From     string
		Username string
		Password string
	}

	MailBufferSize int
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.BaseURL = getEnv("BASE_URL", "http://localhost:8080")
	cfg.SecretKey = getEnv("SECRET_KEY", "dev-secret-change-me")

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "redux_portal")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.SessionTTL = seconds("SESSION_TTL_SECONDS", 1800)
	cfg.OtpTTL = seconds("OTP_TTL_SECONDS", 600)
	cfg.OtpMaxAttempts = parseInt(getEnv("OTP_MAX_ATTEMPTS", "5"), 5)
	cfg.OidcStateTTL = seconds("OIDC_STATE_TTL_SECONDS", 600)

	cfg.RateWindow = seconds("RATE_WINDOW_SECONDS", 60)
	cfg.VoucherPerIP = parseInt(getEnv("VOUCHER_RATE_LIMIT_PER_IP", "10"), 10)
	cfg.VoucherPerMAC = parseInt(getEnv("VOUCHER_RATE_LIMIT_PER_MAC", "5"), 5)
	cfg.OtpStartPerIP = parseInt(getEnv("OTP_START_RATE_LIMIT_PER_IP", "5"), 5)
	cfg.OtpStartPerMAC = parseInt(getEnv("OTP_START_RATE_LIMIT_PER_MAC", "3"), 3)
	cfg.OtpVerifyPerIP = parseInt(getEnv("OTP_VERIFY_RATE_LIMIT_PER_IP", "10"), 10)
	cfg.OtpVerifyPerMAC = parseInt(getEnv("OTP_VERIFY_RATE_LIMIT_PER_MAC", "5"), 5)

	cfg.Unifi.Timeout = seconds("UNIFI_TIMEOUT_SECONDS", 10)
	cfg.Unifi.FindAttempts = parseInt(getEnv("UNIFI_FIND_ATTEMPTS", "5"), 5)
	cfg.Unifi.FindBackoff = time.Duration(parseInt(getEnv("UNIFI_FIND_BACKOFF_MS", "500"), 500)) * time.Millisecond

	cfg.SMTP.Addr = getEnv("SMTP_ADDR", "")
	cfg.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.SMTP.From = getEnv("SMTP_FROM", "no-reply@localhost")
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")

	cfg.MailBufferSize = parseInt(getEnv("MAIL_BUFFER_SIZE", "128"), 128)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func seconds(key string, def int) time.Duration {
	return time.Duration(parseInt(getEnv(key, strconv.Itoa(def)), def)) * time.Second
}
