package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ParseSize converts a human-readable size string (e.g., "5GB", "500MB", "1024KB")
// to bytes. Supports B, KB, MB, GB, TB suffixes (case-insensitive).
// Also accepts plain numbers as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	re := regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(B|KB|MB|GB|TB)?$`)
	matches := re.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '5GB', '500MB', '1024KB')", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in size: %s", s)
	}

	unit := strings.ToUpper(matches[2])
	if unit == "" {
		unit = "B"
	}

	multipliers := map[string]float64{
		"B":  1,
		"KB": 1024,
		"MB": 1024 * 1024,
		"GB": 1024 * 1024 * 1024,
		"TB": 1024 * 1024 * 1024 * 1024,
	}

	return int64(value * multipliers[unit]), nil
}

type Config struct {
	Listen       string         `yaml:"listen"`
	PublicURL    string         `yaml:"public_url"`
	DatabasePath string         `yaml:"database_path"`
	DatabaseURL  string         `yaml:"database_url"` // postgres DSN; takes precedence over DatabasePath
	Auth         AuthConfig     `yaml:"auth"`
	Session      SessionConfig  `yaml:"session"`
	Identity     IdentityConfig `yaml:"identity"`
	Mail         MailConfig     `yaml:"mail"`
	Cron         CronConfig     `yaml:"cron"`
	RateLimit    RateLimit      `yaml:"rate_limit"`
	CORS         CORSConfig     `yaml:"cors"`
	Logs         LogsConfig     `yaml:"logs"`
	TLS          TLSConfig      `yaml:"tls"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	SetupTokenTTL     time.Duration `yaml:"setup_token_ttl"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	LockoutWindow     time.Duration `yaml:"lockout_window"`
	BcryptCost        int           `yaml:"bcrypt_cost"`
}

type SessionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Secret  string        `yaml:"secret"`
}

// IdentityConfig selects the external identity provider. Provider is one of
// "local", "pingone" or "pingfederate".
type IdentityConfig struct {
	Provider     string             `yaml:"provider"`
	Timeout      time.Duration      `yaml:"timeout"`
	PingOne      PingOneConfig      `yaml:"pingone"`
	PingFederate PingFederateConfig `yaml:"pingfederate"`
}

type PingOneConfig struct {
	AuthURL       string `yaml:"auth_url"`
	APIURL        string `yaml:"api_url"`
	EnvironmentID string `yaml:"environment_id"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
}

type PingFederateConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthPath     string `yaml:"auth_path"`
	APIPath      string `yaml:"api_path"`
}

type MailConfig struct {
	SMTPServer string `yaml:"smtp_server"` // host:port
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	FromName   string `yaml:"from_name"`
}

type CronConfig struct {
	APIKey string `yaml:"api_key"`
}

// RateLimit configures the auth endpoint limiter. When RedisURL is set the
// counters are shared through Redis instead of kept in process memory.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	RedisURL string        `yaml:"redis_url"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogsConfig struct {
	Retention    time.Duration `yaml:"retention"`
	MaxDBSize    int64         `yaml:"-"`           // Parsed size in bytes (not directly from YAML)
	MaxDBSizeRaw string        `yaml:"max_db_size"` // Human-readable size (e.g., "5GB", "500MB")
}

var C Config

// Providers accepted in identity.provider.
const (
	ProviderLocal        = "local"
	ProviderPingOne      = "pingone"
	ProviderPingFederate = "pingfederate"
)

func Load() error {
	// Defaults
	C = Config{
		Listen:       ":8080",
		PublicURL:    "http://localhost:8080",
		DatabasePath: "app.db",
		Auth: AuthConfig{
			TokenTTL:          time.Hour,
			SetupTokenTTL:     7 * 24 * time.Hour,
			MaxFailedAttempts: 5,
			LockoutWindow:     30 * time.Minute,
			BcryptCost:        10,
		},
		Session: SessionConfig{
			Timeout: 24 * time.Hour,
		},
		Identity: IdentityConfig{
			Provider: ProviderLocal,
			Timeout:  10 * time.Second,
			PingOne: PingOneConfig{
				AuthURL: "https://auth.pingone.com",
				APIURL:  "https://api.pingone.com/v1",
			},
			PingFederate: PingFederateConfig{
				AuthPath: "/as/token.oauth2",
				APIPath:  "/pf-admin/api/v1",
			},
		},
		Mail: MailConfig{
			From:     "security@localhost",
			FromName: "Security Team",
		},
		RateLimit: RateLimit{
			Requests: 10,
			Window:   time.Minute,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Logs: LogsConfig{
			Retention: 48 * time.Hour,
			MaxDBSize: 5 * 1024 * 1024 * 1024, // 5GB
		},
	}

	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &C); err != nil {
			return err
		}
	}

	if C.Logs.MaxDBSizeRaw != "" {
		if size, err := ParseSize(C.Logs.MaxDBSizeRaw); err == nil {
			C.Logs.MaxDBSize = size
		}
	}

	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	applyEnv()
	return nil
}

func applyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("LISTEN", &C.Listen)
	str("PUBLIC_URL", &C.PublicURL)
	str("DATABASE_PATH", &C.DatabasePath)
	str("DATABASE_URL", &C.DatabaseURL)

	str("JWT_SECRET", &C.Auth.JWTSecret)
	dur("TOKEN_TTL", &C.Auth.TokenTTL)
	dur("SETUP_TOKEN_TTL", &C.Auth.SetupTokenTTL)
	num("MAX_FAILED_ATTEMPTS", &C.Auth.MaxFailedAttempts)
	dur("LOCKOUT_WINDOW", &C.Auth.LockoutWindow)
	num("BCRYPT_COST", &C.Auth.BcryptCost)

	dur("SESSION_TIMEOUT", &C.Session.Timeout)
	str("SESSION_SECRET", &C.Session.Secret)

	str("IDENTITY_PROVIDER", &C.Identity.Provider)
	dur("IDENTITY_TIMEOUT", &C.Identity.Timeout)
	str("PING_ONE_AUTH_URL", &C.Identity.PingOne.AuthURL)
	str("PING_ONE_API_URL", &C.Identity.PingOne.APIURL)
	str("PING_ONE_ENV_ID", &C.Identity.PingOne.EnvironmentID)
	str("PING_ONE_CLIENT_ID", &C.Identity.PingOne.ClientID)
	str("PING_ONE_CLIENT_SECRET", &C.Identity.PingOne.ClientSecret)
	str("PING_FED_BASE_URL", &C.Identity.PingFederate.BaseURL)
	str("PING_FED_CLIENT_ID", &C.Identity.PingFederate.ClientID)
	str("PING_FED_CLIENT_SECRET", &C.Identity.PingFederate.ClientSecret)
	str("PING_FED_AUTH_PATH", &C.Identity.PingFederate.AuthPath)
	str("PING_FED_API_PATH", &C.Identity.PingFederate.APIPath)

	str("SMTP_SERVER", &C.Mail.SMTPServer)
	str("SMTP_USER", &C.Mail.User)
	str("SMTP_PASSWORD", &C.Mail.Password)
	str("MAIL_FROM", &C.Mail.From)
	str("MAIL_FROM_NAME", &C.Mail.FromName)

	str("CRON_API_KEY", &C.Cron.APIKey)

	num("RATE_LIMIT_REQUESTS", &C.RateLimit.Requests)
	dur("RATE_LIMIT_WINDOW", &C.RateLimit.Window)
	str("REDIS_URL", &C.RateLimit.RedisURL)

	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		var origins []string
		for _, p := range strings.Split(v, ",") {
			if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
				origins = append(origins, o)
			}
		}
		C.CORS.AllowedOrigins = origins
	}

	dur("LOGS_RETENTION", &C.Logs.Retention)
	if v := os.Getenv("LOGS_MAX_DB_SIZE"); v != "" {
		if size, err := ParseSize(v); err == nil {
			C.Logs.MaxDBSize = size
		}
	}

	if v := os.Getenv("TLS_ENABLED"); v == "true" {
		C.TLS.Enabled = true
	}
	str("TLS_CERT", &C.TLS.Cert)
	str("TLS_KEY", &C.TLS.Key)
}

// MinSecretLength is the shortest accepted JWT or session secret.
const MinSecretLength = 32

// Validate reports configuration that the server must not start with.
func (c Config) Validate() error {
	if len(c.Auth.JWTSecret) < MinSecretLength {
		return fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}
	if len(c.Session.Secret) < MinSecretLength {
		return fmt.Errorf("session secret must be at least %d characters", MinSecretLength)
	}
	switch c.Identity.Provider {
	case ProviderLocal, ProviderPingOne, ProviderPingFederate:
	default:
		return fmt.Errorf("unknown identity provider %q", c.Identity.Provider)
	}
	if c.Auth.MaxFailedAttempts < 1 {
		return errors.New("max_failed_attempts must be positive")
	}
	if c.Auth.LockoutWindow <= 0 || c.Auth.TokenTTL <= 0 || c.Auth.SetupTokenTTL <= 0 {
		return errors.New("auth durations must be positive")
	}
	return nil
}
