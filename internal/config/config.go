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
)

// App holds the runtime configuration loaded from the environment and an optional .env file.
type App struct {
	Env       string
	HTTPPort  string
	PublicURL string

	DBDriver    string
	DatabaseURL string
	RedisAddr   string
	LockBackend string

	RosterFile      string
	TimetableFile   string
	Timezone        string
	DuplicateWindow time.Duration

	AllowedHosts       []string
	TrustedProxies     []string
	CORSAllowedOrigins []string

	AdminUsername string
	AdminPassword string
	JWTIssuer     string
	JWTSigningKey string
	AdminTokenTTL time.Duration
	SessionSecret string

	RateLimitPerMin int

	LogLevel  string
	LogFormat string
}

// Production reports whether the app runs in a production environment.
func (a App) Production() bool {
	return a.Env == EnvProduction || a.Env == "prod"
}

// Location resolves the campus time zone. An empty zone means the host's local zone.
func (a App) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() (App, error) {
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
			return App{}, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) App {
	return App{
		Env:                v.GetString("APP_ENV"),
		HTTPPort:           v.GetString("HTTP_PORT"),
		PublicURL:          v.GetString("PUBLIC_URL"),
		DBDriver:           v.GetString("DB_DRIVER"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		LockBackend:        v.GetString("LOCK_BACKEND"),
		RosterFile:         v.GetString("ROSTER_FILE"),
		TimetableFile:      v.GetString("TIMETABLE_FILE"),
		Timezone:           v.GetString("TIMEZONE"),
		DuplicateWindow:    parseDuration(v.GetString("DUPLICATE_WINDOW"), time.Hour),
		AllowedHosts:       splitAndTrim(v.GetString("ALLOWED_HOSTS")),
		TrustedProxies:     splitAndTrim(v.GetString("TRUSTED_PROXIES")),
		CORSAllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS")),
		AdminUsername:      v.GetString("ADMIN_USERNAME"),
		AdminPassword:      v.GetString("ADMIN_PASSWORD"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		JWTSigningKey:      v.GetString("JWT_SIGNING_KEY"),
		AdminTokenTTL:      parseDuration(v.GetString("ADMIN_TOKEN_TTL"), 12*time.Hour),
		SessionSecret:      v.GetString("SESSION_SECRET"),
		RateLimitPerMin:    v.GetInt("RATE_LIMIT_PER_MIN"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("HTTP_PORT", "8501")
	v.SetDefault("PUBLIC_URL", "")

	v.SetDefault("DB_DRIVER", "sqlite3")
	v.SetDefault("DATABASE_URL", "attendance.db")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("LOCK_BACKEND", "memory")

	v.SetDefault("ROSTER_FILE", "classlist.csv")
	v.SetDefault("TIMETABLE_FILE", "")
	v.SetDefault("TIMEZONE", "Asia/Kolkata")
	v.SetDefault("DUPLICATE_WINDOW", "1h")

	v.SetDefault("ALLOWED_HOSTS", "192.168.92.127,localhost")
	// empty: X-Forwarded-For is ignored and the socket peer is the client
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "admin")
	v.SetDefault("JWT_ISSUER", "smartscan-attend")
	v.SetDefault("JWT_SIGNING_KEY", "dev-signing-secret-change")
	v.SetDefault("ADMIN_TOKEN_TTL", "12h")
	v.SetDefault("SESSION_SECRET", "dev-session-secret-change")

	v.SetDefault("RATE_LIMIT_PER_MIN", 120)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
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
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
