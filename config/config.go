package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Log      LogConfig
}

type AppConfig struct {
	Environment    string
	MigrateOnStart bool
}

type HTTPConfig struct {
	Port              string
	AllowOrigins      []string
	AuthRateLimitMax  int
	AuthRateLimitSpan time.Duration
}

type DatabaseConfig struct {
	URL string

	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSL      bool

	MaxConns int32
}

type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	BcryptCost  int
	HashWorkers int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	StatsTTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

// Load reads configuration from the process environment. A .env file in the
// working directory is loaded first when present; real environment variables
// take precedence over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	var (
		missing []string
		invalid []string
	)
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key, def string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		return v
	}
	optInt := func(key string, def int) int {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			invalid = append(invalid, key)
			return def
		}
		return v
	}
	optDuration := func(key string, def time.Duration) time.Duration {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		v, err := time.ParseDuration(raw)
		if err != nil || v <= 0 {
			invalid = append(invalid, key)
			return def
		}
		return v
	}
	optBool := func(key string, def bool) bool {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return v
	}

	cfg := Config{}

	cfg.App = AppConfig{
		Environment:    opt("APP_ENV", "development"),
		MigrateOnStart: optBool("MIGRATE_ON_START", true),
	}

	cfg.HTTP = HTTPConfig{
		Port:              opt("HTTP_PORT", opt("PORT", "5000")),
		AllowOrigins:      splitList(os.Getenv("CORS_ALLOW_ORIGINS")),
		AuthRateLimitMax:  optInt("AUTH_RATE_LIMIT_MAX", 20),
		AuthRateLimitSpan: optDuration("AUTH_RATE_LIMIT_WINDOW", time.Minute),
	}

	cfg.Database = DatabaseConfig{
		URL:        opt("DATABASE_URL", ""),
		DBHost:     opt("DB_HOST", ""),
		DBPort:     opt("DB_PORT", "5432"),
		DBName:     opt("DB_NAME", ""),
		DBUser:     opt("DB_USER", ""),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBSSL:      optBool("DB_SSL", false),
		MaxConns:   int32(optInt("DB_MAX_CONNS", 0)),
	}
	if cfg.Database.URL == "" {
		if cfg.Database.DBHost == "" {
			missing = append(missing, "DATABASE_URL or DB_HOST")
		}
		if cfg.Database.DBName == "" {
			missing = append(missing, "DB_NAME")
		}
	}

	cfg.Auth = AuthConfig{
		JWTSecret:   req("JWT_SECRET"),
		TokenTTL:    optDuration("TOKEN_TTL", 24*time.Hour),
		BcryptCost:  optInt("BCRYPT_COST", 10),
		HashWorkers: optInt("HASH_WORKERS", runtime.GOMAXPROCS(0)),
	}

	cfg.Redis = RedisConfig{
		Addr:     opt("REDIS_ADDR", ""),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       optInt("REDIS_DB", 0),
		StatsTTL: optDuration("STATS_CACHE_TTL", 30*time.Second),
	}

	cfg.Log = LogConfig{
		Level:  opt("LOG_LEVEL", "info"),
		Format: opt("LOG_FORMAT", "text"),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("config: invalid values for %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// DSN returns DATABASE_URL when set, otherwise a postgres URL assembled from the DB_* parts.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	sslMode := "disable"
	if c.DBSSL {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	switch {
	case c.DBUser != "" && c.DBPassword != "":
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	case c.DBUser != "":
		u.User = url.User(c.DBUser)
	}
	return u.String()
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
