package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds configuration for the CLI and the authstub dev server.
type Config struct {
	API       APIConfig
	Session   SessionConfig
	Stub      StubConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

// APIConfig configures the HTTP client talking to the ModelGate backend.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig selects where the token pair is persisted.
type SessionConfig struct {
	// Backend is one of: memory, bolt, redis, mongo.
	Backend  string
	BoltPath string
	Redis    RedisConfig
	Mongo    MongoConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// StubConfig configures the authstub dev server.
type StubConfig struct {
	Port       string
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("MODELGATE_API_URL", "http://localhost:8090")
	viper.SetDefault("MODELGATE_HTTP_TIMEOUT", 30)
	viper.SetDefault("SESSION_BACKEND", "bolt")
	viper.SetDefault("SESSION_BOLT_PATH", defaultBoltPath())
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PREFIX", "modelgate:session:")
	viper.SetDefault("MONGODB_DATABASE", "modelgate")
	viper.SetDefault("MONGODB_COLLECTION", "sessions")
	viper.SetDefault("STUB_PORT", "8090")
	viper.SetDefault("STUB_ACCESS_TTL_MINUTES", 15)
	viper.SetDefault("STUB_REFRESH_TTL_MINUTES", 10080)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 5.0)
	viper.SetDefault("RATE_LIMIT_BURST", 10)

	cfg := &Config{
		API: APIConfig{
			BaseURL: viper.GetString("MODELGATE_API_URL"),
			Timeout: time.Duration(viper.GetInt("MODELGATE_HTTP_TIMEOUT")) * time.Second,
		},
		Session: SessionConfig{
			Backend:  viper.GetString("SESSION_BACKEND"),
			BoltPath: viper.GetString("SESSION_BOLT_PATH"),
			Redis: RedisConfig{
				Addr:     viper.GetString("REDIS_ADDR"),
				Password: os.Getenv("REDIS_PASSWORD"),
				DB:       viper.GetInt("REDIS_DB"),
				Prefix:   viper.GetString("REDIS_PREFIX"),
			},
			Mongo: MongoConfig{
				URI:        viper.GetString("MONGODB_URI"),
				Database:   viper.GetString("MONGODB_DATABASE"),
				Collection: viper.GetString("MONGODB_COLLECTION"),
			},
		},
		Stub: StubConfig{
			Port:       viper.GetString("STUB_PORT"),
			JWTSecret:  os.Getenv("STUB_JWT_SECRET"),
			AccessTTL:  time.Duration(viper.GetInt("STUB_ACCESS_TTL_MINUTES")) * time.Minute,
			RefreshTTL: time.Duration(viper.GetInt("STUB_REFRESH_TTL_MINUTES")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:     viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   viper.GetInt("RATE_LIMIT_BURST"),
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	switch cfg.Session.Backend {
	case "memory", "bolt", "redis", "mongo":
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.Session.Backend)
	}
	if cfg.Session.Backend == "redis" && cfg.Session.Redis.Addr == "" {
		return nil, fmt.Errorf("SESSION_BACKEND=redis requires REDIS_ADDR")
	}
	if cfg.Session.Backend == "mongo" && cfg.Session.Mongo.URI == "" {
		return nil, fmt.Errorf("SESSION_BACKEND=mongo requires MONGODB_URI")
	}

	return cfg, nil
}

func defaultBoltPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "modelgate-session.db"
	}
	return home + "/.modelgate/session.db"
}
