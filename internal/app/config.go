package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/order-desk/internal/events"
	"github.com/xenking/order-desk/internal/localstore"
)

// Remote store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), a .env file, flags, or YAML config
// files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (KART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Remote       RemoteConfig
	Local        localstore.Config
	Connectivity ConnectivityConfig
	Kafka        events.Config
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RemoteConfig selects the remote document store.
type RemoteConfig struct {
	Driver        string        `default:"postgres" usage:"Remote store driver: postgres or mongo"`
	DatabaseURL   string        `usage:"PostgreSQL connection URL (KART_REMOTE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MongoURI      string        `usage:"MongoDB connection URI (KART_REMOTE_MONGO_URI or MONGO_URI)" flag:"mongo-uri"`
	MongoDatabase string        `default:"order_desk" usage:"MongoDB database name"`
	Timeout       time.Duration `default:"5s" usage:"Bound on every remote store call"`
}

// ConnectivityConfig controls remote store probing.
type ConnectivityConfig struct {
	ProbeInterval time.Duration `default:"5s" usage:"Interval between remote store probes"`
	ProbeTimeout  time.Duration `default:"2s" usage:"Timeout of a single probe"`
}

// RateLimitConfig controls the per-agent token bucket limiter.
type RateLimitConfig struct {
	PerSecond float64 `default:"10" usage:"Sustained requests per second per agent"`
	Burst     int     `default:"20" usage:"Burst size per agent"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a .env file, environment variables and
// YAML config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case DriverPostgres:
		if c.Remote.DatabaseURL == "" {
			return errors.New("database URL is required: set KART_REMOTE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMongo:
		if c.Remote.MongoURI == "" {
			return errors.New("mongo URI is required: set KART_REMOTE_MONGO_URI or MONGO_URI")
		}
	default:
		return errors.Errorf("unknown remote driver %q", c.Remote.Driver)
	}

	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set KART_API_KEY_PEPPER")
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("remote timeout must be positive")
	}
	if c.Connectivity.ProbeInterval <= 0 || c.Connectivity.ProbeTimeout <= 0 {
		return errors.New("probe interval and timeout must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Remote.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Remote.DatabaseURL = v
		}
	}
	if c.Remote.MongoURI == "" {
		if v := os.Getenv("MONGO_URI"); v != "" {
			c.Remote.MongoURI = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
