package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:         "0.0.0.0:8080",
		APIKeyPepper: "pepper",
		Remote: RemoteConfig{
			Driver:      DriverPostgres,
			DatabaseURL: "postgres://localhost/order_desk",
			Timeout:     5 * time.Second,
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: 5 * time.Second,
			ProbeTimeout:  2 * time.Second,
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid postgres", mutate: func(*Config) {}},
		{
			name: "valid mongo",
			mutate: func(c *Config) {
				c.Remote.Driver = DriverMongo
				c.Remote.MongoURI = "mongodb://localhost:27017"
			},
		},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Remote.DatabaseURL = "" },
			wantErr: "database URL is required",
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.Remote.Driver = DriverMongo },
			wantErr: "mongo URI is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Remote.Driver = "sqlite" },
			wantErr: `unknown remote driver "sqlite"`,
		},
		{
			name:    "missing pepper",
			mutate:  func(c *Config) { c.APIKeyPepper = "" },
			wantErr: "pepper is required",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Remote.Timeout = 0 },
			wantErr: "remote timeout",
		},
		{
			name:    "zero probe interval",
			mutate:  func(c *Config) { c.Connectivity.ProbeInterval = 0 },
			wantErr: "probe interval",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("MONGO_URI", "mongodb://platform")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.Remote.DatabaseURL)
	assert.Equal(t, "mongodb://platform", cfg.Remote.MongoURI)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestApplyPlatformDefaults_ExplicitWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{
		Addr:   "127.0.0.1:7000",
		Remote: RemoteConfig{DatabaseURL: "postgres://explicit/db"},
	}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://explicit/db", cfg.Remote.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
