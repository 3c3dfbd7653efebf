package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	req := require.New(t)

	cfg, err := Load(t.TempDir())
	req.NoError(err)

	req.Equal(":8080", cfg.Server.Address)
	req.Equal(24*time.Hour, cfg.JWT.TTL)
	req.Equal(256, cfg.Realtime.SendBuffer)
	req.Equal(60*time.Second, cfg.Realtime.PongWait)
	req.False(cfg.Redis.Enabled)
	req.Equal("estatechat:events", cfg.Redis.Channel)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	yaml := []byte(`
server:
  address: ":9090"
jwt:
  secret: from-file
  ttl: 2h
realtime:
  send_buffer: 8
  allowed_origins:
    - https://example.com
`)
	req.NoError(os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("ESTATECHAT_JWT_SECRET", "from-env")
	t.Setenv("ESTATECHAT_DB_PORT", "6543")

	cfg, err := Load(dir)
	req.NoError(err)

	req.Equal(":9090", cfg.Server.Address)
	req.Equal("from-env", cfg.JWT.Secret)
	req.Equal(2*time.Hour, cfg.JWT.TTL)
	req.Equal(8, cfg.Realtime.SendBuffer)
	req.Equal([]string{"https://example.com"}, cfg.Realtime.AllowedOrigins)
	req.Equal(6543, cfg.DB.Port)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			JWT:      JWTConfig{Secret: "s", TTL: time.Hour},
			Realtime: RealtimeConfig{SendBuffer: 1, PublishBuffer: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty secret", func(c *Config) { c.JWT.Secret = "  " }, true},
		{"zero ttl", func(c *Config) { c.JWT.TTL = 0 }, true},
		{"zero send buffer", func(c *Config) { c.Realtime.SendBuffer = 0 }, true},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", User: "u", Password: "p", Name: "n", Port: 5432, SSLMode: "disable", TimeZone: "UTC"}
	require.Equal(t, "host=db user=u password=p dbname=n port=5432 sslmode=disable TimeZone=UTC", c.DSN())
}
