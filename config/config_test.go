package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\n"))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "tripchat.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, AuthHeader, cfg.Auth.Mode)
	assert.Equal(t, 100, cfg.Chat.HistoryMaxLimit)
	assert.Equal(t, 0, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 30*time.Second, cfg.WS.PingInterval)
	assert.Equal(t, 64, cfg.WS.SendBuffer)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "tripchat", cfg.Logging.Service)
	assert.Empty(t, cfg.GRPC.Addr)
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"missing http addr": "grpc:\n  addr: \":9090\"\n",
		"postgres without dsn": `
http: {addr: ":8080"}
storage: {driver: postgres}
`,
		"unknown driver": `
http: {addr: ":8080"}
storage: {driver: mysql}
`,
		"jwt without secret": `
http: {addr: ":8080"}
auth: {mode: jwt}
`,
		"negative rate": `
http: {addr: ":8080"}
chat: {rateLimit: -1}
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(`
http: {addr: ":8080", requestTimeout: 3s}
auth: {mode: jwt, jwtSecret: k, clockSkew: 30s}
chat: {rateLimit: 2.5}
`))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.Auth.ClockSkew)
	assert.Equal(t, 1, cfg.Chat.RateBurst)
}

func TestLoadConfig_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":1234\"\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":1234", cfg.HTTP.Addr)
}

func TestLoadConfig_SampleFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "config.yaml")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, int32(10), cfg.Storage.Postgres.MaxConns)
	assert.Equal(t, time.Hour, cfg.Storage.Postgres.MaxConnLifetime)
}
