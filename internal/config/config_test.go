package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "nextbest.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	p := writeFile(t, `
server:
  grpc_addr: ":7000"
  insecure: true
database:
  driver: postgres
  dsn: postgres://x@db/nb
auth:
  access_ttl: 5m
  max_failures: 3
log:
  level: debug
`)
	t.Setenv("NEXTBEST_AUTH__ACCESS_TTL", "90s")
	t.Setenv("NEXTBEST_LOG__DEVELOPMENT", "true")
	t.Setenv("NEXTBEST_SHELL__HISTORY_FILE", "/tmp/h")

	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.GRPCAddr)
	require.True(t, cfg.Server.Insecure)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "postgres://x@db/nb", cfg.Database.DSN)
	require.Equal(t, 90*time.Second, cfg.Auth.AccessTTL, "env wins over file")
	require.Equal(t, 3, cfg.Auth.MaxFailures)
	require.Equal(t, 100_000, cfg.Auth.Iterations, "defaults survive")
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.Development)
	require.Equal(t, "/tmp/h", cfg.Shell.HistoryFile)
}

func TestLoad_PathFromEnv(t *testing.T) {
	p := writeFile(t, "database:\n  path: /var/lib/nb.db\n")
	t.Setenv(PathEnvVar, p)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/nb.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown driver":       func(c *Config) { c.Database.Driver = "mysql" },
		"postgres without dsn": func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" },
		"sqlite without path":  func(c *Config) { c.Database.Path = "" },
		"tls without cert":     func(c *Config) { c.Server.TLSCert = "" },
		"weak iterations":      func(c *Config) { c.Auth.Iterations = 10 },
		"zero ttl":             func(c *Config) { c.Auth.AccessTTL = 0 },
		"bad level":            func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		c := Default()
		mutate(c)
		require.Error(t, c.Validate(), name)
	}

	c := Default()
	c.Server.TLSCert, c.Server.TLSKey, c.Server.Insecure = "", "", true
	require.NoError(t, c.Validate(), "insecure mode needs no certificate")
}

func TestEnvKey(t *testing.T) {
	require.Equal(t, "auth.access_ttl", envKey("NEXTBEST_AUTH__ACCESS_TTL"))
	require.Equal(t, "server.grpc_addr", envKey("NEXTBEST_SERVER__GRPC_ADDR"))
	require.Equal(t, "", envKey("NEXTBEST_CONFIG"))
}
