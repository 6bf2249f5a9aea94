package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosub/vpadmin/internal/config"
)

// clearEnv unsets the variables Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ADMIN_PASSWORD", "BLOG_ADMIN_PASSWORD", "ADMIN_PASS", "ADMIN_SESSION_TTL", "PORT", "HOST", "PREVIEW_PORT", "LOG_LEVEL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	cfg, err := config.Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5174", cfg.Addr())
	assert.Equal(t, 4173, cfg.PreviewPort)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, config.FallbackPassword, cfg.Password)
	assert.True(t, cfg.PasswordFallback)
	assert.Equal(t, filepath.Join(root, "docs", "blog"), cfg.Path(cfg.BlogDir))
	assert.Equal(t, "/abs/x", cfg.Path("/abs/x"))
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte(`
port = 9000
blog_dir = "content/blog"
watch = true
session_ttl = "30m"
build_command = ["make", "site"]
password = "from-file"
`), 0o644))

	cfg, err := config.Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "content/blog", cfg.BlogDir)
	assert.True(t, cfg.Watch)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, []string{"make", "site"}, cfg.BuildCommand)
	assert.Equal(t, "from-file", cfg.Password)
	assert.False(t, cfg.PasswordFallback)
	assert.Equal(t, "docs/.trash", cfg.TrashDir, "unset keys keep defaults")

	t.Setenv("PORT", "9100")
	t.Setenv("BLOG_ADMIN_PASSWORD", "from-env")
	t.Setenv("ADMIN_SESSION_TTL", "60000")
	cfg, err = config.Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, time.Minute, cfg.SessionTTL)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("ADMIN_PASS=dotenv\nPREVIEW_PORT=5000\n"), 0o644))

	cfg, err := config.Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.Password)
	assert.Equal(t, 5000, cfg.PreviewPort)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()

	_, err := config.Load(root, filepath.Join(root, "missing.toml"))
	assert.Error(t, err, "an explicit file must exist")

	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte("session_ttl = \"soon\"\n"), 0o644))
	_, err = config.Load(root, "")
	assert.ErrorContains(t, err, "session_ttl")

	require.NoError(t, os.Remove(filepath.Join(root, config.FileName)))
	t.Setenv("PORT", "eighty")
	_, err = config.Load(root, "")
	assert.ErrorContains(t, err, "PORT")
}

func TestWriteRoundTrip(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	cfg := config.Default(root)
	cfg.Port = 8123
	cfg.Watch = true
	cfg.Password = "secret"
	cfg.SessionTTL = 2 * time.Hour
	require.NoError(t, cfg.Write(filepath.Join(root, config.FileName)))

	data, err := os.ReadFile(filepath.Join(root, config.FileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	got, err := config.Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, 8123, got.Port)
	assert.True(t, got.Watch)
	assert.Equal(t, 2*time.Hour, got.SessionTTL)
	assert.Equal(t, cfg.DeployCommand, got.DeployCommand)
}
