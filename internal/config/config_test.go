package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"UXTRAP_AI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "UXTRAP_AI_PROVIDER", "UXTRAP_SERVER_PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.AI.Model)
	assert.Equal(t, 4096, cfg.AI.MaxTokens)
	assert.Equal(t, 1200, cfg.Imaging.MaxWidth)
	assert.Equal(t, 0.7, cfg.Imaging.Quality)
	assert.EqualValues(t, 20<<20, cfg.MaxUploadBytes())
	assert.False(t, cfg.MinioEnabled())
	assert.Empty(t, cfg.Database.Driver)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9090
ai:
  provider: openai
  apiKey: sk-file
imaging:
  maxWidth: 800
  quality: 0.5
database:
  driver: postgres
  host: db
  port: 5432
  user: ux
  password: pw
  name: uxtrap
auth:
  apiKeys:
    web: k1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, "sk-file", cfg.AI.APIKey)
	assert.Equal(t, 800, cfg.Imaging.MaxWidth)
	assert.Equal(t, map[string]string{"web": "k1"}, cfg.Auth.APIKeys)
	assert.Equal(t, "host=db port=5432 user=ux password=pw dbname=uxtrap sslmode=disable", cfg.PostgresDSN())
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("UXTRAP_AI_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("UXTRAP_SERVER_PORT", "7000")

	cfg, err := Load(writeConfig(t, "ai:\n  provider: anthropic\n"))
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, "g-key", cfg.AI.APIKey)
	assert.Equal(t, 7000, cfg.Server.Port)

	t.Setenv("UXTRAP_AI_API_KEY", "generic")
	cfg, err = Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "generic", cfg.AI.APIKey)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "ai:\n  provider: llama\n"))
	assert.ErrorContains(t, err, "ai.provider")

	_, err = Load(writeConfig(t, "imaging:\n  quality: 1.5\n"))
	assert.ErrorContains(t, err, "imaging.quality")

	_, err = Load(writeConfig(t, "database:\n  driver: sqlite\n"))
	assert.ErrorContains(t, err, "database.driver")

	_, err = Load(writeConfig(t, "server: [\n"))
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	var c Config
	c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name = "u", "p", "h", 3306, "d"
	assert.Equal(t, "u:p@tcp(h:3306)/d?parseTime=true&charset=utf8mb4&loc=UTC", c.MySQLDSN())
	c.Database.DSN = "custom"
	assert.Equal(t, "custom", c.MySQLDSN())
}

func TestNewLogger(t *testing.T) {
	var c Config
	c.Log.Level = "warn"
	log, err := c.NewLogger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(-1))
	assert.True(t, log.Core().Enabled(1))

	c.Log.Level = "loud"
	_, err = c.NewLogger()
	assert.Error(t, err)
}
