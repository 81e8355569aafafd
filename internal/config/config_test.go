package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: phi-2
  server:
    enabled: false
security:
  cooldown: 30s
  max_cycle_failures: 3
light:
  driver: hue
  hue_host: 192.168.1.20
  hue_user: abc
  hue_light_id: 4
camera:
  args: ["-t", "500", "-o", "-"]
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "phi-2", cfg.LLM.Model)
	assert.False(t, cfg.LLM.Server.Enabled)
	assert.Equal(t, "http://127.0.0.1:8080/v1", cfg.LLM.BaseURL, "untouched keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Security.Cooldown)
	assert.Equal(t, 3, cfg.Security.MaxCycleFailures)
	assert.Equal(t, LightHue, cfg.Light.Driver)
	assert.Equal(t, 4, cfg.Light.HueLightID)
	assert.Equal(t, []string{"-t", "500", "-o", "-"}, cfg.Camera.Args)
	assert.Equal(t, "rpicam-still", cfg.Camera.Command)
	assert.NoError(t, cfg.Validate())
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "security: [oops"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":   "sk-test",
		"TELEGRAM_TOKEN":   "123:abc",
		"TELEGRAM_CHAT_ID": "-100200",
		"NEWS_API_KEY":     " news ",
	}

	cfg := Default()
	cfg.Light.HueUser = "from-file"
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.EqualValues(t, -100200, cfg.Telegram.ChatID)
	assert.Equal(t, "news", cfg.News.APIKey)
	assert.Equal(t, "from-file", cfg.Light.HueUser)
	assert.True(t, cfg.Telegram.Configured())
}

func TestApplyEnvBadChatID(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "TELEGRAM_CHAT_ID" {
			return "me"
		}
		return ""
	})
	assert.ErrorContains(t, err, "TELEGRAM_CHAT_ID")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero cooldown", func(c *Config) { c.Security.Cooldown = 0 }, "security.cooldown"},
		{"no failures allowed", func(c *Config) { c.Security.MaxCycleFailures = 0 }, "max_cycle_failures"},
		{"empty music dir", func(c *Config) { c.Music.Dir = "" }, "music.dir"},
		{"unknown light", func(c *Config) { c.Light.Driver = "x10" }, "x10"},
		{"hue without user", func(c *Config) { c.Light.Driver = LightHue; c.Light.HueHost = "h" }, "hue_user"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "loud"},
		{"external llm without url", func(c *Config) { c.LLM.Server.Enabled = false; c.LLM.BaseURL = "" }, "base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestFindConfig(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")

	got, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = FindConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "not found")
}

func TestFindConfigSearch(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	_, err := FindConfig("")
	if err != nil {
		// /etc/jarvis/config.yaml may exist on the host
		assert.ErrorIs(t, err, ErrNoConfig)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), nil, 0o600))
	got, err := FindConfig("")
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", got)
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		" debug ": slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
