package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TGBRIDGE_TELEGRAM_TOKEN", "123456789:token")
	t.Setenv("TGBRIDGE_PYRUS_LOGIN", "bot@example.com")
	t.Setenv("TGBRIDGE_PYRUS_SECURITY_KEY", "secret")
	t.Setenv("TGBRIDGE_FORMS_CLIENT_ID", "1001")
	t.Setenv("TGBRIDGE_FORMS_APPEAL_ID", "1002")
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TGBRIDGE_FILES_MAX_SIZE", "1048576")
	t.Setenv("TGBRIDGE_MEDIA_GROUP_WINDOW", "5s")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "123456789:token", cfg.Telegram.Token)
	assert.Equal(t, 1001, cfg.Forms.Client.ID)
	assert.Equal(t, 1002, cfg.Forms.Appeal.ID)
	assert.Equal(t, 29, cfg.Forms.Appeal.Fields.TgID)
	assert.Equal(t, int64(1048576), cfg.Files.MaxSize)
	assert.Equal(t, 5*time.Second, cfg.MediaGroup.Window)

	assert.Equal(t, "https://api.pyrus.com/v4", cfg.Pyrus.BaseURL)
	assert.Equal(t, uint(3), cfg.Pyrus.Retry.Attempts)
	assert.Equal(t, 4*time.Second, cfg.Pyrus.Retry.InitialDelay)
	assert.Equal(t, 500, cfg.Webhook.QueueSize)
	assert.Equal(t, "Pyrus-Bot-", cfg.Webhook.UserAgentPrefix)
	assert.Equal(t, "Чат открыт.", cfg.Messages.ChatOpened)
	assert.Equal(t, "Зарегистрироваться", cfg.Messages.RegisterButton)

	require.Contains(t, cfg.Scheduler.Tasks, "state_cleanup")
	assert.True(t, cfg.Scheduler.Tasks["state_cleanup"].Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
logger:
  level: debug
webhook:
  addr: ":9000"
  path: /hooks/pyrus
forms:
  appeal:
    fields:
      tg_id: 41
state:
  backend: valkey
  valkey:
    addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, ":9000", cfg.Webhook.Addr)
	assert.Equal(t, "/hooks/pyrus", cfg.Webhook.Path)
	assert.Equal(t, 41, cfg.Forms.Appeal.Fields.TgID)
	assert.Equal(t, 26, cfg.Forms.Appeal.Fields.FullName)
	assert.Equal(t, "valkey", cfg.State.Backend)
	assert.Equal(t, "localhost:6379", cfg.State.Valkey.Addr)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing token", env: map[string]string{"TGBRIDGE_TELEGRAM_TOKEN": ""}},
		{name: "missing appeal form", env: map[string]string{"TGBRIDGE_FORMS_APPEAL_ID": "0"}},
		{name: "bad log level", env: map[string]string{"TGBRIDGE_LOGGER_LEVEL": "verbose"}},
		{name: "valkey without address", env: map[string]string{"TGBRIDGE_STATE_BACKEND": "valkey"}},
		{name: "bad webhook path", env: map[string]string{"TGBRIDGE_WEBHOOK_PATH": "webhook"}},
		{name: "retry delays inverted", env: map[string]string{"TGBRIDGE_PYRUS_RETRY_MAX_DELAY": "1s"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}
