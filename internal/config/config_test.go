package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfigJSON 모든 필수 항목이 채워진 유효한 설정
const validConfigJSON = `{
	"debug": false,
	"instance": {
		"url": "https://bar.example.com",
		"card_id": "card-1",
		"pin": "1234"
	},
	"state": {
		"dir": "data"
	},
	"notifiers": {
		"webhooks": [
			{
				"id": "hook-1",
				"url": "https://hooks.example.com/stock",
				"subscriptions": ["restocked", "depleted"]
			}
		],
		"telegrams": [
			{
				"id": "tg-1",
				"bot_token": "123456789:ABC-DEF1234ghIkl-zyx57W2v1u123ew11",
				"chat_id": 123456
			}
		]
	},
	"watch": {
		"runnable": true,
		"time_spec": "*/10 * * * *",
		"listen_port": 8080
	}
}`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openbar-notifier.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadWithFile(t *testing.T) {
	t.Run("Valid config loads with defaults applied", func(t *testing.T) {
		cfg, err := LoadWithFile(writeConfigFile(t, validConfigJSON))
		require.NoError(t, err)

		assert.Equal(t, "https://bar.example.com", cfg.Instance.URL)
		assert.Equal(t, "card-1", cfg.Instance.CardID)
		assert.Equal(t, 30*time.Second, cfg.Instance.FetchTimeoutDuration())

		// 재시도 정책 기본값
		assert.Equal(t, 3, cfg.Retry.MaxAttempts)
		assert.Equal(t, 1*time.Second, cfg.Retry.BaseDelayDuration())
		assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelayDuration())
		assert.Equal(t, 10*time.Second, cfg.Retry.AttemptTimeoutDuration())
		assert.True(t, cfg.Retry.Jitter)

		assert.Equal(t, 5*time.Minute, cfg.Watch.SoftDeadlineDuration())

		require.Len(t, cfg.Notifiers.Webhooks, 1)
		assert.Equal(t, []string{"restocked", "depleted"}, cfg.Notifiers.Webhooks[0].Subscriptions)
		require.Len(t, cfg.Notifiers.Telegrams, 1)
		assert.Equal(t, int64(123456), cfg.Notifiers.Telegrams[0].ChatID)
	})

	t.Run("Missing config file fails", func(t *testing.T) {
		_, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
	})

	t.Run("Unknown config field fails", func(t *testing.T) {
		content := `{
			"instance": {"url": "https://bar.example.com", "card_id": "c", "pin": "1"},
			"notifiers": {"webhooks": [{"id": "h", "url": "https://h.example.com"}]},
			"watch": {},
			"definitely_not_a_field": true
		}`
		_, err := LoadWithFile(writeConfigFile(t, content))
		require.Error(t, err)
	})

	t.Run("Missing instance credentials fail", func(t *testing.T) {
		content := `{
			"instance": {"url": "https://bar.example.com"},
			"notifiers": {"webhooks": [{"id": "h", "url": "https://h.example.com"}]},
			"watch": {}
		}`
		_, err := LoadWithFile(writeConfigFile(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "card_id")
	})

	t.Run("No notifier configured fails", func(t *testing.T) {
		content := `{
			"instance": {"url": "https://bar.example.com", "card_id": "c", "pin": "1"},
			"notifiers": {},
			"watch": {}
		}`
		_, err := LoadWithFile(writeConfigFile(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "알림 채널")
	})

	t.Run("Duplicate webhook ids fail", func(t *testing.T) {
		content := `{
			"instance": {"url": "https://bar.example.com", "card_id": "c", "pin": "1"},
			"notifiers": {"webhooks": [
				{"id": "h", "url": "https://a.example.com"},
				{"id": "h", "url": "https://b.example.com"}
			]},
			"watch": {}
		}`
		_, err := LoadWithFile(writeConfigFile(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "중복")
	})

	t.Run("Unknown subscription kind fails", func(t *testing.T) {
		content := `{
			"instance": {"url": "https://bar.example.com", "card_id": "c", "pin": "1"},
			"notifiers": {"webhooks": [
				{"id": "h", "url": "https://a.example.com", "subscriptions": ["sold_out"]}
			]},
			"watch": {}
		}`
		_, err := LoadWithFile(writeConfigFile(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sold_out")
	})

	t.Run("Invalid telegram bot token fails", func(t *testing.T) {
		content := `{
			"instance": {"url": "https://bar.example.com", "card_id": "c", "pin": "1"},
			"notifiers": {"telegrams": [
				{"id": "tg", "bot_token": "not-a-token", "chat_id": 1}
			]},
			"watch": {}
		}`
		_, err := LoadWithFile(writeConfigFile(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bot_token")
	})

	t.Run("Invalid cron spec fails when watch mode is enabled", func(t *testing.T) {
		content := `{
			"instance": {"url": "https://bar.example.com", "card_id": "c", "pin": "1"},
			"notifiers": {"webhooks": [{"id": "h", "url": "https://a.example.com"}]},
			"watch": {"runnable": true, "time_spec": "not a cron"}
		}`
		_, err := LoadWithFile(writeConfigFile(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "time_spec")
	})

	t.Run("Cron spec is not required in one-shot mode", func(t *testing.T) {
		content := `{
			"instance": {"url": "https://bar.example.com", "card_id": "c", "pin": "1"},
			"notifiers": {"webhooks": [{"id": "h", "url": "https://a.example.com"}]},
			"watch": {"runnable": false}
		}`
		_, err := LoadWithFile(writeConfigFile(t, content))
		require.NoError(t, err)
	})

	t.Run("Environment variables override file values", func(t *testing.T) {
		t.Setenv("OBN_INSTANCE__CARD_ID", "env-card")
		t.Setenv("OBN_RETRY__MAX_ATTEMPTS", "7")

		cfg, err := LoadWithFile(writeConfigFile(t, validConfigJSON))
		require.NoError(t, err)

		assert.Equal(t, "env-card", cfg.Instance.CardID)
		assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	})
}

func TestEventKinds(t *testing.T) {
	kinds := EventKinds([]string{"restocked", "depleted"})
	require.Len(t, kinds, 2)
	assert.Equal(t, "restocked", string(kinds[0]))
	assert.Equal(t, "depleted", string(kinds[1]))

	assert.Empty(t, EventKinds(nil))
}
