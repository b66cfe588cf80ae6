package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkkaiser/openbar-notifier/internal/config"
)

// TestBannerFormat은 배너 형식이 올바른지 확인합니다.
func TestBannerFormat(t *testing.T) {
	assert.Contains(t, banner, "v%s", "배너에 버전 플레이스홀더가 있어야 합니다")
	assert.NotEmpty(t, banner)

	formattedBanner := fmt.Sprintf(banner, Version)
	assert.Contains(t, formattedBanner, Version)
	assert.NotContains(t, formattedBanner, "%s", "포맷된 배너에 플레이스홀더가 남아있지 않아야 합니다")
}

// TestConfigFileName은 기본 설정 파일 이름이 올바른지 확인합니다.
func TestConfigFileName(t *testing.T) {
	assert.Equal(t, config.AppName+".json", config.DefaultFilename)
	assert.Equal(t, "openbar-notifier.json", config.DefaultFilename)
}

func TestBuildTargets(t *testing.T) {
	t.Run("Webhook targets are built from the configuration", func(t *testing.T) {
		cfg := &config.AppConfig{
			Notifiers: config.NotifiersConfig{
				Webhooks: []config.WebhookConfig{
					{ID: "hook-1", URL: "https://example.com/hook1"},
					{ID: "hook-2", URL: "https://example.com/hook2", Subscriptions: []string{"restocked"}},
				},
			},
		}

		targets, err := buildTargets(cfg)
		require.NoError(t, err)
		require.Len(t, targets, 2)
		assert.Equal(t, "hook-1", targets[0].ID())
		assert.Equal(t, "hook-2", targets[1].ID())
	})

	t.Run("No notifiers yields an empty target list", func(t *testing.T) {
		targets, err := buildTargets(&config.AppConfig{})
		require.NoError(t, err)
		assert.Empty(t, targets)
	})
}
