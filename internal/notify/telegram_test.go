package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
	"github.com/darkkaiser/openbar-notifier/internal/snapshot"
)

// fakeSender Telegram Bot API 호출을 기록하는 테스트용 구현체
type fakeSender struct {
	sent    []tgbotapi.Chattable
	sendErr error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramTargetDeliver(t *testing.T) {
	qty := 2
	event := diff.Event{
		Kind:       diff.KindRestocked,
		ProductID:  "p-1",
		Current:    &snapshot.Product{ID: "p-1", Name: "위스키 A", Available: true, Quantity: &qty},
		DetectedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	t.Run("Message contains product name and quantity", func(t *testing.T) {
		sender := &fakeSender{}
		target := newTelegramTarget("tg-1", 12345, nil, sender)

		require.NoError(t, target.Deliver(context.Background(), event))
		require.Len(t, sender.sent, 1)

		message, ok := sender.sent[0].(tgbotapi.MessageConfig)
		require.True(t, ok)
		assert.Equal(t, int64(12345), message.ChatID)
		assert.Contains(t, message.Text, "재입고")
		assert.Contains(t, message.Text, "위스키 A")
		assert.Contains(t, message.Text, "남은 수량: 2")
	})

	t.Run("Send failure is reported", func(t *testing.T) {
		sender := &fakeSender{sendErr: errors.New("telegram unavailable")}
		target := newTelegramTarget("tg-1", 12345, nil, sender)

		require.Error(t, target.Deliver(context.Background(), event))
	})

	t.Run("Cancelled context prevents sending", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sender := &fakeSender{}
		target := newTelegramTarget("tg-1", 12345, nil, sender)

		require.ErrorIs(t, target.Deliver(ctx, event), context.Canceled)
		assert.Empty(t, sender.sent)
	})
}

func TestFormatTelegramMessage(t *testing.T) {
	base := diff.Event{
		ProductID:  "p-1",
		Current:    &snapshot.Product{ID: "p-1", Name: "위스키 A", Available: true},
		DetectedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		kind     diff.Kind
		expected string
	}{
		{diff.KindAdded, "새로운 상품"},
		{diff.KindRestocked, "재입고"},
		{diff.KindDepleted, "품절"},
		{diff.KindRemoved, "판매 목록에서 제외"},
		{diff.KindUpdated, "상품 정보가 변경"},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			event := base
			event.Kind = tc.kind
			if tc.kind == diff.KindRemoved {
				event.Previous = event.Current
				event.Current = nil
			}

			message := formatTelegramMessage(event)
			assert.Contains(t, message, tc.expected)
			assert.Contains(t, message, "위스키 A")
			assert.Contains(t, message, "2026-08-30")
		})
	}
}
