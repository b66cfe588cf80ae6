package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
)

// messageSender Telegram Bot API 호출 부분만 분리한 인터페이스
// 테스트에서 실제 API 호출 없이 전송 내용을 검증하기 위해 사용합니다.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramTarget 변경 이벤트를 Telegram 메시지로 전달받는 알림 대상입니다.
type TelegramTarget struct {
	id            string
	chatID        int64
	subscriptions map[diff.Kind]bool
	sender        messageSender
}

var _ Target = (*TelegramTarget)(nil)

// NewTelegramTarget Telegram 알림 대상을 생성합니다.
// subscriptions가 비어있으면 모든 종류의 이벤트를 구독하는 것으로 간주합니다.
func NewTelegramTarget(id, botToken string, chatID int64, subscriptions []diff.Kind) (*TelegramTarget, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unauthorized, "Telegram Bot API 초기화에 실패했습니다.")
	}

	return newTelegramTarget(id, chatID, subscriptions, bot), nil
}

func newTelegramTarget(id string, chatID int64, subscriptions []diff.Kind, sender messageSender) *TelegramTarget {
	subscriptionSet := make(map[diff.Kind]bool, len(subscriptions))
	for _, kind := range subscriptions {
		subscriptionSet[kind] = true
	}

	return &TelegramTarget{
		id:            id,
		chatID:        chatID,
		subscriptions: subscriptionSet,
		sender:        sender,
	}
}

// ID 대상 식별자를 반환합니다.
func (t *TelegramTarget) ID() string {
	return t.id
}

// Accepts 해당 종류의 이벤트를 구독하는지의 여부를 반환합니다.
func (t *TelegramTarget) Accepts(kind diff.Kind) bool {
	if len(t.subscriptions) == 0 {
		return true
	}
	return t.subscriptions[kind]
}

// Deliver 이벤트를 Telegram 메시지로 1회 전달합니다.
func (t *TelegramTarget) Deliver(ctx context.Context, event diff.Event) error {
	// Bot API 클라이언트는 컨텍스트를 받지 않으므로 전송 전에만 취소 여부를 확인합니다.
	if err := ctx.Err(); err != nil {
		return err
	}

	message := tgbotapi.NewMessage(t.chatID, formatTelegramMessage(event))
	if _, err := t.sender.Send(message); err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "Telegram 메시지 전송에 실패했습니다.")
	}
	return nil
}

// formatTelegramMessage 변경 이벤트를 사람이 읽을 수 있는 메시지로 변환합니다.
func formatTelegramMessage(event diff.Event) string {
	var sb strings.Builder

	switch event.Kind {
	case diff.KindAdded:
		sb.WriteString("🆕 새로운 상품이 등록되었습니다.")
	case diff.KindRestocked:
		sb.WriteString("✅ 상품이 재입고되었습니다.")
	case diff.KindDepleted:
		sb.WriteString("❌ 상품이 품절되었습니다.")
	case diff.KindRemoved:
		sb.WriteString("🗑 상품이 판매 목록에서 제외되었습니다.")
	case diff.KindUpdated:
		sb.WriteString("♻️ 상품 정보가 변경되었습니다.")
	default:
		sb.WriteString("상품 상태가 변경되었습니다.")
	}

	sb.WriteString(fmt.Sprintf("\n\n%s", event.ProductName()))

	if event.Current != nil && event.Current.Quantity != nil {
		sb.WriteString(fmt.Sprintf("\n남은 수량: %s", event.Current.QuantityString()))
	}

	sb.WriteString(fmt.Sprintf("\n감지 시각: %s", event.DetectedAt.Format("2006-01-02 15:04:05")))

	return sb.String()
}
