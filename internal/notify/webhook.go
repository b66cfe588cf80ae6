package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
	"github.com/darkkaiser/openbar-notifier/internal/snapshot"
	"github.com/darkkaiser/openbar-notifier/pkg/httpx"
)

// webhookProductState 웹훅 페이로드에 포함되는 상품 상태 표현
type webhookProductState struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Quantity  *int   `json:"quantity,omitempty"`
}

// webhookPayload 웹훅 전달 본문의 와이어 포맷
//
// Previous는 상품이 처음 등장한 경우(added) null이며,
// Current는 상품이 카탈로그에서 사라진 경우(removed) null입니다.
type webhookPayload struct {
	Kind        diff.Kind            `json:"kind"`
	ProductID   snapshot.ProductID   `json:"product_id"`
	ProductName string               `json:"product_name"`
	Previous    *webhookProductState `json:"previous"`
	Current     *webhookProductState `json:"current"`
	DetectedAt  time.Time            `json:"detected_at"`
}

// WebhookTarget 변경 이벤트를 HTTP POST로 전달받는 웹훅 엔드포인트입니다.
type WebhookTarget struct {
	id            string
	url           string
	subscriptions map[diff.Kind]bool
	fetcher       httpx.Fetcher

	// limiter 대상 엔드포인트별 발송 속도 제한
	limiter *rate.Limiter
}

var _ Target = (*WebhookTarget)(nil)

// NewWebhookTarget 웹훅 알림 대상을 생성합니다.
//
// subscriptions가 비어있으면 모든 종류의 이벤트를 구독하는 것으로 간주합니다.
// ratePerSecond가 0 이하이면 속도 제한을 적용하지 않습니다.
func NewWebhookTarget(id, url string, subscriptions []diff.Kind, fetcher httpx.Fetcher, ratePerSecond float64) *WebhookTarget {
	subscriptionSet := make(map[diff.Kind]bool, len(subscriptions))
	for _, kind := range subscriptions {
		subscriptionSet[kind] = true
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}

	return &WebhookTarget{
		id:            id,
		url:           url,
		subscriptions: subscriptionSet,
		fetcher:       fetcher,
		limiter:       limiter,
	}
}

// ID 대상 식별자를 반환합니다.
func (w *WebhookTarget) ID() string {
	return w.id
}

// Accepts 해당 종류의 이벤트를 구독하는지의 여부를 반환합니다.
func (w *WebhookTarget) Accepts(kind diff.Kind) bool {
	if len(w.subscriptions) == 0 {
		return true
	}
	return w.subscriptions[kind]
}

// Deliver 이벤트를 웹훅 엔드포인트에 1회 전달합니다.
// 2xx 이외의 응답은 모두 전달 실패로 간주합니다.
func (w *WebhookTarget) Deliver(ctx context.Context, event diff.Event) error {
	// 발송 속도 제한을 준수합니다. 대기 중 컨텍스트가 취소되면 에러를 반환합니다.
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(buildWebhookPayload(event))
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "웹훅 페이로드 직렬화에 실패했습니다.")
	}

	_, err = httpx.FetchBytes(ctx, w.fetcher, http.MethodPost, w.url,
		map[string]string{"Content-Type": "application/json"}, bytes.NewReader(body))
	return err
}

// buildWebhookPayload 변경 이벤트를 와이어 포맷으로 변환합니다.
func buildWebhookPayload(event diff.Event) webhookPayload {
	return webhookPayload{
		Kind:        event.Kind,
		ProductID:   event.ProductID,
		ProductName: event.ProductName(),
		Previous:    toWebhookProductState(event.Previous),
		Current:     toWebhookProductState(event.Current),
		DetectedAt:  event.DetectedAt,
	}
}

func toWebhookProductState(p *snapshot.Product) *webhookProductState {
	if p == nil {
		return nil
	}
	return &webhookProductState{
		Name:      p.Name,
		Available: p.Available,
		Quantity:  p.Quantity,
	}
}
