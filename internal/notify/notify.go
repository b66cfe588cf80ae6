// Package notify 변경 이벤트를 외부 알림 대상에게 전달하는 발송 계층을 제공합니다.
//
// 발송은 (이벤트, 대상) 쌍 단위로 독립적으로 수행되며, 한 대상의 실패가 다른
// 대상이나 다른 이벤트의 전달을 막지 않습니다. 모든 쌍의 결과는 Outcome으로
// 수집되어 호출자에게 보고되며, 조용히 버려지는 실패는 없습니다.
package notify

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
)

// Status (이벤트, 대상) 쌍의 최종 전달 상태
type Status string

const (
	// StatusDelivered 대상이 이벤트 수신을 승인한 경우
	StatusDelivered Status = "delivered"

	// StatusFailed 재시도 한도까지 모두 실패했거나 실행이 중단된 경우
	StatusFailed Status = "failed"

	// StatusSkipped 대상이 해당 이벤트 종류를 구독하지 않아 발송하지 않은 경우
	// 정책에 의한 필터링이며 실패가 아닙니다.
	StatusSkipped Status = "skipped"
)

// Outcome 하나의 (이벤트, 대상) 쌍에 대한 최종 전달 결과
type Outcome struct {
	Event    diff.Event `json:"event"`
	TargetID string     `json:"target_id"`
	Attempts int        `json:"attempts"`
	Status   Status     `json:"status"`

	// Err 최종 실패 시 마지막 시도의 에러 (StatusFailed가 아니면 nil)
	// 상세 내용은 로그로 남기므로 상태 API 응답에는 포함하지 않습니다.
	Err error `json:"-"`
}

// Target 이벤트를 전달받는 외부 알림 대상
type Target interface {
	// ID 대상을 구분하는 식별자를 반환합니다. 결과 보고와 로깅에 사용됩니다.
	ID() string

	// Accepts 해당 종류의 이벤트를 이 대상이 구독하는지의 여부를 반환합니다.
	Accepts(kind diff.Kind) bool

	// Deliver 이벤트를 대상에게 1회 전달합니다.
	// 재시도는 호출자(Dispatcher)의 책임이므로 구현체는 재시도해서는 안 됩니다.
	Deliver(ctx context.Context, event diff.Event) error
}

// RetryPolicy (이벤트, 대상) 쌍별 재시도 정책
//
// 테스트에서 시간을 주입할 수 있도록 하드코딩된 상수가 아닌 명시적인
// 설정 객체로 모델링합니다.
type RetryPolicy struct {
	// MaxAttempts 쌍별 최대 시도 횟수 (최초 시도 포함)
	MaxAttempts int

	// BaseDelay 첫 재시도 전 대기 시간. 이후 시도마다 2배씩 증가합니다.
	BaseDelay time.Duration

	// MaxDelay 재시도 대기 시간의 상한
	MaxDelay time.Duration

	// AttemptTimeout 개별 전달 시도의 제한 시간
	AttemptTimeout time.Duration

	// Jitter 재시도 대기 시간에 전체 지터를 적용할지의 여부
	Jitter bool
}

// DefaultRetryPolicy 기본 재시도 정책을 반환합니다.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 10 * time.Second,
		Jitter:         true,
	}
}

// normalized 유효하지 않은 설정값을 기본값으로 보정한 정책을 반환합니다.
func (p RetryPolicy) normalized() RetryPolicy {
	defaults := DefaultRetryPolicy()

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = defaults.AttemptTimeout
	}

	return p
}

// backoffDelay attempt번째 재시도 전의 대기 시간을 계산합니다. (attempt는 1부터 시작)
// 지수 백오프(BaseDelay * 2^(attempt-1))를 MaxDelay로 제한하며,
// Jitter가 활성화된 경우 [0, delay] 범위의 무작위 값으로 분산합니다.
func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	if p.Jitter {
		return time.Duration(rand.Int64N(int64(delay) + 1))
	}
	return delay
}
