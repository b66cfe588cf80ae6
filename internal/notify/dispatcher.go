package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
	applog "github.com/darkkaiser/openbar-notifier/pkg/log"
)

// component 발송 계층의 로깅용 컴포넌트 이름
const component = "notify.dispatcher"

// defaultConcurrency 동시에 진행되는 전달 작업의 기본 상한
const defaultConcurrency = 4

// Dispatcher 변경 이벤트를 등록된 모든 대상에게 발송하는 조율자입니다.
//
// 각 (이벤트, 대상) 쌍은 독립적인 작업으로 처리되며, 제한된 수의 워커가
// 병렬로 수행합니다. 하나의 쌍에 대한 모든 시도(성공 또는 한도 소진)가
// 끝나야 해당 쌍의 결과가 확정됩니다.
type Dispatcher struct {
	targets     []Target
	policy      RetryPolicy
	concurrency int

	// sleep 재시도 대기 함수. 테스트에서 실제 대기 없이 검증하기 위해 주입 가능합니다.
	// 컨텍스트가 먼저 취소되면 대기를 중단하고 false를 반환해야 합니다.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewDispatcher 발송 조율자를 생성합니다.
// concurrency가 0 이하이면 기본값을 사용합니다.
func NewDispatcher(targets []Target, policy RetryPolicy, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Dispatcher{
		targets:     targets,
		policy:      policy.normalized(),
		concurrency: concurrency,
		sleep:       sleepWithContext,
	}
}

// deliveryJob 하나의 (이벤트, 대상) 쌍에 대한 전달 작업
// 인덱스는 결과를 이벤트 순서대로 정렬하기 위해 보존합니다.
type deliveryJob struct {
	eventIdx  int
	targetIdx int
}

// indexedOutcome 정렬 키가 포함된 전달 결과
type indexedOutcome struct {
	deliveryJob
	outcome Outcome
}

// Dispatch 모든 이벤트를 모든 대상에게 발송하고 쌍별 결과를 반환합니다.
//
// 반환되는 결과는 이벤트 순서(= Diff 엔진의 결정적 순서), 동일 이벤트
// 내에서는 대상 등록 순서로 정렬됩니다. 컨텍스트가 취소되면 아직 시작되지
// 않았거나 진행 중인 쌍은 StatusFailed로 보고되며, 어떤 쌍도 결과 없이
// 누락되지 않습니다.
func (d *Dispatcher) Dispatch(ctx context.Context, events []diff.Event) []Outcome {
	if len(events) == 0 || len(d.targets) == 0 {
		return []Outcome{}
	}

	jobs := make(chan deliveryJob)
	results := make(chan indexedOutcome, len(events)*len(d.targets))

	var wg sync.WaitGroup
	for range d.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- indexedOutcome{
					deliveryJob: job,
					outcome:     d.deliverWithRetry(ctx, events[job.eventIdx], d.targets[job.targetIdx]),
				}
			}
		}()
	}

	for eventIdx := range events {
		for targetIdx := range d.targets {
			jobs <- deliveryJob{eventIdx: eventIdx, targetIdx: targetIdx}
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	collected := make([]indexedOutcome, 0, len(events)*len(d.targets))
	for result := range results {
		collected = append(collected, result)
	}
	sort.Slice(collected, func(i, j int) bool {
		if collected[i].eventIdx != collected[j].eventIdx {
			return collected[i].eventIdx < collected[j].eventIdx
		}
		return collected[i].targetIdx < collected[j].targetIdx
	})

	outcomes := make([]Outcome, len(collected))
	for i, result := range collected {
		outcomes[i] = result.outcome
	}
	return outcomes
}

// deliverWithRetry 하나의 (이벤트, 대상) 쌍에 대한 전달을 재시도 정책에 따라 수행합니다.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, event diff.Event, target Target) Outcome {
	outcome := Outcome{
		Event:    event,
		TargetID: target.ID(),
	}

	// 구독하지 않는 이벤트 종류는 발송하지 않습니다. 실패가 아닌 정책 필터입니다.
	if !target.Accepts(event.Kind) {
		outcome.Status = StatusSkipped
		return outcome
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		// 실행이 중단되었으면 남은 시도를 포기하고 실패로 보고합니다.
		if err := ctx.Err(); err != nil {
			outcome.Status = StatusFailed
			outcome.Err = err
			return outcome
		}

		if attempt > 1 {
			if !d.sleep(ctx, d.policy.backoffDelay(attempt-1)) {
				outcome.Status = StatusFailed
				outcome.Err = ctx.Err()
				return outcome
			}
		}

		outcome.Attempts = attempt
		lastErr = d.deliverOnce(ctx, event, target)
		if lastErr == nil {
			outcome.Status = StatusDelivered
			return outcome
		}

		applog.WithComponentAndFields(component, applog.Fields{
			"target_id":  target.ID(),
			"event_kind": event.Kind,
			"product_id": event.ProductID,
			"attempt":    attempt,
			"error":      lastErr,
		}).Warn("알림 전달 시도가 실패하였습니다.")
	}

	outcome.Status = StatusFailed
	outcome.Err = lastErr
	return outcome
}

// deliverOnce 개별 시도 제한 시간을 적용하여 이벤트를 1회 전달합니다.
func (d *Dispatcher) deliverOnce(ctx context.Context, event diff.Event, target Target) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.policy.AttemptTimeout)
	defer cancel()

	return target.Deliver(attemptCtx, event)
}

// sleepWithContext 컨텍스트 취소에 반응하는 대기 함수입니다.
// 대기를 끝까지 마쳤으면 true, 취소로 중단되었으면 false를 반환합니다.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
