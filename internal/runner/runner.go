// Package runner 한 번의 감시 실행(수집 → 비교 → 발송 → 커밋)을 조율합니다.
//
// 실행은 Fetching → Diffing → Dispatching → Persisting → Done의 상태를
// 순서대로 거치며, 수집 실패나 상태 손상 시 Aborted로 종료됩니다.
// Aborted 실행은 영속 상태를 변경하지 않으므로 다음 실행이 같은 이전 상태를
// 기준으로 안전하게 재시도할 수 있습니다.
package runner

import (
	"context"
	"time"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
	"github.com/darkkaiser/openbar-notifier/internal/notify"
	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
	"github.com/darkkaiser/openbar-notifier/internal/snapshot"
	"github.com/darkkaiser/openbar-notifier/internal/state"
	applog "github.com/darkkaiser/openbar-notifier/pkg/log"
)

// component 실행 조율자의 로깅용 컴포넌트 이름
const component = "runner"

// defaultSoftDeadline 한 번의 실행에 허용되는 기본 제한 시간입니다.
// 초과 시 남은 발송 작업은 포기되고 실패로 보고되며, 실행 자체는 계속 진행됩니다.
const defaultSoftDeadline = 5 * time.Minute

// Phase 실행이 도달한 단계
type Phase string

const (
	PhaseFetching    Phase = "fetching"
	PhaseDiffing     Phase = "diffing"
	PhaseDispatching Phase = "dispatching"
	PhasePersisting  Phase = "persisting"
	PhaseDone        Phase = "done"
	PhaseAborted     Phase = "aborted"
)

// Source 현재 재고 상태를 수집하는 외부 협력자
type Source interface {
	FetchAll(ctx context.Context) ([]snapshot.RawProduct, error)
}

// Dispatcher 변경 이벤트를 알림 대상에게 발송하는 협력자
type Dispatcher interface {
	Dispatch(ctx context.Context, events []diff.Event) []notify.Outcome
}

// Report 한 번의 실행에 대한 결과 요약
// 상태 조회 API의 응답에 그대로 포함되므로 JSON 태그를 유지해야 합니다.
type Report struct {
	Phase    Phase  `json:"phase"`
	Sequence uint64 `json:"sequence"`

	// EventCounts 감지된 이벤트의 종류별 개수
	EventCounts map[diff.Kind]int `json:"event_counts,omitempty"`

	// OutcomeCounts 전달 결과의 상태별 개수
	OutcomeCounts map[notify.Status]int `json:"outcome_counts,omitempty"`

	// Outcomes 쌍별 전달 결과 전체
	Outcomes []notify.Outcome `json:"outcomes,omitempty"`

	// StaleSequence 동시 실행 가드에 걸려 커밋이 거부되었는지의 여부
	// 다른 실행의 커밋이 유효하므로 경고일 뿐 실행 실패가 아닙니다.
	StaleSequence bool `json:"stale_sequence"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failed 실행이 비정상 종료되었는지의 여부를 반환합니다.
// 일부 전달 실패만으로는 실행 실패로 간주하지 않습니다.
func (r Report) Failed() bool {
	return r.Phase == PhaseAborted
}

// Runner 한 번의 감시 실행을 수행하는 조율자입니다.
type Runner struct {
	source     Source
	store      state.Store
	dispatcher Dispatcher

	// softDeadline 한 번의 실행에 허용되는 제한 시간
	softDeadline time.Duration

	// now 테스트에서 시간을 주입하기 위한 함수
	now func() time.Time
}

// New 실행 조율자를 생성합니다.
// softDeadline이 0 이하이면 기본값(5분)을 사용합니다.
func New(source Source, store state.Store, dispatcher Dispatcher, softDeadline time.Duration) *Runner {
	if softDeadline <= 0 {
		softDeadline = defaultSoftDeadline
	}

	return &Runner{
		source:       source,
		store:        store,
		dispatcher:   dispatcher,
		softDeadline: softDeadline,
		now:          time.Now,
	}
}

// Run 한 번의 감시 실행을 수행합니다.
//
// 반환된 에러가 nil이 아니면 실행이 Aborted로 종료된 것이며 영속 상태는
// 변경되지 않았습니다. 전달 실패(StatusFailed)는 Report로 보고될 뿐 에러를
// 발생시키지 않습니다.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{
		Phase:         PhaseFetching,
		EventCounts:   map[diff.Kind]int{},
		OutcomeCounts: map[notify.Status]int{},
		StartedAt:     r.now(),
	}

	// [Fetching] 현재 재고 상태를 수집합니다.
	// 실패 시 상태를 변경하지 않고 중단합니다. 다음 실행이 같은 기준으로 재시도합니다.
	rawProducts, err := r.source.FetchAll(ctx)
	if err != nil {
		return r.abort(report, apperrors.Wrap(err, apperrors.Unavailable, "재고 상태 수집에 실패하여 실행을 중단합니다."))
	}

	current, err := snapshot.BuildFrom(rawProducts, r.now())
	if err != nil {
		return r.abort(report, apperrors.Wrap(err, apperrors.ParsingFailed, "수집된 재고 상태가 유효하지 않아 실행을 중단합니다."))
	}

	// [Diffing] 이전 상태를 불러와 변경 이벤트를 계산합니다.
	// 상태 파일 손상은 치명적입니다. 손상을 최초 실행으로 취급하면 모든 상품의
	// 등록 알림이 재발송되므로 운영자의 개입 없이 복구하지 않습니다.
	report.Phase = PhaseDiffing
	previous, sequence, err := r.store.Load()
	if err != nil {
		return r.abort(report, apperrors.Wrap(err, apperrors.ParsingFailed, "이전 상태를 불러올 수 없어 실행을 중단합니다."))
	}

	events := diff.Diff(previous, current, r.now())
	report.EventCounts = diff.CountByKind(events)

	applog.WithComponentAndFields(component, applog.Fields{
		"sequence":      sequence,
		"products_prev": previous.Len(),
		"products_cur":  current.Len(),
		"events":        len(events),
	}).Info("변경 이벤트 계산이 완료되었습니다.")

	// [Dispatching] 모든 (이벤트, 대상) 쌍에 대해 발송을 시도합니다.
	// 제한 시간이 지나면 남은 작업은 포기되고 실패로 보고되지만 실행은 계속됩니다.
	report.Phase = PhaseDispatching
	if len(events) > 0 {
		dispatchCtx, cancel := context.WithTimeout(ctx, r.softDeadline)
		report.Outcomes = r.dispatcher.Dispatch(dispatchCtx, events)
		cancel()

		for _, outcome := range report.Outcomes {
			report.OutcomeCounts[outcome.Status]++
		}
	}

	// 종료 신호로 인한 중단은 제한 시간 초과와 다르게 처리합니다.
	// 발송이 완전히 시도되지 못했으므로 커밋하지 않고 중단하며, 다음 실행이
	// 재비교 후 재발송합니다. 중복 알림이 유실보다 안전한 실패 방식입니다.
	if ctx.Err() != nil {
		return r.abort(report, apperrors.Wrap(ctx.Err(), apperrors.ExecutionFailed, "종료 신호를 수신하여 커밋 전에 실행을 중단합니다."))
	}

	// [Persisting] 발송이 전부 시도되었으므로 개별 전달 실패와 무관하게 커밋합니다.
	// 커밋을 보류하면 다음 실행이 오래된 상태와 재비교하여 이미 전달된 알림까지
	// 전부 재발송하게 되므로, 소수의 알림 유실이 더 나은 선택입니다.
	report.Phase = PhasePersisting
	report.Sequence = sequence + 1

	if err := r.store.Save(current, report.Sequence); err != nil {
		if apperrors.Is(err, apperrors.Conflict) {
			// 동시에 실행된 다른 프로세스가 먼저 커밋한 경우. 그쪽의 커밋이
			// 유효하므로 경고로만 보고합니다.
			report.StaleSequence = true
			applog.WithComponentAndFields(component, applog.Fields{
				"sequence": report.Sequence,
				"error":    err,
			}).Warn("동시 실행 가드에 걸려 상태 커밋이 거부되었습니다.")
		} else {
			return r.abort(report, apperrors.Wrap(err, apperrors.System, "상태 커밋에 실패하여 실행을 중단합니다."))
		}
	}

	report.Phase = PhaseDone
	report.FinishedAt = r.now()

	applog.WithComponentAndFields(component, applog.Fields{
		"sequence":  report.Sequence,
		"events":    len(events),
		"delivered": report.OutcomeCounts[notify.StatusDelivered],
		"failed":    report.OutcomeCounts[notify.StatusFailed],
		"skipped":   report.OutcomeCounts[notify.StatusSkipped],
	}).Info("감시 실행이 완료되었습니다.")

	return report, nil
}

// abort 실행을 Aborted 상태로 종료합니다.
func (r *Runner) abort(report Report, err error) (Report, error) {
	report.Phase = PhaseAborted
	report.FinishedAt = r.now()

	applog.WithComponentAndFields(component, applog.Fields{
		"error": err,
	}).Error("감시 실행이 중단되었습니다.")

	return report, err
}
