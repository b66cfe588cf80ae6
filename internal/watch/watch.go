// Package watch 상주 감시 모드의 스케줄 루프를 제공합니다.
//
// 지정된 크론 스케줄에 따라 감시 실행을 반복 수행하며, 이전 실행이 아직
// 끝나지 않은 상태에서 다음 주기가 도래하면 해당 주기는 건너뜁니다.
// 겹친 실행은 어차피 한쪽이 동시 실행 가드(StaleSequence)에 걸리므로,
// 시작 자체를 막아 불필요한 수집을 피합니다.
package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
	"github.com/darkkaiser/openbar-notifier/internal/server"
	applog "github.com/darkkaiser/openbar-notifier/pkg/log"
)

// component 감시 루프의 로깅용 컴포넌트 이름
const component = "watch"

// Job 스케줄에 따라 반복 수행되는 감시 실행
type Job func(ctx context.Context)

// Watcher 크론 스케줄 기반의 감시 루프입니다.
type Watcher struct {
	cron    *cron.Cron
	entryID cron.EntryID

	job    Job
	status *server.StatusStore

	// running 이전 실행이 아직 진행 중인지의 여부 (겹침 방지)
	running atomic.Bool

	// immediateRun Start가 즉시 수행하는 첫 실행의 완료 대기용
	// 크론 주기로 시작된 실행은 cron.Stop이 대기하지만, 첫 실행은 크론 엔트리가
	// 아니므로 Stop에서 별도로 대기해야 합니다.
	immediateRun sync.WaitGroup

	// ctx Start에서 전달받아 각 실행에 전파되는 컨텍스트
	ctx context.Context
}

// New 감시 루프를 생성합니다.
// timeSpec은 표준 크론 형식(분 시 일 월 요일)이어야 합니다.
func New(timeSpec string, job Job, status *server.StatusStore) (*Watcher, error) {
	w := &Watcher{
		cron:   cron.New(),
		job:    job,
		status: status,
	}

	entryID, err := w.cron.AddFunc(timeSpec, w.tick)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.InvalidInput, "감시 스케줄(%s) 등록에 실패했습니다.", timeSpec)
	}
	w.entryID = entryID

	return w, nil
}

// Start 감시 루프를 시작합니다.
//
// 기동 직후 한 번의 실행을 즉시 수행한 뒤 스케줄에 따라 반복합니다.
// 전달된 컨텍스트는 각 실행에 전파되며, 취소되어도 루프 자체는 Stop이
// 호출될 때까지 유지됩니다.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx = ctx
	w.cron.Start()

	applog.WithComponent(component).Info("감시 루프를 시작합니다.")

	// 프로세스 기동 시점의 상태를 바로 반영하기 위해 첫 실행은 즉시 수행합니다.
	w.immediateRun.Add(1)
	go func() {
		defer w.immediateRun.Done()
		w.tick()
	}()
}

// Stop 스케줄러를 멈추고 진행 중인 실행이 끝날 때까지 대기합니다.
func (w *Watcher) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.immediateRun.Wait()

	applog.WithComponent(component).Info("감시 루프를 종료합니다.")
}

// NextRunAt 다음 실행 예정 시각을 반환합니다.
func (w *Watcher) NextRunAt() time.Time {
	return w.cron.Entry(w.entryID).Next
}

// tick 한 번의 스케줄 주기를 처리합니다.
func (w *Watcher) tick() {
	// 이전 실행이 아직 진행 중이면 이번 주기는 건너뜁니다.
	if !w.running.CompareAndSwap(false, true) {
		applog.WithComponent(component).Warn("이전 감시 실행이 끝나지 않아 이번 주기를 건너뜁니다.")
		return
	}
	defer w.running.Store(false)

	if w.status != nil {
		w.status.SetRunning(true)
		defer w.status.SetRunning(false)
	}

	w.job(w.ctx)

	if w.status != nil {
		w.status.SetNextRunAt(w.NextRunAt())
	}
}
