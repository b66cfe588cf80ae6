package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
	"github.com/darkkaiser/openbar-notifier/internal/notify"
	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
	"github.com/darkkaiser/openbar-notifier/internal/snapshot"
	"github.com/darkkaiser/openbar-notifier/internal/state"
)

// fakeSource 테스트용 재고 수집기
type fakeSource struct {
	rawProducts []snapshot.RawProduct
	err         error
}

func (f *fakeSource) FetchAll(ctx context.Context) ([]snapshot.RawProduct, error) {
	return f.rawProducts, f.err
}

// fakeDispatcher 테스트용 발송기
type fakeDispatcher struct {
	status     notify.Status
	dispatched []diff.Event
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, events []diff.Event) []notify.Outcome {
	f.dispatched = append(f.dispatched, events...)

	outcomes := make([]notify.Outcome, len(events))
	for i, event := range events {
		outcomes[i] = notify.Outcome{Event: event, TargetID: "fake", Attempts: 1, Status: f.status}
	}
	return outcomes
}

// fakeStore 메모리 기반의 테스트용 상태 저장소
type fakeStore struct {
	snap     snapshot.Snapshot
	sequence uint64

	loadErr error
	saveErr error
	saved   bool
}

func (f *fakeStore) Load() (snapshot.Snapshot, uint64, error) {
	if f.loadErr != nil {
		return snapshot.Snapshot{}, 0, f.loadErr
	}
	if f.snap.Products == nil {
		return snapshot.Empty(), f.sequence, nil
	}
	return f.snap, f.sequence, nil
}

func (f *fakeStore) Save(snap snapshot.Snapshot, sequence uint64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.snap = snap
	f.sequence = sequence
	f.saved = true
	return nil
}

var _ state.Store = (*fakeStore)(nil)

func newTestRunner(source Source, store state.Store, dispatcher Dispatcher) *Runner {
	return New(source, store, dispatcher, 1*time.Minute)
}

func TestRunnerRun(t *testing.T) {
	rawProducts := []snapshot.RawProduct{
		{ID: "p-1", Name: "위스키 A", Available: true},
		{ID: "p-2", Name: "위스키 B", Available: false},
	}

	t.Run("First run emits Added events and commits sequence 1", func(t *testing.T) {
		store := &fakeStore{}
		dispatcher := &fakeDispatcher{status: notify.StatusDelivered}

		r := newTestRunner(&fakeSource{rawProducts: rawProducts}, store, dispatcher)
		report, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, PhaseDone, report.Phase)
		assert.False(t, report.Failed())
		assert.Equal(t, uint64(1), report.Sequence)
		assert.Equal(t, 2, report.EventCounts[diff.KindAdded])
		assert.Equal(t, 2, report.OutcomeCounts[notify.StatusDelivered])
		assert.True(t, store.saved)
		assert.Equal(t, 2, store.snap.Len())
	})

	t.Run("No changes dispatches nothing but still commits", func(t *testing.T) {
		store := &fakeStore{}
		dispatcher := &fakeDispatcher{status: notify.StatusDelivered}
		source := &fakeSource{rawProducts: rawProducts}

		r := newTestRunner(source, store, dispatcher)
		_, err := r.Run(context.Background())
		require.NoError(t, err)

		dispatcher.dispatched = nil
		report, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, PhaseDone, report.Phase)
		assert.Equal(t, uint64(2), report.Sequence)
		assert.Empty(t, dispatcher.dispatched)
	})

	t.Run("Fetch failure aborts without touching state", func(t *testing.T) {
		store := &fakeStore{}

		r := newTestRunner(&fakeSource{err: errors.New("connection refused")}, store, &fakeDispatcher{})
		report, err := r.Run(context.Background())
		require.Error(t, err)

		assert.Equal(t, PhaseAborted, report.Phase)
		assert.True(t, report.Failed())
		assert.False(t, store.saved)
	})

	t.Run("Malformed fetch result aborts without touching state", func(t *testing.T) {
		store := &fakeStore{}
		source := &fakeSource{rawProducts: []snapshot.RawProduct{{ID: "", Name: "ID 없는 상품"}}}

		r := newTestRunner(source, store, &fakeDispatcher{})
		report, err := r.Run(context.Background())
		require.Error(t, err)

		assert.Equal(t, PhaseAborted, report.Phase)
		assert.True(t, apperrors.Is(err, apperrors.ParsingFailed))
		assert.False(t, store.saved)
	})

	t.Run("Corrupt state aborts before any dispatch", func(t *testing.T) {
		store := &fakeStore{loadErr: apperrors.New(apperrors.ParsingFailed, "상태 파일 손상")}
		dispatcher := &fakeDispatcher{status: notify.StatusDelivered}

		r := newTestRunner(&fakeSource{rawProducts: rawProducts}, store, dispatcher)
		report, err := r.Run(context.Background())
		require.Error(t, err)

		assert.Equal(t, PhaseAborted, report.Phase)
		assert.Empty(t, dispatcher.dispatched)
		assert.False(t, store.saved)
	})

	t.Run("Delivery failures do not block the commit", func(t *testing.T) {
		store := &fakeStore{}
		dispatcher := &fakeDispatcher{status: notify.StatusFailed}

		r := newTestRunner(&fakeSource{rawProducts: rawProducts}, store, dispatcher)
		report, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, PhaseDone, report.Phase)
		assert.Equal(t, 2, report.OutcomeCounts[notify.StatusFailed])
		assert.True(t, store.saved) // 전달 실패와 무관하게 커밋되어야 함
	})

	t.Run("Stale sequence is a warning not a failure", func(t *testing.T) {
		store := &fakeStore{saveErr: apperrors.New(apperrors.Conflict, "이미 커밋된 실행 번호")}
		dispatcher := &fakeDispatcher{status: notify.StatusDelivered}

		r := newTestRunner(&fakeSource{rawProducts: rawProducts}, store, dispatcher)
		report, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, PhaseDone, report.Phase)
		assert.True(t, report.StaleSequence)
	})

	t.Run("Save failure other than stale sequence aborts", func(t *testing.T) {
		store := &fakeStore{saveErr: apperrors.New(apperrors.System, "디스크 쓰기 실패")}
		dispatcher := &fakeDispatcher{status: notify.StatusDelivered}

		r := newTestRunner(&fakeSource{rawProducts: rawProducts}, store, dispatcher)
		report, err := r.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, PhaseAborted, report.Phase)
	})

	t.Run("Termination signal during dispatch aborts before persisting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		store := &fakeStore{}
		cancelDispatcher := &cancellingDispatcher{cancel: cancel}

		r := newTestRunner(&fakeSource{rawProducts: rawProducts}, store, cancelDispatcher)
		report, err := r.Run(ctx)
		require.Error(t, err)

		assert.Equal(t, PhaseAborted, report.Phase)
		assert.False(t, store.saved) // 중단된 실행은 커밋하지 않아야 함
	})

	t.Run("Soft deadline expiry fails remaining deliveries but still commits", func(t *testing.T) {
		store := &fakeStore{}
		dispatcher := &deadlineDispatcher{}

		r := New(&fakeSource{rawProducts: rawProducts}, store, dispatcher, 30*time.Millisecond)
		report, err := r.Run(context.Background())
		require.NoError(t, err)

		// 제한 시간 초과는 종료 신호와 달리 실행을 중단시키지 않아야 함
		assert.Equal(t, PhaseDone, report.Phase)
		assert.False(t, report.Failed())
		assert.Equal(t, uint64(1), report.Sequence)
		assert.Equal(t, 2, report.OutcomeCounts[notify.StatusFailed])
		assert.True(t, store.saved)
	})

	t.Run("Second run diffs against committed state", func(t *testing.T) {
		store := &fakeStore{}
		dispatcher := &fakeDispatcher{status: notify.StatusDelivered}
		source := &fakeSource{rawProducts: rawProducts}

		r := newTestRunner(source, store, dispatcher)
		_, err := r.Run(context.Background())
		require.NoError(t, err)

		// 두 번째 실행: p-2가 구매 가능으로 전환
		source.rawProducts = []snapshot.RawProduct{
			{ID: "p-1", Name: "위스키 A", Available: true},
			{ID: "p-2", Name: "위스키 B", Available: true},
		}

		report, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, uint64(2), report.Sequence)
		assert.Equal(t, 1, report.EventCounts[diff.KindRestocked])
		assert.Equal(t, 0, report.EventCounts[diff.KindAdded])
	})
}

// deadlineDispatcher 발송 제한 시간이 끝날 때까지 응답하지 못하는 상황을 재현합니다.
type deadlineDispatcher struct{}

func (d *deadlineDispatcher) Dispatch(ctx context.Context, events []diff.Event) []notify.Outcome {
	<-ctx.Done()

	outcomes := make([]notify.Outcome, len(events))
	for i, event := range events {
		outcomes[i] = notify.Outcome{Event: event, TargetID: "slow", Status: notify.StatusFailed, Err: ctx.Err()}
	}
	return outcomes
}

// cancellingDispatcher 발송 도중 종료 신호가 수신되는 상황을 재현합니다.
type cancellingDispatcher struct {
	cancel context.CancelFunc
}

func (c *cancellingDispatcher) Dispatch(ctx context.Context, events []diff.Event) []notify.Outcome {
	c.cancel()

	outcomes := make([]notify.Outcome, len(events))
	for i, event := range events {
		outcomes[i] = notify.Outcome{Event: event, TargetID: "fake", Status: notify.StatusFailed, Err: context.Canceled}
	}
	return outcomes
}
