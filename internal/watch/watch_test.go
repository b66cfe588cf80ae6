package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkkaiser/openbar-notifier/internal/server"
)

func TestNew(t *testing.T) {
	t.Run("Valid cron spec is accepted", func(t *testing.T) {
		w, err := New("*/10 * * * *", func(ctx context.Context) {}, nil)
		require.NoError(t, err)
		assert.NotNil(t, w)
	})

	t.Run("Invalid cron spec is rejected", func(t *testing.T) {
		_, err := New("not a cron", func(ctx context.Context) {}, nil)
		require.Error(t, err)
	})
}

func TestWatcherTick(t *testing.T) {
	t.Run("Overlapping tick is skipped", func(t *testing.T) {
		var calls atomic.Int32
		release := make(chan struct{})

		w, err := New("*/10 * * * *", func(ctx context.Context) {
			calls.Add(1)
			<-release
		}, nil)
		require.NoError(t, err)
		w.ctx = context.Background()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.tick()
		}()

		// 첫 실행이 시작될 때까지 대기
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

		// 첫 실행이 진행 중인 상태에서 다음 주기가 도래한 상황
		w.tick()
		assert.Equal(t, int32(1), calls.Load()) // 겹친 주기는 실행되지 않아야 함

		close(release)
		wg.Wait()

		// 이전 실행이 끝난 뒤에는 정상 실행
		w.tick()
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Status store reflects the running state", func(t *testing.T) {
		status := server.NewStatusStore()

		var runningDuringJob bool
		w, err := New("*/10 * * * *", func(ctx context.Context) {
			runningDuringJob = status.View().Running
		}, status)
		require.NoError(t, err)
		w.ctx = context.Background()

		w.tick()

		assert.True(t, runningDuringJob)
		assert.False(t, status.View().Running)
	})
}

func TestWatcherStartStop(t *testing.T) {
	t.Run("Start runs the job immediately and Stop waits for it", func(t *testing.T) {
		var calls atomic.Int32

		w, err := New("*/10 * * * *", func(ctx context.Context) {
			calls.Add(1)
		}, nil)
		require.NoError(t, err)

		w.Start(context.Background())
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

		w.Stop()
	})

	t.Run("Stop waits for the immediate first run to finish", func(t *testing.T) {
		release := make(chan struct{})
		var finished atomic.Bool

		w, err := New("*/10 * * * *", func(ctx context.Context) {
			<-release
			finished.Store(true)
		}, nil)
		require.NoError(t, err)

		w.Start(context.Background())

		stopped := make(chan struct{})
		go func() {
			w.Stop()
			close(stopped)
		}()

		// 첫 실행이 진행 중인 동안에는 Stop이 반환되지 않아야 함
		select {
		case <-stopped:
			t.Fatal("첫 실행이 끝나기 전에 Stop이 반환되었습니다")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("첫 실행이 끝난 뒤에도 Stop이 반환되지 않았습니다")
		}
		assert.True(t, finished.Load())
	})
}
