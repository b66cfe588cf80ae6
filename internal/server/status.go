// Package server 상주 감시 모드에서 실행 상태를 조회하는 HTTP 서버를 제공합니다.
package server

import (
	"sync"
	"time"

	"github.com/darkkaiser/openbar-notifier/internal/runner"
)

// StatusStore 가장 최근 실행의 결과를 보관하는 동기화된 저장소입니다.
// 감시 루프가 쓰고 상태 조회 API가 읽습니다.
type StatusStore struct {
	mu sync.RWMutex

	startedAt  time.Time
	running    bool
	lastReport *runner.Report
	nextRunAt  time.Time
}

// NewStatusStore 상태 저장소를 생성합니다.
func NewStatusStore() *StatusStore {
	return &StatusStore{startedAt: time.Now()}
}

// SetRunning 현재 감시 실행이 진행 중인지의 여부를 기록합니다.
func (s *StatusStore) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

// SetReport 완료된 실행의 결과를 기록합니다.
func (s *StatusStore) SetReport(report runner.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReport = &report
}

// SetNextRunAt 다음 실행 예정 시각을 기록합니다.
func (s *StatusStore) SetNextRunAt(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunAt = at
}

// StatusView 상태 조회 API의 응답 형식
type StatusView struct {
	Running       bool           `json:"running"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	NextRunAt     *time.Time     `json:"next_run_at,omitempty"`
	LastReport    *runner.Report `json:"last_report,omitempty"`
}

// View 현재 상태의 스냅샷을 반환합니다.
func (s *StatusStore) View() StatusView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := StatusView{
		Running:       s.running,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if !s.nextRunAt.IsZero() {
		at := s.nextRunAt
		view.NextRunAt = &at
	}
	if s.lastReport != nil {
		report := *s.lastReport
		view.LastReport = &report
	}
	return view
}
