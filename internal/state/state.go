// Package state 마지막으로 처리된 재고 Snapshot의 영속화를 담당합니다.
//
// 본 시스템은 실행 간에 메모리를 공유하지 않는 단발성 프로세스이므로,
// "지난 실행 이후 무엇이 변경되었는가"는 오직 이 패키지가 관리하는
// 상태 파일로부터 재구성됩니다. 상태 파일에 대한 모든 접근은 Store를
// 통해서만 이루어져야 합니다.
package state

import (
	"time"

	"github.com/darkkaiser/openbar-notifier/internal/snapshot"
)

// PersistedState 디스크에 저장되는 상태 파일의 레이아웃
//
// Sequence는 단조 증가하는 실행 번호로, 두 프로세스가 동시에 실행되어
// 서로의 커밋을 덮어쓰는 것을 방지하는 가드로 사용됩니다.
type PersistedState struct {
	Sequence uint64                                  `json:"sequence"`
	TakenAt  time.Time                               `json:"taken_at"`
	Products map[snapshot.ProductID]snapshot.Product `json:"products"`
}

// Store 영속화된 상태의 읽기/쓰기 계약
type Store interface {
	// Load 마지막으로 커밋된 Snapshot과 실행 번호를 반환합니다.
	//
	// 상태 파일이 존재하지 않는 경우(최초 실행)는 에러가 아니며, 빈 Snapshot과
	// 실행 번호 0을 반환합니다. 파일이 존재하지만 해석할 수 없는 경우에는
	// ParsingFailed 에러를 반환하며, 이때 호출자는 상태를 초기화하지 말고
	// 실행을 중단해야 합니다.
	Load() (snapshot.Snapshot, uint64, error)

	// Save Snapshot을 지정된 실행 번호로 원자적으로 커밋합니다.
	//
	// 실행 번호가 마지막으로 커밋된 번호보다 크지 않으면 Conflict 에러를
	// 반환하고 상태를 변경하지 않습니다. 커밋 도중 프로세스가 중단되더라도
	// 이전 상태는 손상되지 않습니다.
	Save(snap snapshot.Snapshot, sequence uint64) error
}
