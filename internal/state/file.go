package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
	"github.com/darkkaiser/openbar-notifier/internal/snapshot"
	applog "github.com/darkkaiser/openbar-notifier/pkg/log"
)

// component 상태 저장소의 로깅용 컴포넌트 이름
const component = "state.store"

// defaultStateDirectory 상태 파일을 저장할 기본 디렉토리 이름입니다.
const defaultStateDirectory = "data"

// tempFilePattern 원자적 쓰기 과정에서 생성되는 임시 파일의 이름 패턴입니다.
const tempFilePattern = "state-*.tmp"

// 잠금 파일 설정. Save가 밀리초 단위로 끝나는 작업이므로 잠금 유지 시간이
// staleLockThreshold를 넘었다면 이전 프로세스의 비정상 종료로 간주합니다.
const (
	lockFileSuffix     = ".lock"
	lockMaxRetries     = 5
	lockRetryDelay     = 20 * time.Millisecond
	staleLockThreshold = 1 * time.Minute
)

// fileStore 파일 시스템 기반의 상태 저장소 구현체입니다.
//
// [파일 구조]
//   - state-{인스턴스이름}-{해시}.json: 마지막으로 커밋된 Snapshot과 실행 번호
//   - state-*.tmp: 저장 중 생성되는 임시 파일
type fileStore struct {
	path string

	// mu 동일 프로세스 내에서 Load/Save의 경합을 직렬화합니다.
	// 프로세스 간 경합은 Save의 잠금 파일과 실행 번호 가드로 방어합니다.
	mu sync.Mutex
}

var _ Store = (*fileStore)(nil)

// NewFileStore 파일 시스템 기반의 상태 저장소를 생성합니다.
//
// 초기화 과정에서 상태 디렉토리를 생성하고, 이전 실행이 비정상 종료되면서
// 남긴 오래된 임시 파일을 정리합니다. instanceID는 감시 대상을 구분하는
// 식별자로, 상태 파일명에 반영됩니다.
func NewFileStore(dir, instanceID string) (Store, error) {
	if dir == "" {
		dir = defaultStateDirectory
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "상태 디렉토리의 절대 경로 변환에 실패했습니다.")
	}

	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.System, "상태 디렉토리(%s) 생성에 실패했습니다.", absDir)
	}

	// 단발성 프로세스이므로 임시 파일 정리는 초기화 시점에 동기적으로 수행합니다.
	// 실패해도 저장소 동작에는 영향이 없습니다.
	cleanupStaleTempFiles(absDir)

	return &fileStore{
		path: filepath.Join(absDir, generateFilename(instanceID)),
	}, nil
}

// cleanupStaleTempFiles 이전 실행의 비정상 종료로 남겨진 오래된 임시 파일을 정리합니다.
// 최근 1시간 이내에 수정된 파일은 동시에 실행 중인 다른 프로세스가 사용 중일 수
// 있으므로 삭제하지 않습니다.
func cleanupStaleTempFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		applog.WithComponentAndFields(component, applog.Fields{
			"dir":   dir,
			"error": err,
		}).Warn("임시 파일 정리 중단: 디렉토리 조회 실패")
		return
	}

	threshold := time.Now().Add(-1 * time.Hour)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matched, _ := filepath.Match(tempFilePattern, entry.Name())
		if !matched {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(threshold) {
			continue
		}

		fullPath := filepath.Join(dir, entry.Name())
		if err := os.Remove(fullPath); err != nil {
			applog.WithComponentAndFields(component, applog.Fields{
				"file":  fullPath,
				"error": err,
			}).Warn("임시 파일 삭제 실패")
		} else {
			applog.WithComponentAndFields(component, applog.Fields{
				"file": fullPath,
			}).Info("이전 실행에서 남겨진 임시 파일을 삭제하였습니다.")
		}
	}
}

// Load 마지막으로 커밋된 Snapshot과 실행 번호를 읽어옵니다.
//
// 상태 파일이 없으면 최초 실행으로 간주하여 빈 Snapshot과 실행 번호 0을
// 반환합니다. 파일이 존재하지만 해석에 실패하면 에러(ParsingFailed)를
// 반환하며, 이 경우 상태를 초기화해서는 안 됩니다. 손상된 상태를 최초
// 실행으로 취급하면 모든 상품에 대한 등록 알림이 재발송되고 실제 품절
// 알림이 누락될 수 있습니다.
func (s *fileStore) Load() (snapshot.Snapshot, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	persisted, exists, err := s.readPersisted()
	if err != nil {
		return snapshot.Snapshot{}, 0, err
	}
	if !exists {
		return snapshot.Empty(), 0, nil
	}

	products := persisted.Products
	if products == nil {
		products = map[snapshot.ProductID]snapshot.Product{}
	}

	return snapshot.Snapshot{
		TakenAt:  persisted.TakenAt,
		Products: products,
	}, persisted.Sequence, nil
}

// Save Snapshot을 지정된 실행 번호로 원자적으로 커밋합니다.
//
// [실행 번호 가드]
// 커밋 직전에 디스크의 실행 번호를 다시 읽어, 요청된 번호가 이미 커밋된
// 번호보다 크지 않으면 Conflict 에러를 반환합니다. 재확인과 쓰기는 잠금 파일로
// 보호되므로 스케줄러 설정 오류 등으로 두 프로세스가 겹쳐 실행되더라도 한쪽만
// 커밋에 성공하며, 패배한 쪽의 상태는 변경되지 않습니다.
func (s *fileStore) Save(snap snapshot.Snapshot, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	persisted, exists, err := s.readPersisted()
	if err != nil {
		return err
	}
	if exists && sequence <= persisted.Sequence {
		return apperrors.Newf(apperrors.Conflict,
			"이미 커밋된 실행 번호(%d)보다 크지 않은 실행 번호(%d)로는 상태를 저장할 수 없습니다.", persisted.Sequence, sequence)
	}

	data, err := json.MarshalIndent(PersistedState{
		Sequence: sequence,
		TakenAt:  snap.TakenAt,
		Products: snap.Products,
	}, "", "\t")
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "상태 직렬화에 실패했습니다.")
	}

	return writeAtomic(s.path, data)
}

// acquireLock 프로세스 간 Save 경합을 방어하는 잠금 파일을 생성합니다.
//
// 잠금 파일이 이미 존재하면 다른 프로세스가 커밋을 진행 중인 것이므로 짧게
// 재시도한 뒤 Conflict 에러를 반환합니다. 비정상 종료로 남겨진 오래된 잠금
// 파일은 제거하고 다시 시도합니다.
func (s *fileStore) acquireLock() (func(), error) {
	lockPath := s.path + lockFileSuffix

	for range lockMaxRetries {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			// 잠금 보유자 추적을 위해 프로세스 ID를 기록합니다.
			_, _ = lockFile.WriteString(strconv.Itoa(os.Getpid()))
			lockFile.Close()

			return func() {
				if err := os.Remove(lockPath); err != nil {
					applog.WithComponentAndFields(component, applog.Fields{
						"file":  lockPath,
						"error": err,
					}).Warn("잠금 파일 삭제 실패")
				}
			}, nil
		}
		if !os.IsExist(err) {
			return nil, apperrors.Wrapf(err, apperrors.System, "잠금 파일(%s) 생성에 실패했습니다.", lockPath)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockThreshold {
			applog.WithComponentAndFields(component, applog.Fields{
				"file": lockPath,
			}).Warn("이전 실행에서 남겨진 오래된 잠금 파일을 삭제합니다.")
			_ = os.Remove(lockPath)
			continue
		}

		time.Sleep(lockRetryDelay)
	}

	return nil, apperrors.Newf(apperrors.Conflict,
		"다른 프로세스가 상태 파일(%s)을 저장하는 중이어서 커밋할 수 없습니다.", s.path)
}

// readPersisted 상태 파일을 읽어 해석합니다.
// 파일이 존재하지 않으면 exists가 false이며 에러가 아닙니다.
func (s *fileStore) readPersisted() (PersistedState, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return PersistedState{}, false, nil
		}
		return PersistedState{}, false, apperrors.Wrapf(err, apperrors.System, "상태 파일(%s)을 읽는데 실패했습니다.", s.path)
	}

	var persisted PersistedState
	if err := json.Unmarshal(data, &persisted); err != nil {
		return PersistedState{}, false, apperrors.Wrapf(err, apperrors.ParsingFailed, "상태 파일(%s)이 손상되어 해석할 수 없습니다.", s.path)
	}

	return persisted, true, nil
}

// writeAtomic 데이터를 파일에 원자적으로 저장합니다.
//
// [원자적 쓰기 전략]
// 저장 도중 시스템 장애(전원 차단, 프로세스 종료)가 발생해도 이전 상태가
// 손상되지 않도록 "임시 파일 쓰기 → 동기화(fsync) → 원자적 이름 변경"의
// 3단계로 수행합니다. rename 이전에 중단되면 임시 파일만 남고 기존 파일은
// 그대로 유지됩니다.
func writeAtomic(filename string, data []byte) error {
	dir := filepath.Dir(filename)

	// 임시 파일은 반드시 같은 디렉토리에 생성해야 rename이 원자적으로 동작합니다.
	tmpFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return apperrors.Wrap(err, apperrors.System, "임시 파일 생성에 실패했습니다.")
	}
	tmpPath := tmpFile.Name()

	// Windows에서는 열려있는 파일을 삭제할 수 없으므로 Close가 Remove보다 먼저 실행되어야 합니다.
	defer os.Remove(tmpPath)
	defer tmpFile.Close()

	if _, err := tmpFile.Write(data); err != nil {
		return apperrors.Wrap(err, apperrors.System, "임시 파일 쓰기에 실패했습니다.")
	}

	// 운영체제 버퍼 캐시에만 기록된 상태에서 전원이 차단되는 것을 방지합니다.
	if err := tmpFile.Sync(); err != nil {
		return apperrors.Wrap(err, apperrors.System, "임시 파일 동기화에 실패했습니다.")
	}

	if err := tmpFile.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.System, "임시 파일 닫기에 실패했습니다.")
	}

	if err := renameWithRetry(tmpPath, filename); err != nil {
		return apperrors.Wrap(err, apperrors.System, "상태 파일 교체에 실패했습니다.")
	}

	// 파일명 변경 사항까지 디스크에 기록되도록 부모 디렉토리를 fsync합니다.
	// 실패해도 치명적이지 않으므로 에러를 무시합니다.
	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		dirFile.Close()
	}

	return nil
}

// renameWithRetry 파일 이름 변경을 재시도 로직과 함께 수행합니다.
// Windows에서는 백신이나 인덱서가 파일을 일시적으로 잠글 수 있으므로
// 짧은 대기 후 재시도합니다. Linux에서는 사실상 첫 시도에 성공합니다.
func renameWithRetry(oldPath, newPath string) error {
	const maxRetries = 5
	const retryDelay = 10 * time.Millisecond

	var lastErr error
	for range maxRetries {
		err := os.Rename(oldPath, newPath)
		if err == nil {
			return nil
		}

		lastErr = err
		time.Sleep(retryDelay)
	}

	return lastErr
}
