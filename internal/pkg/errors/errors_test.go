package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(NotFound, "상품을 찾을 수 없습니다")

	var appErr *AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, NotFound, appErr.Type())
	assert.Equal(t, "상품을 찾을 수 없습니다", appErr.Message())
	assert.Contains(t, err.Error(), "[NotFound]")
	assert.NotEmpty(t, appErr.Stack())
}

func TestNewf(t *testing.T) {
	err := Newf(InvalidInput, "잘못된 수량: %d", -1)
	assert.Contains(t, err.Error(), "잘못된 수량: -1")
}

func TestWrap(t *testing.T) {
	t.Run("Wrap adds context and keeps cause", func(t *testing.T) {
		cause := io.ErrUnexpectedEOF
		err := Wrap(cause, System, "스냅샷 파일 읽기 실패")

		assert.Contains(t, err.Error(), "스냅샷 파일 읽기 실패")
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("Wrap nil returns nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, System, "무시됨"))
		assert.NoError(t, Wrapf(nil, System, "무시됨 %d", 1))
	})
}

func TestIs(t *testing.T) {
	err := Wrap(New(NotFound, "리소스 없음"), Internal, "조회 실패")

	assert.True(t, Is(err, Internal))
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Timeout))
	assert.False(t, Is(nil, Internal))
}

func TestRootCause(t *testing.T) {
	cause := stderrors.New("root")
	err := Wrap(Wrap(cause, System, "레벨 1"), Internal, "레벨 2")

	assert.Equal(t, cause, RootCause(err))
	assert.Nil(t, RootCause(nil))
}

func TestUnderlyingType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil error", nil, Unknown},
		{"plain error", stderrors.New("plain"), Unknown},
		{"single AppError", New(Conflict, "충돌"), Conflict},
		{"wrapped chain keeps innermost type", Wrap(New(NotFound, "없음"), Internal, "실패"), NotFound},
		{"wrapped external error", Wrap(io.EOF, ParsingFailed, "파싱 실패"), ParsingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UnderlyingType(tt.err))
		})
	}
}

func TestAppErrorFormat(t *testing.T) {
	err := Wrap(stderrors.New("disk full"), System, "상태 저장 실패")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "[System] 상태 저장 실패")
	assert.Contains(t, detailed, "Stack trace:")
	assert.Contains(t, detailed, "Caused by:")

	quoted := fmt.Sprintf("%q", err)
	assert.Contains(t, quoted, "disk full")
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "Unavailable", Unavailable.String())
	assert.Equal(t, "Unknown", ErrorType(-1).String())
	assert.Equal(t, "Unknown", ErrorType(999).String())
}
