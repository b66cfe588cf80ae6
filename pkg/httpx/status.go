package httpx

import (
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
)

// maxErrorBodySnippetSize 에러 메시지에 포함할 응답 본문의 최대 길이
const maxErrorBodySnippetSize = 512

// HTTPStatusError HTTP 응답 상태 코드가 성공 범위를 벗어난 경우 발생하는 에러입니다.
// 재시도 가능 여부 판단(5xx, 429 등)에 필요한 정보를 보존합니다.
type HTTPStatusError struct {
	StatusCode  int
	URL         string
	RetryAfter  string // Retry-After 헤더 원본값 (없으면 빈 문자열)
	BodySnippet string
}

func (e *HTTPStatusError) Error() string {
	if e.BodySnippet != "" {
		return fmt.Sprintf("HTTP 요청(%s)이 %d 상태 코드로 실패했습니다. (응답: %s)", e.URL, e.StatusCode, e.BodySnippet)
	}
	return fmt.Sprintf("HTTP 요청(%s)이 %d 상태 코드로 실패했습니다.", e.URL, e.StatusCode)
}

// Retriable 해당 상태 코드가 재시도로 해소될 가능성이 있는지의 여부를 반환합니다.
func (e *HTTPStatusError) Retriable() bool {
	switch {
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// CheckResponseStatus 응답 상태 코드가 성공 범위(2xx)인지 검사합니다.
//
// 성공 범위를 벗어난 경우 응답 본문의 일부를 읽어 HTTPStatusError로 반환하며,
// 이때 응답 본문은 커넥션 재사용을 위해 모두 소진됩니다.
func CheckResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	statusErr := &HTTPStatusError{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		statusErr.URL = resp.Request.URL.String()
	}

	// 에러 응답 본문은 일부만 메시지에 보존하고 나머지는 소진합니다.
	snippet, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySnippetSize))
	if err == nil {
		statusErr.BodySnippet = string(snippet)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	errType := apperrors.ExecutionFailed
	if statusErr.Retriable() {
		errType = apperrors.Unavailable
	}
	return apperrors.Wrap(statusErr, errType, "HTTP 응답 상태 코드 검증에 실패했습니다.")
}
