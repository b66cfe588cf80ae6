// Package httpx HTTP 요청 수행을 위한 Fetcher 인터페이스와 미들웨어 구현을 제공합니다.
//
// Fetcher는 데코레이터 패턴으로 조합됩니다. 예를 들어 재시도가 필요한 클라이언트는
// NewRetryFetcher(NewHTTPFetcher(timeout), ...)처럼 구성합니다.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
)

// Fetcher HTTP 요청을 수행하는 인터페이스
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchBytes HTTP 요청을 수행하고 응답 본문 전체를 읽어 반환합니다.
//
// 응답 상태 코드가 성공 범위(2xx)가 아니면 HTTPStatusError를 포함한 에러를 반환합니다.
// 응답 본문의 해석(JSON 파싱 등)은 호출자의 책임입니다.
func FetchBytes(ctx context.Context, f Fetcher, method, url string, header map[string]string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, fmt.Sprintf("HTTP 요청 생성에 실패했습니다. (URL: %s)", url))
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}

	resp, err := f.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, fmt.Sprintf("HTTP 요청(%s) 전송 중 에러가 발생했습니다.", url))
	}
	defer resp.Body.Close() // 응답을 받은 즉시 defer 설정하여 커넥션 누수 방지

	if err := CheckResponseStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, fmt.Sprintf("HTTP 응답(%s) 본문을 읽는데 실패했습니다.", url))
	}

	return data, nil
}
