package httpx

import (
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	applog "github.com/darkkaiser/openbar-notifier/pkg/log"
)

const (
	defaultMaxRetries    = 3
	defaultMinRetryDelay = 500 * time.Millisecond
	defaultMaxRetryDelay = 10 * time.Second
)

// RetryFetcher 일시적인 실패에 대해 요청을 재시도하는 Fetcher 미들웨어입니다.
//
// 재시도는 멱등성이 보장되는 메소드(GET, HEAD 등)에만 적용됩니다.
// POST와 같은 비멱등 요청의 재전송 정책은 전송 계층이 아닌 호출자가 결정해야 합니다.
type RetryFetcher struct {
	delegate Fetcher

	maxRetries    int
	minRetryDelay time.Duration
	maxRetryDelay time.Duration

	// 테스트에서 실제 대기 없이 검증할 수 있도록 주입 가능하게 둡니다.
	sleep func(d time.Duration)
}

var _ Fetcher = (*RetryFetcher)(nil)

// NewRetryFetcher 재시도 기능이 추가된 Fetcher를 생성합니다.
// maxRetries가 0 이하이거나 지연 시간이 유효하지 않으면 기본값으로 보정합니다.
func NewRetryFetcher(delegate Fetcher, maxRetries int, minRetryDelay, maxRetryDelay time.Duration) *RetryFetcher {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if minRetryDelay <= 0 {
		minRetryDelay = defaultMinRetryDelay
	}
	if maxRetryDelay < minRetryDelay {
		maxRetryDelay = defaultMaxRetryDelay
	}
	if maxRetryDelay < minRetryDelay {
		maxRetryDelay = minRetryDelay
	}

	return &RetryFetcher{
		delegate:      delegate,
		maxRetries:    maxRetries,
		minRetryDelay: minRetryDelay,
		maxRetryDelay: maxRetryDelay,
		sleep:         time.Sleep,
	}
}

// Do HTTP 요청을 실행하고, 일시적인 실패로 판단되면 지수 백오프 간격으로 재시도합니다.
func (r *RetryFetcher) Do(req *http.Request) (*http.Response, error) {
	// 비멱등 메소드는 재시도 대상에서 제외합니다.
	if !isIdempotentMethod(req.Method) {
		return r.delegate.Do(req)
	}

	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoffDelay(attempt, lastResp)

			applog.WithComponentAndFields("httpx.retry", applog.Fields{
				"url":     req.URL.String(),
				"attempt": attempt,
				"delay":   delay.String(),
			}).Debug("일시적인 실패로 인해 HTTP 요청을 재시도합니다.")

			r.sleep(delay)

			// 대기하는 동안 컨텍스트가 취소되었을 수 있으므로 재시도 전에 확인합니다.
			if err := req.Context().Err(); err != nil {
				return nil, err
			}
		}

		resp, err := r.delegate.Do(req)
		if err != nil {
			// 컨텍스트 취소/타임아웃은 재시도하지 않고 즉시 반환합니다.
			if reqErr := req.Context().Err(); reqErr != nil {
				return nil, err
			}
			if !isRetriableError(err) {
				return nil, err
			}
			lastResp, lastErr = nil, err
			continue
		}

		if !isRetriableStatus(resp.StatusCode) {
			return resp, nil
		}

		// 재시도 전, 이전 응답의 본문을 소진하여 커넥션을 재사용할 수 있도록 합니다.
		if attempt < r.maxRetries {
			drainResponse(resp)
			lastResp, lastErr = resp, nil
			continue
		}

		// 마지막 시도의 응답은 호출자가 상태 코드를 직접 검사할 수 있도록 그대로 반환합니다.
		return resp, nil
	}

	return lastResp, lastErr
}

// backoffDelay 재시도 대기 시간을 계산합니다.
//
// 기본적으로 지수 백오프(minRetryDelay * 2^(attempt-1))에 전체 지터(full jitter)를
// 적용하며, 서버가 Retry-After 헤더로 대기 시간을 지정한 경우 이를 우선합니다.
func (r *RetryFetcher) backoffDelay(attempt int, lastResp *http.Response) time.Duration {
	if lastResp != nil {
		if retryAfter := parseRetryAfter(lastResp.Header.Get("Retry-After")); retryAfter > 0 {
			if retryAfter > r.maxRetryDelay {
				return r.maxRetryDelay
			}
			return retryAfter
		}
	}

	delay := r.minRetryDelay << (attempt - 1)
	if delay > r.maxRetryDelay || delay <= 0 {
		delay = r.maxRetryDelay
	}

	// 전체 지터: [0, delay] 범위의 무작위 값으로 재시도 시점을 분산합니다.
	return time.Duration(rand.Int64N(int64(delay) + 1))
}

// parseRetryAfter Retry-After 헤더값을 대기 시간으로 해석합니다.
// 초 단위 숫자 형식만 지원하며, HTTP-date 형식이거나 유효하지 않으면 0을 반환합니다.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// isIdempotentMethod 해당 HTTP 메소드가 재시도해도 안전한 멱등 메소드인지의 여부를 반환합니다.
func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// isRetriableStatus 해당 상태 코드가 일시적인 실패로 간주되어 재시도 대상인지의 여부를 반환합니다.
func isRetriableStatus(statusCode int) bool {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// isRetriableError 네트워크 계층 에러가 재시도 대상인지의 여부를 반환합니다.
func isRetriableError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// 커넥션 거부/리셋 등의 일시적인 전송 오류
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// drainResponse 응답 본문을 소진하고 닫아 커넥션 재사용이 가능하도록 합니다.
func drainResponse(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
