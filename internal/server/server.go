package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	applog "github.com/darkkaiser/openbar-notifier/pkg/log"
)

// component 상태 조회 서버의 로깅용 컴포넌트 이름
const component = "server"

// Server 상주 감시 모드의 상태 조회 및 지표 노출용 HTTP 서버입니다.
//
// 제공 엔드포인트:
//   - GET /healthz        프로세스 생존 확인
//   - GET /api/v1/status  최근 실행 결과와 다음 실행 예정 시각
//   - GET /metrics        Prometheus 지표
type Server struct {
	echo *echo.Echo
	port int
}

// New 상태 조회 서버를 생성합니다.
func New(port int, status *StatusStore) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	// 내부 운영용 엔드포인트이므로 과도한 조회만 차단합니다.
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(20))))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/api/v1/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, status.View())
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{
		echo: e,
		port: port,
	}
}

// Start 서버를 기동합니다. 종료될 때까지 블로킹되므로 고루틴에서 호출해야 합니다.
// Shutdown에 의한 정상 종료는 에러로 취급하지 않습니다.
func (s *Server) Start() error {
	applog.WithComponentAndFields(component, applog.Fields{
		"port": s.port,
	}).Info("상태 조회 서버를 시작합니다.")

	if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 진행 중인 요청을 마무리하고 서버를 종료합니다.
func (s *Server) Shutdown(ctx context.Context) error {
	applog.WithComponent(component).Info("상태 조회 서버를 종료합니다.")
	return s.echo.Shutdown(ctx)
}
