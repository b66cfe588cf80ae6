package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/darkkaiser/openbar-notifier/internal/config"
	"github.com/darkkaiser/openbar-notifier/internal/metrics"
	"github.com/darkkaiser/openbar-notifier/internal/notify"
	"github.com/darkkaiser/openbar-notifier/internal/openbar"
	"github.com/darkkaiser/openbar-notifier/internal/runner"
	"github.com/darkkaiser/openbar-notifier/internal/server"
	"github.com/darkkaiser/openbar-notifier/internal/state"
	"github.com/darkkaiser/openbar-notifier/internal/watch"
	"github.com/darkkaiser/openbar-notifier/pkg/httpx"
	applog "github.com/darkkaiser/openbar-notifier/pkg/log"
)

// 빌드 정보 변수 (Dockerfile의 ldflags로 주입됨)
var (
	Version   = "dev"     // Git 커밋 해시
	BuildDate = "unknown" // 빌드 날짜
)

const (
	banner = `
   ___                     ____                _   _         _    _   __  _
  / _ \  _ __   ___  _ __ | __ )  __ _  _ __  | \ | |  ___  | |_ (_) / _|(_)  ___  _ __
 | | | || '_ \ / _ \| '_ \|  _ \ / _' || '__| |  \| | / _ \ | __|| || |_ | | / _ \| '__|
 | |_| || |_) |  __/| | | | |_) | (_| || |    | |\  || (_) || |_ | ||  _|| ||  __/| |
  \___/ | .__/ \___||_| |_|____/ \__,_||_|    |_| \_| \___/  \__||_||_|  |_| \___||_|
        |_|                                                                      v%s
--------------------------------------------------------------------------------------
`
)

// shutdownTimeout 종료 신호 수신 후 상태 조회 서버의 정리에 허용되는 시간
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	runtime.GOMAXPROCS(runtime.NumCPU()) // 모든 CPU 사용

	configPath := flag.String("config", config.DefaultFilename, "설정 파일 경로")
	flag.Parse()

	// 환경설정 정보를 읽어들인다.
	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "설정 로드 실패: %v\n", err)
		return 1
	}

	// 로깅 시스템을 초기화한다.
	logOpts := applog.NewProductionConfig(config.AppName)
	if cfg.Debug {
		logOpts = applog.NewDevelopmentConfig(config.AppName)
	}
	logCloser, err := applog.Setup(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "로깅 시스템 초기화 실패: %v\n", err)
		return 1
	}
	defer logCloser.Close()

	// 아스키아트 출력(https://ko.rakko.tools/tools/68/, 폰트:standard)
	fmt.Printf(banner, Version)

	// 빌드 정보 출력
	log.Infof("빌드 정보 - 버전: %s, 빌드 날짜: %s", Version, BuildDate)
	log.Infof("Go 버전: %s, OS/Arch: %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	// 상태 저장소를 구성한다. 인스턴스 URL이 감시 대상의 식별자가 된다.
	store, err := state.NewFileStore(cfg.State.Dir, cfg.Instance.URL)
	if err != nil {
		log.Errorf("상태 저장소 초기화 실패: %v", err)
		return 1
	}

	// 재고 수집 클라이언트를 구성한다.
	// 수집 요청은 전부 멱등하므로 재시도 기능이 포함된 Fetcher를 사용한다.
	catalogFetcher := httpx.NewRetryFetcher(httpx.NewHTTPFetcher(cfg.Instance.FetchTimeoutDuration()), 0, 0, 0)
	source := openbar.NewClient(cfg.Instance.URL, cfg.Instance.CardID, cfg.Instance.PIN, catalogFetcher)

	// 알림 대상과 발송기를 구성한다.
	targets, err := buildTargets(cfg)
	if err != nil {
		log.Errorf("알림 대상 초기화 실패: %v", err)
		return 1
	}
	dispatcher := notify.NewDispatcher(targets, notify.RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelayDuration(),
		MaxDelay:       cfg.Retry.MaxDelayDuration(),
		AttemptTimeout: cfg.Retry.AttemptTimeoutDuration(),
		Jitter:         cfg.Retry.Jitter,
	}, 0)

	r := runner.New(source, store, dispatcher, cfg.Watch.SoftDeadlineDuration())
	m := metrics.New(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 단발 모드: 한 번의 감시 실행 후 결과에 따라 종료 코드를 반환한다.
	if !cfg.Watch.Runnable {
		report, err := r.Run(ctx)
		m.ObserveRun(report)
		if err != nil {
			return 1
		}
		return 0
	}

	return runWatchMode(ctx, cfg, r, m)
}

// runWatchMode 상주 감시 모드를 수행합니다. 종료 신호를 받을 때까지 블로킹됩니다.
func runWatchMode(ctx context.Context, cfg *config.AppConfig, r *runner.Runner, m *metrics.Metrics) int {
	status := server.NewStatusStore()

	watcher, err := watch.New(cfg.Watch.TimeSpec, func(jobCtx context.Context) {
		report, _ := r.Run(jobCtx) // 실행 실패는 Report와 로그로 보고되므로 루프는 계속된다.
		m.ObserveRun(report)
		status.SetReport(report)
	}, status)
	if err != nil {
		log.Errorf("감시 루프 초기화 실패: %v", err)
		return 1
	}

	var srv *server.Server
	if cfg.Watch.ListenPort > 0 {
		srv = server.New(cfg.Watch.ListenPort, status)
		go func() {
			if err := srv.Start(); err != nil {
				log.Errorf("상태 조회 서버 실행 실패: %v", err)
			}
		}()
	}

	watcher.Start(ctx)

	<-ctx.Done() // Blocks here until interrupted
	log.Info("종료 신호를 수신하였습니다.")

	watcher.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("상태 조회 서버 종료 실패: %v", err)
		}
		cancel()
	}

	return 0
}

// buildTargets 설정으로부터 알림 대상 목록을 구성합니다.
func buildTargets(cfg *config.AppConfig) ([]notify.Target, error) {
	var targets []notify.Target

	// 웹훅 전달의 재시도는 발송기가 소유하므로, 웹훅 요청 자체는 재시도 없는 Fetcher를 사용한다.
	webhookFetcher := httpx.NewHTTPFetcher(cfg.Retry.AttemptTimeoutDuration())

	for _, webhook := range cfg.Notifiers.Webhooks {
		targets = append(targets, notify.NewWebhookTarget(
			webhook.ID, webhook.URL, config.EventKinds(webhook.Subscriptions), webhookFetcher, webhook.RatePerSecond))
	}

	for _, telegram := range cfg.Notifiers.Telegrams {
		target, err := notify.NewTelegramTarget(
			telegram.ID, telegram.BotToken, telegram.ChatID, config.EventKinds(telegram.Subscriptions))
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	return targets, nil
}
