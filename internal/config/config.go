// Package config 애플리케이션 설정의 로드와 검증을 담당합니다.
//
// 설정은 기본값 → JSON 설정 파일 → 환경 변수 순으로 병합되며,
// 로드 직후 전체 정합성 검증을 통과해야 합니다.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
)

const (
	// AppName 애플리케이션의 전역 고유 식별자입니다.
	AppName string = "openbar-notifier"

	// DefaultFilename 실행 인자로 설정 파일 경로가 주어지지 않았을 때 탐색하는 기본 파일명입니다.
	DefaultFilename = AppName + ".json"

	// envPrefix 설정을 덮어쓰는 환경 변수의 접두사입니다.
	envPrefix = "OBN_"

	// ------------------------------------------------------------------------------------------------
	// 재시도 정책 기본값
	// ------------------------------------------------------------------------------------------------

	DefaultRetryMaxAttempts    = 3
	DefaultRetryBaseDelay      = "1s"
	DefaultRetryMaxDelay       = "30s"
	DefaultRetryAttemptTimeout = "10s"

	// DefaultSoftDeadline 한 번의 감시 실행에 허용되는 기본 제한 시간
	DefaultSoftDeadline = "5m"

	// DefaultFetchTimeout 개별 수집 요청의 기본 제한 시간
	DefaultFetchTimeout = "30s"
)

// AppConfig 애플리케이션의 모든 설정을 관장하는 최상위 루트 구조체
type AppConfig struct {
	Debug     bool            `json:"debug"`
	Instance  InstanceConfig  `json:"instance"`
	State     StateConfig     `json:"state"`
	Retry     RetryConfig     `json:"retry"`
	Notifiers NotifiersConfig `json:"notifiers"`
	Watch     WatchConfig     `json:"watch"`
}

// validate 설정 파일 로드 직후, 각 설정 항목의 정합성과 필수 값의 유효성을 검증합니다.
func (c *AppConfig) validate() error {
	if err := c.Instance.validate(); err != nil {
		return err
	}
	if err := c.Retry.validate(); err != nil {
		return err
	}
	if err := c.Notifiers.validate(); err != nil {
		return err
	}
	if err := c.Watch.validate(); err != nil {
		return err
	}
	return nil
}

// InstanceConfig 감시 대상 OpenBar 인스턴스의 접속 정보
type InstanceConfig struct {
	URL          string `json:"url" validate:"required,url"`
	CardID       string `json:"card_id" validate:"required"`
	PIN          string `json:"pin" validate:"required"`
	FetchTimeout string `json:"fetch_timeout"`
}

func (c *InstanceConfig) validate() error {
	if err := checkStruct(c, "Instance"); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.FetchTimeout); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("수집 제한 시간(fetch_timeout) 설정이 올바르지 않습니다: '%s' (예: 30s, 1m)", c.FetchTimeout))
	}
	return nil
}

// FetchTimeoutDuration 파싱된 수집 제한 시간을 반환합니다. validate() 통과를 전제로 합니다.
func (c *InstanceConfig) FetchTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.FetchTimeout)
	return d
}

// StateConfig 영속 상태 파일의 저장 위치
type StateConfig struct {
	Dir string `json:"dir"`
}

// RetryConfig 알림 전달 실패 시의 재시도 정책
type RetryConfig struct {
	MaxAttempts    int    `json:"max_attempts" validate:"min=1"`
	BaseDelay      string `json:"base_delay"`
	MaxDelay       string `json:"max_delay"`
	AttemptTimeout string `json:"attempt_timeout"`
	Jitter         bool   `json:"jitter"`
}

func (c *RetryConfig) validate() error {
	if c.MaxAttempts < 1 {
		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("최대 시도 횟수(max_attempts)는 1 이상이어야 합니다: '%d'", c.MaxAttempts))
	}

	for name, value := range map[string]string{
		"base_delay":      c.BaseDelay,
		"max_delay":       c.MaxDelay,
		"attempt_timeout": c.AttemptTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("재시도 정책의 시간 설정(%s)이 올바르지 않습니다: '%s' (예: 1s, 500ms)", name, value))
		}
	}
	return nil
}

// BaseDelayDuration 파싱된 기본 대기 시간을 반환합니다. validate() 통과를 전제로 합니다.
func (c *RetryConfig) BaseDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.BaseDelay)
	return d
}

// MaxDelayDuration 파싱된 최대 대기 시간을 반환합니다. validate() 통과를 전제로 합니다.
func (c *RetryConfig) MaxDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxDelay)
	return d
}

// AttemptTimeoutDuration 파싱된 개별 시도 제한 시간을 반환합니다. validate() 통과를 전제로 합니다.
func (c *RetryConfig) AttemptTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.AttemptTimeout)
	return d
}

// NotifiersConfig 알림 채널(웹훅, 텔레그램)을 정의하는 설정 구조체
type NotifiersConfig struct {
	Webhooks  []WebhookConfig  `json:"webhooks" validate:"unique=ID"`
	Telegrams []TelegramConfig `json:"telegrams" validate:"unique=ID"`
}

func (c *NotifiersConfig) validate() error {
	if len(c.Webhooks) == 0 && len(c.Telegrams) == 0 {
		return apperrors.New(apperrors.InvalidInput, "알림 채널(notifiers)이 하나도 설정되지 않았습니다")
	}

	if err := checkUniqueField(c.Webhooks, "ID", "Webhook"); err != nil {
		return err
	}
	if err := checkUniqueField(c.Telegrams, "ID", "Telegram"); err != nil {
		return err
	}

	for _, webhook := range c.Webhooks {
		if err := checkStruct(webhook, fmt.Sprintf("Webhook['%s']", webhook.ID)); err != nil {
			return err
		}
		if err := checkSubscriptions(webhook.Subscriptions, fmt.Sprintf("Webhook['%s']", webhook.ID)); err != nil {
			return err
		}
	}
	for _, telegram := range c.Telegrams {
		if err := checkStruct(telegram, fmt.Sprintf("Telegram['%s']", telegram.ID)); err != nil {
			return err
		}
		if err := checkSubscriptions(telegram.Subscriptions, fmt.Sprintf("Telegram['%s']", telegram.ID)); err != nil {
			return err
		}
	}
	return nil
}

// WebhookConfig 웹훅 알림 대상의 설정 구조체
//
// Subscriptions가 비어있으면 모든 종류의 이벤트를 수신합니다.
type WebhookConfig struct {
	ID            string   `json:"id" validate:"required"`
	URL           string   `json:"url" validate:"required,url"`
	Subscriptions []string `json:"subscriptions"`
	RatePerSecond float64  `json:"rate_per_second" validate:"min=0"`
}

// TelegramConfig 텔레그램 알림 대상의 설정 구조체
type TelegramConfig struct {
	ID            string   `json:"id" validate:"required"`
	BotToken      string   `json:"bot_token" validate:"required,telegram_bot_token"`
	ChatID        int64    `json:"chat_id" validate:"required"`
	Subscriptions []string `json:"subscriptions"`
}

// WatchConfig 상주 감시 모드의 스케줄과 상태 조회 서버 설정
//
// Runnable이 false이면 한 번의 감시 실행 후 종료하는 단발 모드로 동작합니다.
type WatchConfig struct {
	Runnable     bool   `json:"runnable"`
	TimeSpec     string `json:"time_spec"`
	ListenPort   int    `json:"listen_port" validate:"min=0,max=65535"`
	SoftDeadline string `json:"soft_deadline"`
}

func (c *WatchConfig) validate() error {
	if c.Runnable {
		if _, err := cron.ParseStandard(c.TimeSpec); err != nil {
			return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("감시 스케줄(time_spec) 설정이 올바르지 않습니다: '%s' (예: */10 * * * *)", c.TimeSpec))
		}
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("상태 조회 서버 포트(listen_port)는 0에서 65535 사이의 값이어야 합니다: '%d'", c.ListenPort))
	}
	if _, err := time.ParseDuration(c.SoftDeadline); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("실행 제한 시간(soft_deadline) 설정이 올바르지 않습니다: '%s' (예: 5m)", c.SoftDeadline))
	}
	return nil
}

// SoftDeadlineDuration 파싱된 실행 제한 시간을 반환합니다. validate() 통과를 전제로 합니다.
func (c *WatchConfig) SoftDeadlineDuration() time.Duration {
	d, _ := time.ParseDuration(c.SoftDeadline)
	return d
}

// Load 기본 설정 파일을 읽어 애플리케이션 설정을 로드합니다.
func Load() (*AppConfig, error) {
	return LoadWithFile(DefaultFilename)
}

// LoadWithFile 지정된 경로의 설정 파일을 읽어 AppConfig 객체를 생성합니다.
func LoadWithFile(filename string) (*AppConfig, error) {
	k := koanf.New(".")

	// 1. 기본값 로드 (가장 낮은 우선순위)
	err := k.Load(confmap.Provider(map[string]interface{}{
		"instance.fetch_timeout": DefaultFetchTimeout,
		"retry.max_attempts":     DefaultRetryMaxAttempts,
		"retry.base_delay":       DefaultRetryBaseDelay,
		"retry.max_delay":        DefaultRetryMaxDelay,
		"retry.attempt_timeout":  DefaultRetryAttemptTimeout,
		"retry.jitter":           true,
		"watch.soft_deadline":    DefaultSoftDeadline,
	}, "."), nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "애플리케이션 기본 설정 로드에 실패했습니다")
	}

	// 2. JSON 설정 파일 로드 (기본값 덮어쓰기)
	if err := k.Load(file.Provider(filename), json.Parser()); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(err, apperrors.System, fmt.Sprintf("설정 파일을 찾을 수 없습니다: '%s'", filename))
		}
		return nil, apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("설정 파일 로드 중 오류가 발생했습니다: '%s'", filename))
	}

	// 3. 환경 변수 로드 (최우선 순위, JSON 설정 덮어쓰기)
	// 접두사: OBN_
	// 구분자: 이중 언더스코어(__)를 점(.)으로 변환 (계층 구조 표현)
	// 예: OBN_INSTANCE__CARD_ID -> instance.card_id
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "환경 변수 로드에 실패했습니다")
	}

	// 4. 구조체 언마샬링 (Strict Validation 적용)
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			ErrorUnused:      true, // 파일에 존재하지만 구조체에 없는 필드가 있을 경우 에러를 발생시킴
			WeaklyTypedInput: true,
		},
	}
	var appConfig AppConfig
	if err := k.UnmarshalWithConf("", &appConfig, unmarshalConf); err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "설정 데이터를 애플리케이션 구조체로 변환하는데 실패했습니다")
	}

	// 5. 유효성 검사 수행 (정합성 체크)
	if err := appConfig.validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("설정 파일('%s')의 유효성 검증에 실패했습니다", filename))
	}

	return &appConfig, nil
}
