package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/darkkaiser/openbar-notifier/internal/diff"
	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
)

// validate 설정 검증에 사용되는 패키지 전역 Validator 인스턴스
var validate = newValidator()

// 텔레그램 봇 토큰 검증을 위한 정규식 (예: 123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11)
var telegramBotTokenRegex = regexp.MustCompile(`^\d{3,20}:[a-zA-Z0-9_-]{30,50}$`)

// knownEventKinds 구독 필터에 사용할 수 있는 이벤트 종류 목록
var knownEventKinds = map[string]bool{
	string(diff.KindAdded):     true,
	string(diff.KindRestocked): true,
	string(diff.KindDepleted):  true,
	string(diff.KindRemoved):   true,
	string(diff.KindUpdated):   true,
}

// newValidator 새로운 Validator 인스턴스를 생성하고 커스텀 유효성 검사 함수를 등록합니다.
func newValidator() *validator.Validate {
	v := validator.New()

	// 검증 에러가 났을 때, 에러 메시지에 Go 구조체 필드명(예: BotToken) 대신 JSON 이름(예: bot_token)을 보여주도록 설정합니다.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// 커스텀 유효성 검사 함수 등록
	if err := v.RegisterValidation("telegram_bot_token", validateTelegramBotToken); err != nil {
		panic(fmt.Sprintf("초기화 치명적 오류: 'telegram_bot_token' 커스텀 유효성 검사 함수 등록에 실패했습니다: %v", err))
	}

	return v
}

// validateTelegramBotToken 입력된 문자열이 유효한 텔레그램 봇 토큰 형식인지 검증합니다.
//
// 텔레그램 봇 토큰은 식별자(숫자)와 비밀키(문자열)가 콜론(:)으로 구분된 형태여야 합니다.
// 예: "123456789:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"
func validateTelegramBotToken(fl validator.FieldLevel) bool {
	return telegramBotTokenRegex.MatchString(fl.Field().String())
}

// checkStruct 구조체의 유효성을 검사하고, 사용자 친화적인 에러 메시지를 반환합니다.
func checkStruct(s interface{}, contextName string) error {
	if err := validate.Struct(s); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			// 첫 번째 에러만 상세히 보고
			firstErr := validationErrors[0]
			return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("%s의 설정이 올바르지 않습니다: %s (조건: %s)", contextName, firstErr.Field(), firstErr.Tag()))
		}
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("%s 유효성 검증에 실패했습니다", contextName))
	}
	return nil
}

// checkUniqueField 슬라이스 내의 특정 필드 값이 유일한지 검사합니다.
func checkUniqueField(data interface{}, fieldName, contextName string) error {
	if err := validate.Var(data, "unique="+fieldName); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range validationErrors {
				if fieldErr.Tag() == "unique" {
					return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("중복된 %s ID가 존재합니다: '%v'", contextName, fieldErr.Value()))
				}
			}
		}
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("%s 유일성 검증에 실패했습니다", contextName))
	}
	return nil
}

// checkSubscriptions 구독 필터에 지정된 이벤트 종류가 정의된 값인지 검사합니다.
func checkSubscriptions(subscriptions []string, contextName string) error {
	for _, kind := range subscriptions {
		if !knownEventKinds[kind] {
			return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("%s의 구독 필터에 알 수 없는 이벤트 종류가 지정되었습니다: '%s' (사용 가능: added, restocked, depleted, removed, updated)", contextName, kind))
		}
	}
	return nil
}

// EventKinds 문자열 구독 필터를 이벤트 종류 타입으로 변환합니다.
// validate() 통과를 전제로 합니다.
func EventKinds(subscriptions []string) []diff.Kind {
	kinds := make([]diff.Kind, len(subscriptions))
	for i, kind := range subscriptions {
		kinds[i] = diff.Kind(kind)
	}
	return kinds
}
