// Package openbar OpenBar 인스턴스로부터 전체 상품 목록을 수집하는 클라이언트를 제공합니다.
//
// 수집 절차는 다음과 같습니다.
//  1. 인스턴스의 WebUI가 제공하는 config.json에서 API 주소와 로컬 토큰을 획득
//  2. 카드 ID와 PIN으로 로그인하여 세션 토큰 획득
//  3. 전체 카테고리를 조회하고, 카테고리별 상품 목록을 페이지 단위로 수집
//
// 수집은 전부 아니면 전무(all-or-nothing)입니다. 어느 단계에서든 실패하면
// 부분 결과 없이 에러를 반환하며, 호출자는 해당 실행을 중단해야 합니다.
package openbar

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
	"github.com/darkkaiser/openbar-notifier/internal/snapshot"
	"github.com/darkkaiser/openbar-notifier/pkg/httpx"
	applog "github.com/darkkaiser/openbar-notifier/pkg/log"
)

// component OpenBar 클라이언트의 로깅용 컴포넌트 이름
const component = "openbar.client"

// itemsPageSize 카테고리별 상품 조회 시 한 페이지의 크기
const itemsPageSize = 100

// localTokenHeader 로컬 주문 단말 인증에 사용되는 헤더 이름
// 토큰 값은 인스턴스의 config.json이 공개적으로 제공합니다.
const localTokenHeader = "X-Local-Token"

// webConfig 인스턴스의 WebUI가 제공하는 설정 정보
type webConfig struct {
	// api API 엔드포인트 주소 (예: "https://openbar.example.com/api")
	api string

	// localToken 로컬 주문 단말 인증용 토큰
	localToken string
}

// category 상품 카테고리
type category struct {
	id   string
	name string
}

// Client OpenBar 인스턴스의 상품 목록 수집 클라이언트입니다.
type Client struct {
	instanceURL string
	cardID      string
	pin         string
	fetcher     httpx.Fetcher

	// 세션 상태. fetchWebConfig/login 과정에서 채워집니다.
	webConfig    webConfig
	sessionToken string
}

// NewClient OpenBar 클라이언트를 생성합니다.
// fetcher에는 재시도 기능이 포함된 Fetcher를 전달하는 것을 권장합니다.
// 모든 수집 요청은 멱등한 GET이므로 안전하게 재시도됩니다.
func NewClient(instanceURL, cardID, pin string, fetcher httpx.Fetcher) *Client {
	return &Client{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		cardID:      cardID,
		pin:         pin,
		fetcher:     fetcher,
	}
}

// FetchAll 인스턴스의 전체 상품 목록을 수집하여 원본 상품 레코드로 반환합니다.
//
// 어느 단계에서든 실패하면 부분 결과 없이 에러를 반환합니다.
func (c *Client) FetchAll(ctx context.Context) ([]snapshot.RawProduct, error) {
	if err := c.fetchWebConfig(ctx); err != nil {
		return nil, err
	}
	if err := c.login(ctx); err != nil {
		return nil, err
	}
	defer c.logout(ctx)

	categories, err := c.categories(ctx)
	if err != nil {
		return nil, err
	}

	var rawProducts []snapshot.RawProduct
	for _, cat := range categories {
		items, err := c.categoryItems(ctx, cat)
		if err != nil {
			return nil, err
		}
		rawProducts = append(rawProducts, items...)
	}

	applog.WithComponentAndFields(component, applog.Fields{
		"categories": len(categories),
		"products":   len(rawProducts),
	}).Info("전체 상품 목록 수집이 완료되었습니다.")

	return rawProducts, nil
}

// fetchWebConfig 인스턴스의 config.json에서 API 주소와 로컬 토큰을 획득합니다.
func (c *Client) fetchWebConfig(ctx context.Context) error {
	data, err := httpx.FetchBytes(ctx, c.fetcher, http.MethodGet, c.instanceURL+"/config.json", nil, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "인스턴스 설정(config.json) 조회에 실패했습니다.")
	}

	parsed := gjson.ParseBytes(data)
	api := parsed.Get("api").String()
	localToken := parsed.Get("local_token").String()
	if api == "" || localToken == "" {
		return apperrors.New(apperrors.ParsingFailed, "인스턴스 설정(config.json)에 필수 항목(api, local_token)이 누락되었습니다.")
	}

	c.webConfig = webConfig{
		api:        strings.TrimRight(api, "/"),
		localToken: localToken,
	}
	return nil
}

// login 카드 ID와 PIN으로 로그인하여 세션 토큰을 획득합니다.
func (c *Client) login(ctx context.Context) error {
	body := fmt.Sprintf(`{"card_id":%q,"pin":%q}`, c.cardID, c.pin)

	data, err := httpx.FetchBytes(ctx, c.fetcher, http.MethodPost, c.webConfig.api+"/auth/card",
		c.apiHeader(map[string]string{"Content-Type": "application/json"}), strings.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unauthorized, "카드 로그인에 실패했습니다.")
	}

	token := gjson.GetBytes(data, "token").String()
	if token == "" {
		return apperrors.New(apperrors.ParsingFailed, "로그인 응답에 세션 토큰이 누락되었습니다.")
	}

	c.sessionToken = token
	return nil
}

// logout 세션을 종료합니다. 수집이 끝난 뒤의 뒷정리이므로 실패해도 수집 결과에는 영향이 없습니다.
func (c *Client) logout(ctx context.Context) {
	if c.sessionToken == "" {
		return
	}

	_, err := httpx.FetchBytes(ctx, c.fetcher, http.MethodPost, c.webConfig.api+"/auth/logout", c.apiHeader(nil), nil)
	if err != nil {
		applog.WithComponentAndFields(component, applog.Fields{
			"error": err,
		}).Warn("로그아웃 요청이 실패하였습니다.")
	}
	c.sessionToken = ""
}

// categories 전체 카테고리 목록을 조회합니다.
func (c *Client) categories(ctx context.Context) ([]category, error) {
	data, err := httpx.FetchBytes(ctx, c.fetcher, http.MethodGet, c.webConfig.api+"/categories", c.apiHeader(nil), nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "카테고리 목록 조회에 실패했습니다.")
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, apperrors.New(apperrors.ParsingFailed, "카테고리 목록 응답이 배열 형식이 아닙니다.")
	}

	var categories []category
	for _, entry := range parsed.Array() {
		id := entry.Get("id").String()
		if id == "" {
			return nil, apperrors.New(apperrors.ParsingFailed, "카테고리 응답에 ID가 누락되었습니다.")
		}
		categories = append(categories, category{
			id:   id,
			name: entry.Get("name").String(),
		})
	}
	return categories, nil
}

// categoryItems 카테고리의 전체 상품을 페이지 단위로 수집합니다.
func (c *Client) categoryItems(ctx context.Context, cat category) ([]snapshot.RawProduct, error) {
	var rawProducts []snapshot.RawProduct

	for page := 0; ; page++ {
		url := fmt.Sprintf("%s/categories/%s/items?page=%d&limit=%d", c.webConfig.api, cat.id, page, itemsPageSize)

		data, err := httpx.FetchBytes(ctx, c.fetcher, http.MethodGet, url, c.apiHeader(nil), nil)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.Unavailable, "카테고리(%s) 상품 목록 조회에 실패했습니다.", cat.id)
		}

		items := gjson.GetBytes(data, "items")
		if !items.Exists() || !items.IsArray() {
			return nil, apperrors.Newf(apperrors.ParsingFailed, "카테고리(%s) 상품 목록 응답에 items 배열이 누락되었습니다.", cat.id)
		}

		pageItems := items.Array()
		for _, item := range pageItems {
			raw, err := parseItem(item, cat)
			if err != nil {
				return nil, err
			}
			rawProducts = append(rawProducts, raw)
		}

		if len(pageItems) < itemsPageSize {
			return rawProducts, nil
		}
	}
}

// parseItem 상품 응답 항목을 원본 상품 레코드로 변환합니다.
//
// 재고 유무는 state 필드가 "buyable"인지로 판단하며, amount_left가 있는 경우에만
// 수량을 기록합니다. 카테고리와 가격은 변경 감지 대상 부가 속성으로 보존합니다.
func parseItem(item gjson.Result, cat category) (snapshot.RawProduct, error) {
	id := item.Get("id").String()
	if id == "" {
		return snapshot.RawProduct{}, apperrors.Newf(apperrors.ParsingFailed, "카테고리(%s)의 상품 응답에 ID가 누락되었습니다.", cat.id)
	}

	raw := snapshot.RawProduct{
		ID:        id,
		Name:      item.Get("name").String(),
		Available: item.Get("state").String() == "buyable",
		Attributes: map[string]string{
			"category": cat.name,
		},
	}

	if amountLeft := item.Get("amount_left"); amountLeft.Exists() {
		quantity := int(amountLeft.Int())
		raw.Quantity = &quantity
	}
	if price := item.Get("price"); price.Exists() {
		raw.Attributes["price"] = price.Raw
	}

	return raw, nil
}

// apiHeader API 요청에 필요한 공통 헤더를 구성합니다.
// 로컬 토큰은 항상 포함되며, 로그인 이후에는 세션 토큰도 함께 전송됩니다.
func (c *Client) apiHeader(extra map[string]string) map[string]string {
	header := map[string]string{
		localTokenHeader: c.webConfig.localToken,
	}
	if c.sessionToken != "" {
		header["Authorization"] = "Bearer " + c.sessionToken
	}
	for key, value := range extra {
		header[key] = value
	}
	return header
}
