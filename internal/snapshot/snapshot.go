// Package snapshot 특정 시점의 전체 재고 상태를 나타내는 불변 모델을 제공합니다.
//
// Snapshot은 외부 카탈로그에서 수집된 원본 상품 레코드(RawProduct)를 정규화하여
// 생성되며, 생성된 이후에는 변경되지 않습니다. 이전 실행에서 저장된 Snapshot과의
// 비교(diff)가 변경 감지의 유일한 수단이므로, 상품 ID는 실행 간에 안정적이어야 합니다.
package snapshot

import (
	"fmt"
	"time"

	apperrors "github.com/darkkaiser/openbar-notifier/internal/pkg/errors"
)

// ProductID 상품을 실행 간에 고유하게 식별하는 불투명 식별자
type ProductID string

// Product 정규화된 상품 레코드
//
// Available이 재고 유무를 판단하는 유일한 기준이며, Quantity는 알림 본문에
// 표시되는 보조 정보입니다. Quantity가 0이면서 Available이 true인 상태는
// 유효한 상태(입고 임박 등)이므로 품절로 간주해서는 안 됩니다.
type Product struct {
	ID        ProductID `json:"id"`
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	Quantity  *int      `json:"quantity,omitempty"`

	// ContentHash 상품 내용의 변경 여부를 판단하기 위한 지문(fingerprint)입니다.
	// 이름, 재고 상태, 수량 및 부가 속성으로부터 계산됩니다.
	ContentHash uint64 `json:"content_hash"`
}

// RawProduct 외부 카탈로그에서 수집한 정규화 이전의 상품 레코드
type RawProduct struct {
	ID        string
	Name      string
	Available bool
	Quantity  *int

	// Attributes 변경 감지 대상에 포함되는 부가 속성(카테고리, 가격 등)
	Attributes map[string]string
}

// Snapshot 특정 시점의 전체 재고 상태
// 생성된 이후에는 변경되지 않아야 합니다.
type Snapshot struct {
	TakenAt  time.Time             `json:"taken_at"`
	Products map[ProductID]Product `json:"products"`
}

// Empty 상품이 하나도 없는 빈 Snapshot을 반환합니다.
// 최초 실행 시 이전 상태로 사용됩니다.
func Empty() Snapshot {
	return Snapshot{
		Products: map[ProductID]Product{},
	}
}

// BuildFrom 외부에서 수집한 원본 상품 레코드들을 정규화하여 새로운 Snapshot을 생성합니다.
//
// 상품 ID가 누락되었거나 중복된 경우, 해당 스냅샷으로는 안전한 비교가 불가능하므로
// 에러(ParsingFailed)를 반환합니다. 이 에러는 실행 전체를 중단시켜야 합니다.
func BuildFrom(rawProducts []RawProduct, takenAt time.Time) (Snapshot, error) {
	products := make(map[ProductID]Product, len(rawProducts))

	for i, raw := range rawProducts {
		if raw.ID == "" {
			return Snapshot{}, apperrors.Newf(apperrors.ParsingFailed, "상품 레코드(인덱스: %d)에 상품 ID가 누락되었습니다.", i)
		}
		if raw.Quantity != nil && *raw.Quantity < 0 {
			return Snapshot{}, apperrors.Newf(apperrors.ParsingFailed, "상품(%s)의 수량(%d)이 유효하지 않습니다.", raw.ID, *raw.Quantity)
		}

		id := ProductID(raw.ID)
		if _, exists := products[id]; exists {
			return Snapshot{}, apperrors.Newf(apperrors.ParsingFailed, "상품 ID(%s)가 중복되었습니다.", raw.ID)
		}

		products[id] = Product{
			ID:          id,
			Name:        raw.Name,
			Available:   raw.Available,
			Quantity:    copyQuantity(raw.Quantity),
			ContentHash: contentHash(raw),
		}
	}

	return Snapshot{
		TakenAt:  takenAt,
		Products: products,
	}, nil
}

// Lookup 상품 ID에 해당하는 상품 레코드를 반환합니다.
func (s Snapshot) Lookup(id ProductID) (Product, bool) {
	product, exists := s.Products[id]
	return product, exists
}

// Len Snapshot에 포함된 상품의 개수를 반환합니다.
func (s Snapshot) Len() int {
	return len(s.Products)
}

// QuantityString 상품 수량을 사람이 읽을 수 있는 문자열로 반환합니다.
// 수량 정보가 없는 경우 "알수없음"을 반환합니다.
func (p Product) QuantityString() string {
	if p.Quantity == nil {
		return "알수없음"
	}
	return fmt.Sprintf("%d", *p.Quantity)
}

func copyQuantity(quantity *int) *int {
	if quantity == nil {
		return nil
	}
	v := *quantity
	return &v
}
