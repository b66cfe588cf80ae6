// Package diff 두 재고 Snapshot 사이의 변경 사항을 계산하는 순수 비교 엔진을 제공합니다.
//
// Diff()는 부수 효과가 없으며 동일한 입력에 대해 항상 동일한 순서의 이벤트를
// 반환합니다. 알림 대상 필터링과 같은 정책 판단은 이 패키지의 책임이 아닙니다.
package diff

import (
	"sort"
	"time"

	"github.com/darkkaiser/openbar-notifier/internal/snapshot"
)

// Kind 변경 이벤트의 종류
type Kind string

const (
	// KindAdded 상품이 카탈로그에 처음 등장한 경우 (재고 유무와 무관)
	KindAdded Kind = "added"

	// KindRestocked 판매중인 상품의 재고가 없음에서 있음으로 전환된 경우
	KindRestocked Kind = "restocked"

	// KindDepleted 판매중인 상품의 재고가 있음에서 없음으로 전환된 경우
	// 카탈로그에는 여전히 존재하므로 KindRemoved와 구분됩니다.
	KindDepleted Kind = "depleted"

	// KindRemoved 상품이 카탈로그에서 완전히 사라진 경우
	KindRemoved Kind = "removed"

	// KindUpdated 재고 상태는 그대로이나 상품 내용(이름, 수량, 부가 속성)이 변경된 경우
	KindUpdated Kind = "updated"
)

// kindPriority 동일 상품에 대해 여러 이벤트가 발생하는 비정상 입력에서도
// 정렬 순서가 항상 결정적이도록 하기 위한 우선순위입니다.
var kindPriority = map[Kind]int{
	KindRemoved:   0,
	KindDepleted:  1,
	KindRestocked: 2,
	KindAdded:     3,
	KindUpdated:   4,
}

// Event 하나의 상품에 대해 감지된 단일 변경 이벤트
type Event struct {
	Kind      Kind               `json:"kind"`
	ProductID snapshot.ProductID `json:"product_id"`

	// Previous 변경 이전의 상품 레코드 (KindAdded인 경우 nil)
	Previous *snapshot.Product `json:"previous,omitempty"`

	// Current 변경 이후의 상품 레코드 (KindRemoved인 경우 nil)
	Current *snapshot.Product `json:"current,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

// ProductName 이벤트 대상 상품의 이름을 반환합니다.
// 현재 레코드를 우선하고, 없으면(KindRemoved) 이전 레코드에서 가져옵니다.
func (e Event) ProductName() string {
	if e.Current != nil {
		return e.Current.Name
	}
	if e.Previous != nil {
		return e.Previous.Name
	}
	return ""
}

// Diff 이전 Snapshot과 현재 Snapshot을 비교하여 변경 이벤트 목록을 계산합니다.
//
// 반환되는 이벤트는 상품 ID 오름차순, 동일 상품 내에서는 이벤트 종류의
// 우선순위 순으로 정렬됩니다. 변경이 없으면 빈 슬라이스를 반환합니다.
//
// 재고 유무(Available)가 상태 전환 판단의 유일한 기준입니다. 수량 변화는
// Available이 그대로인 한 KindUpdated로만 보고됩니다.
func Diff(previous, current snapshot.Snapshot, detectedAt time.Time) []Event {
	events := make([]Event, 0)

	// 새로 등장한 상품 및 양쪽에 모두 존재하는 상품의 상태 전환을 검사합니다.
	for id, cur := range current.Products {
		prev, existedBefore := previous.Lookup(id)
		if !existedBefore {
			events = append(events, Event{
				Kind:       KindAdded,
				ProductID:  id,
				Current:    productPtr(cur),
				DetectedAt: detectedAt,
			})
			continue
		}

		switch {
		case !prev.Available && cur.Available:
			events = append(events, Event{
				Kind:       KindRestocked,
				ProductID:  id,
				Previous:   productPtr(prev),
				Current:    productPtr(cur),
				DetectedAt: detectedAt,
			})
		case prev.Available && !cur.Available:
			events = append(events, Event{
				Kind:       KindDepleted,
				ProductID:  id,
				Previous:   productPtr(prev),
				Current:    productPtr(cur),
				DetectedAt: detectedAt,
			})
		case prev.ContentHash != cur.ContentHash:
			events = append(events, Event{
				Kind:       KindUpdated,
				ProductID:  id,
				Previous:   productPtr(prev),
				Current:    productPtr(cur),
				DetectedAt: detectedAt,
			})
		}
	}

	// 카탈로그에서 사라진 상품을 검사합니다.
	for id, prev := range previous.Products {
		if _, stillExists := current.Lookup(id); stillExists {
			continue
		}
		events = append(events, Event{
			Kind:       KindRemoved,
			ProductID:  id,
			Previous:   productPtr(prev),
			DetectedAt: detectedAt,
		})
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].ProductID != events[j].ProductID {
			return events[i].ProductID < events[j].ProductID
		}
		return kindPriority[events[i].Kind] < kindPriority[events[j].Kind]
	})

	return events
}

// CountByKind 이벤트 목록을 종류별 개수로 집계합니다.
// 실행 결과 요약 보고에 사용됩니다.
func CountByKind(events []Event) map[Kind]int {
	counts := make(map[Kind]int)
	for _, event := range events {
		counts[event.Kind]++
	}
	return counts
}

// productPtr 맵에서 꺼낸 값의 복사본에 대한 포인터를 반환합니다.
// 이벤트가 원본 Snapshot과 독립적으로 유지되도록 합니다.
func productPtr(p snapshot.Product) *snapshot.Product {
	return &p
}
