package snapshot

import (
	"hash/fnv"
	"sort"
	"strconv"
)

// contentHash 상품 내용의 변경 여부를 판단하기 위한 FNV-1a 해시를 계산합니다.
//
// 이름, 재고 상태, 수량 및 부가 속성이 해시 대상에 포함되며, 부가 속성은
// 키 기준으로 정렬하여 순회 순서와 무관하게 동일한 해시값이 보장됩니다.
// 상품 ID는 비교의 조인 키이므로 해시 대상에서 제외합니다.
func contentHash(raw RawProduct) uint64 {
	h := fnv.New64a()

	writeField := func(value string) {
		_, _ = h.Write([]byte(value))
		_, _ = h.Write([]byte{0}) // 필드 경계 구분자 ("ab"+"c"와 "a"+"bc"의 충돌 방지)
	}

	writeField(raw.Name)
	writeField(strconv.FormatBool(raw.Available))
	if raw.Quantity != nil {
		writeField(strconv.Itoa(*raw.Quantity))
	} else {
		writeField("")
	}

	keys := make([]string, 0, len(raw.Attributes))
	for key := range raw.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		writeField(key)
		writeField(raw.Attributes[key])
	}

	return h.Sum64()
}
