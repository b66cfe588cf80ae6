package state

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/iancoleman/strcase"
)

// filenameReplacer 파일명에 사용할 수 없는 문자를 안전한 문자로 치환합니다.
// 경로 구분자와 Windows 예약 문자가 대상입니다.
var filenameReplacer = strings.NewReplacer(
	"..", "--",
	"/", "-",
	"\\", "-",
	"|", "-",
	"<", "-",
	">", "-",
	":", "-",
	"\"", "-",
	"?", "-",
	"*", "-",
)

// generateFilename 인스턴스 ID로부터 상태 파일명을 생성합니다.
//
// 가독성을 위해 인스턴스 ID를 Kebab-Case로 정제하고, 정제 과정에서 서로 다른
// ID가 같은 이름으로 합쳐지는 충돌을 막기 위해 원본 ID의 64비트 해시를 덧붙입니다.
//
// 생성 패턴: "state-{정제된인스턴스이름}-{16자리해시}.json"
func generateFilename(instanceID string) string {
	name := truncateByBytes(sanitizeName(instanceID), 50)

	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(instanceID))

	return fmt.Sprintf("state-%s-%016x.json", name, hasher.Sum64())
}

// sanitizeName 파일명으로 안전하게 사용할 수 있도록 문자열을 정제합니다.
func sanitizeName(s string) string {
	kebab := strcase.ToKebab(s)

	// 제어 문자(0x00-0x1F) 및 DEL(0x7F)은 일부 파일 시스템이 허용하지 않으므로 치환합니다.
	kebab = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return '-'
		}
		return r
	}, kebab)

	return filenameReplacer.Replace(kebab)
}

// truncateByBytes 문자열을 UTF-8 문자가 깨지지 않도록 바이트 길이 기준으로 자릅니다.
// 파일 시스템의 파일명 길이 제한은 문자 개수가 아닌 바이트 기준입니다.
func truncateByBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	var totalBytes int
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		if totalBytes+size > limit {
			return s[:totalBytes]
		}
		totalBytes += size
		i += size
	}

	return s[:totalBytes]
}
