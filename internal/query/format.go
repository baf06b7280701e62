package query

import (
	"fmt"
	"strings"

	"github.com/questline/guiderag/internal/store"
)

// NoResults is the placeholder context emitted when a document list is
// empty. The generation prompt always receives a well-formed block.
const NoResults = "[검색 결과 없음] 질문과 관련된 정보를 찾지 못했습니다."

// FormatDocs renders an ordered document list into a labeled, numbered
// context block. A source URL line is appended when present in metadata.
// Empty input returns NoResults, never an empty string.
func FormatDocs(docs []*store.Document, label string) string {
	if len(docs) == 0 {
		return NoResults
	}

	parts := make([]string, 0, len(docs))
	for i, doc := range docs {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s 문서 %d] %s", label, i+1, doc.Content)
		if doc.Metadata.URL != "" {
			b.WriteString("\n참고 링크: ")
			b.WriteString(doc.Metadata.URL)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}
