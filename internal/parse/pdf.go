package parse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDFText pulls plain text page by page. Pages that fail to decode
// are skipped; only a document with no readable pages at all is an error.
func extractPDFText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("parse: open pdf: %w", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	decoded := 0
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
		decoded++
	}

	if decoded == 0 {
		return "", fmt.Errorf("parse: pdf has no extractable text (%d pages)", pages)
	}
	return b.String(), nil
}
