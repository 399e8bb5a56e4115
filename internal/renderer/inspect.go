package renderer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFInfo summarises a rendered report.
type PDFInfo struct {
	Pages int
	Text  string
}

// Inspect parses a PDF and extracts its page count and plain text.
func Inspect(data []byte) (info PDFInfo, err error) {
	// The parser panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PDFInfo{}, fmt.Errorf("failed to open pdf: %w", err)
	}
	info.Pages = reader.NumPage()

	var text strings.Builder
	for i := 1; i <= info.Pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return info, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		text.WriteString(content)
		text.WriteString("\n")
	}
	info.Text = text.String()
	return info, nil
}
