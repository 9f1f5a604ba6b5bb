package ingest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractContent turns an uploaded file into plain text. PDFs go through
// the pdf reader; everything else (txt, md) is taken as-is.
func ExtractContent(filename string, data []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return extractPDF(data)
	}
	return string(data), nil
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return string(text), nil
}
