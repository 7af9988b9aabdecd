package ingest

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/ledongthuc/pdf"

	"docuchat/pkg/domain"
)

// extractPDF yields one document per readable page. Pages that fail text
// extraction are skipped; the file fails only when nothing is readable.
func extractPDF(file UploadFile) ([]domain.Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	totalPages := reader.NumPage()
	var docs []domain.Document
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = normalizeText(text)
		if text == "" {
			continue
		}
		docs = append(docs, domain.Document{
			Content:  text,
			Source:   file.Filename,
			Location: "page:" + strconv.Itoa(i),
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no text extracted from pdf")
	}
	return docs, nil
}
