package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"docuchat/pkg/domain"
)

// extractXLSX flattens the whole workbook into one document: rows become
// tab-delimited lines, sheets are separated by their name.
func extractXLSX(file UploadFile) ([]domain.Document, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(file.Data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer workbook.Close()

	var sb strings.Builder
	sheets := workbook.GetSheetList()
	for _, sheet := range sheets {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(sheets) > 1 {
			sb.WriteString(sheet)
			sb.WriteString("\n")
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return nil, fmt.Errorf("no text extracted from xlsx")
	}
	return []domain.Document{{Content: content, Source: file.Filename}}, nil
}
