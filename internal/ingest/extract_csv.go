package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"docuchat/pkg/domain"
)

// extractCSV yields one document per data row, each cell prefixed with its
// column header so the text stays meaningful without the table structure.
func extractCSV(file UploadFile) ([]domain.Document, error) {
	reader := csv.NewReader(bytes.NewReader(file.Data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv has no data rows")
	}
	header := records[0]
	docs := make([]domain.Document, 0, len(records)-1)
	for rowIdx, record := range records[1:] {
		var sb strings.Builder
		for colIdx, cell := range record {
			name := ""
			if colIdx < len(header) {
				name = strings.TrimSpace(header[colIdx])
			}
			if name == "" {
				name = "column " + strconv.Itoa(colIdx+1)
			}
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(strings.TrimSpace(cell))
			sb.WriteString("\n")
		}
		content := strings.TrimSpace(sb.String())
		if content == "" {
			continue
		}
		docs = append(docs, domain.Document{
			Content:  content,
			Source:   file.Filename,
			Location: "row:" + strconv.Itoa(rowIdx+1),
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("csv has no data rows")
	}
	return docs, nil
}
