// Package ingest converts uploaded files into documents ready for indexing.
// Dispatch is a closed set of formats; anything else is rejected before any
// parsing happens.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"docuchat/pkg/domain"
)

// ErrUnsupportedFormat is returned for extensions outside the closed set.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Format tags the supported upload formats.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
)

// UploadFile is one uploaded file: name plus raw bytes.
type UploadFile struct {
	Filename string
	Data     []byte
}

// FileError reports an extraction failure scoped to a single file.
type FileError struct {
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

// DetectFormat maps a filename extension to a Format tag.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return FormatPDF, nil
	case ".csv":
		return FormatCSV, nil
	case ".docx":
		return FormatDOCX, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// ExtractAll runs extraction over the batch in upload order. A failing file
// is reported and skipped; the rest of the batch continues. Returned
// filenames are the ones that produced at least one document.
func ExtractAll(files []UploadFile) ([]domain.Document, []string, []FileError) {
	var (
		docs     []domain.Document
		trained  []string
		failures []FileError
	)
	for _, file := range files {
		extracted, err := Extract(file)
		if err != nil {
			failures = append(failures, FileError{Filename: file.Filename, Message: err.Error()})
			continue
		}
		docs = append(docs, extracted...)
		trained = append(trained, file.Filename)
	}
	return docs, trained, failures
}

// Extract converts one file into documents.
func Extract(file UploadFile) ([]domain.Document, error) {
	format, err := DetectFormat(file.Filename)
	if err != nil {
		return nil, err
	}
	var docs []domain.Document
	switch format {
	case FormatPDF:
		docs, err = extractPDF(file)
	case FormatCSV:
		docs, err = extractCSV(file)
	case FormatDOCX:
		docs, err = extractDOCX(file)
	case FormatXLSX:
		docs, err = extractXLSX(file)
	}
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no text extracted from %s", file.Filename)
	}
	return docs, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
