package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"docuchat/pkg/domain"
)

// extractDOCX pulls paragraph text out of the word/document.xml entry of the
// DOCX zip container and flattens it into one document.
func extractDOCX(file UploadFile) ([]domain.Document, error) {
	reader, err := zip.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	var docXML *zip.File
	for _, entry := range reader.File {
		if entry.Name == "word/document.xml" {
			docXML = entry
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("docx missing word/document.xml")
	}
	rc, err := docXML.Open()
	if err != nil {
		return nil, fmt.Errorf("read docx document: %w", err)
	}
	defer rc.Close()

	text, err := wordXMLText(rc)
	if err != nil {
		return nil, fmt.Errorf("parse docx document: %w", err)
	}
	text = normalizeText(text)
	if text == "" {
		return nil, fmt.Errorf("no text extracted from docx")
	}
	return []domain.Document{{Content: text, Source: file.Filename}}, nil
}

// wordXMLText collects character data from <w:t> runs, separating
// paragraphs and tabs with spaces.
func wordXMLText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "t":
				inText = true
			case "tab", "br":
				sb.WriteString(" ")
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString(" ")
			}
		case xml.CharData:
			if inText {
				sb.Write(tok)
			}
		}
	}
	return sb.String(), nil
}
