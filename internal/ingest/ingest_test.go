package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDetectFormatClosedSet(t *testing.T) {
	cases := map[string]Format{
		"report.pdf": FormatPDF,
		"data.CSV":   FormatCSV,
		"notes.docx": FormatDOCX,
		"sheet.xlsx": FormatXLSX,
	}
	for filename, want := range cases {
		got, err := DetectFormat(filename)
		if err != nil {
			t.Fatalf("detect %s: %v", filename, err)
		}
		if got != want {
			t.Fatalf("detect %s: got %s, want %s", filename, got, want)
		}
	}
	for _, filename := range []string{"page.html", "archive.zip", "noext", "book.epub"} {
		if _, err := DetectFormat(filename); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("expected unsupported format for %s, got %v", filename, err)
		}
	}
}

func TestExtractCSVOneDocumentPerRow(t *testing.T) {
	data := []byte("name,city\nAda,London\nAlan,Manchester\n")
	docs, err := Extract(UploadFile{Filename: "people.csv", Data: data})
	if err != nil {
		t.Fatalf("extract csv: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if !strings.Contains(docs[0].Content, "name: Ada") || !strings.Contains(docs[0].Content, "city: London") {
		t.Fatalf("row not header-prefixed: %q", docs[0].Content)
	}
	if docs[0].Source != "people.csv" || docs[0].Location != "row:1" {
		t.Fatalf("unexpected source metadata: %+v", docs[0])
	}
	if docs[1].Location != "row:2" {
		t.Fatalf("unexpected second row location: %q", docs[1].Location)
	}
}

func TestExtractCSVRejectsHeaderOnly(t *testing.T) {
	if _, err := Extract(UploadFile{Filename: "empty.csv", Data: []byte("name,city\n")}); err == nil {
		t.Fatalf("expected header-only csv to fail")
	}
}

func TestExtractDOCXFlattensParagraphs(t *testing.T) {
	data := buildDOCX(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>The capital of Atlantis</w:t></w:r></w:p>
    <w:p><w:r><w:t>is Poseidonis.</w:t></w:r></w:p>
  </w:body>
</w:document>`)
	docs, err := Extract(UploadFile{Filename: "notes.docx", Data: data})
	if err != nil {
		t.Fatalf("extract docx: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Content != "The capital of Atlantis is Poseidonis." {
		t.Fatalf("unexpected docx text: %q", docs[0].Content)
	}
	if docs[0].Source != "notes.docx" {
		t.Fatalf("missing source filename: %+v", docs[0])
	}
}

func TestExtractDOCXRejectsMissingDocumentEntry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("word/styles.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := entry.Write([]byte("<styles/>")); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if _, err := Extract(UploadFile{Filename: "broken.docx", Data: buf.Bytes()}); err == nil {
		t.Fatalf("expected docx without document.xml to fail")
	}
}

func TestExtractXLSXFlattensWholeSheet(t *testing.T) {
	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	rows := [][]any{
		{"product", "price"},
		{"anvil", 42},
		{"rocket", 99},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := workbook.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	docs, err := Extract(UploadFile{Filename: "inventory.xlsx", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("extract xlsx: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected single flattened document, got %d", len(docs))
	}
	for _, want := range []string{"product\tprice", "anvil\t42", "rocket\t99"} {
		if !strings.Contains(docs[0].Content, want) {
			t.Fatalf("flattened sheet missing %q: %q", want, docs[0].Content)
		}
	}
}

func TestExtractAllIsolatesPerFileFailures(t *testing.T) {
	files := []UploadFile{
		{Filename: "broken.csv", Data: []byte("header-only\n")},
		{Filename: "broken.xlsx", Data: []byte("not a zip container")},
	}
	docs, trained, failures := ExtractAll(files)
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
	if len(trained) != 0 {
		t.Fatalf("expected no trained files, got %v", trained)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 per-file errors, got %d: %v", len(failures), failures)
	}
	if failures[0].Filename != "broken.csv" || failures[1].Filename != "broken.xlsx" {
		t.Fatalf("failures not reported per file in upload order: %v", failures)
	}
}

func TestExtractAllContinuesAfterFailure(t *testing.T) {
	files := []UploadFile{
		{Filename: "bad.docx", Data: []byte("not a docx")},
		{Filename: "good.csv", Data: []byte("q,a\nx,y\n")},
	}
	docs, trained, failures := ExtractAll(files)
	if len(failures) != 1 || failures[0].Filename != "bad.docx" {
		t.Fatalf("expected one failure for bad.docx, got %v", failures)
	}
	if len(trained) != 1 || trained[0] != "good.csv" {
		t.Fatalf("expected good.csv to survive, got %v", trained)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one document from surviving file, got %d", len(docs))
	}
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := entry.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}
