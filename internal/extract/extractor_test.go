package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtract_plain(t *testing.T) {
	e := NewExtractor()
	ctype, got, err := e.Extract("notes.txt", "", []byte("  Hello world\nLine 2 \n"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ctype != TypePlain {
		t.Errorf("content type = %q", ctype)
	}
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_plainByContentType(t *testing.T) {
	e := NewExtractor()
	ctype, got, err := e.Extract("upload", "application/json; charset=utf-8", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ctype != TypePlain || got != `{"a":1}` {
		t.Errorf("got %q %q", ctype, got)
	}
}

func TestExtract_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	_, got, err := e.Extract("a.md", "", []byte("hello\x80world"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "helloworld" {
		t.Errorf("invalid bytes should be dropped, got %q", got)
	}
}

func TestExtract_empty(t *testing.T) {
	e := NewExtractor()
	_, _, err := e.Extract("blank.txt", "", []byte(" \n\t "))
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestExtract_unsupported(t *testing.T) {
	e := NewExtractor()
	_, _, err := e.Extract("slides.pptx", "", []byte("x"))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if !strings.Contains(err.Error(), ".pdf") {
		t.Errorf("error should list supported types: %v", err)
	}
	_, _, err = e.Extract("", "", []byte("x"))
	if !errors.Is(err, ErrUnsupported) || !strings.Contains(err.Error(), "(unknown)") {
		t.Errorf("unknown type error = %v", err)
	}
}

func TestSupports(t *testing.T) {
	tests := map[string]bool{
		"a.txt": true, "A.PDF": true, "b.docx": true, "c.xlsx": true, "d.odt": true,
		"e.rtf": true, "f.json": true, "g.md": true, "h.pptx": false, "noext": false,
	}
	for name, want := range tests {
		if got := Supports(name); got != want {
			t.Errorf("Supports(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestExtract_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Plan")
	f.SetCellValue("Sheet1", "B1", "Price")
	f.SetCellValue("Sheet1", "A2", "Pro")
	f.SetCellValue("Sheet1", "B2", "49")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	e := NewExtractor()
	ctype, got, err := e.Extract("pricing.xlsx", "", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ctype != TypeXLSX {
		t.Errorf("content type = %q", ctype)
	}
	if got != "Sheet1\nPlan\tPrice\nPro\t49" {
		t.Errorf("got %q", got)
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.md")
	if err := os.WriteFile(path, []byte("# FAQ\nRefunds within 30 days."), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	_, got, err := e.ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if !strings.Contains(got, "Refunds within 30 days.") {
		t.Errorf("got %q", got)
	}

	if _, _, err := e.ExtractFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

// minimalDocx returns .docx zip bytes whose body has one paragraph per entry of paras.
func minimalDocx(paras ...string) []byte {
	var body strings.Builder
	for _, p := range paras {
		body.WriteString(`<w:p w:rsidR="00AB"><w:pPr><w:jc w:val="left"/></w:pPr><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body.String() + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

// minimalDocxWithContentTypes returns a .docx zip with [Content_Types].xml pointing to a custom document path.
func minimalDocxWithContentTypes(text, docPath string, reversed bool) []byte {
	override := `<Override PartName="/` + docPath + `" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`
	if reversed {
		override = `<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/` + docPath + `"/>`
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + override + `</Types>`))
	fw, _ := w.Create(docPath)
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtract_docxParagraphs(t *testing.T) {
	e := NewExtractor()
	content := minimalDocx("Refund policy", "", "Returns &amp; exchanges within 30 days")
	ctype, got, err := e.Extract("policy.docx", "", content)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ctype != TypeDOCX {
		t.Errorf("content type = %q", ctype)
	}
	if got != "Refund policy\nReturns & exchanges within 30 days" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_docxCustomDocumentPath(t *testing.T) {
	e := NewExtractor()
	for _, reversed := range []bool{false, true} {
		content := minimalDocxWithContentTypes("Content from document2", "word/document2.xml", reversed)
		_, got, err := e.Extract("a.docx", "", content)
		if err != nil {
			t.Fatalf("Extract (reversed=%v): %v", reversed, err)
		}
		if got != "Content from document2" {
			t.Errorf("reversed=%v: got %q", reversed, got)
		}
	}
}

func TestExtract_docxNotZip(t *testing.T) {
	e := NewExtractor()
	if _, _, err := e.Extract("bad.docx", "", []byte("not a zip")); err == nil {
		t.Error("expected error for corrupt docx")
	}
}

func TestExtract_pdfCorrupt(t *testing.T) {
	e := NewExtractor()
	_, _, err := e.Extract("bad.pdf", "application/pdf", []byte("%PDF-1.4 garbage"))
	if err == nil {
		t.Error("expected error for corrupt pdf")
	}
}
