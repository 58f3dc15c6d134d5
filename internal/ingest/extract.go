package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	types "github.com/yungbote/raggae-backend/internal/domain"
)

// SupportedExtensions are the upload formats accepted at ingestion time.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".docx": true,
}

// ValidateExtension rejects uploads outside the supported set before any
// bytes are stored.
func ValidateExtension(fileName string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !SupportedExtensions[ext] {
		return &types.InvalidDocumentTypeError{Extension: ext}
	}
	return nil
}

// ExtractText determines the true file type from magic bytes first, then
// falls back to the declared content type and extension. The output keeps
// line structure so downstream chunking can see paragraphs and headings;
// Sanitize is expected to run on it afterwards.
func ExtractText(fileName string, contentType string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	mt := strings.ToLower(strings.TrimSpace(contentType))

	if len(data) == 0 {
		return "", &types.ExtractionError{Message: fmt.Sprintf("empty file: name=%s", fileName)}
	}

	if isPDF(data) {
		return extractPDF(data)
	}
	if isZip(data) {
		text, err := extractDOCX(data)
		if err != nil {
			return "", &types.ExtractionError{Message: fmt.Sprintf("docx extraction failed: name=%s", fileName), Cause: err}
		}
		return text, nil
	}

	if looksLikeHTML(data) || mt == "text/html" || ext == ".html" || ext == ".htm" {
		return extractHTML(string(data)), nil
	}

	if isProbablyText(data) || mt == "text/plain" || mt == "text/markdown" || ext == ".txt" || ext == ".md" {
		return string(data), nil
	}

	if mt == "application/pdf" || ext == ".pdf" {
		return "", &types.ExtractionError{Message: fmt.Sprintf("file claims pdf but lacks %%PDF header: name=%s", fileName)}
	}
	if mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || ext == ".docx" {
		return "", &types.ExtractionError{Message: fmt.Sprintf("file claims docx but is not a zip container: name=%s", fileName)}
	}

	return "", &types.ExtractionError{Message: fmt.Sprintf("unsupported file type: name=%s ext=%s mime=%s", fileName, ext, mt)}
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func looksLikeHTML(b []byte) bool {
	n := len(b)
	if n > 2048 {
		n = 2048
	}
	s := strings.TrimSpace(strings.ToLower(string(b[:n])))
	if strings.HasPrefix(s, "<!doctype") || strings.HasPrefix(s, "<html") {
		return true
	}
	return strings.Contains(s, "<html") && strings.Contains(s, "</html>")
}

func isProbablyText(b []byte) bool {
	n := len(b)
	if n > 4096 {
		n = 4096
	}
	sample := b[:n]
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &types.ExtractionError{Message: "pdf reader failed", Cause: err}
	}
	var out strings.Builder
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			out.WriteString(trimmed)
			out.WriteString("\n\n")
		}
	}
	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", &types.ExtractionError{Message: "pdf contains no extractable text"}
	}
	return result, nil
}

// extractDOCX walks word/document.xml emitting one line per <w:p> paragraph.
func extractDOCX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("zip does not contain word/document.xml")
	}
	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return "", err
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	var out strings.Builder
	var paragraph strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				var v string
				_ = dec.DecodeElement(&v, &el)
				paragraph.WriteString(v)
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				if line := strings.TrimSpace(paragraph.String()); line != "" {
					out.WriteString(line)
					out.WriteString("\n\n")
				}
				paragraph.Reset()
			}
		}
	}
	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", fmt.Errorf("no text extracted from document")
	}
	return result, nil
}

var htmlTagRE = regexp.MustCompile(`(?s)<[^>]*>`)

func extractHTML(s string) string {
	s = htmlTagRE.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`).Replace(s)
	// Collapse horizontal whitespace per line but keep line breaks for the
	// structure analyzer.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
