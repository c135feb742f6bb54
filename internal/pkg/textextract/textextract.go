// Package textextract turns uploaded PDF, DOCX and TXT bytes into cleaned plain text.
package textextract

import (
	"errors"
	"path/filepath"
	"strings"
)

type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeTXT  FileType = "txt"
)

var (
	ErrEmptyInput      = errors.New("document is empty")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrUnreadable      = errors.New("document text could not be extracted")
	ErrNoText          = errors.New("document contains no extractable text")
)

// Result holds the cleaned full text and the per-page texts (one page for DOCX/TXT).
type Result struct {
	Text  string
	Pages []string
}

// DetectFileType maps a filename extension onto a supported FileType.
func DetectFileType(filename string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FileTypePDF, nil
	case ".docx", ".doc":
		return FileTypeDOCX, nil
	case ".txt":
		return FileTypeTXT, nil
	default:
		return "", ErrUnsupportedType
	}
}

// ContentType returns the MIME type stored alongside the uploaded blob.
func ContentType(fileType FileType) string {
	switch fileType {
	case FileTypePDF:
		return "application/pdf"
	case FileTypeDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FileTypeTXT:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Extract converts raw bytes of the given type into cleaned text.
func Extract(fileType FileType, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	var (
		result *Result
		err    error
	)
	switch fileType {
	case FileTypePDF:
		result, err = extractPDF(data)
	case FileTypeDOCX:
		result, err = extractDOCX(data)
	case FileTypeTXT:
		result, err = extractTXT(data)
	default:
		return nil, ErrUnsupportedType
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, ErrNoText
	}
	return result, nil
}

// Clean trims every line and drops lines of two characters or fewer,
// which are almost always page numbers or extraction debris.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len([]rune(line)) > 2 {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func joinPages(pages []string) string {
	nonEmpty := make([]string, 0, len(pages))
	for _, p := range pages {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
