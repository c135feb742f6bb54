package textextract

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// pdfSyntaxPrefixes mark lines that leak from the PDF object layer
// when a file has no proper text layer.
var pdfSyntaxPrefixes = []string{
	"%", "obj", "endobj", "stream", "endstream", "xref", "trailer", "startxref", "<<", ">>", "/",
}

func extractPDF(data []byte) (*Result, error) {
	pages, err := readPDFPages(data)
	if err != nil {
		log.Printf("textextract: pdf reader failed, salvaging printable text: %v", err)
		salvaged := stripPDFSyntax(string(printableText(data)))
		if salvaged == "" {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		return &Result{Text: salvaged, Pages: []string{salvaged}}, nil
	}
	for i := range pages {
		pages[i] = stripPDFSyntax(pages[i])
	}
	return &Result{Text: joinPages(pages), Pages: pages}, nil
}

func readPDFPages(data []byte) (pages []string, err error) {
	defer func() {
		// the pdf package panics on some malformed object streams
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			log.Printf("textextract: pdf page %d failed: %v", i, pageErr)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func stripPDFSyntax(text string) string {
	cleaned := Clean(text)
	if cleaned == "" {
		return ""
	}
	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if hasPDFSyntaxPrefix(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func hasPDFSyntaxPrefix(line string) bool {
	for _, prefix := range pdfSyntaxPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func printableText(in []byte) []byte {
	var out bytes.Buffer
	for len(in) > 0 {
		r, size := utf8.DecodeRune(in)
		in = in[size:]
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if r == '\n' || r == '\t' || (r >= 32 && r != 127) {
			out.WriteRune(r)
		}
	}
	return out.Bytes()
}
