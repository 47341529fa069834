// Package chunk turns case documents into provenance-annotated chunks.
//
// Extraction is format-driven: paginated sources (PDF) extract per page,
// flow sources (DOCX, TXT) extract per paragraph. Extraction backends sit
// behind narrow interfaces so tests can substitute fixed text.
package chunk

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

// PageExtractor extracts text per page from a paginated document.
// The returned slice has one entry per page, index 0 = page 1.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

// ParagraphExtractor extracts non-empty paragraphs from a flow document.
type ParagraphExtractor interface {
	ExtractParagraphs(ctx context.Context, path string) ([]string, error)
}

// PDFToTextExtractor shells out to pdftotext, which separates pages with
// form feeds.
type PDFToTextExtractor struct {
	// Binary overrides the pdftotext path (default "pdftotext").
	Binary string
}

// ExtractPages runs pdftotext and splits its output on form feeds.
func (e *PDFToTextExtractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	bin := e.Binary
	if bin == "" {
		bin = "pdftotext"
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-layout", path, "-")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, cgerrors.New(cgerrors.ErrCodeInternal,
			fmt.Sprintf("pdf text extraction failed for %s", path), err)
	}

	pages := strings.Split(out.String(), "\f")
	// pdftotext emits a trailing form feed after the last page
	if n := len(pages); n > 0 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

// DocxExtractor reads paragraphs from the OOXML document body.
type DocxExtractor struct{}

// ExtractParagraphs opens the docx zip and returns non-empty paragraphs in
// document order.
func (e *DocxExtractor) ExtractParagraphs(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, cgerrors.New(cgerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("not a valid docx file: %s", path), err)
	}
	defer zr.Close()

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, cgerrors.New(cgerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("docx file has no document body: %s", path), nil)
	}

	return parseDocxParagraphs(docXML)
}

// parseDocxParagraphs walks the document XML collecting <w:t> text per <w:p>.
func parseDocxParagraphs(docXML []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var paragraphs []string
	var current strings.Builder
	inParagraph := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cgerrors.New(cgerrors.ErrCodeUnsupportedFormat,
				"malformed docx document body", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
			case "t":
				if inParagraph {
					var text string
					if err := dec.DecodeElement(&text, &t); err != nil {
						return nil, cgerrors.New(cgerrors.ErrCodeUnsupportedFormat,
							"malformed docx text run", err)
					}
					current.WriteString(text)
				}
			case "tab":
				if inParagraph {
					current.WriteString(" ")
				}
			case "br":
				if inParagraph {
					current.WriteString("\n")
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				if p := strings.TrimSpace(current.String()); p != "" {
					paragraphs = append(paragraphs, p)
				}
			}
		}
	}

	return paragraphs, nil
}

// TextExtractor treats a plain text file as a flow document, splitting
// paragraphs on blank lines.
type TextExtractor struct{}

// ExtractParagraphs reads the file and splits on blank-line boundaries.
func (e *TextExtractor) ExtractParagraphs(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}

	normalized := strings.ReplaceAll(string(data), "\r\n", "\n")
	var paragraphs []string
	for _, block := range strings.Split(normalized, "\n\n") {
		if p := strings.TrimSpace(block); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs, nil
}
