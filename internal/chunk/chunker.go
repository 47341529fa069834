package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/casegrounds/casegrounds/internal/docstore"
	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

// Config tunes the sliding-window chunker.
type Config struct {
	// TargetWords is the window size in words (default 500).
	TargetWords int
	// OverlapWords is the overlap between consecutive windows (default 80).
	OverlapWords int
	// ParagraphGroupWords is the soft word budget when grouping DOCX
	// paragraphs into one unit (default 600).
	ParagraphGroupWords int
	// OCRTextThreshold is the average chars per page below which a PDF is
	// considered scanned (default 100).
	OCRTextThreshold int
}

// DefaultConfig returns the standard chunking configuration.
func DefaultConfig() Config {
	return Config{
		TargetWords:         500,
		OverlapWords:        80,
		ParagraphGroupWords: 600,
		OCRTextThreshold:    100,
	}
}

// Chunker converts a source file into provenance-annotated chunks.
type Chunker struct {
	cfg        Config
	pages      PageExtractor
	paragraphs ParagraphExtractor
	ocr        OCRRunner
	logger     *slog.Logger
}

// New creates a Chunker. Nil extractors default to the exec-backed
// implementations; a nil OCR runner disables OCR.
func New(cfg Config, pages PageExtractor, paragraphs ParagraphExtractor, ocr OCRRunner, logger *slog.Logger) *Chunker {
	if cfg.TargetWords <= 0 {
		cfg.TargetWords = 500
	}
	if cfg.OverlapWords < 0 || cfg.OverlapWords >= cfg.TargetWords {
		cfg.OverlapWords = cfg.TargetWords / 6
	}
	if cfg.ParagraphGroupWords <= 0 {
		cfg.ParagraphGroupWords = 600
	}
	if pages == nil {
		pages = &PDFToTextExtractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{cfg: cfg, pages: pages, paragraphs: paragraphs, ocr: ocr, logger: logger}
}

// Result carries the chunks of one document plus whether OCR ran.
type Result struct {
	Chunks     []docstore.Chunk
	OCRApplied bool
}

// ChunkFile dispatches on the file extension. Unsupported extensions fail;
// extraction problems on individual pages are skipped, not fatal.
func (c *Chunker) ChunkFile(ctx context.Context, caseID, path string) (Result, error) {
	fileName := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return c.chunkPDF(ctx, caseID, fileName, path)
	case ".docx":
		ex := c.paragraphs
		if ex == nil {
			ex = &DocxExtractor{}
		}
		return c.chunkFlow(ctx, caseID, fileName, path, ex)
	case ".txt":
		return c.chunkFlow(ctx, caseID, fileName, path, &TextExtractor{})
	default:
		return Result{}, cgerrors.New(cgerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported file format: %s", fileName), nil).
			WithSuggestion("supported formats are .pdf, .docx, and .txt")
	}
}

// chunkPDF extracts per page, applying OCR when the average text per page
// falls below the threshold. OCR failure degrades to the raw extraction.
func (c *Chunker) chunkPDF(ctx context.Context, caseID, fileName, path string) (Result, error) {
	pages, err := c.pages.ExtractPages(ctx, path)
	if err != nil {
		return Result{}, err
	}

	ocrApplied := false
	if c.ocr != nil && isScanned(pages, c.cfg.OCRTextThreshold) {
		ocrPath, ocrErr := c.ocr.Run(ctx, path)
		if ocrErr != nil {
			c.logger.Warn("ocr failed, continuing with raw extraction",
				"file", fileName, "error", ocrErr)
		} else {
			defer os.Remove(ocrPath)
			if ocrPages, err := c.pages.ExtractPages(ctx, ocrPath); err == nil {
				pages = ocrPages
				ocrApplied = true
			} else {
				c.logger.Warn("re-extraction after ocr failed, continuing with raw extraction",
					"file", fileName, "error", err)
			}
		}
	}

	var chunks []docstore.Chunk
	for i, pageText := range pages {
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		prov := docstore.Provenance{
			FileName:   fileName,
			Page:       i + 1,
			OCRApplied: ocrApplied,
		}
		chunks = append(chunks, c.windowUnit(caseID, pageText, prov)...)
	}
	return Result{Chunks: chunks, OCRApplied: ocrApplied}, nil
}

// chunkFlow extracts paragraphs and groups them up to the soft word budget.
// Each group's paragraph index is the first paragraph in the group.
func (c *Chunker) chunkFlow(ctx context.Context, caseID, fileName, path string, ex ParagraphExtractor) (Result, error) {
	paragraphs, err := ex.ExtractParagraphs(ctx, path)
	if err != nil {
		return Result{}, err
	}

	var chunks []docstore.Chunk
	groupStart := 1 // 1-indexed paragraph of the current group
	var group []string
	groupWords := 0

	flush := func() {
		if len(group) == 0 {
			return
		}
		prov := docstore.Provenance{
			FileName:  fileName,
			Paragraph: groupStart,
		}
		chunks = append(chunks, c.windowUnit(caseID, strings.Join(group, "\n\n"), prov)...)
		group = nil
		groupWords = 0
	}

	for i, p := range paragraphs {
		if len(group) == 0 {
			groupStart = i + 1
		}
		group = append(group, p)
		groupWords += len(strings.Fields(p))
		if groupWords >= c.cfg.ParagraphGroupWords {
			flush()
		}
	}
	flush()

	return Result{Chunks: chunks}, nil
}

// windowUnit applies the word-based sliding window to one extraction unit.
// Units shorter than the target emit a single chunk. Char offsets are
// computed over the space-joined word list and are advisory.
func (c *Chunker) windowUnit(caseID, text string, prov docstore.Provenance) []docstore.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.cfg.TargetWords - c.cfg.OverlapWords
	var chunks []docstore.Chunk
	charPos := 0

	for start := 0; start < len(words); start += step {
		end := start + c.cfg.TargetWords
		if end > len(words) {
			end = len(words)
		}
		chunkText := strings.Join(words[start:end], " ")

		p := prov
		p.CharStart = charPos
		p.CharEnd = charPos + len(chunkText)

		chunks = append(chunks, docstore.Chunk{
			ID:         newChunkID(),
			CaseID:     caseID,
			Text:       chunkText,
			Provenance: p,
		})

		if end == len(words) {
			break
		}
		// Advance by the step's share of the joined text.
		charPos += len(strings.Join(words[start:start+step], " ")) + 1
	}
	return chunks
}

// newChunkID returns a fresh short random identifier.
func newChunkID() string {
	return uuid.NewString()[:8]
}

// isScanned reports whether average extracted chars per page falls below the
// OCR threshold.
func isScanned(pages []string, threshold int) bool {
	if len(pages) == 0 {
		return false
	}
	total := 0
	for _, p := range pages {
		total += len(strings.TrimSpace(p))
	}
	return total/len(pages) < threshold
}
