package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/casegrounds/casegrounds/internal/answer"
	"github.com/casegrounds/casegrounds/internal/docstore"
	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
	"github.com/casegrounds/casegrounds/internal/legal"
)

// IngestResult summarizes one ingested document.
type IngestResult struct {
	FileName   string `json:"file_name"`
	ChunkCount int    `json:"chunk_count"`
	OCRApplied bool   `json:"ocr_applied"`
}

// CreateCase creates an empty case directory.
func (p *Providers) CreateCase(caseID string) error {
	return p.Docs.CreateCase(caseID)
}

// ListCases returns all case ids.
func (p *Providers) ListCases() ([]string, error) {
	return p.Docs.ListCases()
}

// DeleteCase removes a case and every index built from it.
func (p *Providers) DeleteCase(caseID string) error {
	l := p.lock(caseID)
	l.Lock()
	defer l.Unlock()

	if err := p.Docs.DeleteCase(caseID); err != nil {
		return err
	}
	if err := p.Vectors.DropCase(caseID); err != nil {
		return err
	}
	p.Lexical.Invalidate(caseID)
	return nil
}

// IngestDocument saves, chunks, embeds, and indexes one uploaded file.
// Replacing an existing file of the same name re-indexes it; the lexical
// index rebuilds lazily from the document store on the next search.
func (p *Providers) IngestDocument(ctx context.Context, caseID, fileName string, r io.Reader) (*IngestResult, error) {
	l := p.lock(caseID)
	l.Lock()
	defer l.Unlock()

	// Replacing a document drops its old chunks from the vector index
	// first so no stale vectors survive the swap.
	if p.Docs.HasDocument(caseID, fileName) {
		old, err := p.Docs.DeleteDocument(caseID, fileName)
		if err != nil {
			return nil, err
		}
		if err := p.Vectors.Delete(caseID, old); err != nil {
			return nil, err
		}
	}

	path, err := p.Docs.SaveSourceFile(caseID, fileName, r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := p.Chunker.ChunkFile(ctx, caseID, path)
	if err != nil {
		_ = p.Docs.RemoveSourceFile(caseID, fileName)
		return nil, err
	}
	if len(res.Chunks) == 0 {
		_ = p.Docs.RemoveSourceFile(caseID, fileName)
		return nil, cgerrors.New(cgerrors.ErrCodeInvalidInput,
			"document produced no text chunks", nil).
			WithSuggestion("check that the file is not empty or image-only without OCR support")
	}

	texts := make([]string, len(res.Chunks))
	ids := make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		texts[i] = c.Text
		ids[i] = c.ID
	}
	vectors, err := p.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		_ = p.Docs.RemoveSourceFile(caseID, fileName)
		return nil, err
	}

	if err := p.Docs.AddDocument(caseID, fileName, res.Chunks, res.OCRApplied); err != nil {
		_ = p.Docs.RemoveSourceFile(caseID, fileName)
		return nil, err
	}
	if err := p.Vectors.Add(caseID, ids, vectors); err != nil {
		return nil, err
	}
	p.Lexical.Invalidate(caseID)

	p.logger.Info("document_indexed",
		slog.String("case_id", caseID),
		slog.String("file", fileName),
		slog.Int("chunks", len(res.Chunks)),
		slog.Bool("ocr", res.OCRApplied),
		slog.Duration("took", time.Since(start)))

	return &IngestResult{
		FileName:   fileName,
		ChunkCount: len(res.Chunks),
		OCRApplied: res.OCRApplied,
	}, nil
}

// DeleteDocument removes a document and its chunks from every index.
func (p *Providers) DeleteDocument(caseID, fileName string) error {
	l := p.lock(caseID)
	l.Lock()
	defer l.Unlock()

	chunkIDs, err := p.Docs.DeleteDocument(caseID, fileName)
	if err != nil {
		return err
	}
	if err := p.Vectors.Delete(caseID, chunkIDs); err != nil {
		return err
	}
	p.Lexical.Invalidate(caseID)

	p.logger.Info("document_deleted",
		slog.String("case_id", caseID),
		slog.String("file", fileName),
		slog.Int("chunks", len(chunkIDs)))
	return nil
}

// Documents lists the indexed documents of a case.
func (p *Providers) Documents(caseID string) (map[string]docstore.DocumentEntry, error) {
	return p.Docs.Documents(caseID)
}

// Ask answers a question against the case's evidence.
func (p *Providers) Ask(ctx context.Context, caseID, question string, includeLegal bool) (*answer.Response, error) {
	if !p.Docs.CaseExists(caseID) {
		return nil, cgerrors.CaseNotFound(caseID)
	}
	return p.Engine.Answer(ctx, caseID, question, includeLegal)
}

// FetchLegal snapshots one whitelisted legal page.
func (p *Providers) FetchLegal(ctx context.Context, url string, forceRefresh bool) (*legal.Snapshot, error) {
	return p.Fetcher.Fetch(ctx, url, forceRefresh)
}
