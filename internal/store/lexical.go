package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/casegrounds/casegrounds/internal/docstore"
)

const (
	// legalTokenizerName names the registered word tokenizer.
	legalTokenizerName = "legal_tokenizer"

	// legalAnalyzerName names the registered analyzer (tokenize + lowercase
	// happens inside the tokenizer itself).
	legalAnalyzerName = "legal_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(legalTokenizerName,
		func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
			return &legalTokenizer{}, nil
		})
}

// ChunkSource supplies the chunks of a case for index builds.
type ChunkSource interface {
	Chunks(caseID string) ([]docstore.Chunk, error)
}

// LexicalIndex manages one in-memory BM25 index per case, built lazily from
// the document store on first search and rebuilt after Invalidate. Memory-only
// is deliberate: the document store is the source of truth and a rebuild is a
// single pass over the case's chunks.
type LexicalIndex struct {
	mu        sync.Mutex
	source    ChunkSource
	logger    *slog.Logger
	maxPerDoc int
	cases     map[string]*caseIndex
}

// caseIndex pairs a case's bleve index with the chunk-to-file mapping the
// per-document cap needs.
type caseIndex struct {
	idx   bleve.Index
	files map[string]string
}

// NewLexicalIndex creates a lexical index backed by the given chunk source.
// maxPerDoc caps how many hits a single file may contribute to one search;
// zero or negative disables the cap.
func NewLexicalIndex(source ChunkSource, maxPerDoc int, logger *slog.Logger) *LexicalIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &LexicalIndex{
		source:    source,
		logger:    logger,
		maxPerDoc: maxPerDoc,
		cases:     make(map[string]*caseIndex),
	}
}

// bleveChunk is the indexed document shape.
type bleveChunk struct {
	Content string `json:"content"`
}

// Search returns up to limit BM25 hits for the query, best first. Hits with
// zero score are dropped, and the per-document cap is applied in descending
// score order so no single file monopolizes the candidate list.
func (l *LexicalIndex) Search(ctx context.Context, caseID, query string, limit int) ([]LexicalHit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []LexicalHit{}, nil
	}

	ci, err := l.index(caseID)
	if err != nil {
		return nil, err
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	if l.maxPerDoc > 0 {
		// Overfetch so capped-out hits do not shrink the result below limit.
		req.Size = limit * l.maxPerDoc
	}

	res, err := ci.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]LexicalHit, 0, limit)
	perDoc := make(map[string]int)
	for _, hit := range res.Hits {
		if len(hits) == limit {
			break
		}
		if hit.Score <= 0 {
			continue
		}
		if l.maxPerDoc > 0 {
			file := ci.files[hit.ID]
			if perDoc[file] >= l.maxPerDoc {
				continue
			}
			perDoc[file]++
		}
		hits = append(hits, LexicalHit{ChunkID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Invalidate discards a case's in-memory index so the next search rebuilds
// it. Call after any document upload or deletion.
func (l *LexicalIndex) Invalidate(caseID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ci, ok := l.cases[caseID]; ok {
		if err := ci.idx.Close(); err != nil {
			l.logger.Warn("lexical index close failed",
				slog.String("case_id", caseID), slog.String("error", err.Error()))
		}
		delete(l.cases, caseID)
	}
}

// Close releases all in-memory indexes.
func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for caseID, ci := range l.cases {
		if err := ci.idx.Close(); err != nil {
			l.logger.Warn("lexical index close failed",
				slog.String("case_id", caseID), slog.String("error", err.Error()))
		}
		delete(l.cases, caseID)
	}
	return nil
}

// index returns the case's index, building it on first access.
func (l *LexicalIndex) index(caseID string) (*caseIndex, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ci, ok := l.cases[caseID]; ok {
		return ci, nil
	}

	chunks, err := l.source.Chunks(caseID)
	if err != nil {
		return nil, err
	}

	im, err := legalIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}

	files := make(map[string]string, len(chunks))
	batch := idx.NewBatch()
	for _, ch := range chunks {
		if err := batch.Index(ch.ID, bleveChunk{Content: ch.Text}); err != nil {
			idx.Close()
			return nil, fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
		files[ch.ID] = ch.FileName
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return nil, fmt.Errorf("build lexical index: %w", err)
	}

	l.logger.Debug("lexical index built",
		slog.String("case_id", caseID), slog.Int("chunks", len(chunks)))

	ci := &caseIndex{idx: idx, files: files}
	l.cases[caseID] = ci
	return ci, nil
}

// legalIndexMapping builds the index mapping with the word analyzer.
func legalIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(legalAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": legalTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}
	im.DefaultAnalyzer = legalAnalyzerName
	return im, nil
}

// legalTokenizer splits on non-alphanumeric runs and lowercases. Prose
// tokenization, matching how chunk text and queries are worded; no stemming
// so statutory terms like "1996" and "s.98" match literally on their
// alphanumeric parts.
type legalTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *legalTokenizer) Tokenize(input []byte) analysis.TokenStream {
	stream := make(analysis.TokenStream, 0, 64)
	pos := 1
	start := -1

	emit := func(end int) {
		if start < 0 {
			return
		}
		term := strings.ToLower(string(input[start:end]))
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Position: pos,
			Start:    start,
			End:      end,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		start = -1
	}

	for i, b := range input {
		isWord := (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
		if isWord && start < 0 {
			start = i
		} else if !isWord {
			emit(i)
		}
	}
	emit(len(input))

	return stream
}
