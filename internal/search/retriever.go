package search

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/casegrounds/casegrounds/internal/docstore"
	"github.com/casegrounds/casegrounds/internal/embed"
	"github.com/casegrounds/casegrounds/internal/store"
)

// Mode selects which retrievers participate in a search.
type Mode string

const (
	ModeHybrid  Mode = "hybrid"
	ModeKeyword Mode = "keyword"
	ModeVector  Mode = "vector"
)

// overfetchFactor is how many candidates each retriever contributes per
// requested result, leaving headroom for the per-document cap and dedupe.
const overfetchFactor = 3

// Config tunes ranking behavior.
type Config struct {
	TopK            int     // default result count
	MaxChunksPerDoc int     // per-document cap in the final ranking
	DedupeThreshold float64 // Jaccard similarity above which a chunk is a duplicate
	KeywordWeight   float64
	VectorWeight    float64
}

// DefaultConfig returns the standard ranking parameters.
func DefaultConfig() Config {
	return Config{
		TopK:            10,
		MaxChunksPerDoc: 3,
		DedupeThreshold: 0.9,
		KeywordWeight:   DefaultKeywordWeight,
		VectorWeight:    DefaultVectorWeight,
	}
}

// Result is a ranked chunk with its provenance resolved.
type Result struct {
	Chunk        docstore.Chunk
	Score        float64
	KeywordScore float64
	VectorScore  float64
	InBothLists  bool
}

// Options adjusts a single search call.
type Options struct {
	TopK int  // 0 means the configured default
	Mode Mode // empty means hybrid
}

// Retriever runs hybrid retrieval scoped to one case.
type Retriever struct {
	embedder embed.Embedder
	vectors  *store.VectorIndex
	lexical  *store.LexicalIndex
	docs     *docstore.Store
	fusion   *WeightedFusion
	cfg      Config
	logger   *slog.Logger
}

// NewRetriever wires the retriever over its indexes.
func NewRetriever(
	embedder embed.Embedder,
	vectors *store.VectorIndex,
	lexical *store.LexicalIndex,
	docs *docstore.Store,
	cfg Config,
	logger *slog.Logger,
) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.MaxChunksPerDoc <= 0 {
		cfg.MaxChunksPerDoc = DefaultConfig().MaxChunksPerDoc
	}
	if cfg.DedupeThreshold <= 0 || cfg.DedupeThreshold > 1 {
		cfg.DedupeThreshold = DefaultConfig().DedupeThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
		docs:     docs,
		fusion:   NewWeightedFusion(cfg.KeywordWeight, cfg.VectorWeight),
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs retrieval for a query within a case. The keyword and vector
// branches run concurrently; their candidates are fused, capped per document,
// deduplicated, and truncated to the requested size.
func (r *Retriever) Search(ctx context.Context, caseID, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	fetch := topK * overfetchFactor

	var (
		keywordHits []store.LexicalHit
		vectorHits  []store.VectorHit
	)

	g, gctx := errgroup.WithContext(ctx)
	if mode == ModeHybrid || mode == ModeKeyword {
		g.Go(func() error {
			hits, err := r.lexical.Search(gctx, caseID, query, fetch)
			if err != nil {
				return err
			}
			keywordHits = hits
			return nil
		})
	}
	if mode == ModeHybrid || mode == ModeVector {
		g.Go(func() error {
			qvec, err := r.embedder.Embed(gctx, query)
			if err != nil {
				return err
			}
			hits, err := r.vectors.Query(caseID, qvec, fetch)
			if err != nil {
				return err
			}
			vectorHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := r.fusion.Fuse(keywordHits, vectorHits)
	results := r.finalize(caseID, fused, topK)

	r.logger.Debug("search completed",
		slog.String("case_id", caseID),
		slog.String("mode", string(mode)),
		slog.Int("keyword_hits", len(keywordHits)),
		slog.Int("vector_hits", len(vectorHits)),
		slog.Int("results", len(results)))

	return results, nil
}

// finalize resolves provenance and applies the per-document cap over the
// fused ranking, then duplicate removal over the capped list, then
// truncation. The passes run in that order: a chunk that wins a cap slot
// holds it even if the dedupe pass later removes it.
func (r *Retriever) finalize(caseID string, fused []*FusedResult, topK int) []Result {
	capped := make([]Result, 0, len(fused))
	perDoc := make(map[string]int)
	for _, f := range fused {
		chunk, err := r.docs.GetChunk(caseID, f.ChunkID)
		if err != nil {
			// Indexed chunk no longer in the document store; skip it.
			r.logger.Warn("stale chunk in index",
				slog.String("case_id", caseID), slog.String("chunk_id", f.ChunkID))
			continue
		}
		if perDoc[chunk.FileName] >= r.cfg.MaxChunksPerDoc {
			continue
		}
		perDoc[chunk.FileName]++
		capped = append(capped, Result{
			Chunk:        chunk,
			Score:        f.Score,
			KeywordScore: f.KeywordScore,
			VectorScore:  f.VectorScore,
			InBothLists:  f.InBothLists,
		})
	}

	results := make([]Result, 0, topK)
	keptTokens := make([]map[string]struct{}, 0, topK)
	for _, res := range capped {
		if len(results) == topK {
			break
		}
		tokens := tokenSet(res.Chunk.Text)
		if isDuplicate(tokens, keptTokens, r.cfg.DedupeThreshold) {
			continue
		}
		keptTokens = append(keptTokens, tokens)
		results = append(results, res)
	}

	return results
}

// isDuplicate reports whether tokens overlap an already-kept chunk beyond
// the threshold.
func isDuplicate(tokens map[string]struct{}, kept []map[string]struct{}, threshold float64) bool {
	for _, k := range kept {
		if jaccard(tokens, k) >= threshold {
			return true
		}
	}
	return false
}

// tokenSet builds the lowercase word set of a text.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			set[word.String()] = struct{}{}
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return set
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets count as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
