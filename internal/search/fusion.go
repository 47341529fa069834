// Package search provides hybrid retrieval over a case's chunks, combining
// BM25 keyword hits and vector similarity through weighted min-max fusion.
package search

import (
	"sort"

	"github.com/casegrounds/casegrounds/internal/store"
)

// Default fusion weights. Equal weighting keeps exact statutory phrases and
// paraphrased questions on the same footing.
const (
	DefaultKeywordWeight = 0.5
	DefaultVectorWeight  = 0.5
)

// FusedResult is a single chunk after fusion, before provenance resolution.
type FusedResult struct {
	ChunkID      string
	Score        float64 // weighted combination of the normalized scores
	KeywordScore float64 // min-max normalized BM25 score, 0 if absent
	VectorScore  float64 // min-max normalized similarity, 0 if absent
	InBothLists  bool
}

// WeightedFusion combines keyword and vector result lists. Each list's raw
// scores are min-max normalized to [0,1] independently, then combined as
// keyword*kw + vector*vw. Rank-based fusion (RRF) deliberately not used:
// the normalized scores preserve how much better the top hit is, which
// matters when one retriever has no real signal for a query.
type WeightedFusion struct {
	KeywordWeight float64
	VectorWeight  float64
}

// NewWeightedFusion creates a fusion with the given weights; non-positive
// pairs fall back to the defaults.
func NewWeightedFusion(keywordWeight, vectorWeight float64) *WeightedFusion {
	if keywordWeight <= 0 && vectorWeight <= 0 {
		keywordWeight = DefaultKeywordWeight
		vectorWeight = DefaultVectorWeight
	}
	return &WeightedFusion{KeywordWeight: keywordWeight, VectorWeight: vectorWeight}
}

// Fuse merges the two lists into a single ranking.
//
// Sort order: Score desc, then InBothLists, then KeywordScore desc, then
// ChunkID asc for determinism.
func (f *WeightedFusion) Fuse(keyword []store.LexicalHit, vector []store.VectorHit) []*FusedResult {
	if len(keyword) == 0 && len(vector) == 0 {
		return []*FusedResult{}
	}

	kwNorm := normalizeLexical(keyword)
	vecNorm := normalizeVector(vector)

	merged := make(map[string]*FusedResult, len(kwNorm)+len(vecNorm))
	for id, s := range kwNorm {
		merged[id] = &FusedResult{ChunkID: id, KeywordScore: s}
	}
	for id, s := range vecNorm {
		r, ok := merged[id]
		if !ok {
			r = &FusedResult{ChunkID: id}
			merged[id] = r
		} else {
			r.InBothLists = true
		}
		r.VectorScore = s
	}

	results := make([]*FusedResult, 0, len(merged))
	for _, r := range merged {
		r.Score = f.KeywordWeight*r.KeywordScore + f.VectorWeight*r.VectorScore
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.InBothLists != b.InBothLists {
			return a.InBothLists
		}
		if a.KeywordScore != b.KeywordScore {
			return a.KeywordScore > b.KeywordScore
		}
		return a.ChunkID < b.ChunkID
	})

	return results
}

// normalizeLexical min-max scales BM25 scores into [0,1].
// A constant list maps to 1.0 when the scores are positive, 0.0 otherwise.
func normalizeLexical(hits []store.LexicalHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	for _, h := range hits {
		out[h.ChunkID] = scale(h.Score, lo, hi)
	}
	return out
}

// normalizeVector min-max scales similarity scores into [0,1].
func normalizeVector(hits []store.VectorHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	for _, h := range hits {
		out[h.ChunkID] = scale(h.Score, lo, hi)
	}
	return out
}

func scale(score, lo, hi float64) float64 {
	if hi == lo {
		if hi > 0 {
			return 1.0
		}
		return 0.0
	}
	return (score - lo) / (hi - lo)
}
