package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casegrounds/casegrounds/internal/store"
)

func TestFuse_EmptyInputs(t *testing.T) {
	f := NewWeightedFusion(0.5, 0.5)
	assert.Empty(t, f.Fuse(nil, nil))
}

func TestFuse_NormalizesEachListIndependently(t *testing.T) {
	// Given: raw BM25 scores on a different scale than vector scores
	f := NewWeightedFusion(0.5, 0.5)
	keyword := []store.LexicalHit{
		{ChunkID: "k-top", Score: 12.0},
		{ChunkID: "k-mid", Score: 7.0},
		{ChunkID: "k-low", Score: 2.0},
	}
	vector := []store.VectorHit{
		{ChunkID: "v-top", Score: 0.95},
		{ChunkID: "v-low", Score: 0.15},
	}

	results := f.Fuse(keyword, vector)
	byID := indexByID(results)

	// Then: each list's best is 1.0 and worst is 0.0 after normalization
	assert.InDelta(t, 1.0, byID["k-top"].KeywordScore, 1e-9)
	assert.InDelta(t, 0.5, byID["k-mid"].KeywordScore, 1e-9)
	assert.InDelta(t, 0.0, byID["k-low"].KeywordScore, 1e-9)
	assert.InDelta(t, 1.0, byID["v-top"].VectorScore, 1e-9)
	assert.InDelta(t, 0.0, byID["v-low"].VectorScore, 1e-9)

	// Absent sources contribute zero
	assert.Zero(t, byID["k-top"].VectorScore)
	assert.Zero(t, byID["v-top"].KeywordScore)
	assert.InDelta(t, 0.5, byID["k-top"].Score, 1e-9)
}

func TestFuse_ChunkInBothListsWins(t *testing.T) {
	f := NewWeightedFusion(0.5, 0.5)
	keyword := []store.LexicalHit{
		{ChunkID: "both", Score: 10.0},
		{ChunkID: "kw-only", Score: 4.0},
	}
	vector := []store.VectorHit{
		{ChunkID: "both", Score: 0.9},
		{ChunkID: "vec-only", Score: 0.4},
	}

	results := f.Fuse(keyword, vector)

	require.NotEmpty(t, results)
	assert.Equal(t, "both", results[0].ChunkID)
	assert.True(t, results[0].InBothLists)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestFuse_ConstantListEdgeCases(t *testing.T) {
	f := NewWeightedFusion(0.5, 0.5)

	// All scores equal and positive: everyone normalizes to 1.0
	keyword := []store.LexicalHit{
		{ChunkID: "a", Score: 3.0},
		{ChunkID: "b", Score: 3.0},
	}
	byID := indexByID(f.Fuse(keyword, nil))
	assert.InDelta(t, 1.0, byID["a"].KeywordScore, 1e-9)
	assert.InDelta(t, 1.0, byID["b"].KeywordScore, 1e-9)

	// All scores zero: everyone normalizes to 0.0
	vector := []store.VectorHit{
		{ChunkID: "c", Score: 0.0},
		{ChunkID: "d", Score: 0.0},
	}
	byID = indexByID(f.Fuse(nil, vector))
	assert.Zero(t, byID["c"].VectorScore)
	assert.Zero(t, byID["d"].VectorScore)
}

func TestFuse_DeterministicTieBreak(t *testing.T) {
	f := NewWeightedFusion(0.5, 0.5)
	vector := []store.VectorHit{
		{ChunkID: "zzz", Score: 0.5},
		{ChunkID: "aaa", Score: 0.5},
	}

	results := f.Fuse(nil, vector)

	require.Len(t, results, 2)
	assert.Equal(t, "aaa", results[0].ChunkID)
}

func TestFuse_WeightsShiftRanking(t *testing.T) {
	// Keyword-heavy weights should rank the keyword winner first
	f := NewWeightedFusion(0.9, 0.1)
	keyword := []store.LexicalHit{
		{ChunkID: "kw-best", Score: 10.0},
		{ChunkID: "other", Score: 1.0},
	}
	vector := []store.VectorHit{
		{ChunkID: "vec-best", Score: 0.99},
		{ChunkID: "other", Score: 0.10},
	}

	results := f.Fuse(keyword, vector)

	require.NotEmpty(t, results)
	assert.Equal(t, "kw-best", results[0].ChunkID)
}

func TestTokenSetAndJaccard(t *testing.T) {
	a := tokenSet("The notice period is four weeks.")
	b := tokenSet("the Notice period IS four weeks")
	c := tokenSet("holiday pay accrues monthly")

	assert.InDelta(t, 1.0, jaccard(a, b), 1e-9)
	assert.Less(t, jaccard(a, c), 0.2)
	assert.InDelta(t, 1.0, jaccard(tokenSet(""), tokenSet("")), 1e-9)
}

func indexByID(results []*FusedResult) map[string]*FusedResult {
	m := make(map[string]*FusedResult, len(results))
	for _, r := range results {
		m[r.ChunkID] = r
	}
	return m
}
