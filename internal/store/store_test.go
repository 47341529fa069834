package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casegrounds/casegrounds/internal/docstore"
)

func TestCaseNamespace(t *testing.T) {
	assert.Equal(t, "case_smith_v_acme", CaseNamespace("smith_v_acme"))
	assert.Equal(t, "case_smith_v_acme_2024", CaseNamespace("smith-v.acme 2024"))
	long := strings.Repeat("x", 100)
	assert.Len(t, CaseNamespace(long), 63)
	assert.True(t, strings.HasPrefix(CaseNamespace(long), "case_"))
}

func vec(dim int, fill float32, hot int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	if hot >= 0 && hot < dim {
		v[hot] = 1
	}
	return v
}

func TestVectorIndex_AddQuery(t *testing.T) {
	// Given: three orthogonal-ish vectors in one case
	vi, err := NewVectorIndex(t.TempDir(), 4, nil)
	require.NoError(t, err)

	err = vi.Add("case1",
		[]string{"chunk-a", "chunk-b", "chunk-c"},
		[][]float32{vec(4, 0, 0), vec(4, 0, 1), vec(4, 0, 2)})
	require.NoError(t, err)

	// When: querying near chunk-a
	hits, err := vi.Query("case1", []float32{0.9, 0.1, 0, 0}, 2)
	require.NoError(t, err)

	// Then: chunk-a is closest and scores decay with distance
	require.Len(t, hits, 2)
	assert.Equal(t, "chunk-a", hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.InDelta(t, 1.0/(1.0+float64(hits[0].Distance)), hits[0].Score, 1e-9)
}

func TestVectorIndex_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	vi, err := NewVectorIndex(dir, 4, nil)
	require.NoError(t, err)
	require.NoError(t, vi.Add("case1", []string{"chunk-a"}, [][]float32{vec(4, 0, 0)}))

	// A fresh instance reads the persisted graph
	vi2, err := NewVectorIndex(dir, 4, nil)
	require.NoError(t, err)
	n, err := vi2.Count("case1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := vi2.Query("case1", vec(4, 0, 0), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-a", hits[0].ChunkID)
}

func TestVectorIndex_DimensionMismatchRejected(t *testing.T) {
	vi, err := NewVectorIndex(t.TempDir(), 4, nil)
	require.NoError(t, err)

	err = vi.Add("case1", []string{"chunk-a"}, [][]float32{vec(8, 0, 0)})
	assert.ErrorContains(t, err, "dimension mismatch")

	_, err = vi.Query("case1", vec(8, 0, 0), 1)
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestVectorIndex_DeleteHidesChunks(t *testing.T) {
	vi, err := NewVectorIndex(t.TempDir(), 4, nil)
	require.NoError(t, err)
	require.NoError(t, vi.Add("case1",
		[]string{"chunk-a", "chunk-b"},
		[][]float32{vec(4, 0, 0), vec(4, 0, 1)}))

	require.NoError(t, vi.Delete("case1", []string{"chunk-a"}))

	n, err := vi.Count("case1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The deleted chunk never surfaces, even when it is the nearest node
	hits, err := vi.Query("case1", vec(4, 0, 0), 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "chunk-a", h.ChunkID)
	}
}

func TestVectorIndex_CasesAreIsolated(t *testing.T) {
	vi, err := NewVectorIndex(t.TempDir(), 4, nil)
	require.NoError(t, err)
	require.NoError(t, vi.Add("case1", []string{"chunk-a"}, [][]float32{vec(4, 0, 0)}))
	require.NoError(t, vi.Add("case2", []string{"chunk-b"}, [][]float32{vec(4, 0, 0)}))

	hits, err := vi.Query("case1", vec(4, 0, 0), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-a", hits[0].ChunkID)
}

func TestVectorIndex_DropCase(t *testing.T) {
	vi, err := NewVectorIndex(t.TempDir(), 4, nil)
	require.NoError(t, err)
	require.NoError(t, vi.Add("case1", []string{"chunk-a"}, [][]float32{vec(4, 0, 0)}))

	require.NoError(t, vi.DropCase("case1"))

	n, err := vi.Count("case1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// fakeChunks serves canned chunks and counts builds.
type fakeChunks struct {
	chunks map[string][]docstore.Chunk
	builds int
}

func (f *fakeChunks) Chunks(caseID string) ([]docstore.Chunk, error) {
	f.builds++
	return f.chunks[caseID], nil
}

func textChunk(id, text string) docstore.Chunk {
	return fileChunk(id, "contract.txt", text)
}

func fileChunk(id, fileName, text string) docstore.Chunk {
	return docstore.Chunk{ID: id, Text: text, Provenance: docstore.Provenance{FileName: fileName}}
}

func TestLexicalIndex_RanksTermMatches(t *testing.T) {
	src := &fakeChunks{chunks: map[string][]docstore.Chunk{
		"case1": {
			textChunk("chunk-a", "The employee is entitled to statutory holiday pay under the regulations."),
			textChunk("chunk-b", "The tenancy deposit must be protected within thirty days."),
			textChunk("chunk-c", "Holiday entitlement accrues from the first day of employment."),
		},
	}}
	li := NewLexicalIndex(src, 0, nil)
	defer li.Close()

	hits, err := li.Search(context.Background(), "case1", "holiday pay", 10)
	require.NoError(t, err)

	require.NotEmpty(t, hits)
	assert.Equal(t, "chunk-a", hits[0].ChunkID, "chunk matching both terms ranks first")
	for _, h := range hits {
		assert.NotEqual(t, "chunk-b", h.ChunkID, "no query term appears in the tenancy chunk")
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestLexicalIndex_EmptyQueryAndCase(t *testing.T) {
	src := &fakeChunks{chunks: map[string][]docstore.Chunk{}}
	li := NewLexicalIndex(src, 0, nil)
	defer li.Close()

	hits, err := li.Search(context.Background(), "case1", "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = li.Search(context.Background(), "case1", "holiday", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalIndex_BuildsOncePerCase(t *testing.T) {
	src := &fakeChunks{chunks: map[string][]docstore.Chunk{
		"case1": {textChunk("chunk-a", "notice period of four weeks")},
	}}
	li := NewLexicalIndex(src, 0, nil)
	defer li.Close()

	_, err := li.Search(context.Background(), "case1", "notice", 10)
	require.NoError(t, err)
	_, err = li.Search(context.Background(), "case1", "weeks", 10)
	require.NoError(t, err)

	assert.Equal(t, 1, src.builds)
}

func TestLexicalIndex_InvalidateTriggersRebuild(t *testing.T) {
	src := &fakeChunks{chunks: map[string][]docstore.Chunk{
		"case1": {textChunk("chunk-a", "original text about dismissal")},
	}}
	li := NewLexicalIndex(src, 0, nil)
	defer li.Close()

	_, err := li.Search(context.Background(), "case1", "dismissal", 10)
	require.NoError(t, err)

	// Simulate an upload then invalidate
	src.chunks["case1"] = append(src.chunks["case1"],
		textChunk("chunk-b", "redundancy consultation requirements"))
	li.Invalidate("case1")

	hits, err := li.Search(context.Background(), "case1", "redundancy", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-b", hits[0].ChunkID)
	assert.Equal(t, 2, src.builds)
}

func TestLexicalIndex_PerDocumentCap(t *testing.T) {
	// Given: one file with many matching chunks and another with one
	src := &fakeChunks{chunks: map[string][]docstore.Chunk{
		"case1": {
			fileChunk("big-a", "bundle.txt", "Holiday pay accrues during the notice period."),
			fileChunk("big-b", "bundle.txt", "Holiday pay is calculated on average weekly earnings."),
			fileChunk("big-c", "bundle.txt", "Unused holiday pay is due on termination."),
			fileChunk("mail-a", "email.txt", "The holiday pay shortfall was raised by email."),
		},
	}}
	li := NewLexicalIndex(src, 2, nil)
	defer li.Close()

	hits, err := li.Search(context.Background(), "case1", "holiday pay", 10)
	require.NoError(t, err)

	// Then: the bundle contributes at most two candidates and the email
	// still makes the list
	perDoc := map[string]int{}
	for _, h := range hits {
		switch h.ChunkID {
		case "mail-a":
			perDoc["email.txt"]++
		default:
			perDoc["bundle.txt"]++
		}
	}
	assert.LessOrEqual(t, perDoc["bundle.txt"], 2)
	assert.Equal(t, 1, perDoc["email.txt"])
}

func TestLegalTokenizer(t *testing.T) {
	tok := &legalTokenizer{}
	stream := tok.Tokenize([]byte("Employment Rights Act 1996, s.98(4)"))

	terms := make([]string, len(stream))
	for i, tk := range stream {
		terms[i] = string(tk.Term)
	}
	assert.Equal(t, []string{"employment", "rights", "act", "1996", "s", "98", "4"}, terms)

	// Offsets point back into the input
	assert.Equal(t, 0, stream[0].Start)
	assert.Equal(t, len("Employment"), stream[0].End)
}
