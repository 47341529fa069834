package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casegrounds/casegrounds/internal/chunk"
	"github.com/casegrounds/casegrounds/internal/docstore"
	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
	"github.com/casegrounds/casegrounds/internal/store"
)

// hashEmbedder derives a deterministic vector from the text, no provider.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r%13) + 1
	}
	return v, nil
}

func (h hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = h.Embed(ctx, t)
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int   { return 4 }
func (hashEmbedder) ModelName() string { return "test-hash" }
func (hashEmbedder) Close() error      { return nil }

func newTestProviders(t *testing.T) *Providers {
	t.Helper()

	docs, err := docstore.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	vectors, err := store.NewVectorIndex(t.TempDir(), 4, nil)
	require.NoError(t, err)
	lexical := store.NewLexicalIndex(docs, 3, nil)
	t.Cleanup(func() { lexical.Close() })

	p := &Providers{
		Docs:      docs,
		Embedder:  hashEmbedder{},
		Vectors:   vectors,
		Lexical:   lexical,
		Chunker:   chunk.New(chunk.Config{TargetWords: 40, OverlapWords: 8}, nil, nil, nil, nil),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		caseLocks: make(map[string]*sync.Mutex),
	}
	require.NoError(t, p.CreateCase("case1"))
	return p
}

func TestIngestDocument_IndexesEverywhere(t *testing.T) {
	p := newTestProviders(t)
	body := strings.Repeat("The employee worked overtime without holiday pay. ", 30)

	res, err := p.IngestDocument(context.Background(), "case1", "notes.txt", strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", res.FileName)
	assert.Greater(t, res.ChunkCount, 1)
	assert.True(t, p.Docs.HasDocument("case1", "notes.txt"))

	n, err := p.Vectors.Count("case1")
	require.NoError(t, err)
	assert.Equal(t, res.ChunkCount, n)
}

func TestIngestDocument_ReplaceDropsOldChunks(t *testing.T) {
	p := newTestProviders(t)
	ctx := context.Background()

	first, err := p.IngestDocument(ctx, "case1", "notes.txt",
		strings.NewReader(strings.Repeat("old text about the dispute. ", 40)))
	require.NoError(t, err)

	second, err := p.IngestDocument(ctx, "case1", "notes.txt",
		strings.NewReader("short replacement note."))
	require.NoError(t, err)
	assert.Less(t, second.ChunkCount, first.ChunkCount)

	// Only the replacement's chunks remain live in the vector index
	n, err := p.Vectors.Count("case1")
	require.NoError(t, err)
	assert.Equal(t, second.ChunkCount, n)

	chunks, err := p.Docs.Chunks("case1")
	require.NoError(t, err)
	require.Len(t, chunks, second.ChunkCount)
	assert.Contains(t, chunks[0].Text, "replacement")
}

func TestIngestDocument_UnsupportedFormat(t *testing.T) {
	p := newTestProviders(t)

	_, err := p.IngestDocument(context.Background(), "case1", "notes.exe", strings.NewReader("x"))
	assert.Equal(t, cgerrors.ErrCodeUnsupportedFormat, cgerrors.GetCode(err))
	assert.False(t, p.Docs.HasDocument("case1", "notes.exe"))
}

func TestDeleteDocument_ClearsIndexes(t *testing.T) {
	p := newTestProviders(t)
	ctx := context.Background()

	_, err := p.IngestDocument(ctx, "case1", "notes.txt",
		strings.NewReader("a note about unpaid wages."))
	require.NoError(t, err)

	require.NoError(t, p.DeleteDocument("case1", "notes.txt"))

	assert.False(t, p.Docs.HasDocument("case1", "notes.txt"))
	n, err := p.Vectors.Count("case1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteCase(t *testing.T) {
	p := newTestProviders(t)

	_, err := p.IngestDocument(context.Background(), "case1", "notes.txt",
		strings.NewReader("some case material."))
	require.NoError(t, err)

	require.NoError(t, p.DeleteCase("case1"))

	cases, err := p.ListCases()
	require.NoError(t, err)
	assert.Empty(t, cases)
}
