package docstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func sampleChunks(caseID string) []Chunk {
	return []Chunk{
		{
			ID:     "ab12cd34",
			CaseID: caseID,
			Text:   "The client started employment on 15 March 2023.",
			Provenance: Provenance{
				FileName:  "contract.docx",
				Paragraph: 3,
				CharStart: 0,
				CharEnd:   47,
			},
		},
		{
			ID:     "ef56ab78",
			CaseID: caseID,
			Text:   "Notice period is four weeks from either party.",
			Provenance: Provenance{
				FileName:  "contract.docx",
				Paragraph: 7,
				CharStart: 47,
				CharEnd:   93,
			},
		},
	}
}

func TestStore_CreateAndListCases(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateCase("smith-v-jones"))
	require.NoError(t, s.CreateCase("acme-dispute"))

	cases, err := s.ListCases()
	require.NoError(t, err)
	assert.Equal(t, []string{"acme-dispute", "smith-v-jones"}, cases)
	assert.True(t, s.CaseExists("smith-v-jones"))
	assert.False(t, s.CaseExists("nope"))
}

func TestStore_CreateCase_RejectsTraversal(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateCase("../escape")
	require.Error(t, err)
	assert.Equal(t, cgerrors.ErrCodeInvalidPath, cgerrors.GetCode(err))
}

func TestStore_AddDocument_PersistsChunksAndIndex(t *testing.T) {
	// Given: a case
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))

	// When: adding a document's chunks
	chunks := sampleChunks("smith-v-jones")
	require.NoError(t, s.AddDocument("smith-v-jones", "contract.docx", chunks, false))

	// Then: index and raw text agree
	idx, err := s.LoadIndex("smith-v-jones")
	require.NoError(t, err)
	entry := idx.Documents["contract.docx"]
	assert.Equal(t, 2, entry.ChunkCount)
	assert.Equal(t, []string{"ab12cd34", "ef56ab78"}, entry.ChunkIDs)
	assert.False(t, entry.OCRApplied)
	assert.False(t, entry.IndexedAt.IsZero())

	text, err := s.ChunkText("smith-v-jones", "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, chunks[0].Text, text)
}

func TestStore_GetChunk_RoundTripsTextAndProvenance(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))
	chunks := sampleChunks("smith-v-jones")
	require.NoError(t, s.AddDocument("smith-v-jones", "contract.docx", chunks, false))

	got, err := s.GetChunk("smith-v-jones", "ef56ab78")
	require.NoError(t, err)
	assert.Equal(t, chunks[1].Text, got.Text)
	assert.Equal(t, "contract.docx", got.FileName)
	assert.Equal(t, 7, got.Paragraph)
}

func TestStore_DeleteDocument_RestoresPreUploadState(t *testing.T) {
	// Given: an indexed document
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))
	before, err := s.LoadIndex("smith-v-jones")
	require.NoError(t, err)
	require.NoError(t, s.AddDocument("smith-v-jones", "contract.docx", sampleChunks("smith-v-jones"), false))

	// When: deleting it
	removed, err := s.DeleteDocument("smith-v-jones", "contract.docx")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ab12cd34", "ef56ab78"}, removed)

	// Then: the index matches the pre-upload state and raw text is gone
	after, err := s.LoadIndex("smith-v-jones")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = s.ChunkText("smith-v-jones", "ab12cd34")
	assert.Error(t, err)
}

func TestStore_DeleteDocument_UnknownFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))

	_, err := s.DeleteDocument("smith-v-jones", "missing.pdf")
	require.Error(t, err)
	assert.Equal(t, cgerrors.ErrCodeDocumentNotFound, cgerrors.GetCode(err))
}

func TestStore_Chunks_OrderedByDocumentThenPosition(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))
	require.NoError(t, s.AddDocument("smith-v-jones", "contract.docx", sampleChunks("smith-v-jones"), false))
	require.NoError(t, s.AddDocument("smith-v-jones", "advice.txt", []Chunk{
		{
			ID:         "99887766",
			CaseID:     "smith-v-jones",
			Text:       "Summary of initial advice call.",
			Provenance: Provenance{FileName: "advice.txt", Paragraph: 1},
		},
	}, false))

	chunks, err := s.Chunks("smith-v-jones")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	// advice.txt sorts before contract.docx
	assert.Equal(t, "99887766", chunks[0].ID)
	assert.Equal(t, "ab12cd34", chunks[1].ID)
	assert.Equal(t, "ef56ab78", chunks[2].ID)
}

func TestStore_FindChunksByLocator_FiltersByPage(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))
	require.NoError(t, s.AddDocument("smith-v-jones", "scan.pdf", []Chunk{
		{ID: "p1chunk1", CaseID: "smith-v-jones", Text: "page one text",
			Provenance: Provenance{FileName: "scan.pdf", Page: 1, OCRApplied: true}},
		{ID: "p2chunk1", CaseID: "smith-v-jones", Text: "page two text",
			Provenance: Provenance{FileName: "scan.pdf", Page: 2, OCRApplied: true}},
	}, true))

	page2, err := s.FindChunksByLocator("smith-v-jones", "scan.pdf", 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "p2chunk1", page2[0].ID)

	all, err := s.FindChunksByLocator("smith-v-jones", "scan.pdf", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_SaveSourceFile_WritesUnderCaseDir(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))

	path, err := s.SaveSourceFile("smith-v-jones", "letter.txt", strings.NewReader("dear sir"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.CasesDir(), "smith-v-jones", "letter.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dear sir", string(data))
}

func TestChunkPreview_MultibyteSafe(t *testing.T) {
	p := preview(strings.Repeat("£", 300))
	assert.True(t, utf8.ValidString(p), "truncation must not split a rune")
	assert.Equal(t, previewLen, utf8.RuneCountInString(p))
}

func TestStore_ChunkText_RejectsTraversalID(t *testing.T) {
	// Given: a file planted outside the cases directory
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret_0.txt"),
		[]byte("holiday entitlement is two weeks per year"), 0o644))

	s, err := NewStore(filepath.Join(root, "cases"), nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateCase("case1"))

	// When: asking for a chunk ID that climbs out of raw_text
	_, err = s.ChunkText("case1", "../../../secret_0")

	// Then: the ID is rejected before any read
	require.Error(t, err)
	assert.Equal(t, cgerrors.ErrCodeInvalidPath, cgerrors.GetCode(err))
}

func TestStore_SaveIndex_LeavesNoTempFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))
	require.NoError(t, s.AddDocument("smith-v-jones", "contract.docx", sampleChunks("smith-v-jones"), false))

	entries, err := os.ReadDir(filepath.Join(s.CasesDir(), "smith-v-jones"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestStore_LoadIndex_CorruptIndexFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))
	idxPath := filepath.Join(s.CasesDir(), "smith-v-jones", "document_index.json")
	require.NoError(t, os.WriteFile(idxPath, []byte("{not json"), 0o644))

	_, err := s.LoadIndex("smith-v-jones")
	require.Error(t, err)
	assert.Equal(t, cgerrors.ErrCodeIndexCorrupt, cgerrors.GetCode(err))
}

func TestStore_DeleteCase_Cascades(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCase("smith-v-jones"))
	require.NoError(t, s.AddDocument("smith-v-jones", "contract.docx", sampleChunks("smith-v-jones"), false))

	require.NoError(t, s.DeleteCase("smith-v-jones"))
	assert.False(t, s.CaseExists("smith-v-jones"))

	err := s.DeleteCase("smith-v-jones")
	require.Error(t, err)
	assert.Equal(t, cgerrors.ErrCodeCaseNotFound, cgerrors.GetCode(err))
}
