package docstore

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
	"github.com/casegrounds/casegrounds/internal/validation"
)

const (
	indexFileName = "document_index.json"
	rawTextDir    = "raw_text"
)

// Store manages case directories under a single cases root.
// Callers serialize mutations per case; reads are safe against the atomic
// index writes.
type Store struct {
	casesDir string
	logger   *slog.Logger
}

// NewStore creates a store rooted at casesDir, creating it if needed.
func NewStore(casesDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(casesDir, 0o755); err != nil {
		return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	return &Store{casesDir: casesDir, logger: logger}, nil
}

// CasesDir returns the root directory.
func (s *Store) CasesDir() string {
	return s.casesDir
}

// CreateCase creates an empty case directory.
func (s *Store) CreateCase(caseID string) error {
	dir, err := validation.CasePath(s.casesDir, caseID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, rawTextDir), 0o755); err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	return nil
}

// CaseExists reports whether the case directory exists.
func (s *Store) CaseExists(caseID string) bool {
	dir, err := validation.CasePath(s.casesDir, caseID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// ListCases returns all case IDs in sorted order.
func (s *Store) ListCases() ([]string, error) {
	entries, err := os.ReadDir(s.casesDir)
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	var cases []string
	for _, e := range entries {
		if e.IsDir() && validation.ValidateCaseID(e.Name()) == nil {
			cases = append(cases, e.Name())
		}
	}
	sort.Strings(cases)
	return cases, nil
}

// DeleteCase removes the case directory and everything under it.
func (s *Store) DeleteCase(caseID string) error {
	dir, err := validation.CasePath(s.casesDir, caseID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return cgerrors.CaseNotFound(caseID)
	}
	if err := os.RemoveAll(dir); err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	return nil
}

// SaveSourceFile copies an uploaded document into the case directory and
// returns its resolved path.
func (s *Store) SaveSourceFile(caseID, fileName string, r io.Reader) (string, error) {
	if !s.CaseExists(caseID) {
		return "", cgerrors.CaseNotFound(caseID)
	}
	path, err := validation.DocumentPath(s.casesDir, caseID, fileName)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	return path, nil
}

// RemoveSourceFile deletes the uploaded document file. Used to clean up after
// a failed ingest.
func (s *Store) RemoveSourceFile(caseID, fileName string) error {
	path, err := validation.DocumentPath(s.casesDir, caseID, fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	return nil
}

// SourceFilePath resolves the path of an ingested document.
func (s *Store) SourceFilePath(caseID, fileName string) (string, error) {
	path, err := validation.DocumentPath(s.casesDir, caseID, fileName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", cgerrors.DocumentNotFound(caseID, fileName)
	}
	return path, nil
}

// AddDocument records chunks for an ingested file. Chunk texts are written to
// raw_text/ first; the index update is the commit point. On any failure the
// written texts are removed so the case stays at its pre-upload state.
func (s *Store) AddDocument(caseID, fileName string, chunks []Chunk, ocrApplied bool) error {
	dir, err := validation.CasePath(s.casesDir, caseID)
	if err != nil {
		return err
	}
	if !s.CaseExists(caseID) {
		return cgerrors.CaseNotFound(caseID)
	}

	rawDir := filepath.Join(dir, rawTextDir)
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}

	var written []string
	cleanup := func() {
		for _, p := range written {
			_ = os.Remove(p)
		}
	}

	chunkIDs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		p := filepath.Join(rawDir, c.ID+".txt")
		if err := os.WriteFile(p, []byte(c.Text), 0o644); err != nil {
			cleanup()
			return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
		}
		written = append(written, p)
		chunkIDs = append(chunkIDs, c.ID)
	}

	idx, err := s.LoadIndex(caseID)
	if err != nil {
		cleanup()
		return err
	}

	idx.Documents[fileName] = DocumentEntry{
		ChunkCount: len(chunks),
		ChunkIDs:   chunkIDs,
		OCRApplied: ocrApplied,
		IndexedAt:  time.Now().UTC(),
	}
	for _, c := range chunks {
		idx.Chunks[c.ID] = ChunkEntry{
			Provenance:  c.Provenance,
			TextPreview: preview(c.Text),
		}
	}

	if err := s.saveIndex(caseID, idx); err != nil {
		cleanup()
		return err
	}
	return nil
}

// DeleteDocument removes a file, its chunks, and its index entries.
// Returns the removed chunk IDs so callers can purge the vector index.
func (s *Store) DeleteDocument(caseID, fileName string) ([]string, error) {
	dir, err := validation.CasePath(s.casesDir, caseID)
	if err != nil {
		return nil, err
	}

	idx, err := s.LoadIndex(caseID)
	if err != nil {
		return nil, err
	}

	entry, ok := idx.Documents[fileName]
	if !ok {
		return nil, cgerrors.DocumentNotFound(caseID, fileName)
	}

	delete(idx.Documents, fileName)
	for _, id := range entry.ChunkIDs {
		delete(idx.Chunks, id)
	}
	if err := s.saveIndex(caseID, idx); err != nil {
		return nil, err
	}

	// Index update is the commit point; leftover files below are orphans,
	// not corruption.
	for _, id := range entry.ChunkIDs {
		_ = os.Remove(filepath.Join(dir, rawTextDir, id+".txt"))
	}
	if path, err := validation.DocumentPath(s.casesDir, caseID, fileName); err == nil {
		_ = os.Remove(path)
	}

	return entry.ChunkIDs, nil
}

// Documents returns the document entries for a case.
func (s *Store) Documents(caseID string) (map[string]DocumentEntry, error) {
	idx, err := s.LoadIndex(caseID)
	if err != nil {
		return nil, err
	}
	return idx.Documents, nil
}

// HasDocument reports whether the file is indexed in the case.
func (s *Store) HasDocument(caseID, fileName string) bool {
	idx, err := s.LoadIndex(caseID)
	if err != nil {
		return false
	}
	_, ok := idx.Documents[fileName]
	return ok
}

// ChunkText returns the verbatim text stored for a chunk. The chunk ID is
// validated like a file name: the citation validator passes IDs parsed from
// model answers, which must not escape the raw_text directory.
func (s *Store) ChunkText(caseID, chunkID string) (string, error) {
	dir, err := validation.CasePath(s.casesDir, caseID)
	if err != nil {
		return "", err
	}
	if err := validation.ValidateChunkID(chunkID); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, rawTextDir, chunkID+".txt"))
	if err != nil {
		return "", cgerrors.New(cgerrors.ErrCodeDocumentNotFound,
			fmt.Sprintf("chunk text not found: %s", chunkID), err)
	}
	return string(data), nil
}

// GetChunk returns a chunk with its verbatim text and provenance.
func (s *Store) GetChunk(caseID, chunkID string) (Chunk, error) {
	idx, err := s.LoadIndex(caseID)
	if err != nil {
		return Chunk{}, err
	}
	entry, ok := idx.Chunks[chunkID]
	if !ok {
		return Chunk{}, cgerrors.New(cgerrors.ErrCodeDocumentNotFound,
			fmt.Sprintf("unknown chunk: %s", chunkID), nil)
	}
	text, err := s.ChunkText(caseID, chunkID)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{ID: chunkID, CaseID: caseID, Text: text, Provenance: entry.Provenance}, nil
}

// Chunks returns every chunk in the case with verbatim text, ordered by
// document then position within the document.
func (s *Store) Chunks(caseID string) ([]Chunk, error) {
	idx, err := s.LoadIndex(caseID)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(idx.Documents))
	for f := range idx.Documents {
		files = append(files, f)
	}
	sort.Strings(files)

	var chunks []Chunk
	for _, f := range files {
		for _, id := range idx.Documents[f].ChunkIDs {
			c, err := s.GetChunk(caseID, id)
			if err != nil {
				s.logger.Warn("skipping chunk with missing text",
					"case_id", caseID, "chunk_id", id)
				continue
			}
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// FindChunksByLocator returns chunks from the given file, optionally filtered
// by page (0 means any page). Used by the citation validator to resolve
// file+page locators.
func (s *Store) FindChunksByLocator(caseID, fileName string, page int) ([]Chunk, error) {
	idx, err := s.LoadIndex(caseID)
	if err != nil {
		return nil, err
	}
	entry, ok := idx.Documents[fileName]
	if !ok {
		return nil, cgerrors.DocumentNotFound(caseID, fileName)
	}

	var chunks []Chunk
	for _, id := range entry.ChunkIDs {
		ce, ok := idx.Chunks[id]
		if !ok {
			continue
		}
		if page > 0 && ce.Page != page {
			continue
		}
		c, err := s.GetChunk(caseID, id)
		if err != nil {
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// LoadIndex reads document_index.json, returning an empty index when the
// file does not exist yet.
func (s *Store) LoadIndex(caseID string) (*DocumentIndex, error) {
	dir, err := validation.CasePath(s.casesDir, caseID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocumentIndex(), nil
		}
		return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}

	var idx DocumentIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, cgerrors.New(cgerrors.ErrCodeIndexCorrupt,
			fmt.Sprintf("corrupt document index for case %s", caseID), err)
	}
	if idx.Documents == nil {
		idx.Documents = make(map[string]DocumentEntry)
	}
	if idx.Chunks == nil {
		idx.Chunks = make(map[string]ChunkEntry)
	}
	return &idx, nil
}

// saveIndex writes document_index.json atomically via temp file + rename.
func (s *Store) saveIndex(caseID string, idx *DocumentIndex) error {
	dir, err := validation.CasePath(s.casesDir, caseID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}

	tmp, err := os.CreateTemp(dir, indexFileName+".tmp-*")
	if err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, indexFileName)); err != nil {
		os.Remove(tmpPath)
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	return nil
}
