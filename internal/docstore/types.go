// Package docstore persists case documents, chunk text, and provenance.
//
// Layout per case under the cases directory:
//
//	<case_id>/
//	    document_index.json     file -> chunk ids, chunk id -> provenance
//	    raw_text/<chunk_id>.txt verbatim chunk text
//	    <uploaded files>        as received, sanitized name
//
// document_index.json writes are atomic (temp file + rename) so a crashed
// ingest never leaves a torn index.
package docstore

import "time"

// Provenance points from a chunk back to a human-verifiable location in a
// source document. Exactly one of Page or Paragraph is set: Page for
// paginated sources (PDF), Paragraph for flow sources (DOCX, TXT).
type Provenance struct {
	FileName string `json:"file_name"`
	// Page is the 1-indexed page number for paginated sources.
	Page int `json:"page,omitempty"`
	// Paragraph is the 1-indexed paragraph index for flow sources.
	Paragraph int `json:"paragraph,omitempty"`
	// CharStart/CharEnd are approximate offsets within the source unit.
	// Treat them as hints for highlighting, not authoritative positions.
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
	// OCRApplied records whether the text came from an OCR pass.
	OCRApplied bool `json:"ocr_applied"`
}

// Chunk is the atomic unit of client evidence. Chunks are immutable after
// creation; deleting a source document deletes all its chunks.
type Chunk struct {
	ID     string `json:"id"`
	CaseID string `json:"case_id"`
	Text   string `json:"text"`
	Provenance
}

// DocumentEntry summarizes one ingested file in the index.
type DocumentEntry struct {
	ChunkCount int       `json:"chunk_count"`
	ChunkIDs   []string  `json:"chunk_ids"`
	OCRApplied bool      `json:"ocr_applied"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// ChunkEntry is the indexed view of a chunk: provenance plus a short preview.
// The verbatim text lives in raw_text/<id>.txt.
type ChunkEntry struct {
	Provenance
	TextPreview string `json:"text_preview"`
}

// DocumentIndex is the persisted shape of document_index.json.
type DocumentIndex struct {
	Documents map[string]DocumentEntry `json:"documents"`
	Chunks    map[string]ChunkEntry    `json:"chunks"`
}

// NewDocumentIndex returns an empty index with initialized maps.
func NewDocumentIndex() *DocumentIndex {
	return &DocumentIndex{
		Documents: make(map[string]DocumentEntry),
		Chunks:    make(map[string]ChunkEntry),
	}
}

// previewLen bounds the text preview stored in the index.
const previewLen = 200

// preview returns the first previewLen characters of text, cutting on a
// rune boundary so the index never holds invalid UTF-8.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLen {
		return text
	}
	return string(runes[:previewLen])
}
