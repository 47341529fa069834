package legal

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// excerptLen bounds the preview shown in fetch responses and prompts that
// only need a taste of the page.
const excerptLen = 500

// Snapshot is a durable capture of one whitelisted page. Text is the
// canonical extraction that citation excerpts are checked against.
type Snapshot struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`

	// Text is loaded from source.txt, not stored in meta.json.
	Text string `json:"-"`
}

// Excerpt returns the first 500 characters of the text, with a trailing
// ellipsis when truncated. Characters, not bytes: extracted pages carry
// multibyte punctuation and the cut must not split a rune.
func (s *Snapshot) Excerpt() string {
	runes := []rune(s.Text)
	if len(runes) <= excerptLen {
		return s.Text
	}
	return string(runes[:excerptLen]) + "..."
}

// SnapshotID derives the content-addressed id for a URL: the first 16 hex
// characters of its SHA-256. The same URL always maps to the same snapshot
// directory.
func SnapshotID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

// contentHash fingerprints the extracted text for change detection across
// force refreshes.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
