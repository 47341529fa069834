package cite

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/casegrounds/casegrounds/internal/docstore"
	"github.com/casegrounds/casegrounds/internal/legal"
	"github.com/casegrounds/casegrounds/internal/validation"
)

// fuzzyThreshold is the positional match rate a window must reach.
const fuzzyThreshold = 0.8

// SnapshotLookup resolves a snapshot id to its snapshot. The answer engine
// backs this with the snapshots it actually offered to the model.
type SnapshotLookup interface {
	Snapshot(id string) (*legal.Snapshot, bool)
}

// ClientSource resolves client citations against the case's documents.
// *docstore.Store satisfies it.
type ClientSource interface {
	ChunkText(caseID, chunkID string) (string, error)
	FindChunksByLocator(caseID, fileName string, page int) ([]docstore.Chunk, error)
}

// Result is one citation's validation outcome.
type Result struct {
	Citation Citation
	OK       bool
	Reason   string
}

// Validator runs the four checks over parsed citations.
type Validator struct {
	docs      ClientSource
	whitelist legal.Whitelist
}

// NewValidator creates a validator. The whitelist is re-checked here even
// though the fetcher enforced it at snapshot time: a snapshot fetched under
// an older whitelist must not validate after the domain is removed.
func NewValidator(docs ClientSource, whitelist legal.Whitelist) *Validator {
	return &Validator{docs: docs, whitelist: whitelist}
}

// Validate checks a single citation.
func (v *Validator) Validate(caseID string, c Citation, snapshots SnapshotLookup) (bool, string) {
	switch c.Type {
	case SourceLegal:
		return v.validateLegal(c, snapshots)
	case SourceClient:
		return v.validateClient(caseID, c)
	default:
		return false, fmt.Sprintf("unknown source type: %s", c.Type)
	}
}

// ValidateAll checks every citation and returns per-citation results.
func (v *Validator) ValidateAll(caseID string, citations []Citation, snapshots SnapshotLookup) []Result {
	results := make([]Result, len(citations))
	for i, c := range citations {
		ok, reason := v.Validate(caseID, c, snapshots)
		results[i] = Result{Citation: c, OK: ok, Reason: reason}
	}
	return results
}

// AllValid aggregates results into a pass/fail plus human-readable errors.
// Each error leads with the most identifying field: URL for legal sources,
// file name for client documents.
func AllValid(results []Result) (bool, []string) {
	var errs []string
	for _, r := range results {
		if r.OK {
			continue
		}
		label := r.Citation.FileName
		if r.Citation.Type == SourceLegal {
			label = r.Citation.URL
		}
		errs = append(errs, fmt.Sprintf("%s: %s", label, r.Reason))
	}
	return len(errs) == 0, errs
}

func (v *Validator) validateLegal(c Citation, snapshots SnapshotLookup) (bool, string) {
	// Check 1: the snapshot must exist.
	snap, ok := snapshots.Snapshot(c.ID)
	if !ok {
		return false, fmt.Sprintf("unknown citation id: %s", c.ID)
	}

	// Check 2: a cited URL must be the snapshot's URL.
	if c.URL != "" && c.URL != snap.URL {
		return false, fmt.Sprintf("URL mismatch: cited %q but snapshot has %q", c.URL, snap.URL)
	}

	// Check 3: the snapshot's domain must still be whitelisted.
	u, err := url.Parse(snap.URL)
	if err != nil || !v.whitelist.Allows(u.Hostname()) {
		return false, fmt.Sprintf("domain not whitelisted: %s", snap.Domain)
	}

	// Check 4: the excerpt must appear in the snapshot text.
	return v.checkExcerpt(c.Excerpt, snap.Text, "source text")
}

func (v *Validator) validateClient(caseID string, c Citation) (bool, string) {
	if c.FileName == "" {
		return false, "client citation has no file name"
	}
	// The file name comes out of the model's answer, so it gets the same
	// path rules as an uploaded document before anything touches disk.
	if err := validation.ValidateFileName(c.FileName); err != nil {
		return false, fmt.Sprintf("invalid file name: %s", c.FileName)
	}

	// Check 1: resolve by chunk id first, then by (file, page).
	text, err := v.docs.ChunkText(caseID, c.ID)
	if err != nil {
		chunks, ferr := v.docs.FindChunksByLocator(caseID, c.FileName, c.Page)
		if ferr != nil || len(chunks) == 0 {
			return false, fmt.Sprintf("source document not found: %s", c.FileName)
		}
		// Check 2: the resolved chunks carry the cited file name.
		var parts []string
		for _, ch := range chunks {
			if ch.FileName != c.FileName {
				return false, fmt.Sprintf("file mismatch: cited %q, resolved %q", c.FileName, ch.FileName)
			}
			parts = append(parts, ch.Text)
		}
		text = strings.Join(parts, " ")
	}

	// Check 4: the excerpt must appear in the document text.
	return v.checkExcerpt(c.Excerpt, text, c.FileName)
}

// checkExcerpt runs the containment check: normalized substring first, then
// a sliding-window positional match for excerpts of at least three words.
func (v *Validator) checkExcerpt(excerpt, source, where string) (bool, string) {
	if strings.TrimSpace(excerpt) == "" {
		return false, "citation has no excerpt"
	}
	if strings.Contains(normalize(source), normalize(excerpt)) {
		return true, "valid"
	}
	if fuzzyMatch(excerpt, source) {
		return true, "valid"
	}
	return false, fmt.Sprintf("excerpt not found in %s", where)
}

// fuzzyMatch slides a window of the excerpt's length over the source words
// and passes when any window matches at least 80% of positions. Excerpts
// under three words never match fuzzily.
func fuzzyMatch(excerpt, source string) bool {
	excerptWords := strings.Fields(normalize(excerpt))
	sourceWords := strings.Fields(normalize(source))

	if len(excerptWords) < 3 {
		return false
	}

	window := len(excerptWords)
	for i := 0; i+window <= len(sourceWords); i++ {
		matches := 0
		for j, w := range excerptWords {
			if sourceWords[i+j] == w {
				matches++
			}
		}
		if float64(matches)/float64(window) >= fuzzyThreshold {
			return true
		}
	}
	return false
}

// SnapshotSet is a map-backed SnapshotLookup for a handed-out snapshot set.
type SnapshotSet map[string]*legal.Snapshot

// NewSnapshotSet indexes snapshots by id.
func NewSnapshotSet(snapshots []*legal.Snapshot) SnapshotSet {
	set := make(SnapshotSet, len(snapshots))
	for _, s := range snapshots {
		set[s.ID] = s
	}
	return set
}

// Snapshot implements SnapshotLookup.
func (s SnapshotSet) Snapshot(id string) (*legal.Snapshot, bool) {
	snap, ok := s[id]
	return snap, ok
}
