// Package cite parses source citations out of model answers and validates
// them against the case's evidence. A citation passes only when its source
// resolves, its locator is consistent, the source is still whitelisted, and
// the quoted excerpt actually appears in the source text.
package cite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/casegrounds/casegrounds/internal/legal"
)

// SourceType distinguishes client-document citations from legal-source ones.
type SourceType string

const (
	SourceClient SourceType = "client"
	SourceLegal  SourceType = "legal"
)

// Citation is one parsed source reference from an answer.
type Citation struct {
	ID       string     `json:"id"`
	Type     SourceType `json:"source_type"`
	FileName string     `json:"file_name,omitempty"`
	Page     int        `json:"page,omitempty"` // 0 when the citation names no page
	URL      string     `json:"url,omitempty"`
	Excerpt  string     `json:"excerpt"`
}

// Citation syntaxes. Client references name a file and optional page; legal
// references carry the snapshot URL. Both accept straight and curly quotes
// around the excerpt.
var (
	clientCitationRe = regexp.MustCompile(
		`(?i)\[Source:\s*([^\],]+?)(?:,\s*page\s*(\d+))?\]\s*["“”]([^"“”]+)["“”]`)
	legalCitationRe = regexp.MustCompile(
		`\[Source:\s*(https?://[^\]]+)\]\s*["“”]([^"“”]+)["“”]`)
)

// Parse extracts citations from an answer. Legal citations only count when
// their URL matches one of the snapshots that were offered to the model;
// anything else is a fabricated source. Client matches whose source field is
// a URL are left to the legal pass.
func Parse(answer string, snapshots []*legal.Snapshot) []Citation {
	var citations []Citation

	for _, m := range clientCitationRe.FindAllStringSubmatch(answer, -1) {
		fileName := strings.TrimSpace(m[1])
		if strings.HasPrefix(strings.ToLower(fileName), "http://") ||
			strings.HasPrefix(strings.ToLower(fileName), "https://") {
			continue
		}
		page := 0
		if m[2] != "" {
			fmt.Sscanf(m[2], "%d", &page)
		}
		citations = append(citations, Citation{
			ID:       fmt.Sprintf("%s_%d", fileName, page),
			Type:     SourceClient,
			FileName: fileName,
			Page:     page,
			Excerpt:  strings.TrimSpace(m[3]),
		})
	}

	byURL := make(map[string]*legal.Snapshot, len(snapshots))
	for _, s := range snapshots {
		byURL[s.URL] = s
	}
	for _, m := range legalCitationRe.FindAllStringSubmatch(answer, -1) {
		url := strings.TrimSpace(m[1])
		snap, ok := byURL[url]
		if !ok {
			continue
		}
		citations = append(citations, Citation{
			ID:      snap.ID,
			Type:    SourceLegal,
			URL:     url,
			Excerpt: strings.TrimSpace(m[2]),
		})
	}

	return citations
}

// normalize lowercases and collapses whitespace runs to single spaces.
func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
