// Package answer generates grounded answers in two phases: retrieve the
// evidence (client chunks plus, for legal questions, whitelisted web
// snapshots), then generate with strict source constraints and validate
// every citation, regenerating with a stricter prompt on failure.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casegrounds/casegrounds/internal/cite"
	"github.com/casegrounds/casegrounds/internal/legal"
	"github.com/casegrounds/casegrounds/internal/llm"
	"github.com/casegrounds/casegrounds/internal/search"
	"github.com/casegrounds/casegrounds/internal/session"
)

const (
	// DefaultTopK is how many client chunks retrieval contributes.
	DefaultTopK = 8

	// DefaultMaxSnapshots caps the legal snapshots offered to the model.
	DefaultMaxSnapshots = 6

	// DefaultMaxRetries is how many regeneration attempts follow a failed
	// citation validation. Total attempts are retries + 1.
	DefaultMaxRetries = 2

	// legalSourceTextLimit truncates a snapshot's text in the prompt.
	legalSourceTextLimit = 3000

	// factPreviewLen and factsPerTurn bound what a successful turn records
	// into the session.
	factPreviewLen = 200
	factsPerTurn   = 5
)

const (
	noCitationsError  = "No citations found despite available evidence."
	validationWarning = "\n\n⚠️ Warning: Some citations could not be verified."
)

// legalIntentKeywords gate the legal source search. Matched as lowercase
// substrings of the question.
var legalIntentKeywords = []string{
	"law", "legal", "regulation", "rule", "act", "statute",
	"immigration", "visa", "tribunal", "court", "judgment",
}

// Retriever searches the case's client documents.
type Retriever interface {
	Search(ctx context.Context, caseID, query string, opts search.Options) ([]search.Result, error)
}

// LegalSearcher finds and snapshots whitelisted legal pages for a query.
type LegalSearcher interface {
	Search(ctx context.Context, query string, maxSnapshots int) []*legal.Snapshot
}

// Sessions is the slice of session state the engine touches.
// *session.Manager satisfies it.
type Sessions interface {
	ContextForPrompt(caseID string) (string, error)
	RecordTurn(caseID string, facts, legalSourceIDs []string) (*session.State, error)
}

// Config tunes the engine.
type Config struct {
	TopK         int
	MaxSnapshots int
	MaxRetries   int
	// Whitelist is rendered into the prompt so the model knows which
	// domains its legal citations may name.
	Whitelist []string
}

// Response is one answered question with its evidence and citation audit.
type Response struct {
	Answer           string           `json:"answer"`
	ClientEvidence   []search.Result  `json:"client_evidence"`
	LegalSources     []*legal.Snapshot `json:"legal_sources"`
	Citations        []cite.Citation  `json:"citations"`
	CitationsValid   bool             `json:"citations_valid"`
	ValidationErrors []string         `json:"validation_errors"`
}

// Engine runs the two-phase answer flow.
type Engine struct {
	retriever Retriever
	searcher  LegalSearcher
	chat      llm.Chat
	validator *cite.Validator
	sessions  Sessions
	cfg       Config
	logger    *slog.Logger
}

// NewEngine wires the engine. searcher may be nil when legal retrieval is
// disabled entirely.
func NewEngine(
	retriever Retriever,
	searcher LegalSearcher,
	chat llm.Chat,
	validator *cite.Validator,
	sessions Sessions,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = DefaultMaxSnapshots
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		retriever: retriever,
		searcher:  searcher,
		chat:      chat,
		validator: validator,
		sessions:  sessions,
		cfg:       cfg,
		logger:    logger,
	}
}

// Answer retrieves evidence for the question and generates a cited answer.
// When validation fails on every attempt, the answer is returned with a
// verification warning appended and CitationsValid false rather than an
// error; the session is only updated on a fully validated answer.
func (e *Engine) Answer(ctx context.Context, caseID, question string, includeLegal bool) (*Response, error) {
	// Phase A: retrieval.
	sessionContext, err := e.sessions.ContextForPrompt(caseID)
	if err != nil {
		return nil, err
	}

	evidence, err := e.retriever.Search(ctx, caseID, question, search.Options{TopK: e.cfg.TopK})
	if err != nil {
		return nil, err
	}

	var snapshots []*legal.Snapshot
	if includeLegal && e.searcher != nil && hasLegalIntent(question) {
		snapshots = e.searcher.Search(ctx, question, e.cfg.MaxSnapshots)
	}

	// Phase B: generation with the citation validation loop.
	systemPrompt := e.buildSystemPrompt(evidence, snapshots, sessionContext)
	snapshotSet := cite.NewSnapshotSet(snapshots)
	evidencePresent := len(evidence) > 0 || len(snapshots) > 0

	var (
		answerText       string
		citations        []cite.Citation
		validationErrors []string
	)

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		prompt := systemPrompt
		if attempt > 0 {
			prompt = stricterPrompt(systemPrompt, validationErrors)
		}

		answerText, err = e.chat.Complete(ctx, prompt, question)
		if err != nil {
			return nil, err
		}

		citations = cite.Parse(answerText, snapshots)

		var allValid bool
		if evidencePresent && len(citations) == 0 {
			allValid = false
			validationErrors = []string{noCitationsError}
		} else {
			results := e.validator.ValidateAll(caseID, citations, snapshotSet)
			allValid, validationErrors = cite.AllValid(results)
		}

		if allValid {
			if err := e.recordTurn(caseID, evidence, snapshots); err != nil {
				return nil, err
			}
			return &Response{
				Answer:           answerText,
				ClientEvidence:   evidence,
				LegalSources:     snapshots,
				Citations:        citations,
				CitationsValid:   true,
				ValidationErrors: []string{},
			}, nil
		}

		e.logger.Warn("citation_validation_failed",
			slog.String("case_id", caseID),
			slog.Int("attempt", attempt+1),
			slog.Int("errors", len(validationErrors)))
	}

	return &Response{
		Answer:           answerText + validationWarning,
		ClientEvidence:   evidence,
		LegalSources:     snapshots,
		Citations:        citations,
		CitationsValid:   false,
		ValidationErrors: validationErrors,
	}, nil
}

// recordTurn persists the turn's evidence into the session: short previews
// of the top client chunks and the snapshot ids consulted.
func (e *Engine) recordTurn(caseID string, evidence []search.Result, snapshots []*legal.Snapshot) error {
	top := evidence
	if len(top) > factsPerTurn {
		top = top[:factsPerTurn]
	}
	facts := make([]string, 0, len(top))
	for _, r := range top {
		text := r.Chunk.Text
		if runes := []rune(text); len(runes) > factPreviewLen {
			text = string(runes[:factPreviewLen])
		}
		facts = append(facts, text)
	}

	ids := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		ids = append(ids, s.ID)
	}

	_, err := e.sessions.RecordTurn(caseID, facts, ids)
	return err
}

// hasLegalIntent reports whether a question likely needs legal context.
func hasLegalIntent(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range legalIntentKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// buildSystemPrompt lays out the grounding rules, both citation syntaxes,
// the session context, and every source the model may cite.
func (e *Engine) buildSystemPrompt(evidence []search.Result, snapshots []*legal.Snapshot, sessionContext string) string {
	var b strings.Builder

	b.WriteString(`You are a legal assistant helping with case analysis. You MUST follow these rules:

CRITICAL RULES:
1. You may ONLY cite from the sources provided below.
2. Every factual claim MUST include a citation with a quoted excerpt.
3. If information is not in the provided sources, say "This information does not appear in the current case documents."
4. NEVER make up or hallucinate citations.
5. NEVER cite sources not listed below.

CITATION FORMAT:
For client documents:
- Use: [Source: filename.pdf, page X] "quoted text"

For legal sources:
- Use: [Source: URL] "quoted text"

`)

	if sessionContext != "" {
		fmt.Fprintf(&b, "CASE CONTEXT (from previous analysis):\n%s\n\n", sessionContext)
	}

	divider := strings.Repeat("=", 50)

	if len(evidence) > 0 {
		b.WriteString("CLIENT DOCUMENTS (you may cite from these):\n")
		b.WriteString(divider + "\n")
		for i, r := range evidence {
			location := fmt.Sprintf("Para %d", r.Chunk.Paragraph)
			if r.Chunk.Page > 0 {
				location = fmt.Sprintf("Page %d", r.Chunk.Page)
			}
			fmt.Fprintf(&b, "\n[%d] File: %s, %s\n", i+1, r.Chunk.FileName, location)
			fmt.Fprintf(&b, "Content:\n%s\n", r.Chunk.Text)
		}
		b.WriteString(divider + "\n\n")
	}

	if len(snapshots) > 0 {
		b.WriteString("LEGAL SOURCES (you may cite from these WHITELISTED domains only):\n")
		b.WriteString("Allowed domains: " + strings.Join(e.cfg.Whitelist, ", ") + "\n")
		b.WriteString(divider + "\n")
		for i, s := range snapshots {
			fmt.Fprintf(&b, "\n[L%d] URL: %s\n", i+1, s.URL)
			fmt.Fprintf(&b, "Title: %s\n", s.Title)
			text := s.Text
			if runes := []rune(text); len(runes) > legalSourceTextLimit {
				text = string(runes[:legalSourceTextLimit]) + "..."
			}
			fmt.Fprintf(&b, "Content:\n%s\n", text)
		}
		b.WriteString(divider + "\n")
	}

	return b.String()
}

// stricterPrompt prepends the previous attempt's citation errors so the
// retry knows exactly what to fix.
func stricterPrompt(original string, validationErrors []string) string {
	var b strings.Builder
	b.WriteString("IMPORTANT: Your previous response had citation errors that MUST be fixed:\n")
	for _, err := range validationErrors {
		fmt.Fprintf(&b, "- %s\n", err)
	}
	b.WriteString(`
REMINDER:
- ONLY quote text that EXACTLY appears in the sources provided
- If you cannot find a supporting quote, DO NOT cite that source
- It is better to say "insufficient information" than to cite incorrectly

`)
	b.WriteString(original)
	return b.String()
}
