// Package session persists per-case conversational state: the facts
// retrieved in past turns, legal sources consulted, and a rolling case
// summary. State lives in session.json inside the case directory and does
// not depend on chat history.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
	"github.com/casegrounds/casegrounds/internal/validation"
)

const (
	sessionFileName = "session.json"

	// maxRetainedFacts bounds the fact history kept across turns.
	maxRetainedFacts = 20

	// recentFactsInPrompt is how many trailing facts ContextForPrompt shows.
	recentFactsInPrompt = 5

	// factPreviewLen truncates long facts in the rendered context.
	factPreviewLen = 200
)

// RollingSummary is the durable case summary, updated as the conversation
// surfaces background, chronology, and issues.
type RollingSummary struct {
	Version          int       `json:"version"`
	ClientBackground string    `json:"client_background"`
	KeyChronology    []string  `json:"key_chronology"`
	LegalIssues      []string  `json:"legal_issues_identified"`
	SourceReferences []string  `json:"source_references"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// State is the persisted session for one case.
type State struct {
	CaseID           string         `json:"case_id"`
	RetrievedFacts   []string       `json:"retrieved_facts"`
	LegalSourcesUsed []string       `json:"legal_sources_used"`
	Summary          RollingSummary `json:"rolling_summary"`
	TurnCount        int            `json:"turn_count"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Manager loads and saves session state under the cases directory.
type Manager struct {
	casesDir string
	logger   *slog.Logger
}

// NewManager creates a session manager rooted at casesDir.
func NewManager(casesDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{casesDir: casesDir, logger: logger}
}

// Load returns the case's session, or a fresh one when none exists. A
// corrupt session file is logged and replaced rather than failing the turn.
func (m *Manager) Load(caseID string) (*State, error) {
	path, err := m.sessionPath(caseID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newState(caseID), nil
	}
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		m.logger.Warn("corrupt session file, starting fresh",
			slog.String("case_id", caseID), slog.String("error", err.Error()))
		return newState(caseID), nil
	}
	return &state, nil
}

// Save persists the session atomically.
func (m *Manager) Save(state *State) error {
	path, err := m.sessionPath(state.CaseID)
	if err != nil {
		return err
	}
	state.UpdatedAt = time.Now().UTC()
	return writeJSONAtomic(path, state)
}

// RecordTurn appends a completed turn: new facts (history capped at 20) and
// legal source ids (kept unique, insertion ordered). Callers only record
// turns whose citations validated.
func (m *Manager) RecordTurn(caseID string, facts, legalSourceIDs []string) (*State, error) {
	state, err := m.Load(caseID)
	if err != nil {
		return nil, err
	}

	state.RetrievedFacts = append(state.RetrievedFacts, facts...)
	if n := len(state.RetrievedFacts); n > maxRetainedFacts {
		state.RetrievedFacts = state.RetrievedFacts[n-maxRetainedFacts:]
	}

	seen := make(map[string]bool, len(state.LegalSourcesUsed))
	for _, id := range state.LegalSourcesUsed {
		seen[id] = true
	}
	for _, id := range legalSourceIDs {
		if !seen[id] {
			state.LegalSourcesUsed = append(state.LegalSourcesUsed, id)
			seen[id] = true
		}
	}

	state.TurnCount++
	if err := m.Save(state); err != nil {
		return nil, err
	}
	return state, nil
}

// UpdateSummary merges non-empty fields into the rolling summary. The
// background replaces; chronology, issues, and references append uniquely.
func (m *Manager) UpdateSummary(caseID, background, chronologyItem, legalIssue, sourceRef string) (*State, error) {
	state, err := m.Load(caseID)
	if err != nil {
		return nil, err
	}

	s := &state.Summary
	if background != "" {
		s.ClientBackground = background
	}
	s.KeyChronology = appendUnique(s.KeyChronology, chronologyItem)
	s.LegalIssues = appendUnique(s.LegalIssues, legalIssue)
	s.SourceReferences = appendUnique(s.SourceReferences, sourceRef)
	s.Version++
	s.UpdatedAt = time.Now().UTC()

	if err := m.Save(state); err != nil {
		return nil, err
	}
	return state, nil
}

// ContextForPrompt renders the session as prompt context: background,
// chronology, identified issues, and the last few retrieved facts. Empty
// sessions render as the empty string.
func (m *Manager) ContextForPrompt(caseID string) (string, error) {
	state, err := m.Load(caseID)
	if err != nil {
		return "", err
	}

	var parts []string
	if state.Summary.ClientBackground != "" {
		parts = append(parts, "Client Background:\n"+state.Summary.ClientBackground)
	}
	if len(state.Summary.KeyChronology) > 0 {
		parts = append(parts, "Key Chronology:\n"+bulleted(state.Summary.KeyChronology))
	}
	if len(state.Summary.LegalIssues) > 0 {
		parts = append(parts, "Legal Issues Identified:\n"+bulleted(state.Summary.LegalIssues))
	}
	if len(state.RetrievedFacts) > 0 {
		recent := state.RetrievedFacts
		if len(recent) > recentFactsInPrompt {
			recent = recent[len(recent)-recentFactsInPrompt:]
		}
		trimmed := make([]string, len(recent))
		for i, fact := range recent {
			if runes := []rune(fact); len(runes) > factPreviewLen {
				fact = string(runes[:factPreviewLen]) + "..."
			}
			trimmed[i] = fact
		}
		parts = append(parts, "Recent Retrieved Facts:\n"+bulleted(trimmed))
	}

	return strings.Join(parts, "\n\n"), nil
}

// Reset discards the case's session state. The next Load starts fresh.
func (m *Manager) Reset(caseID string) error {
	path, err := m.sessionPath(caseID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	return nil
}

func (m *Manager) sessionPath(caseID string) (string, error) {
	dir, err := validation.CasePath(m.casesDir, caseID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err != nil {
		return "", cgerrors.CaseNotFound(caseID)
	}
	return filepath.Join(dir, sessionFileName), nil
}

func newState(caseID string) *State {
	now := time.Now().UTC()
	return &State{
		CaseID:    caseID,
		Summary:   RollingSummary{Version: 1, UpdatedAt: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func appendUnique(list []string, item string) []string {
	if item == "" {
		return list
	}
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func bulleted(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s", item)
	}
	return b.String()
}

// writeJSONAtomic marshals v and writes it via temp + rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	return nil
}
