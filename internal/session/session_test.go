package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "case1"), 0o755))
	return NewManager(dir, nil)
}

func TestLoad_FreshSession(t *testing.T) {
	m := newManager(t)

	state, err := m.Load("case1")
	require.NoError(t, err)

	assert.Equal(t, "case1", state.CaseID)
	assert.Zero(t, state.TurnCount)
	assert.Empty(t, state.RetrievedFacts)
	assert.Equal(t, 1, state.Summary.Version)
}

func TestLoad_UnknownCase(t *testing.T) {
	m := newManager(t)
	_, err := m.Load("no-such-case")
	assert.Equal(t, cgerrors.ErrCodeCaseNotFound, cgerrors.GetCode(err))
}

func TestLoad_CorruptFileStartsFresh(t *testing.T) {
	m := newManager(t)
	path := filepath.Join(m.casesDir, "case1", sessionFileName)
	require.NoError(t, os.WriteFile(path, []byte("{torn"), 0o644))

	state, err := m.Load("case1")
	require.NoError(t, err)
	assert.Zero(t, state.TurnCount)
}

func TestRecordTurn_CapsFactsAndDedupesSources(t *testing.T) {
	m := newManager(t)

	// Given: 18 facts already recorded
	var first []string
	for i := 0; i < 18; i++ {
		first = append(first, fmt.Sprintf("fact %d", i))
	}
	_, err := m.RecordTurn("case1", first, []string{"src-a"})
	require.NoError(t, err)

	// When: recording 5 more facts and a repeated source
	state, err := m.RecordTurn("case1",
		[]string{"fact 18", "fact 19", "fact 20", "fact 21", "fact 22"},
		[]string{"src-a", "src-b"})
	require.NoError(t, err)

	// Then: only the last 20 facts survive and sources stay unique
	assert.Len(t, state.RetrievedFacts, 20)
	assert.Equal(t, "fact 3", state.RetrievedFacts[0])
	assert.Equal(t, "fact 22", state.RetrievedFacts[19])
	assert.Equal(t, []string{"src-a", "src-b"}, state.LegalSourcesUsed)
	assert.Equal(t, 2, state.TurnCount)

	// And: the state survives a reload
	reloaded, err := m.Load("case1")
	require.NoError(t, err)
	assert.Equal(t, state.RetrievedFacts, reloaded.RetrievedFacts)
}

func TestUpdateSummary(t *testing.T) {
	m := newManager(t)

	_, err := m.UpdateSummary("case1", "Employed since March 2023.", "2024-01-10: dismissed", "unfair dismissal", "contract.pdf p3")
	require.NoError(t, err)

	// Duplicate chronology items are not re-added; background replaces
	state, err := m.UpdateSummary("case1", "Employed since March 2023, dismissed January 2024.", "2024-01-10: dismissed", "", "")
	require.NoError(t, err)

	assert.Equal(t, "Employed since March 2023, dismissed January 2024.", state.Summary.ClientBackground)
	assert.Len(t, state.Summary.KeyChronology, 1)
	assert.Equal(t, []string{"unfair dismissal"}, state.Summary.LegalIssues)
	assert.Equal(t, 3, state.Summary.Version)
}

func TestContextForPrompt(t *testing.T) {
	m := newManager(t)

	// Empty session renders empty
	ctx, err := m.ContextForPrompt("case1")
	require.NoError(t, err)
	assert.Empty(t, ctx)

	_, err = m.UpdateSummary("case1", "Background text.", "2024-01-10: dismissed", "unfair dismissal", "")
	require.NoError(t, err)

	var facts []string
	for i := 0; i < 8; i++ {
		facts = append(facts, fmt.Sprintf("retrieved fact %d", i))
	}
	facts = append(facts, strings.Repeat("long ", 60))
	_, err = m.RecordTurn("case1", facts, nil)
	require.NoError(t, err)

	ctx, err = m.ContextForPrompt("case1")
	require.NoError(t, err)

	assert.Contains(t, ctx, "Client Background:\nBackground text.")
	assert.Contains(t, ctx, "Key Chronology:\n- 2024-01-10: dismissed")
	assert.Contains(t, ctx, "Legal Issues Identified:\n- unfair dismissal")
	// Only the trailing facts appear, long ones truncated
	assert.NotContains(t, ctx, "retrieved fact 0")
	assert.Contains(t, ctx, "retrieved fact 7")
	assert.Contains(t, ctx, "...")
}

func TestContextForPrompt_MultibyteFactTruncation(t *testing.T) {
	m := newManager(t)

	_, err := m.RecordTurn("case1", []string{strings.Repeat("£", 250)}, nil)
	require.NoError(t, err)

	ctx, err := m.ContextForPrompt("case1")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(ctx), "truncation must not split a rune")
	assert.Contains(t, ctx, strings.Repeat("£", 200)+"...")
}

func TestThreads_LifecycleAndTurnCap(t *testing.T) {
	m := newManager(t)

	thread, err := m.CreateThread("case1", "")
	require.NoError(t, err)
	assert.Equal(t, defaultThreadTitle, thread.Title)

	// First turn names the thread from the question's keywords
	updated, err := m.AppendTurn("case1", thread.ID,
		"What is the notice period for my dismissal?", "answer 0")
	require.NoError(t, err)
	assert.Equal(t, "notice period my dismissal", updated.Title)

	for i := 1; i < 14; i++ {
		_, err = m.AppendTurn("case1", thread.ID, fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
	}

	threads, err := m.Threads("case1")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Len(t, threads[0].Turns, maxTurnsPerThread)
	assert.Equal(t, "answer 13", threads[0].Turns[maxTurnsPerThread-1].Answer)

	require.NoError(t, m.DeleteThread("case1", thread.ID))
	threads, err = m.Threads("case1")
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestAppendTurn_UnknownThread(t *testing.T) {
	m := newManager(t)
	_, err := m.AppendTurn("case1", "missing-id", "q", "a")
	assert.Equal(t, cgerrors.ErrCodeInvalidInput, cgerrors.GetCode(err))
}
