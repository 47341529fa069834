package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
	"github.com/casegrounds/casegrounds/internal/validation"
)

const (
	threadsFileName = "threads.json"

	// maxTurnsPerThread caps retained turns; older turns roll off.
	maxTurnsPerThread = 10

	// titleKeywords is how many keywords a generated title uses.
	titleKeywords = 6

	defaultThreadTitle = "New thread"
)

// titleStopWords are dropped when deriving a thread title from a question.
var titleStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "with": true,
	"you": true, "your": true, "i": true, "we": true, "they": true, "he": true,
	"she": true, "them": true, "their": true, "this": true, "those": true,
	"these": true, "what": true, "which": true, "when": true, "where": true,
	"why": true, "how": true, "can": true, "could": true, "should": true,
	"would": true, "will": true, "do": true, "does": true, "did": true,
	"not": true, "no": true, "yes": true,
}

var titleWordRe = regexp.MustCompile(`[A-Za-z0-9']+`)

// Turn is one question/answer exchange in a thread.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is a named conversation within a case.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Threads returns all threads for a case, oldest first. A missing or
// corrupt threads file yields an empty list.
func (m *Manager) Threads(caseID string) ([]Thread, error) {
	path, err := m.threadsPath(caseID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []Thread{}, nil
	}
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}

	var threads []Thread
	if err := json.Unmarshal(data, &threads); err != nil {
		m.logger.Warn("corrupt threads file, starting fresh",
			slog.String("case_id", caseID), slog.String("error", err.Error()))
		return []Thread{}, nil
	}
	return threads, nil
}

// CreateThread starts a new thread. An empty title defaults until the first
// question names it.
func (m *Manager) CreateThread(caseID, title string) (*Thread, error) {
	threads, err := m.Threads(caseID)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = defaultThreadTitle
	}
	now := time.Now().UTC()
	thread := Thread{
		ID:        uuid.NewString(),
		Title:     title,
		Turns:     []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	threads = append(threads, thread)

	if err := m.saveThreads(caseID, threads); err != nil {
		return nil, err
	}
	return &thread, nil
}

// AppendTurn records an exchange on a thread, keeping the last 10 turns and
// titling untitled threads from the question's keywords.
func (m *Manager) AppendTurn(caseID, threadID, question, answer string) (*Thread, error) {
	threads, err := m.Threads(caseID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range threads {
		if threads[i].ID != threadID {
			continue
		}

		threads[i].Turns = append(threads[i].Turns, Turn{
			Question: question, Answer: answer, CreatedAt: now,
		})
		if n := len(threads[i].Turns); n > maxTurnsPerThread {
			threads[i].Turns = threads[i].Turns[n-maxTurnsPerThread:]
		}
		if threads[i].Title == "" || threads[i].Title == defaultThreadTitle {
			threads[i].Title = titleFromQuestion(question)
		}
		threads[i].UpdatedAt = now

		if err := m.saveThreads(caseID, threads); err != nil {
			return nil, err
		}
		return &threads[i], nil
	}

	return nil, cgerrors.ValidationError("thread not found", nil).
		WithDetail("thread_id", threadID)
}

// DeleteThread removes a thread; deleting an unknown id is a no-op.
func (m *Manager) DeleteThread(caseID, threadID string) error {
	threads, err := m.Threads(caseID)
	if err != nil {
		return err
	}

	remaining := threads[:0]
	for _, th := range threads {
		if th.ID != threadID {
			remaining = append(remaining, th)
		}
	}
	if len(remaining) == len(threads) {
		return nil
	}
	return m.saveThreads(caseID, remaining)
}

// titleFromQuestion builds a short keyword title, dropping stop words.
func titleFromQuestion(question string) string {
	words := titleWordRe.FindAllString(strings.ToLower(question), -1)
	keywords := make([]string, 0, titleKeywords)
	for _, w := range words {
		if !titleStopWords[w] {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		keywords = words
	}
	if len(keywords) > titleKeywords {
		keywords = keywords[:titleKeywords]
	}
	title := strings.TrimSpace(strings.Join(keywords, " "))
	if title == "" {
		return defaultThreadTitle
	}
	if len(title) > 80 {
		title = strings.TrimRight(title[:77], " ") + "..."
	}
	return title
}

func (m *Manager) threadsPath(caseID string) (string, error) {
	dir, err := validation.CasePath(m.casesDir, caseID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err != nil {
		return "", cgerrors.CaseNotFound(caseID)
	}
	return filepath.Join(dir, threadsFileName), nil
}

func (m *Manager) saveThreads(caseID string, threads []Thread) error {
	path, err := m.threadsPath(caseID)
	if err != nil {
		return err
	}
	return writeJSONAtomic(path, threads)
}
