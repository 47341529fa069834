// Package httpapi exposes the case operations over HTTP. Errors carry the
// structured JSON body from the errors package; status codes follow the
// error code family.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/casegrounds/casegrounds/internal/app"
	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
	"github.com/casegrounds/casegrounds/internal/search"
)

// maxUploadBytes caps one document upload.
const maxUploadBytes = 50 << 20

// Server serves the HTTP API over a wired Providers.
type Server struct {
	providers *app.Providers
	logger    *slog.Logger
}

// NewServer creates the API server.
func NewServer(providers *app.Providers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{providers: providers, logger: logger}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)

	r.Route("/cases", func(r chi.Router) {
		r.Post("/", s.handleCreateCase)
		r.Get("/", s.handleListCases)

		r.Route("/{caseID}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteCase)

			r.Post("/documents", s.handleUploadDocument)
			r.Get("/documents", s.handleListDocuments)
			r.Delete("/documents/{fileName}", s.handleDeleteDocument)

			r.Post("/ask", s.handleAsk)
			r.Post("/search", s.handleSearch)

			r.Get("/session", s.handleGetSession)
			r.Delete("/session", s.handleResetSession)

			r.Get("/threads", s.handleListThreads)
			r.Post("/threads", s.handleCreateThread)
			r.Delete("/threads/{threadID}", s.handleDeleteThread)
		})
	})

	r.Post("/legal/fetch", s.handleLegalFetch)

	return r
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http_server_listening", slog.String("addr", addr))
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createCaseRequest struct {
	CaseID string `json:"case_id"`
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.providers.CreateCase(req.CaseID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"case_id": req.CaseID})
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.providers.ListCases()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

func (s *Server) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	if err := s.providers.DeleteCase(chi.URLParam(r, "caseID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, cgerrors.ValidationError("invalid multipart upload", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, cgerrors.ValidationError("upload must include a 'file' field", err))
		return
	}
	defer file.Close()

	res, err := s.providers.IngestDocument(r.Context(), caseID, header.Filename, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.providers.Documents(chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	fileName := chi.URLParam(r, "fileName")
	if err := s.providers.DeleteDocument(caseID, fileName); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type askRequest struct {
	Question     string `json:"question"`
	IncludeLegal *bool  `json:"include_legal"`
	ThreadID     string `json:"thread_id"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, cgerrors.ValidationError("question must not be empty", nil))
		return
	}
	includeLegal := req.IncludeLegal == nil || *req.IncludeLegal

	resp, err := s.providers.Ask(r.Context(), caseID, req.Question, includeLegal)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.ThreadID != "" {
		if _, err := s.providers.Sessions.AppendTurn(caseID, req.ThreadID, req.Question, resp.Answer); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	Mode  string `json:"mode"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	results, err := s.providers.Retriever.Search(r.Context(), caseID, req.Query,
		search.Options{TopK: req.TopK, Mode: search.Mode(req.Mode)})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.providers.Sessions.Load(chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.providers.Sessions.Reset(chi.URLParam(r, "caseID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.providers.Sessions.Threads(chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

type createThreadRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	thread, err := s.providers.Sessions.CreateThread(chi.URLParam(r, "caseID"), req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	threadID := chi.URLParam(r, "threadID")
	if err := s.providers.Sessions.DeleteThread(caseID, threadID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fetchRequest struct {
	URL          string `json:"url"`
	ForceRefresh bool   `json:"force_refresh"`
}

func (s *Server) handleLegalFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.providers.FetchLegal(r.Context(), req.URL, req.ForceRefresh)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           snap.ID,
		"url":          snap.URL,
		"domain":       snap.Domain,
		"title":        snap.Title,
		"content_hash": snap.ContentHash,
		"fetched_at":   snap.FetchedAt,
		"excerpt":      snap.Excerpt(),
	})
}

// logRequests logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)))
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cgerrors.ValidationError("invalid JSON request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps error codes onto HTTP statuses and writes the structured
// error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	body, jerr := cgerrors.FormatJSON(err)
	if jerr != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request_failed", slog.String("error", err.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func statusForError(err error) int {
	switch cgerrors.GetCode(err) {
	case cgerrors.ErrCodeCaseNotFound, cgerrors.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case cgerrors.ErrCodeDomainNotAllowed:
		return http.StatusForbidden
	case cgerrors.ErrCodeInvalidPath, cgerrors.ErrCodeInvalidInput,
		cgerrors.ErrCodeUnsupportedFormat:
		return http.StatusBadRequest
	case cgerrors.ErrCodeCitationInvalid:
		return http.StatusUnprocessableEntity
	case cgerrors.ErrCodeFetchFailed, cgerrors.ErrCodeLLMUnavailable,
		cgerrors.ErrCodeEmbeddingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
