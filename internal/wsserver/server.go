// Package wsserver is the workspace service: it owns a snapshot store and an
// overlay backend and exposes them over HTTP for remote clients. The wire API
// is the one internal/workspace.Remote speaks; error statuses round-trip back
// onto the shared workspace sentinel set.
package wsserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warden-run/warden/internal/workspace"
)

// Options configures a workspace service.
type Options struct {
	// Store holds the base snapshots. Required.
	Store workspace.SnapshotStore

	// Quota is the per-session delta byte ceiling; 0 means unlimited.
	Quota int64

	// ReapAfter is how long an idle session survives before the reaper
	// discards it. Zero disables reaping.
	ReapAfter time.Duration

	Logger *slog.Logger
}

// Server serves the workspace API over an overlay backend. Safe for
// concurrent use.
type Server struct {
	store   workspace.SnapshotStore
	fs      *workspace.Overlay
	logger  *slog.Logger
	metrics *Metrics

	reapAfter time.Duration

	mu       sync.Mutex
	sessions map[string]*tracked
}

// tracked pairs a session handle with its last-use time for the reaper.
// Closed sessions stay tracked so late requests get 410, not 404.
type tracked struct {
	session  *workspace.Session
	lastUsed time.Time
}

// New creates a workspace service over the given store.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     opts.Store,
		fs:        workspace.NewOverlay(opts.Store, opts.Quota),
		logger:    logger,
		metrics:   NewMetrics(),
		reapAfter: opts.ReapAfter,
		sessions:  make(map[string]*tracked),
	}
}

// Router returns the service's HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/bases", s.handleCreateBase)
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/file", s.handleRead)
			r.Put("/file", s.handleWrite)
			r.Delete("/file", s.handleRemove)
			r.Get("/list", s.handleList)
			r.Get("/diff", s.handleDiff)
			r.Post("/commit", s.handleCommit)
			r.Post("/discard", s.handleDiscard)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateBase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files map[string][]byte `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ref, err := s.store.CreateBase(req.Files)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.bases.Inc()
	s.logger.Info("base created", "ref", ref, "files", len(req.Files))
	writeJSON(w, http.StatusOK, map[string]string{"ref": ref})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Base string `json:"base"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.fs.CreateSession(r.Context(), req.Base)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.mu.Lock()
	s.sessions[session.ID] = &tracked{session: session, lastUsed: time.Now()}
	s.mu.Unlock()

	s.metrics.sessionsOpen.Inc()
	s.logger.Info("session created", "session", session.ID, "base", req.Base)
	writeJSON(w, http.StatusOK, map[string]string{"id": session.ID})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	session, ok := s.touch(w, r)
	if !ok {
		return
	}
	data, err := s.fs.Read(r.Context(), session, r.URL.Query().Get("path"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]byte{"data": data})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	session, ok := s.touch(w, r)
	if !ok {
		return
	}
	var req struct {
		Data []byte `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.fs.Write(r.Context(), session, r.URL.Query().Get("path"), req.Data); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	session, ok := s.touch(w, r)
	if !ok {
		return
	}
	if err := s.fs.Remove(r.Context(), session, r.URL.Query().Get("path")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	session, ok := s.touch(w, r)
	if !ok {
		return
	}
	entries, err := s.fs.List(r.Context(), session, r.URL.Query().Get("path"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []workspace.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	session, ok := s.touch(w, r)
	if !ok {
		return
	}
	changes, err := s.fs.Diff(r.Context(), session)
	if err != nil {
		s.fail(w, err)
		return
	}
	if changes == nil {
		changes = []workspace.Change{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	session, ok := s.touch(w, r)
	if !ok {
		return
	}
	ref, err := s.fs.Commit(r.Context(), session)
	if err != nil {
		if errors.Is(err, workspace.ErrConflictingBase) {
			s.metrics.conflicts.Inc()
		}
		s.fail(w, err)
		return
	}
	s.metrics.commits.Inc()
	s.metrics.sessionsOpen.Dec()
	s.logger.Info("session committed", "session", session.ID, "ref", ref)
	writeJSON(w, http.StatusOK, map[string]string{"ref": ref})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	session, ok := s.touch(w, r)
	if !ok {
		return
	}
	if err := s.fs.Discard(r.Context(), session); err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.sessionsOpen.Dec()
	s.logger.Info("session discarded", "session", session.ID)
	writeJSON(w, http.StatusOK, map[string]string{})
}

// touch resolves the session from the route and refreshes its last-use time.
// Unknown sessions are a 404; the client maps that back onto ErrNotFound.
func (s *Server) touch(w http.ResponseWriter, r *http.Request) (*workspace.Session, bool) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok {
		entry.lastUsed = time.Now()
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown session "+id)
		return nil, false
	}
	return entry.session, true
}

// fail maps a workspace error onto the wire status the remote client expects.
func (s *Server) fail(w http.ResponseWriter, err error) {
	s.metrics.errors.Inc()
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrPathDenied):
		return http.StatusForbidden
	case errors.Is(err, workspace.ErrQuotaExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, workspace.ErrConflictingBase):
		return http.StatusConflict
	case errors.Is(err, workspace.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, workspace.ErrUnknownBase):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
