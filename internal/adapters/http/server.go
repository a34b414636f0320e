package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/sirupsen/logrus"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/ports"
	"cybersentinel/internal/progress"
	"cybersentinel/internal/subdomain"
)

// InlineRunner processes a queued scan synchronously.
type InlineRunner interface {
	ProcessInline(ctx context.Context, scanID string) error
}

type Server struct {
	discovery ports.Discovery
	summaries ports.Summaries
	runner    InlineRunner
	hub       *progress.Hub
	log       logrus.FieldLogger
}

func New(discovery ports.Discovery, summaries ports.Summaries, runner InlineRunner, hub *progress.Hub, log logrus.FieldLogger) *Server {
	return &Server{discovery: discovery, summaries: summaries, runner: runner, hub: hub, log: log}
}

// Routes returns a chi.Router with every API handler mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.getHealthz)
	r.Route("/api/v1/asm", func(r chi.Router) {
		r.Route("/domains/{root}", func(r chi.Router) {
			r.Get("/tree", s.getTree)
			r.Post("/tree/toggle", s.postToggle)
			r.Get("/summary", s.getSummary)
			r.Post("/discover", s.postDiscover)
		})
		r.Post("/subdomains", s.postSubdomain)
		r.Post("/subdomains/{id}/delete-intent", s.postDeleteIntent)
		r.Delete("/subdomains/{id}", s.deleteSubdomain)
		r.Post("/subdomains/{id}/rescan", s.postRescan)
		r.Get("/scans/{id}", s.getScan)
		r.Get("/scans/{id}/ws", s.watchScan)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	var params struct {
		View      string
		Query     string
		ExpandAll bool
		Indent    int
	}
	q := r.URL.Query()
	for _, b := range []struct {
		name string
		dest any
	}{
		{"view", &params.View},
		{"q", &params.Query},
		{"expand_all", &params.ExpandAll},
		{"indent", &params.Indent},
	} {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			writeError(w, badRequest("invalid query parameter "+b.name))
			return
		}
	}

	view, err := s.discovery.View(r.Context(), params.View, chi.URLParam(r, "root"), subdomain.Options{
		IndentUnit: params.Indent,
		Query:      params.Query,
		ExpandAll:  params.ExpandAll,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTreeResponse(view))
}

func (s *Server) postToggle(w http.ResponseWriter, r *http.Request) {
	var body toggleRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	expanded, err := s.discovery.Toggle(r.Context(), body.View, chi.URLParam(r, "root"), body.NodeID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{NodeID: body.NodeID, Expanded: expanded})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summaries.Get(r.Context(), chi.URLParam(r, "root"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(sum))
}

func (s *Server) postDiscover(w http.ResponseWriter, r *http.Request) {
	id, err := s.discovery.DiscoverAll(r.Context(), chi.URLParam(r, "root"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondQueued(w, r, id)
}

func (s *Server) postRescan(w http.ResponseWriter, r *http.Request) {
	id, err := s.discovery.Rescan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondQueued(w, r, id)
}

// respondQueued answers 202 with the scan id, or with ?wait=true runs the
// scan inline and answers with its final state.
func (s *Server) respondQueued(w http.ResponseWriter, r *http.Request, scanID string) {
	var wait bool
	timeout := 30
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "wait", q, &wait); err != nil {
		writeError(w, badRequest("invalid query parameter wait"))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "timeout", q, &timeout); err != nil || timeout <= 0 {
		timeout = 30
	}
	if !wait || s.runner == nil {
		writeJSON(w, http.StatusAccepted, scanAcceptedResponse{ScanID: scanID})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(timeout)*time.Second)
	defer cancel()
	if err := s.runner.ProcessInline(ctx, scanID); err != nil {
		s.fail(w, r, err)
		return
	}
	scan, err := s.discovery.ScanStatus(ctx, scanID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(scan))
}

func (s *Server) postSubdomain(w http.ResponseWriter, r *http.Request) {
	var body addSubdomainRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := body.toPort()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.discovery.Add(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubdomainResponse(n))
}

func (s *Server) postDeleteIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := s.discovery.DeleteIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteIntentResponse{
		ID:              intent.ID,
		Name:            intent.Name,
		Descendants:     nonNil(intent.Descendants),
		DescendantCount: len(intent.Descendants),
	})
}

func (s *Server) deleteSubdomain(w http.ResponseWriter, r *http.Request) {
	var confirm string
	if err := runtime.BindQueryParameter("form", true, true, "confirm", r.URL.Query(), &confirm); err != nil {
		writeError(w, badRequest("confirm is required"))
		return
	}
	removed, err := s.discovery.Delete(r.Context(), chi.URLParam(r, "id"), confirm)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Removed: removed})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.discovery.ScanStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(scan))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type runtimeError struct {
	code int
	msg  string
}

func (e *runtimeError) Error() string { return e.msg }

func badRequest(msg string) error { return &runtimeError{code: http.StatusBadRequest, msg: msg} }

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return badRequest("missing body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid body: " + err.Error())
	}
	return nil
}

func statusFor(err error) int {
	var rt *runtimeError
	switch {
	case errors.As(err, &rt):
		return rt.code
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrConfirmMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidParent), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, err)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
