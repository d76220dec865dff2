// Package controlapi is the Public HTTP Surface: thin routing, identity
// extraction, ownership checks, and wiring into the Provisioner, Agent
// Relay, Log Streamer, and Filesystem Browser. It owns no business
// logic of its own.
package controlapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/refactorctl/internal/agentrelay"
	"github.com/jordanhubbard/refactorctl/internal/authn"
	"github.com/jordanhubbard/refactorctl/internal/browser"
	"github.com/jordanhubbard/refactorctl/internal/cpmetrics"
	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
	"github.com/jordanhubbard/refactorctl/internal/dockercli"
	"github.com/jordanhubbard/refactorctl/internal/logstream"
	"github.com/jordanhubbard/refactorctl/internal/projectstore"
	"github.com/jordanhubbard/refactorctl/internal/provisioner"
	"github.com/jordanhubbard/refactorctl/internal/statemachine"
)

// Server wires the control plane's HTTP surface together.
type Server struct {
	store       projectstore.Store
	machine     *statemachine.Machine
	provisioner *provisioner.Provisioner
	relay       *agentrelay.Relay
	logs        *logstream.Streamer
	fs          *browser.Browser
	driver      *dockercli.Driver
	auth        authn.Authenticator
	metrics     *cpmetrics.Metrics
	corsOrigins []string
}

// Deps bundles every collaborator the Server routes to.
type Deps struct {
	Store       projectstore.Store
	Machine     *statemachine.Machine
	Provisioner *provisioner.Provisioner
	Relay       *agentrelay.Relay
	Logs        *logstream.Streamer
	FS          *browser.Browser
	Driver      *dockercli.Driver
	Auth        authn.Authenticator
	Metrics     *cpmetrics.Metrics
	CORSOrigins []string
}

// New builds a Server from its dependencies.
func New(d Deps) *Server {
	return &Server{
		store:       d.Store,
		machine:     d.Machine,
		provisioner: d.Provisioner,
		relay:       d.Relay,
		logs:        d.Logs,
		fs:          d.FS,
		driver:      d.Driver,
		auth:        d.Auth,
		metrics:     d.Metrics,
		corsOrigins: d.CORSOrigins,
	}
}

// Handler returns the fully wired, middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", cpmetrics.Handler())

	mux.HandleFunc("/projects", s.handleProjects)
	mux.HandleFunc("/projects/", s.handleProject)

	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// ── middleware ──────────────────────────────────────────────────────

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		d := time.Since(start)
		log.Printf("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.statusCode, d)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(routeLabel(r.URL.Path), r.Method, statusLabel(rec.statusCode), d)
		}
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.corsOrigins) > 0 {
			origin := r.Header.Get("Origin")
			for _, allowed := range s.corsOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", allowed)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type identityKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := authn.FromRequest(r.Context(), s.auth, r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		ctx := withIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "projects" {
		parts[1] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// ── response helpers ────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFromErr maps a sentinel control-plane error to an HTTP status.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, ctlerrors.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, ctlerrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ctlerrors.ErrInvalidGitURL), errors.Is(err, ctlerrors.ErrInvalidBranch), errors.Is(err, ctlerrors.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, ctlerrors.ErrConflictingState), errors.Is(err, ctlerrors.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, ctlerrors.ErrProjectNotReady):
		return http.StatusConflict
	case errors.Is(err, ctlerrors.ErrAgentUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, ctlerrors.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness of collaborators the surface depends on.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "project store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
