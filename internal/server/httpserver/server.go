// Package httpserver exposes the poll and account API over HTTP.
//
// Commands act as the session user (token cookie or Bearer header). A userId
// in a request body must name that same user; without a session it is
// ignored, so POST /polls answers 401 and votes fall back to the fingerprint.
package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/revalidate"
	"github.com/and161185/pollboard/internal/service"
)

// Options carries presentation settings that do not belong to services.
type Options struct {
	CookieDomain      string
	SecureCookies     bool
	PublicURL         string // base for share links; empty means derive from the request
	AllowUnownedEdits bool
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool
}

// Server wires services into HTTP handlers.
type Server struct {
	auth  service.AuthService
	polls service.PollService
	views *revalidate.Ledger
	log   *zap.Logger
	opts  Options
}

// New constructs an HTTP server with injected services.
func New(auth service.AuthService, polls service.PollService, views *revalidate.Ledger, log *zap.Logger, opts Options) *Server {
	if views == nil {
		views = revalidate.NewLedger()
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &Server{auth: auth, polls: polls, views: views, log: log, opts: opts}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))
	r.Use(s.session)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(s.guard).Get("/login", s.loginPage)
		r.With(s.guard).Get("/register", s.registerPage)
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)
	})

	r.Route("/polls", func(r chi.Router) {
		r.With(s.guard).Get("/", s.listPolls)
		r.Post("/", s.createPoll)
		r.Route("/{id}", func(r chi.Router) {
			r.With(s.guard).Get("/", s.getPoll)
			r.With(s.guard).Get("/edit", s.editPoll)
			r.Put("/", s.updatePoll)
			r.Delete("/", s.deletePoll)
			r.Post("/vote", s.vote)
		})
	})

	return r
}

// requester resolves who performs a command. The session is authoritative: a
// body userId must match it, and without a session a body userId is ignored,
// so an anonymous create answers 401 whatever userId the body names.
func requester(r *http.Request, bodyUserID *string) (uuid.UUID, error) {
	uid, ok := UserIDFromCtx(r.Context())
	if !ok {
		return uuid.Nil, nil
	}
	if bodyUserID != nil && *bodyUserID != "" {
		claimed, err := uuid.FromString(*bodyUserID)
		if err != nil || claimed != uid {
			return uuid.Nil, errs.ErrNotAuthorized
		}
	}
	return uid, nil
}

// pollID reads the {id} path segment.
func pollID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	if raw == "" {
		return uuid.Nil, errs.ErrMissingPollID
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, errs.ErrPollNotFound
	}
	return id, nil
}

func (s *Server) shareURL(r *http.Request, id uuid.UUID) string {
	base := s.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + revalidate.PollPath(id)
}

// notModified sets the ETag and answers 304 when the client already has it.
func (s *Server) notModified(w http.ResponseWriter, r *http.Request, path, variant string) bool {
	tag := s.views.ETag(path, variant)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if revalidate.Match(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}
