package httpserver

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/revalidate"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
)

// Logging returns middleware for structured request logging.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			// metadata only, never bodies
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", clientIP(r)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Recover returns middleware that turns panics into a logged 500.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"` + errs.ErrUnexpected.Error() + `"}` + "\n"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// session resolves the caller from the "token" cookie or a Bearer header and
// stores the user id in the context. Invalid tokens are ignored and an invalid
// cookie is cleared.
func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		fromCookie := false
		if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
			token, fromCookie = c.Value, true
		} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		uid, err := s.auth.Authenticate(token)
		if err != nil {
			if fromCookie {
				clearTokenCookie(w, s.opts.CookieDomain)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
	})
}

// guard protects the poll views and the auth pages:
//   - a public poll's detail page is open to everyone;
//   - other poll views need a session, else 303 to the login page;
//   - auth pages redirect callers that already have a session to the list.
//
// Any failure while resolving visibility counts as "not public".
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, authed := UserIDFromCtx(r.Context())

		if isAuthPage(r.URL.Path) {
			if authed {
				http.Redirect(w, r, revalidate.PollsPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if authed {
			next.ServeHTTP(w, r)
			return
		}
		if id, ok := detailID(r.URL.Path); ok {
			if public, err := s.polls.Visibility(r.Context(), id); err == nil && public {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
	})
}

func isAuthPage(p string) bool {
	p = strings.TrimRight(p, "/")
	return p == loginPath || p == registerPath
}

// detailID matches exactly /polls/{id}.
func detailID(p string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(p, revalidate.PollsPath+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return uuid.Nil, false
	}
	id, err := uuid.FromString(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
