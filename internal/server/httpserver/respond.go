package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/pollboard/internal/errs"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("Invalid request body")

type errorBody struct {
	Error string `json:"error"`
}

type successBody struct {
	Success string `json:"success"`
	PollID  string `json:"pollId,omitempty"`
}

// writeJSON writes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

// writeError maps err to a status and a user-visible message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError && msg == errs.ErrUnexpected.Error() {
		s.log.Error("unexpected error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	s.writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors to HTTP status codes. Domain sentinels carry
// their own message; anything unknown becomes a generic 500.
func statusFor(err error) (int, string) {
	var se *errs.StoreError
	switch {
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrStoreUnavailable):
		return http.StatusInternalServerError, errs.ErrStoreUnavailable.Error()
	case errors.Is(err, errs.ErrMissingPollID),
		errors.Is(err, errs.ErrMissingTitle),
		errors.Is(err, errs.ErrInsufficientOptions),
		errors.Is(err, errs.ErrMissingOption),
		errors.Is(err, errs.ErrInvalidOption),
		errors.Is(err, errs.ErrIdentityRequired),
		errors.Is(err, errs.ErrMissingCredentials):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrUnauthenticated),
		errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, errs.ErrNotAuthorized),
		errors.Is(err, errs.ErrPollNotVotable):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, errs.ErrPollNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errs.ErrAlreadyVoted),
		errors.Is(err, errs.ErrUsernameTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errs.ErrPollExpired):
		return http.StatusGone, err.Error()
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.As(err, &se):
		return http.StatusInternalServerError, se.Msg
	default:
		return http.StatusInternalServerError, errs.ErrUnexpected.Error()
	}
}

// decodeJSON decodes a single JSON object, rejecting unknown fields. When
// optional is set an empty body leaves v untouched.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return errBadBody
	}
	if dec.More() {
		return errBadBody
	}
	return nil
}

// clientIP returns the host of the network peer. Forwarding headers are only
// honoured when Options.TrustProxy installs chi's RealIP, which rewrites
// RemoteAddr before this runs.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
