package httpserver

import (
	"net/http"
	"time"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      string    `json:"userId"`
}

type pageResponse struct {
	Page   string   `json:"page"`
	Action string   `json:"action"`
	Fields []string `json:"fields"`
}

func (s *Server) loginPage(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, pageResponse{Page: "login", Action: loginPath, Fields: []string{"username", "password"}})
}

func (s *Server) registerPage(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, pageResponse{Page: "register", Action: registerPath, Fields: []string{"username", "password"}})
}

// register creates a new account.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	uid, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"userId": uid.String()})
}

// login authenticates and starts a cookie session. The token is also returned
// for clients that prefer the Authorization header.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, u, err := s.auth.LoginWithIP(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setTokenCookie(w, tok.AccessToken, tok.ExpiresAt, s.opts.CookieDomain, s.opts.SecureCookies)
	s.writeJSON(w, http.StatusOK, loginResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt, UserID: u.ID.String()})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	clearTokenCookie(w, s.opts.CookieDomain)
	w.WriteHeader(http.StatusNoContent)
}
