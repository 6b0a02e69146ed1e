package httpserver

import (
	"net/http"
	"time"
)

const tokenCookie = "token"

// setTokenCookie writes the session JWT as an HttpOnly cookie that lives as
// long as the token.
func setTokenCookie(w http.ResponseWriter, token string, expires time.Time, domain string, secure bool) {
	c := &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}
	if domain != "" {
		c.Domain = domain
	}
	http.SetCookie(w, c)
}

// clearTokenCookie removes the session cookie with the same Domain attribute.
func clearTokenCookie(w http.ResponseWriter, domain string) {
	c := &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	if domain != "" {
		c.Domain = domain
	}
	http.SetCookie(w, c)
}
