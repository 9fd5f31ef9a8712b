package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dppd-rp/portal"
	"github.com/dppd-rp/portal/internal/httpx"
	"github.com/dppd-rp/portal/middleware"
	"github.com/dppd-rp/portal/permission"
)

func (s *Server) authRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", s.login)
	r.Get("/discord", s.discordRedirect)
	r.Get("/discord/callback", s.discordCallback)
	r.With(middleware.LoadSession(s.engine)).Get("/session", s.currentSession)
	r.Post("/logout", s.logout)
	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      permission.Principal `json:"user"`
	ExpiresAt time.Time            `json:"expiresAt"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := httpx.DecodeJSON(w, r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Username == "" || payload.Password == "" {
		httpx.Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	issued, err := s.engine.LoginAdmin(r.Context(), payload.Username, payload.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, issued.Cookie)
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		User:      issued.Session.User,
		ExpiresAt: issued.Session.ExpiresAt,
	})
}

func (s *Server) discordRedirect(w http.ResponseWriter, r *http.Request) {
	req, err := s.engine.DiscordAuthURL(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, req.Cookie)
	http.Redirect(w, r, req.URL, http.StatusFound)
}

func (s *Server) discordCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		httpx.Error(w, http.StatusBadRequest, "discord authorization failed: "+reason)
		return
	}

	var nonce string
	if c, err := r.Cookie(portal.OAuthNonceCookieName); err == nil {
		nonce = c.Value
	}
	// The nonce is single-use whatever the outcome.
	http.SetCookie(w, s.engine.ClearOAuthNonceCookie())

	issued, err := s.engine.LoginDiscord(r.Context(), q.Get("code"), q.Get("state"), nonce)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, issued.Cookie)
	http.Redirect(w, r, s.config.PostLoginRedirect, http.StatusFound)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, permission.ReasonNotAuthenticated)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{User: sess.User, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.engine.Invalidate(r))
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
