package server

import (
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	portal "github.com/dppd-rp/portal"
	"github.com/dppd-rp/portal/internal/httpx"
	"github.com/dppd-rp/portal/permission"
)

const internalErrorMessage = "internal error"

type statusRule struct {
	target error
	status int
}

// statusRules maps engine errors to responses. The error text is the
// response message; anything unmatched is a 500 whose cause is logged only.
var statusRules = []statusRule{
	{portal.ErrUnauthorized, http.StatusUnauthorized},
	{portal.ErrInvalidCredentials, http.StatusUnauthorized},
	{portal.ErrForbidden, http.StatusForbidden},
	{portal.ErrNoMappedRole, http.StatusForbidden},
	{portal.ErrInvalidOAuthState, http.StatusBadRequest},
	{portal.ErrLoginRateLimited, http.StatusTooManyRequests},
	{portal.ErrLoginUnavailable, http.StatusServiceUnavailable},
	{portal.ErrAdminLoginDisabled, http.StatusNotFound},
	{portal.ErrDiscordLoginDisabled, http.StatusNotFound},
	{permission.ErrInvalidMapping, http.StatusBadRequest},
	{permission.ErrDuplicateRole, http.StatusConflict},
	{permission.ErrMappingNotFound, http.StatusNotFound},
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, rule := range statusRules {
		if errors.Is(err, rule.target) {
			msg := rule.target.Error()
			if rule.status == http.StatusBadRequest {
				msg = err.Error()
			}
			httpx.Error(w, rule.status, msg)
			return
		}
	}
	s.logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", chimw.GetReqID(r.Context())),
		slog.Any("error", err),
	)
	httpx.Error(w, http.StatusInternalServerError, internalErrorMessage)
}
