package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dppd-rp/portal/internal/httpx"
	"github.com/dppd-rp/portal/middleware"
	"github.com/dppd-rp/portal/permission"
)

func (s *Server) permissionRoutes() chi.Router {
	r := chi.NewRouter()
	r.With(middleware.RequireSession(s.engine)).Post("/check", s.checkPermission)
	return r
}

type checkRequest struct {
	PageID      string            `json:"pageId"`
	Action      permission.Action `json:"action"`
	ItemOwnerID string            `json:"itemOwnerId,omitempty"`
	FieldID     string            `json:"fieldId,omitempty"`
}

func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	var payload checkRequest
	if err := httpx.DecodeJSON(w, r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	payload.PageID = strings.TrimSpace(payload.PageID)
	if payload.PageID == "" {
		httpx.Error(w, http.StatusBadRequest, "pageId is required")
		return
	}
	if !payload.Action.Valid() {
		httpx.Error(w, http.StatusBadRequest, "unknown action")
		return
	}

	d := s.engine.Authorize(r.Context(), middleware.PrincipalFromContext(r.Context()), payload.PageID, payload.Action, permission.CheckOptions{
		ItemOwnerID: payload.ItemOwnerID,
		FieldID:     payload.FieldID,
	})
	httpx.WriteJSON(w, http.StatusOK, d)
}
