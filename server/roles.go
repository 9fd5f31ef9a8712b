package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dppd-rp/portal/internal/httpx"
	"github.com/dppd-rp/portal/middleware"
	"github.com/dppd-rp/portal/permission"
)

// Role administration is gated by the engine, which records rejected
// attempts; the middleware only supplies the session.
func (s *Server) roleRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireSession(s.engine))
	r.Get("/", s.listRoles)
	r.Post("/", s.addRole)
	r.Put("/{id}", s.updateRole)
	r.Delete("/{id}", s.deleteRole)
	return r
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.RoleConfig(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) addRole(w http.ResponseWriter, r *http.Request) {
	var m permission.RoleMapping
	if err := httpx.DecodeJSON(w, r, &m); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	added, err := s.engine.AddRoleMapping(r.Context(), middleware.PrincipalFromContext(r.Context()), m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, added)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	var m permission.RoleMapping
	if err := httpx.DecodeJSON(w, r, &m); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	updated, err := s.engine.UpdateRoleMapping(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"), m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRoleMapping(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
