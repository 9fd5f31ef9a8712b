package middleware

import (
	"net/http"

	portal "github.com/dppd-rp/portal"
	"github.com/dppd-rp/portal/internal/httpx"
	"github.com/dppd-rp/portal/permission"
)

// RequirePermission lets the request through only when the caller may
// perform action on pageID. Anonymous callers get 401; denied callers get
// 403 with the evaluator's reason.
func RequirePermission(engine *portal.Engine, pageID string, action permission.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireSession(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := PrincipalFromContext(r.Context())
			d := engine.Authorize(r.Context(), user, pageID, action, permission.CheckOptions{})
			if !d.Allowed {
				httpx.Error(w, http.StatusForbidden, d.Reason)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// RequireSuperAdmin lets only super-admin sessions through.
func RequireSuperAdmin(engine *portal.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireSession(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !PrincipalFromContext(r.Context()).IsSuperAdmin() {
				httpx.Error(w, http.StatusForbidden, portal.ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
