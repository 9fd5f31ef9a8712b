// Package middleware adapts portal.Engine to net/http handlers.
//
//   - [ClientContext] attaches client IP and user agent for the engine.
//   - [LoadSession] and [RequireSession] resolve the session cookie.
//   - [RequirePermission] gates a handler on one page/action check.
//   - [RequireSuperAdmin] gates role administration.
//
// Every decision is delegated to the engine; this package only maps the
// outcome to 401 and 403 JSON responses.
package middleware
