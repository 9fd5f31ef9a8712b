// Package internal holds helpers private to the portal module.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for Engine login, logout and device checks
//   - rate: Redis-backed throttling of admin password logins
//   - httpx: JSON request and response helpers for the HTTP layers
//   - cli: the dppd-portal command tree
//   - portaltest: miniredis-backed engines for tests
package internal
