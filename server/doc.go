// Package server is the portal's HTTP API: admin and Discord login,
// session lookup and logout, role-mapping administration and permission
// checks, routed with chi.
//
// Errors are JSON {"error": message}. Unexpected failures answer
// "internal error" and log the cause with the request id.
package server
