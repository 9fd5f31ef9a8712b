// Package token produces and verifies the opaque session references carried in
// the dppd_session cookie.
//
// A reference is "<id>.<signature>" where id is 32 random bytes (hex) and
// signature is HMAC-SHA256(id) under the server secret (hex). The cookie only
// names a server-side session record; it never carries session data.
//
// # What this package must NOT do
//
//   - Read or write the session store.
//   - Log secrets or full tokens.
package token
