// Package rate throttles failed admin password logins with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR plus EXPIRE on the first hit. Key prefixes:
//   - dppd-login:u:  per username
//   - dppd-login:ip: per client IP
//
// A successful login clears both counters.
package rate
