// Package audit delivers security-relevant events to a sink asynchronously.
//
// The [Dispatcher] owns buffering; sinks (channel, JSON lines, slog) own
// formatting. Deciding which events to emit is the caller's job.
package audit
