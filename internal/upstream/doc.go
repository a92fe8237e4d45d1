// Package upstream is the single-shot HTTP client used to probe and download
// resources from storage servers. HEAD and GET are both single-shot: non-200
// is a value returned to the caller, not a Go error.
// Network failures (timeouts, connection refused, DNS) surface as a distinct
// status so callers can tell "upstream said no" from "upstream unreachable"
// without inspecting error strings. Retry policy belongs to the caller
// (internal/fetch), not this package.
package upstream
