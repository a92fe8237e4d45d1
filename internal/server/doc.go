// Package server hosts the Fiber HTTP service: the middleware chain
// (panic recovery, request-ID stamping), the admin surface (/-/status,
// /-/loglevel) behind optional basic auth, and the front-door route that
// hands every other request to the proxy package. It owns no domain state
// of its own — callers inject a ProxyHandler, a StatusReporter, and a
// LevelSetter built elsewhere.
package server
