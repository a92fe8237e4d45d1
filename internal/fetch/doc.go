// Package fetch implements the single-flight fetch engine: it coalesces
// concurrent requests for the same resource, races HEADs across a
// set of upstream storage servers, lets exactly one winner download and
// publish the file, and memoizes failures until the next forget tick.
//
// If the winning server's GET fails, no other server that answered its HEAD
// with 200 is tried; the fetch counts as failed.
//
// The engine owns no global state — every table lives on an *Engine value
// constructed once at startup and shared by the front door and the
// convergence loop.
package fetch
