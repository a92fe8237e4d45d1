// Package converge implements the registry convergence loop: a periodic
// poll of every upstream's /registries listing, accumulation of a
// hash→server-set mapping per known registry, a bounded-concurrency
// cross-check of non-advertising upstreams, fewest-sources-first promotion
// through the fetch engine, and an atomic publish of the consolidated
// listing file.
package converge
