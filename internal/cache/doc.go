// Package cache is the disk-backed store behind every resource path. Layout
// is fixed: StoragePath/cache/<resource> holds published bytes,
// StoragePath/temp holds in-progress downloads. The store exposes safe
// read/write primitives (temp file + rename) so a partial download never
// becomes visible under a cache path; callers elsewhere in this module depend
// on that guarantee to stream cached resources without re-checking integrity.
package cache
