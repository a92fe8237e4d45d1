// Package resource classifies request targets into the four servable,
// content-addressed resource shapes this proxy understands. Classification is
// pure and read-only: it never touches the filesystem or the network, and it
// rejects anything carrying a query string or a trailing slash, since every
// servable shape is a bare path.
package resource
