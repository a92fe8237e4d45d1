// Package proxy is the front door: classify the request target, resolve it
// through the fetch engine, and either stream the resulting file or answer
// 404. There is no conditional GET, no range handling, no content
// negotiation.
package proxy
