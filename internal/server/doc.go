// Package server implements the skvs TCP server: a fixed pool of workers
// sharing one listener, each looping accept → serve connection → accept.
//
// Connection handling:
//   - Requests are newline-terminated lines, at most MaxLineBytes long
//   - Every request gets exactly one response line, written before the next
//     request is read
//   - Protocol errors produce an ERROR line and keep the connection open
//   - Read and write failures are logged, the connection is closed and the
//     worker resumes accepting
//
// A worker serves one connection at a time, so at most Workers clients are
// served concurrently; further clients wait in the listen backlog.
//
// Shutdown is cooperative. Cancelling the context passed to Run or Serve
// closes the listener, which unblocks every worker parked in Accept, and sets
// an immediate read deadline on open connections so workers leave their read
// loop once the request in flight has been answered. Serve returns after all
// workers have exited and the table has been torn down.
//
// When StatusAddr is configured an HTTP endpoint is served next to the
// protocol listener:
//
//	GET /health    200 while serving
//	GET /info      JSON table statistics and per-bucket snapshot
//	GET /metrics   prometheus collectors
package server
