// Package daemon coordinates the long-running flowq process.
//
// It wires configuration, the SQLite store, the timeout supervisor, the
// cleanup service and the HTTP API into a single lifecycle with flock-based
// locking so only one daemon serves a database at a time. Individual
// behaviours live in their own packages; the daemon owns startup, shutdown
// and the status snapshot reported to operators.
package daemon
