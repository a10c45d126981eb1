// Command flowq is the operator CLI for flowq queues.
//
// Queue, item and entity commands open the SQLite database directly, so they
// work whether or not the daemon is running; the store serializes writers.
// The daemon subcommands run, launch and stop the long-running process that
// hosts the timeout supervisor, the cleanup loop and the HTTP API.
package main
