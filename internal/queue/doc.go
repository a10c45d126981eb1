// Package queue persists queues and queue items in SQLite and exposes the
// primitives the scheduler builds on.
//
// The Store manages the database connection, schema initialization, and
// diagnostics. Every mutating primitive lives on the shared queries type so it
// runs identically against the pool or inside a transaction opened with
// Store.WithTx. Transactions start with BEGIN IMMEDIATE on a dedicated
// connection, which serializes writers and lets count-then-claim sequences
// observe a stable view.
//
// Status changes are compare-and-swap updates: each primitive names the status
// it expects and reports whether a row actually moved. Callers decide whether a
// miss is a retry, a NotFound, or an invalid transition.
//
// Timestamps are stored as fixed-width UTC text so lexical order matches time
// order. The schema also carries the ticket and task tables whose queue_*
// columns mirror item state; package flow owns writes to those columns.
// Schema changes bump schemaVersion; users clear the database to adopt them.
package queue
