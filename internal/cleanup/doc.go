// Package cleanup keeps queues tidy: retention purges, queue resets,
// dead-letter demotion, health diagnostics and reconciliation of entity
// mirrors with queue items.
package cleanup
