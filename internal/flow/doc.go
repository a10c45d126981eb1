// Package flow keeps tickets and tasks in step with the queue items that
// reference them.
//
// Tickets and tasks carry denormalized queue_* columns (queue, status,
// position, agent, timestamps) so that readers never have to join against
// queue_items. Mirror is the only writer of those columns, and it is always
// called with the transaction that changed the item. Entities is the small
// repository for the rows themselves.
package flow
