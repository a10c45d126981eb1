// Package scheduler is the queue service agents and producers talk to.
//
// Every mutating operation runs in a single queue.Store transaction that
// changes queue_items and projects the result onto the referenced ticket or
// task through a flow.Mirror, so the item row and the entity mirror always
// commit together. Claims are compare-and-swap updates guarded by the
// queue's max_parallel_items limit.
package scheduler
