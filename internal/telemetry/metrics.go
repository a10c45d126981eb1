// Package telemetry exposes prometheus counters for queue activity.
package telemetry

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ItemsEnqueued     = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_enqueued_total", Help: "Items inserted or re-prioritized by enqueue"})
	ItemsClaimed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_claimed_total", Help: "Items claimed by agents"})
	ClaimConflicts    = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_claim_conflicts_total", Help: "Claims lost to a concurrent claimant"})
	ItemsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_completed_total", Help: "Items completed successfully"})
	ItemsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_failed_total", Help: "Items reported as failed"})
	ItemsCancelled    = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_cancelled_total", Help: "Items cancelled"})
	ItemsTimedOut     = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_timed_out_total", Help: "In-progress items failed by the timeout supervisor"})
	ItemsRetried      = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_retried_total", Help: "Items returned to the queue for another attempt"})
	ItemsDeadLettered = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_dead_lettered_total", Help: "Failed items moved to the dead-letter set"})
	ItemsPurged       = prometheus.NewCounter(prometheus.CounterOpts{Name: "flowq_items_purged_total", Help: "Finished items removed by retention cleanup"})

	// InFlightItems reads the in_progress count from the source installed by
	// SetInFlightSource at scrape time, so claims made by other processes
	// sharing the database are included.
	InFlightItems = prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "flowq_items_in_flight", Help: "Items currently in_progress across all queues"}, inFlight)

	inFlightSource atomic.Pointer[func() float64]
)

// SetInFlightSource installs the function reporting the number of in_progress
// items. A nil fn reports zero.
func SetInFlightSource(fn func() float64) {
	if fn == nil {
		inFlightSource.Store(nil)
		return
	}
	inFlightSource.Store(&fn)
}

func inFlight() float64 {
	if fn := inFlightSource.Load(); fn != nil {
		return (*fn)()
	}
	return 0
}

// Handler exposes the /metrics handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ItemsEnqueued,
			ItemsClaimed,
			ClaimConflicts,
			ItemsCompleted,
			ItemsFailed,
			ItemsCancelled,
			ItemsTimedOut,
			ItemsRetried,
			ItemsDeadLettered,
			ItemsPurged,
			InFlightItems,
		)
	})
	return promhttp.Handler()
}
