package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arenda",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	holdsPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arenda",
			Name:      "holds_placed_total",
			Help:      "Booking drafts that acquired a calendar hold.",
		},
	)

	rangeConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arenda",
			Name:      "range_conflicts_total",
			Help:      "Draft placements rejected because the range was occupied.",
		},
	)

	lockTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arenda",
			Name:      "lock_timeouts_total",
			Help:      "Property lock acquisitions that timed out.",
		},
	)

	holdsReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arenda",
			Name:      "holds_reclaimed_total",
			Help:      "Expired hold days freed by the sweeper.",
		},
	)

	auctionBlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arenda",
			Name:      "auction_blocks_total",
			Help:      "Calendar ranges blocked for auctions.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, holdsPlaced, rangeConflicts, lockTimeouts, holdsReclaimed, auctionBlocks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncHoldsPlaced()   { holdsPlaced.Inc() }
func IncRangeConflict() { rangeConflicts.Inc() }
func IncLockTimeout()   { lockTimeouts.Inc() }
func IncAuctionBlock()  { auctionBlocks.Inc() }

// AddHoldsReclaimed records how many hold days a sweep freed.
func AddHoldsReclaimed(n int) {
	if n > 0 {
		holdsReclaimed.Add(float64(n))
	}
}
