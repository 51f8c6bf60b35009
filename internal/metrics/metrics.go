package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentboard",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	conflictChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentboard",
			Name:      "conflict_checks_total",
			Help:      "Count of conflict checks by outcome.",
		},
		[]string{"outcome"},
	)

	slotSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentboard",
			Name:      "slot_searches_total",
			Help:      "Count of slot searches by outcome.",
		},
		[]string{"outcome"},
	)

	rentalCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rentboard",
			Name:      "rental_created_total",
			Help:      "Count of rentals created.",
		},
	)

	rentalCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rentboard",
			Name:      "rental_cancelled_total",
			Help:      "Count of rentals cancelled.",
		},
	)

	duplicateFlags = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rentboard",
			Name:      "duplicate_flags_total",
			Help:      "Count of bookings flagged as possible duplicates.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, conflictChecks, slotSearches,
			rentalCreated, rentalCancelled, duplicateFlags)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncConflictCheck(outcome string) {
	conflictChecks.WithLabelValues(outcome).Inc()
}

func IncSlotSearch(outcome string) {
	slotSearches.WithLabelValues(outcome).Inc()
}

func IncRentalCreated() {
	rentalCreated.Inc()
}

func IncRentalCancelled() {
	rentalCancelled.Inc()
}

func IncDuplicateFlag() {
	duplicateFlags.Inc()
}
