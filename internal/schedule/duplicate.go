package schedule

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rentboard/internal/models"
)

// duplicateAdjacencyDays is the window within which two bookings by the same
// customer count as suspiciously close even without a strict date overlap.
const duplicateAdjacencyDays = 1

// CustomerRentalSource lists prior non-cancelled rentals matching a customer
// name or destination.
type CustomerRentalSource interface {
	ListRentalsByCustomerAndDestination(ctx context.Context, customerName, destination string) ([]models.Rental, error)
}

// DuplicateReport is the advisory outcome of a duplicate check. It is
// surfaced to the operator and never blocks a booking.
type DuplicateReport struct {
	HasDuplicate bool            `json:"has_duplicate"`
	Matches      []models.Rental `json:"duplicates"`
}

// DuplicateDetector flags prior bookings that look like repeats of a new
// request: same customer, same (or omitted) destination, and date ranges that
// overlap or nearly touch.
type DuplicateDetector struct {
	source CustomerRentalSource
	calc   Calculator
	log    *zerolog.Logger
}

// NewDuplicateDetector creates a duplicate detector.
func NewDuplicateDetector(source CustomerRentalSource, calc Calculator, log *zerolog.Logger) *DuplicateDetector {
	return &DuplicateDetector{source: source, calc: calc, log: log}
}

// FindDuplicates returns prior rentals suspiciously similar to the request.
// Unlike conflict detection this check fails open: a broken store lookup is
// logged and reported as "no duplicates found", since the result is advisory.
func (d *DuplicateDetector) FindDuplicates(ctx context.Context, customerName, destination string, startDate, endDate time.Time, excludeRentalID int64) DuplicateReport {
	name := normalize(customerName)
	dest := normalize(destination)
	if name == "" && dest == "" {
		return DuplicateReport{}
	}

	rentals, err := d.source.ListRentalsByCustomerAndDestination(ctx, customerName, destination)
	if err != nil {
		d.log.Warn().Err(err).
			Str("customer", customerName).
			Msg("duplicate lookup failed, reporting no duplicates")
		return DuplicateReport{}
	}

	start := d.calc.DateOf(startDate)
	end := d.calc.DateOf(endDate)

	var matches []models.Rental
	for _, r := range rentals {
		if r.IsCancelled() || r.ID == excludeRentalID {
			continue
		}
		// Accessory children duplicate their parent's customer and window by
		// construction; only main rentals count.
		if !r.IsMainRental() {
			continue
		}
		if name != "" && normalize(r.CustomerName) != name {
			continue
		}
		// Destination matches when equal, or when omitted on either side.
		rDest := normalize(r.Destination)
		if dest != "" && rDest != "" && rDest != dest {
			continue
		}
		if datesNear(start, end, d.calc.DateOf(r.StartDate), d.calc.DateOf(r.EndDate)) {
			matches = append(matches, r)
		}
	}

	return DuplicateReport{HasDuplicate: len(matches) > 0, Matches: matches}
}

// datesNear reports whether [start1, end1] overlaps [start2, end2] or lies
// within the adjacency window of it.
func datesNear(start1, end1, start2, end2 time.Time) bool {
	pad := duplicateAdjacencyDays
	return !start1.After(end2.AddDate(0, 0, pad)) && !start2.After(end1.AddDate(0, 0, pad))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
