package schedule

import (
	"fmt"
	"time"

	"rentboard/internal/models"
)

const (
	// DefaultLogisticsDays is the transit allowance assumed for legacy rentals
	// that never had ship times persisted.
	DefaultLogisticsDays = 1

	// MinLogisticsDays collapses the handling margin to zero: the device ships
	// out on the start date and back on the end date.
	MinLogisticsDays = -1

	// handlingMarginDays is the unconditional one-day handling margin added on
	// top of the configured transit days on each side of the rental window.
	handlingMarginDays = 1

	// DefaultShipOutHour and DefaultShipInHour fix the time of day for the
	// occupancy boundaries: start of business day for outbound, end of
	// business day for inbound.
	DefaultShipOutHour = 9
	DefaultShipInHour  = 18
)

// Interval is the physical occupancy window of a rental: the span a device is
// unavailable to new bookings, shipping buffer included. Both endpoints are
// inclusive.
type Interval struct {
	ShipOut time.Time `json:"ship_out"`
	ShipIn  time.Time `json:"ship_in"`
}

// Overlaps reports whether two occupancy intervals intersect under the
// closed-interval rule: touching endpoints count as overlap, so adjacent
// shipments can never share a calendar day.
func (iv Interval) Overlaps(other Interval) bool {
	return !iv.ShipOut.After(other.ShipIn) && !other.ShipOut.After(iv.ShipIn)
}

// Calculator converts customer-facing date ranges into occupancy intervals.
// All timestamps are fixed-offset "system timezone" values; there is no
// per-user timezone conversion at this layer.
type Calculator struct {
	zone        *time.Location
	shipOutHour int
	shipInHour  int
}

// NewCalculator returns a Calculator anchored to the given system timezone.
// A nil zone falls back to UTC.
func NewCalculator(zone *time.Location) Calculator {
	if zone == nil {
		zone = time.UTC
	}
	return Calculator{
		zone:        zone,
		shipOutHour: DefaultShipOutHour,
		shipInHour:  DefaultShipInHour,
	}
}

// NewCalculatorWithHours returns a Calculator with explicit ship-out and
// ship-in hours, for deployments whose courier pickup windows differ from the
// defaults.
func NewCalculatorWithHours(zone *time.Location, shipOutHour, shipInHour int) Calculator {
	c := NewCalculator(zone)
	if shipOutHour >= 0 && shipOutHour < 24 {
		c.shipOutHour = shipOutHour
	}
	if shipInHour >= 0 && shipInHour < 24 {
		c.shipInHour = shipInHour
	}
	return c
}

// Zone returns the calculator's system timezone.
func (c Calculator) Zone() *time.Location {
	return c.zone
}

// DateOf truncates t to its calendar date in the system timezone.
func (c Calculator) DateOf(t time.Time) time.Time {
	t = t.In(c.zone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.zone)
}

// ComputeOccupancy expands the customer-visible rental window into the
// physical occupancy window:
//
//	shipOut = startDate − (logisticsDays+1) days at the ship-out hour
//	shipIn  = endDate   + (logisticsDays+1) days at the ship-in hour
//
// logisticsDays may be as low as -1, which collapses the margin entirely.
// Pure function: no side effects, no I/O.
func (c Calculator) ComputeOccupancy(startDate, endDate time.Time, logisticsDays int) (Interval, error) {
	start := c.DateOf(startDate)
	end := c.DateOf(endDate)

	if end.Before(start) {
		return Interval{}, fmt.Errorf("%w: end date %s before start date %s",
			ErrInvalidRequest, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if logisticsDays < MinLogisticsDays {
		return Interval{}, fmt.Errorf("%w: logistics days %d below minimum %d",
			ErrInvalidRequest, logisticsDays, MinLogisticsDays)
	}

	buffer := logisticsDays + handlingMarginDays
	shipOutDay := start.AddDate(0, 0, -buffer)
	shipInDay := end.AddDate(0, 0, buffer)

	return Interval{
		ShipOut: shipOutDay.Add(time.Duration(c.shipOutHour) * time.Hour),
		ShipIn:  shipInDay.Add(time.Duration(c.shipInHour) * time.Hour),
	}, nil
}

// RentalOccupancy returns the occupancy interval of a rental record. Persisted
// ship times are authoritative and are used verbatim; rentals lacking them
// (legacy rows predating the logistics fields) fall back to recomputation with
// DefaultLogisticsDays.
func (c Calculator) RentalOccupancy(r *models.Rental) (Interval, error) {
	if r.ShipOutTime != nil && r.ShipInTime != nil {
		return Interval{ShipOut: *r.ShipOutTime, ShipIn: *r.ShipInTime}, nil
	}
	return c.ComputeOccupancy(r.StartDate, r.EndDate, DefaultLogisticsDays)
}
