package models

import "time"

// RentalStatus is the shipping lifecycle status of a rental.
type RentalStatus string

const (
	RentalStatusNotShipped           RentalStatus = "not_shipped"
	RentalStatusScheduledForShipping RentalStatus = "scheduled_for_shipping"
	RentalStatusShipped              RentalStatus = "shipped"
	RentalStatusReturned             RentalStatus = "returned"
	RentalStatusCompleted            RentalStatus = "completed"
	RentalStatusCancelled            RentalStatus = "cancelled"
)

// ValidRentalStatus reports whether s is a known rental status.
func ValidRentalStatus(s RentalStatus) bool {
	switch s {
	case RentalStatusNotShipped, RentalStatusScheduledForShipping,
		RentalStatusShipped, RentalStatusReturned,
		RentalStatusCompleted, RentalStatusCancelled:
		return true
	}
	return false
}

// Rental represents a rental booking record. StartDate/EndDate are the
// customer-facing calendar dates (inclusive); ShipOutTime/ShipInTime bound the
// physical occupancy window including the shipping buffer. When both ship
// times are persisted they are authoritative; recomputation from the dates is
// only a fallback for legacy rows.
type Rental struct {
	ID                int64        `json:"id"`
	DeviceID          int64        `json:"device_id"`
	ParentRentalID    *int64       `json:"parent_rental_id,omitempty"` // set on accessory child rentals
	StartDate         time.Time    `json:"start_date"`
	EndDate           time.Time    `json:"end_date"`
	ShipOutTime       *time.Time   `json:"ship_out_time,omitempty"`
	ShipInTime        *time.Time   `json:"ship_in_time,omitempty"`
	LogisticsDays     int          `json:"logistics_days"`
	Status            RentalStatus `json:"status"`
	CustomerName      string       `json:"customer_name"`
	CustomerPhone     string       `json:"customer_phone,omitempty"`
	Destination       string       `json:"destination,omitempty"`
	ShipOutTrackingNo string       `json:"ship_out_tracking_no,omitempty"`
	ShipInTrackingNo  string       `json:"ship_in_tracking_no,omitempty"`
	OrderRef          string       `json:"order_ref,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// IsCancelled reports whether the rental has been soft-retired. Cancelled
// rentals never count toward conflicts, duplicates, or the timeline.
func (r *Rental) IsCancelled() bool {
	return r.Status == RentalStatusCancelled
}

// IsMainRental reports whether this is a main rental (as opposed to an
// accessory child rental bundled under one).
func (r *Rental) IsMainRental() bool {
	return r.ParentRentalID == nil
}

// DurationDays returns the customer-facing rental length, counting both the
// start and the end date.
func (r *Rental) DurationDays() int {
	return int(r.EndDate.Sub(r.StartDate).Hours()/24) + 1
}

// IsOverdue reports whether an active rental has run past its end date.
func (r *Rental) IsOverdue(now time.Time) bool {
	if r.Status != RentalStatusShipped {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return today.After(r.EndDate)
}

// CanCancel reports whether the rental may still be cancelled.
func (r *Rental) CanCancel() bool {
	switch r.Status {
	case RentalStatusNotShipped, RentalStatusScheduledForShipping, RentalStatusShipped:
		return true
	}
	return false
}

// CanExtend reports whether the rental end date may be pushed out.
func (r *Rental) CanExtend() bool {
	switch r.Status {
	case RentalStatusNotShipped, RentalStatusScheduledForShipping, RentalStatusShipped:
		return true
	}
	return false
}
