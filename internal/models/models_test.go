package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRental_Helpers(t *testing.T) {
	t.Run("DurationDays counts both endpoints", func(t *testing.T) {
		r := &Rental{StartDate: date(2025, 6, 10), EndDate: date(2025, 6, 20)}
		assert.Equal(t, 11, r.DurationDays())

		single := &Rental{StartDate: date(2025, 6, 10), EndDate: date(2025, 6, 10)}
		assert.Equal(t, 1, single.DurationDays())
	})

	t.Run("IsMainRental", func(t *testing.T) {
		main := &Rental{ID: 1}
		assert.True(t, main.IsMainRental())

		parent := int64(1)
		child := &Rental{ID: 2, ParentRentalID: &parent}
		assert.False(t, child.IsMainRental())
	})

	t.Run("IsOverdue", func(t *testing.T) {
		r := &Rental{
			StartDate: date(2025, 6, 10),
			EndDate:   date(2025, 6, 20),
			Status:    RentalStatusShipped,
		}
		assert.False(t, r.IsOverdue(date(2025, 6, 20)))
		assert.True(t, r.IsOverdue(date(2025, 6, 21)))

		r.Status = RentalStatusReturned
		assert.False(t, r.IsOverdue(date(2025, 6, 25)), "only shipped rentals go overdue")
	})

	t.Run("lifecycle guards", func(t *testing.T) {
		active := &Rental{Status: RentalStatusShipped}
		assert.True(t, active.CanCancel())
		assert.True(t, active.CanExtend())

		done := &Rental{Status: RentalStatusCompleted}
		assert.False(t, done.CanCancel())
		assert.False(t, done.CanExtend())

		cancelled := &Rental{Status: RentalStatusCancelled}
		assert.True(t, cancelled.IsCancelled())
		assert.False(t, cancelled.CanCancel())
	})
}

func TestValidRentalStatus(t *testing.T) {
	for _, s := range []RentalStatus{
		RentalStatusNotShipped, RentalStatusScheduledForShipping, RentalStatusShipped,
		RentalStatusReturned, RentalStatusCompleted, RentalStatusCancelled,
	} {
		assert.True(t, ValidRentalStatus(s), string(s))
	}
	assert.False(t, ValidRentalStatus("teleported"))
	assert.False(t, ValidRentalStatus(""))
}

func TestDevice_Bookable(t *testing.T) {
	for _, s := range []DeviceStatus{
		DeviceStatusIdle, DeviceStatusPendingShip, DeviceStatusRenting,
		DeviceStatusPendingReturn, DeviceStatusReturned,
	} {
		d := &Device{Status: s}
		assert.True(t, d.Bookable(), string(s))
	}

	offline := &Device{Status: DeviceStatusOffline}
	assert.False(t, offline.Bookable())
}
