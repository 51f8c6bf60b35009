package models

import "time"

// DeviceStatus is the lifecycle status of a device. The statuses are mutually
// exclusive and are mutated by booking/shipping workflows, never by the
// scheduling engine itself.
type DeviceStatus string

const (
	DeviceStatusIdle          DeviceStatus = "idle"
	DeviceStatusPendingShip   DeviceStatus = "pending_ship"
	DeviceStatusRenting       DeviceStatus = "renting"
	DeviceStatusPendingReturn DeviceStatus = "pending_return"
	DeviceStatusReturned      DeviceStatus = "returned"
	DeviceStatusOffline       DeviceStatus = "offline"
)

// Device represents a rentable device or an inventory accessory.
type Device struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	SerialNumber string       `json:"serial_number"`
	Model        string       `json:"model"`
	IsAccessory  bool         `json:"is_accessory"`
	Status       DeviceStatus `json:"status"`
	Location     string       `json:"location,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Bookable reports whether the device may be offered to new rentals at all.
// Offline devices are withdrawn from the pool; every other status only means
// the device is busy for some window, which the conflict detector decides.
func (d *Device) Bookable() bool {
	return d.Status != DeviceStatusOffline
}
