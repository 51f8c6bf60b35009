package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rentboard/internal/models"
)

// DeviceSource lists the eligible device pool. The store must exclude offline
// devices.
type DeviceSource interface {
	ListDevicesByFilter(ctx context.Context, model string, isAccessory bool) ([]models.Device, error)
}

// PoolFilter identifies the eligible device pool for a slot search.
type PoolFilter struct {
	Model       string
	IsAccessory bool
}

// Slot is a device plus the occupancy window confirmed free of conflicts. The
// interval carries the computed ship-out/ship-in boundaries so the caller can
// persist them directly.
type Slot struct {
	Device    models.Device
	Occupancy Interval
}

// Finder searches a device pool for the first device free of conflicts for a
// requested window. It is a pure query; serializing the subsequent
// "check then book" sequence is the store's job.
type Finder struct {
	devices  DeviceSource
	detector *Detector
	calc     Calculator
}

// NewFinder creates a slot finder.
func NewFinder(devices DeviceSource, detector *Detector, calc Calculator) *Finder {
	return &Finder{devices: devices, detector: detector, calc: calc}
}

// FindSlot computes the occupancy window once, walks the pool in ascending
// device-ID order and returns the first conflict-free device. The ordering is
// deterministic: repeated calls over unchanged data return the same device.
// Exhaustion of the pool is reported as ErrNoFreeDevice.
func (f *Finder) FindSlot(ctx context.Context, filter PoolFilter, startDate, endDate time.Time, logisticsDays int) (Slot, error) {
	candidate, err := f.calc.ComputeOccupancy(startDate, endDate, logisticsDays)
	if err != nil {
		return Slot{}, err
	}

	devices, err := f.devices.ListDevicesByFilter(ctx, filter.Model, filter.IsAccessory)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: list devices: %v", ErrStoreUnavailable, err)
	}

	// The store returns devices ordered by id already; sorting again keeps the
	// tie-break total order independent of the source implementation.
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	for _, device := range devices {
		if !device.Bookable() {
			continue
		}
		conflict, err := f.detector.HasConflict(ctx, device.ID, candidate, 0)
		if err != nil {
			return Slot{}, err
		}
		if !conflict {
			return Slot{Device: device, Occupancy: candidate}, nil
		}
	}

	return Slot{}, ErrNoFreeDevice
}
