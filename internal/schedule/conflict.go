package schedule

import (
	"context"
	"fmt"
	"sync"

	"rentboard/internal/models"
)

// RentalSource lists existing bookings for conflict evaluation. The store
// must exclude cancelled rentals and, when excludeRentalID is non-zero, the
// rental being edited.
type RentalSource interface {
	ListActiveRentalsForDevice(ctx context.Context, deviceID, excludeRentalID int64) ([]models.Rental, error)
}

// Detector decides whether a candidate occupancy interval collides with the
// bookings already held by a device. It performs no writes and keeps no state
// between calls, so it is safe to share across request handlers.
type Detector struct {
	source RentalSource
	calc   Calculator
}

// NewDetector creates a conflict detector over the given rental source.
func NewDetector(source RentalSource, calc Calculator) *Detector {
	return &Detector{source: source, calc: calc}
}

// Conflicts returns every non-cancelled rental of the device whose occupancy
// interval intersects the candidate under the closed-interval rule. A store
// failure is returned as ErrStoreUnavailable, never as an empty result.
func (d *Detector) Conflicts(ctx context.Context, deviceID int64, candidate Interval, excludeRentalID int64) ([]models.Rental, error) {
	rentals, err := d.source.ListActiveRentalsForDevice(ctx, deviceID, excludeRentalID)
	if err != nil {
		return nil, fmt.Errorf("%w: list rentals for device %d: %v", ErrStoreUnavailable, deviceID, err)
	}

	var conflicts []models.Rental
	for _, r := range rentals {
		if r.IsCancelled() {
			continue
		}
		occ, err := d.calc.RentalOccupancy(&r)
		if err != nil {
			// A rental row the occupancy of which cannot be established must
			// block the booking rather than silently pass it.
			return nil, fmt.Errorf("%w: occupancy of rental %d: %v", ErrStoreUnavailable, r.ID, err)
		}
		if candidate.Overlaps(occ) {
			conflicts = append(conflicts, r)
		}
	}
	return conflicts, nil
}

// HasConflict reports whether any existing occupancy interval of the device
// intersects the candidate. Fail-closed: a lookup failure yields an error, not
// a false "no conflict".
func (d *Detector) HasConflict(ctx context.Context, deviceID int64, candidate Interval, excludeRentalID int64) (bool, error) {
	conflicts, err := d.Conflicts(ctx, deviceID, candidate, excludeRentalID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// HasConflictBatch evaluates the candidate against a set of devices. Each
// check is self-contained and order-independent, so they run concurrently.
// Any failed lookup fails the whole batch.
func (d *Detector) HasConflictBatch(ctx context.Context, deviceIDs []int64, candidate Interval, excludeRentalID int64) (map[int64]bool, error) {
	results := make(map[int64]bool, len(deviceIDs))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, id := range deviceIDs {
		wg.Add(1)
		go func(deviceID int64) {
			defer wg.Done()
			conflict, err := d.HasConflict(ctx, deviceID, candidate, excludeRentalID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[deviceID] = conflict
		}(id)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
