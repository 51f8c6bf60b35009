package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentboard/internal/models"
)

// fakeRentalSource serves canned rentals per device.
type fakeRentalSource struct {
	rentals map[int64][]models.Rental
	err     error
}

func (f *fakeRentalSource) ListActiveRentalsForDevice(_ context.Context, deviceID, excludeRentalID int64) ([]models.Rental, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Rental
	for _, r := range f.rentals[deviceID] {
		if r.IsCancelled() || r.ID == excludeRentalID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func rentalOn(id, deviceID int64, start, end time.Time) models.Rental {
	return models.Rental{
		ID:            id,
		DeviceID:      deviceID,
		StartDate:     start,
		EndDate:       end,
		LogisticsDays: 1,
		Status:        models.RentalStatusNotShipped,
	}
}

func TestDetector_HasConflict(t *testing.T) {
	calc := NewCalculator(time.UTC)

	// Device 1 holds a rental 2025-06-10..2025-06-20 with logistics=1, so its
	// occupancy runs 2025-06-08 09:00 .. 2025-06-22 18:00.
	source := &fakeRentalSource{rentals: map[int64][]models.Rental{
		1: {rentalOn(100, 1, day(2025, 6, 10), day(2025, 6, 20))},
	}}
	detector := NewDetector(source, calc)

	tests := []struct {
		name          string
		start, end    time.Time
		logisticsDays int
		conflict      bool
	}{
		{
			name:          "occupancy reaches into existing window",
			start:         day(2025, 6, 21),
			end:           day(2025, 6, 25),
			logisticsDays: 1, // ship-out 2025-06-19 09:00
			conflict:      true,
		},
		{
			name:          "ship-out day still inside existing ship-in day",
			start:         day(2025, 6, 23),
			end:           day(2025, 6, 25),
			logisticsDays: 1, // ship-out 2025-06-21 09:00 vs ship-in 2025-06-22 18:00
			conflict:      true,
		},
		{
			name:          "first fully clear window after the rental",
			start:         day(2025, 6, 25),
			end:           day(2025, 6, 28),
			logisticsDays: 1, // ship-out 2025-06-23 09:00
			conflict:      false,
		},
		{
			name:          "clear window before the rental",
			start:         day(2025, 6, 1),
			end:           day(2025, 6, 4),
			logisticsDays: 1, // ship-in 2025-06-06 18:00
			conflict:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := calc.ComputeOccupancy(tt.start, tt.end, tt.logisticsDays)
			require.NoError(t, err)

			got, err := detector.HasConflict(context.Background(), 1, candidate, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.conflict, got)
		})
	}
}

func TestDetector_ExcludesEditedRental(t *testing.T) {
	calc := NewCalculator(time.UTC)
	source := &fakeRentalSource{rentals: map[int64][]models.Rental{
		1: {rentalOn(100, 1, day(2025, 6, 10), day(2025, 6, 20))},
	}}
	detector := NewDetector(source, calc)

	candidate, err := calc.ComputeOccupancy(day(2025, 6, 10), day(2025, 6, 20), 1)
	require.NoError(t, err)

	// Re-checking the same rental while editing it must not self-conflict.
	got, err := detector.HasConflict(context.Background(), 1, candidate, 100)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = detector.HasConflict(context.Background(), 1, candidate, 0)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestDetector_IgnoresCancelled(t *testing.T) {
	calc := NewCalculator(time.UTC)
	cancelled := rentalOn(100, 1, day(2025, 6, 10), day(2025, 6, 20))
	cancelled.Status = models.RentalStatusCancelled

	source := &fakeRentalSource{rentals: map[int64][]models.Rental{1: {cancelled}}}
	detector := NewDetector(source, calc)

	candidate, err := calc.ComputeOccupancy(day(2025, 6, 12), day(2025, 6, 15), 1)
	require.NoError(t, err)

	got, err := detector.HasConflict(context.Background(), 1, candidate, 0)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestDetector_PersistedShipTimesWin(t *testing.T) {
	calc := NewCalculator(time.UTC)

	// Legacy booking persisted with a wider window than its dates suggest.
	legacy := rentalOn(100, 1, day(2025, 6, 10), day(2025, 6, 12))
	legacy.ShipOutTime = timePtr(at(2025, 6, 1, 19))
	legacy.ShipInTime = timePtr(at(2025, 6, 30, 12))

	source := &fakeRentalSource{rentals: map[int64][]models.Rental{1: {legacy}}}
	detector := NewDetector(source, calc)

	candidate, err := calc.ComputeOccupancy(day(2025, 6, 25), day(2025, 6, 27), -1)
	require.NoError(t, err)

	got, err := detector.HasConflict(context.Background(), 1, candidate, 0)
	require.NoError(t, err)
	assert.True(t, got, "persisted ship times must be used verbatim")
}

func TestDetector_FailClosedOnStoreError(t *testing.T) {
	calc := NewCalculator(time.UTC)
	source := &fakeRentalSource{err: errors.New("connection refused")}
	detector := NewDetector(source, calc)

	candidate, err := calc.ComputeOccupancy(day(2025, 6, 10), day(2025, 6, 12), 1)
	require.NoError(t, err)

	_, err = detector.HasConflict(context.Background(), 1, candidate, 0)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestDetector_HasConflictBatch(t *testing.T) {
	calc := NewCalculator(time.UTC)
	source := &fakeRentalSource{rentals: map[int64][]models.Rental{
		1: {rentalOn(100, 1, day(2025, 6, 10), day(2025, 6, 20))},
		2: {rentalOn(101, 2, day(2025, 7, 10), day(2025, 7, 20))},
		3: {},
	}}
	detector := NewDetector(source, calc)

	candidate, err := calc.ComputeOccupancy(day(2025, 6, 12), day(2025, 6, 15), 1)
	require.NoError(t, err)

	results, err := detector.HasConflictBatch(context.Background(), []int64{1, 2, 3}, candidate, 0)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true, 2: false, 3: false}, results)
}

func TestDetector_BatchFailsClosed(t *testing.T) {
	calc := NewCalculator(time.UTC)
	source := &fakeRentalSource{err: errors.New("timeout")}
	detector := NewDetector(source, calc)

	candidate, err := calc.ComputeOccupancy(day(2025, 6, 12), day(2025, 6, 15), 1)
	require.NoError(t, err)

	_, err = detector.HasConflictBatch(context.Background(), []int64{1, 2}, candidate, 0)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
