package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentboard/internal/events"
	"rentboard/internal/models"
	"rentboard/internal/schedule"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	devices map[int64]models.Device
	rentals map[int64]models.Rental
	nextID  int64
	calc    schedule.Calculator
}

func newMemStore() *memStore {
	return &memStore{
		devices: make(map[int64]models.Device),
		rentals: make(map[int64]models.Rental),
		nextID:  1,
		calc:    schedule.NewCalculator(time.UTC),
	}
}

func (m *memStore) addDevice(id int64, model string, isAccessory bool) {
	m.devices[id] = models.Device{
		ID: id, Name: model, Model: model, IsAccessory: isAccessory,
		Status: models.DeviceStatusIdle,
	}
}

func (m *memStore) ListActiveRentalsForDevice(_ context.Context, deviceID, excludeRentalID int64) ([]models.Rental, error) {
	var out []models.Rental
	for _, r := range m.rentals {
		if r.DeviceID != deviceID || r.IsCancelled() || r.ID == excludeRentalID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) ListDevicesByFilter(_ context.Context, model string, isAccessory bool) ([]models.Device, error) {
	var out []models.Device
	for _, d := range m.devices {
		if d.Status == models.DeviceStatusOffline || d.IsAccessory != isAccessory {
			continue
		}
		if model != "" && d.Model != model {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) ListRentalsByCustomerAndDestination(_ context.Context, customerName, destination string) ([]models.Rental, error) {
	var out []models.Rental
	for _, r := range m.rentals {
		if !r.IsCancelled() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetDevice(_ context.Context, id int64) (*models.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, schedule.ErrStoreUnavailable
	}
	return &d, nil
}

func (m *memStore) ListDevices(_ context.Context) ([]models.Device, error) {
	var out []models.Device
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) GetRental(_ context.Context, id int64) (*models.Rental, error) {
	r, ok := m.rentals[id]
	if !ok {
		return nil, schedule.ErrStoreUnavailable
	}
	return &r, nil
}

func (m *memStore) ListRentals(_ context.Context) ([]models.Rental, error) {
	var out []models.Rental
	for _, r := range m.rentals {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) ListRentalChildren(_ context.Context, parentID int64) ([]models.Rental, error) {
	var out []models.Rental
	for _, r := range m.rentals {
		if r.ParentRentalID != nil && *r.ParentRentalID == parentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListRentalsInRange(_ context.Context, from, to time.Time) ([]models.Rental, error) {
	var out []models.Rental
	for _, r := range m.rentals {
		if !r.IsCancelled() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CreateRentalWithAccessories(_ context.Context, main *models.Rental, accessoryDeviceIDs []int64) (int64, error) {
	occ, err := m.calc.ComputeOccupancy(main.StartDate, main.EndDate, main.LogisticsDays)
	if err != nil {
		return 0, err
	}
	main.ID = m.nextID
	m.nextID++
	main.ShipOutTime = &occ.ShipOut
	main.ShipInTime = &occ.ShipIn
	m.rentals[main.ID] = *main

	parentID := main.ID
	for _, deviceID := range accessoryDeviceIDs {
		child := *main
		child.ID = m.nextID
		m.nextID++
		child.DeviceID = deviceID
		child.ParentRentalID = &parentID
		m.rentals[child.ID] = child
	}
	return main.ID, nil
}

func (m *memStore) UpdateRentalStatus(_ context.Context, id int64, status models.RentalStatus) error {
	r := m.rentals[id]
	r.Status = status
	m.rentals[id] = r
	return nil
}

func (m *memStore) CancelRental(_ context.Context, id int64) error {
	return m.UpdateRentalStatus(context.Background(), id, models.RentalStatusCancelled)
}

func (m *memStore) ExtendRental(_ context.Context, id int64, newEndDate time.Time) error {
	r := m.rentals[id]
	r.EndDate = newEndDate
	m.rentals[id] = r
	return nil
}

func (m *memStore) SetTrackingNumbers(_ context.Context, id int64, outbound, inbound string) error {
	r := m.rentals[id]
	r.ShipOutTrackingNo = outbound
	r.ShipInTrackingNo = inbound
	m.rentals[id] = r
	return nil
}

func newTestService(store *memStore) *BookingService {
	logger := zerolog.Nop()
	return NewBookingService(store, schedule.NewCalculator(time.UTC), events.NewEventBus(), &logger)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFindAndBook(t *testing.T) {
	store := newMemStore()
	store.addDevice(1, "cam-x", false)
	store.addDevice(2, "cam-x", false)
	store.addDevice(10, "tripod", true)
	svc := newTestService(store)

	result, err := svc.FindAndBook(context.Background(), BookingRequest{
		Model:           "cam-x",
		StartDate:       day(2025, 6, 10),
		EndDate:         day(2025, 6, 20),
		LogisticsDays:   1,
		CustomerName:    "张三",
		Destination:     "北京",
		AccessoryModels: []string{"tripod"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Rental.DeviceID, "lowest free device id wins")
	assert.NotEmpty(t, result.Rental.OrderRef)
	assert.False(t, result.Duplicates.HasDuplicate, "own booking is excluded from the duplicate check")

	children, err := store.ListRentalChildren(context.Background(), result.Rental.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, int64(10), children[0].DeviceID)

	// Same window again: device 1 is taken, the finder falls through to 2.
	result, err = svc.FindAndBook(context.Background(), BookingRequest{
		Model:         "cam-x",
		StartDate:     day(2025, 6, 10),
		EndDate:       day(2025, 6, 20),
		LogisticsDays: 1,
		CustomerName:  "李四",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Rental.DeviceID)

	// Pool exhausted.
	_, err = svc.FindAndBook(context.Background(), BookingRequest{
		Model:         "cam-x",
		StartDate:     day(2025, 6, 10),
		EndDate:       day(2025, 6, 20),
		LogisticsDays: 1,
		CustomerName:  "王五",
	})
	assert.ErrorIs(t, err, schedule.ErrNoFreeDevice)
}

func TestFindAndBook_ReportsDuplicates(t *testing.T) {
	store := newMemStore()
	store.addDevice(1, "cam-x", false)
	store.addDevice(2, "cam-x", false)
	svc := newTestService(store)

	_, err := svc.FindAndBook(context.Background(), BookingRequest{
		Model:         "cam-x",
		StartDate:     day(2025, 6, 10),
		EndDate:       day(2025, 6, 15),
		LogisticsDays: 1,
		CustomerName:  "张三",
		Destination:   "北京",
	})
	require.NoError(t, err)

	result, err := svc.FindAndBook(context.Background(), BookingRequest{
		Model:         "cam-x",
		StartDate:     day(2025, 6, 12),
		EndDate:       day(2025, 6, 18),
		LogisticsDays: 1,
		CustomerName:  "张三",
		Destination:   "北京",
	})
	require.NoError(t, err, "duplicates warn, they never block")
	assert.True(t, result.Duplicates.HasDuplicate)
	require.Len(t, result.Duplicates.Matches, 1)
}

func TestFindAndBook_Validation(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.FindAndBook(context.Background(), BookingRequest{
		Model:     "cam-x",
		StartDate: day(2025, 6, 10),
		EndDate:   day(2025, 6, 20),
	})
	assert.ErrorIs(t, err, schedule.ErrInvalidRequest, "customer name is required")

	_, err = svc.FindAndBook(context.Background(), BookingRequest{
		CustomerName: "张三",
		StartDate:    day(2025, 6, 10),
		EndDate:      day(2025, 6, 20),
	})
	assert.ErrorIs(t, err, schedule.ErrInvalidRequest, "model or device id is required")
}

func TestFindAndBook_ExplicitOfflineDevice(t *testing.T) {
	store := newMemStore()
	store.addDevice(1, "cam-x", false)
	offline := store.devices[1]
	offline.Status = models.DeviceStatusOffline
	store.devices[1] = offline
	svc := newTestService(store)

	_, err := svc.FindAndBook(context.Background(), BookingRequest{
		DeviceID:      1,
		StartDate:     day(2025, 6, 10),
		EndDate:       day(2025, 6, 20),
		LogisticsDays: 1,
		CustomerName:  "张三",
	})
	assert.ErrorIs(t, err, schedule.ErrInvalidRequest)
}

func TestTimeline(t *testing.T) {
	store := newMemStore()
	store.addDevice(1, "cam-x", false)
	store.addDevice(2, "cam-x", false)
	svc := newTestService(store)

	_, err := svc.FindAndBook(context.Background(), BookingRequest{
		DeviceID:      1,
		StartDate:     day(2025, 6, 10),
		EndDate:       day(2025, 6, 12),
		LogisticsDays: 1,
		CustomerName:  "张三",
	})
	require.NoError(t, err)

	timelines, err := svc.Timeline(context.Background(), day(2025, 6, 8), day(2025, 6, 14))
	require.NoError(t, err)
	require.Len(t, timelines, 2)

	byDevice := make(map[int64][]schedule.DayCell)
	for _, tl := range timelines {
		byDevice[tl.Device.ID] = tl.Cells
	}
	require.Len(t, byDevice[1], 7)
	assert.Equal(t, schedule.CellLogisticsOut, byDevice[1][0].Kind)
	assert.Equal(t, schedule.CellRental, byDevice[1][2].Kind)
	assert.Equal(t, schedule.CellLogisticsIn, byDevice[1][6].Kind)
	for _, cell := range byDevice[2] {
		assert.Equal(t, schedule.CellEmpty, cell.Kind, "untouched device stays empty")
	}
}
