package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentboard/internal/models"
	"rentboard/internal/schedule"
)

const rentalColumns = `id, device_id, parent_rental_id, start_date, end_date,
	ship_out_time, ship_in_time, logistics_days, status,
	customer_name, customer_phone, destination,
	tracking_no_out, tracking_no_in, order_ref, created_at, updated_at`

// GetRental returns a rental by id.
func (db *DB) GetRental(ctx context.Context, id int64) (*models.Rental, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE id = ?`, id)
	rental, err := scanRental(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rental %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rental: %w", err)
	}
	return rental, nil
}

// ListActiveRentalsForDevice returns the non-cancelled rentals of a device,
// optionally excluding one rental (the one being edited).
func (db *DB) ListActiveRentalsForDevice(ctx context.Context, deviceID, excludeRentalID int64) ([]models.Rental, error) {
	return db.listActiveRentalsForDevice(ctx, db.DB, deviceID, excludeRentalID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (db *DB) listActiveRentalsForDevice(ctx context.Context, q querier, deviceID, excludeRentalID int64) ([]models.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals
		WHERE device_id = ? AND status != ?`
	args := []interface{}{deviceID, models.RentalStatusCancelled}
	if excludeRentalID != 0 {
		query += ` AND id != ?`
		args = append(args, excludeRentalID)
	}
	query += ` ORDER BY start_date`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query device rentals: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

// ListRentalsByCustomerAndDestination returns non-cancelled rentals matching
// the customer name or the destination. The match here is a coarse SQL
// pre-filter; the duplicate detector applies the exact rules in memory.
func (db *DB) ListRentalsByCustomerAndDestination(ctx context.Context, customerName, destination string) ([]models.Rental, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+rentalColumns+` FROM rentals
		WHERE status != ? AND (
			(? != '' AND TRIM(customer_name) = TRIM(?) COLLATE NOCASE) OR
			(? != '' AND TRIM(destination) = TRIM(?) COLLATE NOCASE)
		)
		ORDER BY start_date`,
		models.RentalStatusCancelled,
		customerName, customerName,
		destination, destination,
	)
	if err != nil {
		return nil, fmt.Errorf("query customer rentals: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

// ListRentalsInRange returns rentals whose stay could touch the display range
// [from, to]. The range is padded in SQL to cover shipping buffers of legacy
// rows; exact day classification happens in the timeline materializer.
func (db *DB) ListRentalsInRange(ctx context.Context, from, to time.Time) ([]models.Rental, error) {
	pad := 7 * 24 * time.Hour
	rows, err := db.QueryContext(ctx, `
		SELECT `+rentalColumns+` FROM rentals
		WHERE status != ?
		  AND COALESCE(ship_in_time, end_date) >= ?
		  AND COALESCE(ship_out_time, start_date) <= ?
		ORDER BY device_id, start_date`,
		models.RentalStatusCancelled, from.Add(-pad), to.Add(pad),
	)
	if err != nil {
		return nil, fmt.Errorf("query rentals in range: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

// ListRentals returns all rentals, newest first.
func (db *DB) ListRentals(ctx context.Context) ([]models.Rental, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query rentals: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

// ListRentalChildren returns the accessory rentals bundled under a main
// rental.
func (db *DB) ListRentalChildren(ctx context.Context, parentID int64) ([]models.Rental, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+rentalColumns+` FROM rentals
		WHERE parent_rental_id = ? ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query child rentals: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

// CreateRentalWithAccessories books the main rental plus one child rental per
// accessory device, all sharing the main rental's window and customer. The
// conflict check is repeated inside the transaction for every involved device,
// so two concurrent bookings of the same device cannot both pass.
func (db *DB) CreateRentalWithAccessories(ctx context.Context, main *models.Rental, accessoryDeviceIDs []int64) (int64, error) {
	occ, err := db.calc.ComputeOccupancy(main.StartDate, main.EndDate, main.LogisticsDays)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deviceIDs := append([]int64{main.DeviceID}, accessoryDeviceIDs...)
	for _, deviceID := range deviceIDs {
		if err := db.checkDeviceFreeTx(ctx, tx, deviceID, occ, 0); err != nil {
			return 0, err
		}
	}

	main.ShipOutTime = &occ.ShipOut
	main.ShipInTime = &occ.ShipIn
	if main.Status == "" {
		main.Status = models.RentalStatusNotShipped
	}

	mainID, err := db.insertRentalTx(ctx, tx, main)
	if err != nil {
		return 0, err
	}
	main.ID = mainID

	for _, deviceID := range accessoryDeviceIDs {
		child := *main
		child.ID = 0
		child.DeviceID = deviceID
		child.ParentRentalID = &mainID
		if _, err := db.insertRentalTx(ctx, tx, &child); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return mainID, nil
}

// checkDeviceFreeTx re-runs the conflict check inside the booking transaction.
func (db *DB) checkDeviceFreeTx(ctx context.Context, tx *sql.Tx, deviceID int64, occ schedule.Interval, excludeRentalID int64) error {
	existing, err := db.listActiveRentalsForDevice(ctx, tx, deviceID, excludeRentalID)
	if err != nil {
		return err
	}
	for i := range existing {
		held, err := db.calc.RentalOccupancy(&existing[i])
		if err != nil {
			return fmt.Errorf("occupancy of rental %d: %w", existing[i].ID, err)
		}
		if occ.Overlaps(held) {
			return fmt.Errorf("device %d already booked by rental %d: %w",
				deviceID, existing[i].ID, ErrConflict)
		}
	}
	return nil
}

func (db *DB) insertRentalTx(ctx context.Context, tx *sql.Tx, r *models.Rental) (int64, error) {
	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO rentals (
			device_id, parent_rental_id, start_date, end_date,
			ship_out_time, ship_in_time, logistics_days, status,
			customer_name, customer_phone, destination,
			tracking_no_out, tracking_no_in, order_ref, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DeviceID, r.ParentRentalID, r.StartDate, r.EndDate,
		r.ShipOutTime, r.ShipInTime, r.LogisticsDays, r.Status,
		r.CustomerName, r.CustomerPhone, r.Destination,
		r.ShipOutTrackingNo, r.ShipInTrackingNo, r.OrderRef, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert rental: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last id: %w", err)
	}
	return id, nil
}

// UpdateRentalStatus moves a rental to a new status and cascades the change to
// its accessory children. Cancelled and completed rentals are terminal.
func (db *DB) UpdateRentalStatus(ctx context.Context, id int64, status models.RentalStatus) error {
	if !models.ValidRentalStatus(status) {
		return fmt.Errorf("status %q: %w", status, ErrInvalidTransfer)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rental, err := db.getRentalTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if rental.Status == models.RentalStatusCancelled || rental.Status == models.RentalStatusCompleted {
		return fmt.Errorf("rental %d is %s: %w", id, rental.Status, ErrInvalidTransfer)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE rentals SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	// Legacy rows created before ship times were persisted get them stamped
	// the first time the rental enters the shipping workflow.
	if status == models.RentalStatusScheduledForShipping &&
		(rental.ShipOutTime == nil || rental.ShipInTime == nil) {
		occ, err := db.calc.ComputeOccupancy(rental.StartDate, rental.EndDate, rental.LogisticsDays)
		if err == nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE rentals SET ship_out_time = ?, ship_in_time = ? WHERE id = ?`,
				occ.ShipOut, occ.ShipIn, id,
			); err != nil {
				return fmt.Errorf("stamp ship times: %w", err)
			}
		}
	}

	// Accessories travel in the same parcel as the main device.
	if _, err := tx.ExecContext(ctx, `
		UPDATE rentals SET status = ?, updated_at = ?
		WHERE parent_rental_id = ? AND status != ?`,
		status, now, id, models.RentalStatusCancelled,
	); err != nil {
		return fmt.Errorf("cascade status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CancelRental soft-retires a rental and its accessory children. The freed
// window becomes bookable immediately.
func (db *DB) CancelRental(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rental, err := db.getRentalTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !rental.CanCancel() {
		return fmt.Errorf("rental %d is %s: %w", id, rental.Status, ErrInvalidTransfer)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE rentals SET status = ?, updated_at = ?
		WHERE id = ? OR parent_rental_id = ?`,
		models.RentalStatusCancelled, now, id, id,
	); err != nil {
		return fmt.Errorf("cancel rental: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ExtendRental pushes the end date of a rental (and its accessory children)
// out, re-checking every involved device for conflicts under the stretched
// occupancy window before anything changes.
func (db *DB) ExtendRental(ctx context.Context, id int64, newEndDate time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rental, err := db.getRentalTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !rental.CanExtend() {
		return fmt.Errorf("rental %d is %s: %w", id, rental.Status, ErrInvalidTransfer)
	}
	if newEndDate.Before(rental.EndDate) {
		return fmt.Errorf("new end date precedes current one: %w", schedule.ErrInvalidRequest)
	}

	occ, err := db.calc.ComputeOccupancy(rental.StartDate, newEndDate, rental.LogisticsDays)
	if err != nil {
		return err
	}

	family := []models.Rental{*rental}
	children, err := db.listChildrenTx(ctx, tx, id)
	if err != nil {
		return err
	}
	family = append(family, children...)

	for i := range family {
		if family[i].IsCancelled() {
			continue
		}
		if err := db.checkDeviceFreeTx(ctx, tx, family[i].DeviceID, occ, family[i].ID); err != nil {
			return err
		}
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE rentals SET end_date = ?, ship_in_time = ?, updated_at = ?
		WHERE (id = ? OR parent_rental_id = ?) AND status != ?`,
		newEndDate, occ.ShipIn, now, id, id, models.RentalStatusCancelled,
	); err != nil {
		return fmt.Errorf("extend rental: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetTrackingNumbers records the courier tracking numbers of a rental.
func (db *DB) SetTrackingNumbers(ctx context.Context, id int64, outbound, inbound string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE rentals SET tracking_no_out = ?, tracking_no_in = ?, updated_at = ?
		WHERE id = ?`,
		outbound, inbound, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set tracking numbers: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rental %d: %w", id, ErrNotFound)
	}
	return nil
}

// RentalStatistics aggregates rental counts per status.
func (db *DB) RentalStatistics(ctx context.Context) (map[models.RentalStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM rentals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count rentals: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RentalStatus]int)
	for rows.Next() {
		var status models.RentalStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (db *DB) getRentalTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Rental, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE id = ?`, id)
	rental, err := scanRental(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rental %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rental: %w", err)
	}
	return rental, nil
}

func (db *DB) listChildrenTx(ctx context.Context, tx *sql.Tx, parentID int64) ([]models.Rental, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+rentalColumns+` FROM rentals WHERE parent_rental_id = ?`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query child rentals: %w", err)
	}
	defer rows.Close()
	return collectRentals(rows)
}

func collectRentals(rows *sql.Rows) ([]models.Rental, error) {
	var rentals []models.Rental
	for rows.Next() {
		rental, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rental: %w", err)
		}
		rentals = append(rentals, *rental)
	}
	return rentals, rows.Err()
}

func scanRental(row rowScanner) (*models.Rental, error) {
	var r models.Rental
	var parentID sql.NullInt64
	var shipOut, shipIn sql.NullTime
	var phone, destination, trackOut, trackIn, orderRef sql.NullString

	err := row.Scan(&r.ID, &r.DeviceID, &parentID, &r.StartDate, &r.EndDate,
		&shipOut, &shipIn, &r.LogisticsDays, &r.Status,
		&r.CustomerName, &phone, &destination,
		&trackOut, &trackIn, &orderRef, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		r.ParentRentalID = &parentID.Int64
	}
	if shipOut.Valid {
		t := shipOut.Time
		r.ShipOutTime = &t
	}
	if shipIn.Valid {
		t := shipIn.Time
		r.ShipInTime = &t
	}
	r.CustomerPhone = phone.String
	r.Destination = destination.String
	r.ShipOutTrackingNo = trackOut.String
	r.ShipInTrackingNo = trackIn.String
	r.OrderRef = orderRef.String
	return &r, nil
}
