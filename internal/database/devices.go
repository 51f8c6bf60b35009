package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentboard/internal/models"
)

// CreateDevice inserts a new device and returns its id.
func (db *DB) CreateDevice(ctx context.Context, device *models.Device) (int64, error) {
	if device.Status == "" {
		device.Status = models.DeviceStatusIdle
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, `
		INSERT INTO devices (name, serial_number, model, is_accessory, status, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		device.Name, device.SerialNumber, device.Model, device.IsAccessory,
		device.Status, device.Location, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert device: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last id: %w", err)
	}
	device.ID = id
	return id, nil
}

// GetDevice returns a device by id.
func (db *DB) GetDevice(ctx context.Context, id int64) (*models.Device, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, serial_number, model, is_accessory, status, location, created_at, updated_at
		FROM devices WHERE id = ?`, id)

	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return device, nil
}

// ListDevices returns all devices ordered by id.
func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	return db.queryDevices(ctx, `
		SELECT id, name, serial_number, model, is_accessory, status, location, created_at, updated_at
		FROM devices ORDER BY id`)
}

// ListDevicesByFilter returns bookable devices of a model, ordered by id.
// Offline devices never enter the pool. An empty model matches all models.
func (db *DB) ListDevicesByFilter(ctx context.Context, model string, isAccessory bool) ([]models.Device, error) {
	query := `
		SELECT id, name, serial_number, model, is_accessory, status, location, created_at, updated_at
		FROM devices
		WHERE is_accessory = ? AND status != ?`
	args := []interface{}{isAccessory, models.DeviceStatusOffline}
	if model != "" {
		query += ` AND model = ?`
		args = append(args, model)
	}
	query += ` ORDER BY id`
	return db.queryDevices(ctx, query, args...)
}

// UpdateDeviceStatus moves a device to a new status.
func (db *DB) UpdateDeviceStatus(ctx context.Context, id int64, status models.DeviceStatus) error {
	result, err := db.ExecContext(ctx, `
		UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateDevice updates the mutable device fields.
func (db *DB) UpdateDevice(ctx context.Context, device *models.Device) error {
	result, err := db.ExecContext(ctx, `
		UPDATE devices
		SET name = ?, serial_number = ?, model = ?, is_accessory = ?, status = ?, location = ?, updated_at = ?
		WHERE id = ?`,
		device.Name, device.SerialNumber, device.Model, device.IsAccessory,
		device.Status, device.Location, time.Now(), device.ID,
	)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("device %d: %w", device.ID, ErrNotFound)
	}
	return nil
}

// CountDevicesByStatus returns the device count per status.
func (db *DB) CountDevicesByStatus(ctx context.Context) (map[models.DeviceStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM devices GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count devices: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DeviceStatus]int)
	for rows.Next() {
		var status models.DeviceStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (db *DB) queryDevices(ctx context.Context, query string, args ...interface{}) ([]models.Device, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var serial, location sql.NullString
	err := row.Scan(&d.ID, &d.Name, &serial, &d.Model, &d.IsAccessory,
		&d.Status, &location, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.SerialNumber = serial.String
	d.Location = location.String
	return &d, nil
}
