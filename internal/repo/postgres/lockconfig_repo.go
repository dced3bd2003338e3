package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockGroup is an accommodation's configured lock installation. Many
// accommodations intentionally have none.
type LockGroup struct {
	ID              int64
	AccommodationID int64
	PortalInfo      string
	UnitInfo        string
}

// LockDeviceRow is a raw device/door row before role classification. The
// vendor name is matched against the role map by the resolver.
type LockDeviceRow struct {
	DeviceID   string
	DoorID     string
	VendorName string
}

type LockConfigRepository interface {
	GroupForAccommodation(ctx context.Context, accommodationID int64) (*LockGroup, error)
	DevicesForGroup(ctx context.Context, groupID int64) ([]LockDeviceRow, error)
}

type lockConfigRepository struct {
	pool *pgxpool.Pool
}

func NewLockConfigRepository(pool *pgxpool.Pool) LockConfigRepository {
	return &lockConfigRepository{pool: pool}
}

func (r *lockConfigRepository) GroupForAccommodation(ctx context.Context, accommodationID int64) (*LockGroup, error) {
	const q = `SELECT id, accommodation_id, COALESCE(portal_info,''), COALESCE(unit_info,'')
		FROM lock_groups WHERE accommodation_id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var g LockGroup
	err := r.pool.QueryRow(ctx, q, accommodationID).Scan(
		&g.ID, &g.AccommodationID, &g.PortalInfo, &g.UnitInfo,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &g, err
}

func (r *lockConfigRepository) DevicesForGroup(ctx context.Context, groupID int64) ([]LockDeviceRow, error) {
	const q = `SELECT device_id, door_id, vendor_name
		FROM lock_devices WHERE lock_group_id=$1 ORDER BY id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []LockDeviceRow
	for rows.Next() {
		var d LockDeviceRow
		if err := rows.Scan(&d.DeviceID, &d.DoorID, &d.VendorName); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
