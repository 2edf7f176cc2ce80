package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// DeviceStore is the device catalog the agent enumerates to drive its
// per-device scheduled work (health assessment, prognostics, cycle
// analysis) — none of those are triggered by an inbound request, so
// something has to hand the agent a device list on a timer.
type DeviceStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewDeviceStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *DeviceStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &DeviceStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

// List returns every enabled device known to the catalog.
func (s *DeviceStore) List(ctx context.Context) ([]model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT device_id, name, edge_id, enabled, updated_at FROM device WHERE enabled ORDER BY device_id`)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.DeviceID, &d.Name, &d.EdgeID, &d.Enabled, &d.UpdatedAt); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, d)
	}
	return out, classifyErr(rows.Err(), 0)
}
