package readings

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/AndreOrlov/cozytime-bridge/internal/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/get-latest-readings.sql
var getLatestReadingsSQL string

//go:embed sql/get-readings-count.sql
var getReadingsCountSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/delete-readings-before.sql
var deleteReadingsBeforeSQL string

// Station is a station that has stored readings.
type Station struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
}

type Repository interface {
	InsertReading(ctx context.Context, t types.Telemetry) error
	GetLatestReadings(ctx context.Context, stationID string, limit int) ([]types.Telemetry, error)
	GetReadingsCount(ctx context.Context, stationID string) (int, error)
	GetStations(ctx context.Context) ([]Station, error)
	DeleteReadingsBefore(ctx context.Context, before time.Time) (int64, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertReading(ctx context.Context, t types.Telemetry) error {
	if t.StationID == "" {
		return fmt.Errorf("insert reading: station_id is required")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("insert reading: timestamp is required")
	}
	if t.Temperature == nil && t.Humidity == nil && t.Pressure == nil {
		return fmt.Errorf("insert reading: at least one of temperature, humidity or pressure is required")
	}

	var address any
	if t.Address != "" {
		address = t.Address
	}
	_, err := r.db.ExecContext(ctx, insertReadingSQL,
		t.StationID,
		address,
		formatTS(t.Timestamp),
		nullable(t.Temperature),
		nullable(t.Humidity),
		nullable(t.Pressure),
		nullable(t.RSSI),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetLatestReadings(ctx context.Context, stationID string, limit int) ([]types.Telemetry, error) {
	rows, err := r.db.QueryContext(ctx, getLatestReadingsSQL, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest readings rows", "error", err)
		}
	}()

	var out []types.Telemetry
	for rows.Next() {
		var (
			rec              types.Telemetry
			ts               string
			temp, hum, press sql.NullFloat64
			rssi             sql.NullInt64
		)
		if err := rows.Scan(&rec.StationID, &rec.Address, &ts, &temp, &hum, &press, &rssi); err != nil {
			return nil, err
		}
		if rec.Timestamp, err = parseTS(ts); err != nil {
			return nil, err
		}
		rec.Temperature = floatPtr(temp)
		rec.Humidity = floatPtr(hum)
		rec.Pressure = floatPtr(press)
		if rssi.Valid {
			v := int(rssi.Int64)
			rec.RSSI = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetReadingsCount(ctx context.Context, stationID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, getReadingsCountSQL, stationID).Scan(&n)
	return n, err
}

func (r *repositoryImpl) GetStations(ctx context.Context) ([]Station, error) {
	rows, err := r.db.QueryContext(ctx, getStationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()

	var out []Station
	for rows.Next() {
		var s Station
		var ts string
		if err := rows.Scan(&s.ID, &ts); err != nil {
			return nil, err
		}
		if s.LastSeen, err = parseTS(ts); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) DeleteReadingsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteReadingsBeforeSQL, formatTS(before))
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return res.RowsAffected()
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339Nano, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	return t, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
