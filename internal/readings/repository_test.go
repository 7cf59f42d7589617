package readings

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AndreOrlov/cozytime-bridge/internal/migrate"
	"github.com/AndreOrlov/cozytime-bridge/internal/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func ptr[T any](v T) *T { return &v }

var base = time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)

func TestInsertAndGetLatestReadings(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := repo.InsertReading(ctx, types.Telemetry{
			StationID:   "bedroom",
			Address:     "AA:BB:CC:DD:EE:01",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Temperature: ptr(9.2 + float64(i)),
			Humidity:    ptr(44.0),
			RSSI:        ptr(-60 - i),
		})
		if err != nil {
			t.Fatalf("InsertReading #%d: %v", i, err)
		}
	}
	if err := repo.InsertReading(ctx, types.Telemetry{StationID: "gateway", Timestamp: base, Pressure: ptr(1013.2)}); err != nil {
		t.Fatalf("InsertReading gateway: %v", err)
	}

	got, err := repo.GetLatestReadings(ctx, "bedroom", 2)
	if err != nil {
		t.Fatalf("GetLatestReadings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetLatestReadings: got %d readings, want 2", len(got))
	}
	newest := got[0]
	if !newest.Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("newest Timestamp = %v", newest.Timestamp)
	}
	if newest.Temperature == nil || *newest.Temperature != 11.2 {
		t.Errorf("newest Temperature = %v, want 11.2", newest.Temperature)
	}
	if newest.RSSI == nil || *newest.RSSI != -62 {
		t.Errorf("newest RSSI = %v, want -62", newest.RSSI)
	}
	if newest.Address != "AA:BB:CC:DD:EE:01" {
		t.Errorf("newest Address = %q", newest.Address)
	}
	if newest.Pressure != nil {
		t.Errorf("newest Pressure = %v, want nil", *newest.Pressure)
	}

	gw, err := repo.GetLatestReadings(ctx, "gateway", 10)
	if err != nil {
		t.Fatalf("GetLatestReadings gateway: %v", err)
	}
	if len(gw) != 1 || gw[0].Temperature != nil || gw[0].Pressure == nil || *gw[0].Pressure != 1013.2 || gw[0].Address != "" {
		t.Errorf("gateway readings = %+v", gw)
	}

	n, err := repo.GetReadingsCount(ctx, "bedroom")
	if err != nil {
		t.Fatalf("GetReadingsCount: %v", err)
	}
	if n != 3 {
		t.Errorf("GetReadingsCount = %d, want 3", n)
	}
}

func TestGetLatestReadings_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	got, err := repo.GetLatestReadings(context.Background(), "nowhere", 10)
	if err != nil {
		t.Fatalf("GetLatestReadings: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d readings, want 0", len(got))
	}
}

func TestInsertReading_Validation(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	tests := []struct {
		name string
		in   types.Telemetry
	}{
		{name: "missing station", in: types.Telemetry{Timestamp: base, Temperature: ptr(20.0)}},
		{name: "missing timestamp", in: types.Telemetry{StationID: "bedroom", Temperature: ptr(20.0)}},
		{name: "no values", in: types.Telemetry{StationID: "bedroom", Timestamp: base, RSSI: ptr(-60)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.InsertReading(ctx, tt.in); err == nil {
				t.Fatal("InsertReading() error = nil, want non-nil")
			}
		})
	}
}

// Humidity outside 0..100 is stored as decoded.
func TestInsertReading_KeepsOutOfRangeHumidity(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.InsertReading(ctx, types.Telemetry{StationID: "bedroom", Timestamp: base, Humidity: ptr(-6.0)}); err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
	got, err := repo.GetLatestReadings(ctx, "bedroom", 1)
	if err != nil {
		t.Fatalf("GetLatestReadings: %v", err)
	}
	if len(got) != 1 || got[0].Humidity == nil || *got[0].Humidity != -6 {
		t.Errorf("got %+v, want humidity -6", got)
	}
}

func TestGetStations(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	inserts := []types.Telemetry{
		{StationID: "bedroom", Timestamp: base, Temperature: ptr(20.0)},
		{StationID: "bedroom", Timestamp: base.Add(time.Hour), Temperature: ptr(21.0)},
		{StationID: "attic", Timestamp: base.Add(time.Minute), Humidity: ptr(50.0)},
	}
	for _, in := range inserts {
		if err := repo.InsertReading(ctx, in); err != nil {
			t.Fatalf("InsertReading: %v", err)
		}
	}

	got, err := repo.GetStations(ctx)
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetStations: got %d, want 2", len(got))
	}
	if got[0].ID != "attic" || !got[0].LastSeen.Equal(base.Add(time.Minute)) {
		t.Errorf("stations[0] = %+v", got[0])
	}
	if got[1].ID != "bedroom" || !got[1].LastSeen.Equal(base.Add(time.Hour)) {
		t.Errorf("stations[1] = %+v", got[1])
	}
}

func TestDeleteReadingsBefore(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		err := repo.InsertReading(ctx, types.Telemetry{StationID: "bedroom", Timestamp: base.Add(time.Duration(i) * 24 * time.Hour), Temperature: ptr(20.0)})
		if err != nil {
			t.Fatalf("InsertReading: %v", err)
		}
	}

	n, err := repo.DeleteReadingsBefore(ctx, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("DeleteReadingsBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}
	left, err := repo.GetReadingsCount(ctx, "bedroom")
	if err != nil {
		t.Fatalf("GetReadingsCount: %v", err)
	}
	if left != 2 {
		t.Errorf("%d readings left, want 2", left)
	}
}

func TestParseTS(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
	got, err := parseTS(formatTS(ts))
	if err != nil {
		t.Fatalf("parseTS: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("parseTS(formatTS(%v)) = %v", ts, got)
	}
	if _, err := parseTS("2025-01-02T03:04:05Z"); err != nil {
		t.Errorf("parseTS(RFC3339) error = %v", err)
	}
	if _, err := parseTS("yesterday"); err == nil {
		t.Error("parseTS(garbage) error = nil, want non-nil")
	}
}
