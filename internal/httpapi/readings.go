package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/AndreOrlov/cozytime-bridge/internal/cozytime"
	"github.com/AndreOrlov/cozytime-bridge/internal/readings"
	"github.com/AndreOrlov/cozytime-bridge/internal/types"
	"github.com/AndreOrlov/cozytime-bridge/internal/utils"
)

const (
	defaultReadingsLimit = 50
	maxReadingsLimit     = 1000
)

// currentReading is the decoder state; temperature and humidity are null
// until the first valid frame.
type currentReading struct {
	Valid       bool     `json:"valid"`
	Temperature *float64 `json:"temperature_c"`
	Humidity    *float64 `json:"humidity_pct"`
	RSSI        int      `json:"rssi_dbm"`
}

type readingsResponse struct {
	StationID string            `json:"station_id"`
	Total     int               `json:"total"`
	Readings  []types.Telemetry `json:"readings"`
}

type readingsController struct {
	decoder *cozytime.Decoder
	repo    readings.Repository
}

func registerReadings(mux *http.ServeMux, decoder *cozytime.Decoder, repo readings.Repository) {
	c := &readingsController{decoder: decoder, repo: repo}
	if decoder != nil {
		mux.HandleFunc("GET /api/v1/current", c.handleCurrent)
	}
	if repo != nil {
		mux.HandleFunc("GET /api/v1/readings", c.handleReadings)
		mux.HandleFunc("GET /api/v1/stations", c.handleStations)
	}
}

func (c *readingsController) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	snap := c.decoder.Snapshot()
	out := currentReading{Valid: snap.Valid, RSSI: int(snap.RSSI)}
	if snap.Valid {
		t, h := snap.Temperature, snap.Humidity
		out.Temperature = &t
		out.Humidity = &h
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *readingsController) handleReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	station := strings.TrimSpace(q.Get("station"))
	if station == "" {
		utils.WriteError(w, http.StatusBadRequest, "station is required")
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := c.repo.GetLatestReadings(r.Context(), station, limit)
	if err != nil {
		slog.Error("failed to get readings", "station_id", station, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to get readings")
		return
	}
	total, err := c.repo.GetReadingsCount(r.Context(), station)
	if err != nil {
		slog.Error("failed to count readings", "station_id", station, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to count readings")
		return
	}
	if list == nil {
		list = []types.Telemetry{}
	}
	utils.WriteJSON(w, http.StatusOK, readingsResponse{StationID: station, Total: total, Readings: list})
}

func (c *readingsController) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.repo.GetStations(r.Context())
	if err != nil {
		slog.Error("failed to get stations", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to get stations")
		return
	}
	if stations == nil {
		stations = []readings.Station{}
	}
	utils.WriteJSON(w, http.StatusOK, stations)
}

func parseLimit(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultReadingsLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxReadingsLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxReadingsLimit)
	}
	return n, nil
}
