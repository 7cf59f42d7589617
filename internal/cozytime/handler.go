package cozytime

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AndreOrlov/cozytime-bridge/internal/ble"
	"github.com/AndreOrlov/cozytime-bridge/internal/metrics"
	"github.com/AndreOrlov/cozytime-bridge/internal/types"
	"github.com/AndreOrlov/cozytime-bridge/internal/utils"
)

const maxTrackedDevices = 500

// Sink is a named telemetry consumer (MQTT, local store).
type Sink struct {
	Name   string
	Handle types.TelemetryHandler
}

type HandlerOptions struct {
	// DefaultStation is used for addresses missing from Stations.
	DefaultStation string
	// Stations maps upper-case device addresses to station ids.
	Stations map[string]string
	// MinInterval is the minimum time between two forwards of unchanged
	// values from the same device. Zero forwards every decode.
	MinInterval time.Duration

	Sinks   []Sink
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// StationSeen is the last time a station produced a valid reading.
type StationSeen struct {
	StationID string
	LastSeen  time.Time
}

type forwardState struct {
	at          time.Time
	temperature float64
	humidity    float64
}

// Handler decodes CozyTime advertisements and forwards readings to sinks.
// It implements ble.DeviceListener.
type Handler struct {
	decoder *Decoder
	opts    HandlerOptions
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	forwarded map[string]forwardState
	lastSeen  map[string]time.Time
}

func NewHandler(decoder *Decoder, opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultStation == "" {
		opts.DefaultStation = "cozytime"
	}
	return &Handler{
		decoder:   decoder,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		forwarded: make(map[string]forwardState),
		lastSeen:  make(map[string]time.Time),
	}
}

// ParseDevice handles the first manufacturer record carrying the CozyTime id.
func (h *Handler) ParseDevice(d ble.Device) bool {
	for _, md := range d.ManufacturerData {
		if md.CompanyID != ManufacturerID {
			continue
		}
		return h.handleFrame(d, Frame{
			CompanyID: md.CompanyID,
			Data:      md.Data,
			RSSI:      clampRSSI(d.RSSI),
		})
	}
	return false
}

func (h *Handler) handleFrame(d ble.Device, f Frame) bool {
	fields, err := h.decoder.Decode(f)
	h.opts.Metrics.ObserveFrame(RejectReason(err))
	if err != nil {
		h.logger.Debug("cozytime: ignore frame", "addr", d.Address, "error", err, "data", utils.BytesToHex(f.Data))
		return false
	}

	station := h.stationFor(d.Address)
	h.logger.Debug("cozytime: frame decoded",
		"addr", d.Address,
		"station_id", station,
		"t_byte", f.Data[temperatureIdx],
		"h_byte", f.Data[humidityIdx],
		"T", fields.Temperature,
		"H", fields.Humidity,
		"rssi", fields.RSSI,
		"data", utils.BytesToHex(f.Data),
	)
	h.opts.Metrics.ObserveReading(station, fields.Temperature, fields.Humidity, int(fields.RSSI))

	now := h.now()
	if !h.shouldForward(d.Address, station, fields, now) {
		return true
	}

	temp := fields.Temperature
	hum := fields.Humidity
	rssi := int(fields.RSSI)
	telemetry := types.Telemetry{
		StationID:   station,
		Timestamp:   now,
		Temperature: &temp,
		Humidity:    &hum,
		RSSI:        &rssi,
		Address:     d.Address,
	}
	h.opts.Metrics.ObserveForward(station)
	for _, s := range h.opts.Sinks {
		if err := s.Handle(telemetry); err != nil {
			h.opts.Metrics.ObserveSinkError(s.Name)
			h.logger.Warn("cozytime: sink failed", "sink", s.Name, "addr", d.Address, "station_id", station, "error", err)
		}
	}
	h.logger.Info("cozytime: reading forwarded",
		"addr", d.Address,
		"station_id", station,
		"rssi", rssi,
		"T", temp, "H", hum,
	)
	return true
}

func (h *Handler) shouldForward(addr, station string, f Fields, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastSeen[station] = now

	prev, ok := h.forwarded[addr]
	if ok && prev.temperature == f.Temperature && prev.humidity == f.Humidity &&
		now.Sub(prev.at) < h.opts.MinInterval {
		return false
	}
	if !ok && len(h.forwarded) >= maxTrackedDevices {
		h.forwarded = make(map[string]forwardState)
	}
	h.forwarded[addr] = forwardState{at: now, temperature: f.Temperature, humidity: f.Humidity}
	return true
}

func (h *Handler) stationFor(addr string) string {
	if id, ok := h.opts.Stations[strings.ToUpper(addr)]; ok {
		return id
	}
	return h.opts.DefaultStation
}

// Stations returns every station that produced a valid reading, by id.
func (h *Handler) Stations() []StationSeen {
	h.mu.Lock()
	out := make([]StationSeen, 0, len(h.lastSeen))
	for id, at := range h.lastSeen {
		out = append(out, StationSeen{StationID: id, LastSeen: at})
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

func clampRSSI(v int16) int8 {
	if v < math.MinInt8 {
		return math.MinInt8
	}
	if v > math.MaxInt8 {
		return math.MaxInt8
	}
	return int8(v)
}
