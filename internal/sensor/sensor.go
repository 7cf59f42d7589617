package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/AndreOrlov/cozytime-bridge/internal/config"
	"github.com/AndreOrlov/cozytime-bridge/internal/types"
)

// senser is the part of *bmxx80.Dev the poll loop needs.
type senser interface {
	Sense(e *physic.Env) error
}

// Run polls a BME280 on the default I2C bus and hands each reading to sink,
// tagged with cfg.ReferenceStationID, until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, sink types.TelemetryHandler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	bus, err := i2creg.Open("") // default bus, usually /dev/i2c-1
	if err != nil {
		return fmt.Errorf("open i2c bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn("failed to close i2c bus", "error", err)
		}
	}()

	dev, err := bmxx80.NewI2C(bus, cfg.BME280Address, &bmxx80.DefaultOpts)
	if err != nil {
		return fmt.Errorf("bme280 at 0x%02X: %w", cfg.BME280Address, err)
	}
	defer func() {
		if err := dev.Halt(); err != nil {
			logger.Warn("failed to halt bme280", "error", err)
		}
	}()

	logger.Info("reference sensor started",
		"station_id", cfg.ReferenceStationID,
		"addr", fmt.Sprintf("0x%02X", cfg.BME280Address),
		"interval", cfg.SensorPollInterval,
	)
	return poll(ctx, dev, cfg.ReferenceStationID, cfg.SensorPollInterval, sink, logger, time.Now)
}

func poll(ctx context.Context, dev senser, stationID string, interval time.Duration, sink types.TelemetryHandler, logger *slog.Logger, now func() time.Time) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sequence := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var env physic.Env
			if err := dev.Sense(&env); err != nil {
				logger.Warn("bme280 sense failed", "error", err)
				continue
			}
			sequence++
			t := telemetryFromEnv(stationID, env, sequence, now())
			if err := sink(t); err != nil {
				logger.Warn("reference reading not delivered", "station_id", stationID, "seq", sequence, "error", err)
			}
		}
	}
}

func telemetryFromEnv(stationID string, env physic.Env, sequence int, ts time.Time) types.Telemetry {
	temperature := env.Temperature.Celsius()
	// Humidity is fixed point at 1e-5 %rH.
	humidity := float64(env.Humidity) / float64(physic.PercentRH)
	// Pressure is in nPa; 1 hPa = 100 Pa.
	pressure := float64(env.Pressure) / float64(100*physic.Pascal)

	return types.Telemetry{
		StationID:   stationID,
		Timestamp:   ts,
		Temperature: &temperature,
		Humidity:    &humidity,
		Pressure:    &pressure,
		Sequence:    &sequence,
	}
}
