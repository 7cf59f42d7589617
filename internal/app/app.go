package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AndreOrlov/cozytime-bridge/internal/ble"
	"github.com/AndreOrlov/cozytime-bridge/internal/config"
	"github.com/AndreOrlov/cozytime-bridge/internal/cozytime"
	"github.com/AndreOrlov/cozytime-bridge/internal/db"
	"github.com/AndreOrlov/cozytime-bridge/internal/httpapi"
	"github.com/AndreOrlov/cozytime-bridge/internal/metrics"
	"github.com/AndreOrlov/cozytime-bridge/internal/migrate"
	"github.com/AndreOrlov/cozytime-bridge/internal/mqtt"
	"github.com/AndreOrlov/cozytime-bridge/internal/readings"
	"github.com/AndreOrlov/cozytime-bridge/internal/sensor"
	"github.com/AndreOrlov/cozytime-bridge/internal/types"
)

const (
	storeTimeout    = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("initializing gateway",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
		"ble_enabled", cfg.BLEEnabled,
		"ble_adapter", cfg.BLEAdapter,
		"http_addr", cfg.HTTPAddr,
	)

	store, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(store); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()
	if err := migrate.Run(ctx, store); err != nil {
		return err
	}
	repo := readings.NewRepository(store)
	m := metrics.New()

	mqttClient := mqtt.NewClient(cfg, logger)
	defer mqttClient.Disconnect()

	var wg sync.WaitGroup
	defer wg.Wait()
	// Stops the workers when the HTTP server fails on its own.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		// paho keeps retrying until ctx is done.
		if err := mqttClient.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("mqtt connect failed", "error", err)
		}
	}()

	sinks := []cozytime.Sink{
		{Name: "mqtt", Handle: mqttClient.PublishTelemetry},
		{Name: "store", Handle: storeSink(ctx, repo)},
	}

	decoder := cozytime.NewDecoder()
	handler := cozytime.NewHandler(decoder, cozytime.HandlerOptions{
		DefaultStation: cfg.DeviceStationID,
		Stations:       cfg.Stations,
		MinInterval:    cfg.PublishMinInterval,
		Sinks:          sinks,
		Metrics:        m,
		Logger:         logger,
	})

	if cfg.BLEEnabled {
		listener := ble.NewListener(ble.Options{
			Adapter: cfg.BLEAdapter,
			Filter:  ble.Filter{CompanyID: cozytime.ManufacturerID},
			Logger:  logger,
		})
		listener.RegisterListener(handler)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil {
				logger.Warn("ble listener could not be initialized; gateway continues without BLE",
					"error", err,
				)
			}
		}()
	} else {
		logger.Info("ble disabled")
	}

	if cfg.ReferenceSensorEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sensor.Run(ctx, cfg, fanout(logger, sinks), logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reference sensor stopped", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runHealth(ctx, cfg, handler, mqttClient.PublishStationHealth, logger)
	}()

	srv := httpapi.NewServer(cfg, httpapi.NewMux(httpapi.Deps{
		DB:       store,
		Decoder:  decoder,
		Readings: repo,
		Metrics:  m,
	}), logger)
	return serve(ctx, srv, logger)
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func storeSink(ctx context.Context, repo readings.Repository) types.TelemetryHandler {
	return func(t types.Telemetry) error {
		ctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		return repo.InsertReading(ctx, t)
	}
}

// fanout delivers to every sink and joins their errors.
func fanout(logger *slog.Logger, sinks []cozytime.Sink) types.TelemetryHandler {
	return func(t types.Telemetry) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Handle(t); err != nil {
				logger.Debug("sink failed", "sink", s.Name, "station_id", t.StationID, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			}
		}
		return errors.Join(errs...)
	}
}
