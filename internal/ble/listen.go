package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/AndreOrlov/cozytime-bridge/internal/utils"
)

type Options struct {
	Adapter string // "hci0" by default
	Filter  Filter
	Logger  *slog.Logger
}

// Listener wraps BlueZ scanning with context cancellation and hands matching
// advertisements to the registered listeners.
type Listener struct {
	Registry

	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger,
	}
}

// Run enables the adapter and scans until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}
	l.logger.Info("ble: adapter enabled", "adapter", l.opts.Adapter)

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.adapter.StopScan()
		case <-stopped:
		}
	}()

	l.logger.Info("ble: scanning started",
		"filter_name", l.opts.Filter.LocalName,
		"filter_company", "0x"+utils.Hex4(l.opts.Filter.CompanyID),
		"filter_prefix", utils.BytesToHex(l.opts.Filter.ManufacturerDataPref),
	)

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		d := deviceFromScan(r, time.Now())
		if !l.opts.Filter.Match(d) {
			return
		}
		l.Dispatch(d)
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		l.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}

	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	l.logger.Info("ble: scanning stopped")
	return nil
}

func deviceFromScan(r bluetooth.ScanResult, seenAt time.Time) Device {
	d := Device{
		Address:   r.Address.String(),
		RSSI:      r.RSSI,
		LocalName: r.LocalName(),
		SeenAt:    seenAt,
	}
	// Scan results reuse their buffers; keep our own copies.
	for _, md := range r.ManufacturerData() {
		d.ManufacturerData = append(d.ManufacturerData, ManufacturerData{
			CompanyID: md.CompanyID,
			Data:      append([]byte(nil), md.Data...),
		})
	}
	return d
}
