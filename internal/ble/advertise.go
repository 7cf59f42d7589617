package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/AndreOrlov/cozytime-bridge/internal/utils"
)

type AdvertiserOptions struct {
	Adapter   string
	LocalName string
	CompanyID uint16
	Interval  time.Duration // advertising interval
	Logger    *slog.Logger
}

// Advertiser broadcasts non-connectable advertisements carrying a single
// manufacturer-data record.
type Advertiser struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	opts    AdvertiserOptions
	logger  *slog.Logger
}

func NewAdvertiser(opts AdvertiserOptions) (*Advertiser, error) {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	adapter := bluetooth.NewAdapter(opts.Adapter)
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble enable (%s): %w", opts.Adapter, err)
	}
	return &Advertiser{
		adapter: adapter,
		adv:     adapter.DefaultAdvertisement(),
		opts:    opts,
		logger:  logger,
	}, nil
}

// Send advertises payload for duration d, or until ctx is done.
func (a *Advertiser) Send(ctx context.Context, payload []byte, d time.Duration) error {
	err := a.adv.Configure(bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeNonConnInd,
		LocalName:         a.opts.LocalName,
		Interval:          bluetooth.NewDuration(a.opts.Interval),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: a.opts.CompanyID, Data: payload},
		},
	})
	if err != nil {
		return fmt.Errorf("ble advertisement configure: %w", err)
	}
	if err := a.adv.Start(); err != nil {
		_ = a.adv.Stop()
		return fmt.Errorf("ble advertisement start: %w", err)
	}
	a.logger.Debug("ble: advertising", "company", "0x"+utils.Hex4(a.opts.CompanyID), "data", utils.BytesToHex(payload))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	if err := a.adv.Stop(); err != nil {
		return fmt.Errorf("ble advertisement stop: %w", err)
	}
	return ctx.Err()
}
