package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AndreOrlov/cozytime-bridge/internal/ble"
	"github.com/AndreOrlov/cozytime-bridge/internal/config"
	"github.com/AndreOrlov/cozytime-bridge/internal/cozytime"
	"github.com/AndreOrlov/cozytime-bridge/internal/logging"
	"github.com/AndreOrlov/cozytime-bridge/internal/utils"
)

var version = "dev"
var appName = "cozytime-simulator"

// Encodable range of the single-byte fields.
const (
	minTemperature = 4.2
	maxTemperature = 29.7
	minHumidity    = 0
	maxHumidity    = 100
)

type options struct {
	adapter     string
	localName   string
	temperature float64
	humidity    float64
	drift       float64
	burst       time.Duration
	pause       time.Duration
	count       int
}

func main() {
	var opts options
	flag.StringVar(&opts.adapter, "adapter", "hci0", "BlueZ adapter")
	flag.StringVar(&opts.localName, "name", "cozytime-sim", "advertised local name")
	flag.Float64Var(&opts.temperature, "temp", 21.5, "initial temperature in °C")
	flag.Float64Var(&opts.humidity, "hum", 45, "initial relative humidity in %")
	flag.Float64Var(&opts.drift, "drift", 0.2, "max random step per frame (°C and %/5); 0 keeps values fixed")
	flag.DurationVar(&opts.burst, "burst", 600*time.Millisecond, "advertising burst per frame")
	flag.DurationVar(&opts.pause, "pause", 2*time.Second, "pause between bursts")
	flag.IntVar(&opts.count, "count", 0, "number of frames to send; 0 runs until interrupted")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg, version, appName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
	slog.Info("shutting down")
}

func run(ctx context.Context, opts options) error {
	if _, err := cozytime.EncodeFrame(opts.temperature, opts.humidity, 0); err != nil {
		return err
	}

	adv, err := ble.NewAdvertiser(ble.AdvertiserOptions{
		Adapter:   opts.adapter,
		LocalName: opts.localName,
		// The host stack prefixes the company id; the frame carries its own copy.
		CompanyID: cozytime.ManufacturerID,
		Logger:    slog.Default(),
	})
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	t, h := opts.temperature, opts.humidity
	var counter byte
	for sent := 0; opts.count == 0 || sent < opts.count; sent++ {
		frame, err := cozytime.EncodeFrame(t, h, counter)
		if err != nil {
			return err
		}
		slog.Info("advertising frame",
			"counter", counter,
			"T", math.Round(t*10)/10,
			"H", math.Round(h),
			"data", utils.BytesToHex(frame),
		)
		if err := adv.Send(ctx, frame, opts.burst); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.pause):
		}

		counter++
		t, h = drift(t, h, opts.drift, rng)
	}
	return nil
}

// drift moves the reading by a random step, kept inside the encodable range.
func drift(t, h, step float64, rng *rand.Rand) (float64, float64) {
	if step <= 0 {
		return t, h
	}
	t += (rng.Float64()*2 - 1) * step
	h += (rng.Float64()*2 - 1) * step * 5
	return clamp(t, minTemperature, maxTemperature), clamp(h, minHumidity, maxHumidity)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
