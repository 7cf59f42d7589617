package cozytime

import (
	"math"
	"sync"
)

// Reading is the last successfully decoded frame.
type Reading struct {
	Temperature float64
	Humidity    float64
	RSSI        int8
	Valid       bool
}

// Decoder validates frames and keeps the last good reading.
// Safe for concurrent use: Decode replaces the reading as a whole and the
// accessors read it under the same lock.
type Decoder struct {
	mu   sync.RWMutex
	last Reading
}

// NewDecoder returns a decoder with no data (NaN temperature and humidity).
func NewDecoder() *Decoder {
	return &Decoder{
		last: Reading{
			Temperature: math.NaN(),
			Humidity:    math.NaN(),
		},
	}
}

// Decode parses f. On success the stored reading is overwritten and marked
// valid; on rejection it is left untouched.
func (d *Decoder) Decode(f Frame) (Fields, error) {
	fields, err := ParseFrame(f)
	if err != nil {
		return Fields{}, err
	}

	d.mu.Lock()
	d.last = Reading{
		Temperature: fields.Temperature,
		Humidity:    fields.Humidity,
		RSSI:        fields.RSSI,
		Valid:       true,
	}
	d.mu.Unlock()
	return fields, nil
}

// Snapshot returns the stored reading as one consistent value.
func (d *Decoder) Snapshot() Reading {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Temperature in °C, NaN before the first successful decode.
func (d *Decoder) Temperature() float64 { return d.Snapshot().Temperature }

// Humidity in %, NaN before the first successful decode.
func (d *Decoder) Humidity() float64 { return d.Snapshot().Humidity }

// RSSI in dBm captured with the stored reading.
func (d *Decoder) RSSI() int8 { return d.Snapshot().RSSI }

func (d *Decoder) HasValidData() bool { return d.Snapshot().Valid }
