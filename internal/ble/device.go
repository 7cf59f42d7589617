package ble

import (
	"bytes"
	"sync"
	"time"
)

// ManufacturerData is one manufacturer-specific record of an advertisement.
type ManufacturerData struct {
	CompanyID uint16
	Data      []byte
}

// Device is a single advertisement observation.
type Device struct {
	Address          string
	RSSI             int16
	LocalName        string
	ManufacturerData []ManufacturerData
	SeenAt           time.Time
}

// DeviceListener receives every advertisement that passes the scanner filter.
// ParseDevice reports whether the listener recognised the device.
type DeviceListener interface {
	ParseDevice(Device) bool
}

// Registry fans advertisements out to registered listeners.
type Registry struct {
	mu        sync.Mutex
	listeners []DeviceListener
}

func (r *Registry) RegisterListener(l DeviceListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Dispatch calls every listener in registration order. Calls are serialised,
// so a listener never sees two advertisements at once.
func (r *Registry) Dispatch(d Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	claimed := false
	for _, l := range r.listeners {
		if l.ParseDevice(d) {
			claimed = true
		}
	}
	return claimed
}

type Filter struct {
	LocalName            string
	CompanyID            uint16
	ManufacturerDataPref []byte
}

// Match reports whether d carries a manufacturer record accepted by f.
// A zero CompanyID and an empty prefix accept any record.
func (f Filter) Match(d Device) bool {
	if f.LocalName != "" && d.LocalName != f.LocalName {
		return false
	}
	if f.CompanyID == 0 && len(f.ManufacturerDataPref) == 0 {
		return true
	}
	for _, md := range d.ManufacturerData {
		if f.CompanyID != 0 && md.CompanyID != f.CompanyID {
			continue
		}
		if bytes.HasPrefix(md.Data, f.ManufacturerDataPref) {
			return true
		}
	}
	return false
}
